package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
)

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Timestamps are stored as Unix seconds in UTC.
const schema = `
CREATE TABLE IF NOT EXISTS seasons (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT NOT NULL UNIQUE,
    start_at INTEGER NOT NULL,
    end_at INTEGER NOT NULL,
    is_closed INTEGER NOT NULL DEFAULT 0,
    is_current INTEGER NOT NULL DEFAULT 0,
    max_points_per_rider INTEGER,
    max_transfers INTEGER
);

CREATE TABLE IF NOT EXISTS periods (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    season_id INTEGER NOT NULL,
    start_at INTEGER NOT NULL,
    end_at INTEGER NOT NULL,
    max_transfers INTEGER NOT NULL,
    FOREIGN KEY (season_id) REFERENCES seasons(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS teams (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    season_id INTEGER NOT NULL,
    abbreviation TEXT NOT NULL,
    name TEXT NOT NULL,
    memo TEXT NOT NULL DEFAULT '',
    UNIQUE (season_id, abbreviation),
    FOREIGN KEY (season_id) REFERENCES seasons(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS riders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    external_id TEXT UNIQUE
);

CREATE TABLE IF NOT EXISTS contracts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    rider_id INTEGER NOT NULL,
    team_id INTEGER NOT NULL,
    season_id INTEGER NOT NULL,
    start_at INTEGER NOT NULL,
    end_at INTEGER,
    FOREIGN KEY (rider_id) REFERENCES riders(id),
    FOREIGN KEY (team_id) REFERENCES teams(id),
    FOREIGN KEY (season_id) REFERENCES seasons(id)
);

CREATE TABLE IF NOT EXISTS transfers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    rider_id INTEGER NOT NULL,
    season_id INTEGER NOT NULL,
    to_team_id INTEGER,
    type TEXT NOT NULL CHECK (type IN ('DRAFT', 'USER', 'ADMIN')),
    transfer_at INTEGER NOT NULL,
    pair_key TEXT,
    FOREIGN KEY (rider_id) REFERENCES riders(id),
    FOREIGN KEY (season_id) REFERENCES seasons(id),
    FOREIGN KEY (to_team_id) REFERENCES teams(id)
);

CREATE TABLE IF NOT EXISTS races (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    season_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    race_at INTEGER NOT NULL,
    general_classification INTEGER NOT NULL DEFAULT 0,
    external_id TEXT NOT NULL UNIQUE,
    fully_processed INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (season_id) REFERENCES seasons(id)
);

CREATE TABLE IF NOT EXISTS race_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    race_id INTEGER NOT NULL,
    rider_id INTEGER,
    team_id INTEGER,
    rider_points INTEGER NOT NULL DEFAULT 0,
    team_points INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL,
    FOREIGN KEY (race_id) REFERENCES races(id) ON DELETE CASCADE,
    FOREIGN KEY (rider_id) REFERENCES riders(id),
    FOREIGN KEY (team_id) REFERENCES teams(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_contracts_one_active
    ON contracts(rider_id, season_id) WHERE end_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_contracts_team ON contracts(team_id) WHERE end_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_transfers_rider_at ON transfers(rider_id, transfer_at);
CREATE INDEX IF NOT EXISTS idx_transfers_team_at ON transfers(to_team_id, transfer_at);
CREATE INDEX IF NOT EXISTS idx_transfers_pair_key ON transfers(pair_key);
CREATE INDEX IF NOT EXISTS idx_periods_season ON periods(season_id);
CREATE INDEX IF NOT EXISTS idx_races_season_at ON races(season_id, race_at);
CREATE INDEX IF NOT EXISTS idx_race_results_race ON race_results(race_id);
CREATE INDEX IF NOT EXISTS idx_race_results_rider ON race_results(rider_id);
CREATE INDEX IF NOT EXISTS idx_race_results_team ON race_results(team_id);
`

// versionedTables are the tables whose writes bump data_version.
var versionedTables = []string{
	"seasons", "periods", "teams", "riders", "contracts", "transfers", "races", "race_results",
}

// versionSchema creates the single-row data_version counter and the triggers
// that advance it on every write to a versioned table.
func versionSchema() string {
	var b strings.Builder
	b.WriteString(`
CREATE TABLE IF NOT EXISTS data_version (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL
);
INSERT OR IGNORE INTO data_version (id, version) VALUES (1, 0);
`)
	for _, table := range versionedTables {
		for _, op := range []string{"INSERT", "UPDATE", "DELETE"} {
			fmt.Fprintf(&b, `
CREATE TRIGGER IF NOT EXISTS bump_version_%s_%s AFTER %s ON %s
BEGIN
    UPDATE data_version SET version = version + 1 WHERE id = 1;
END;
`, table, strings.ToLower(op), op, table)
		}
	}
	return b.String()
}

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	_, err := db.Exec(versionSchema())
	return err
}
