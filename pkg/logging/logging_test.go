package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewHandler(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(NewHandler(&buf, slog.LevelInfo, FormatJSON))

		logger.Debug("dropped")
		logger.Info("Race stored", "race", "r1")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("output %q is not one JSON record: %v", buf.String(), err)
		}
		if entry["msg"] != "Race stored" || entry["race"] != "r1" {
			t.Errorf("entry = %v", entry)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(NewHandler(&buf, slog.LevelWarn, FormatText))

		logger.Info("dropped")
		logger.Warn("Transfer rejected", "reason", "quota")

		out := buf.String()
		if strings.Contains(out, "dropped") {
			t.Errorf("info record leaked at warn level: %q", out)
		}
		if !strings.Contains(out, "Transfer rejected") || !strings.Contains(out, "quota") {
			t.Errorf("output %q misses the warning", out)
		}
	})
}
