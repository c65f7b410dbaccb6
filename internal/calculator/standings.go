package calculator

import (
	"cmp"
	"slices"

	"github.com/mmynk/cyclear/internal/models"
)

// SortStandings orders rows by points descending, ties broken by team
// abbreviation ascending.
func SortStandings(rows []models.TeamPoints) {
	sortByPoints(rows, func(r models.TeamPoints) (int, string) {
		return r.Points, r.Team.Abbreviation
	})
}

func sortByPoints[T any](rows []T, key func(T) (int, string)) {
	slices.SortStableFunc(rows, func(x, y T) int {
		px, ax := key(x)
		py, ay := key(y)
		return cmp.Or(cmp.Compare(py, px), cmp.Compare(ax, ay))
	})
}

// Page selects a window of an ordered projection. A zero Limit means no limit.
type Page struct {
	Offset int
	Limit  int
}

// Paginate returns the page of items. Out-of-range offsets yield an empty slice.
func Paginate[T any](items []T, p Page) []T {
	offset := max(p.Offset, 0)
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if p.Limit > 0 && offset+p.Limit < end {
		end = offset + p.Limit
	}
	return items[offset:end]
}
