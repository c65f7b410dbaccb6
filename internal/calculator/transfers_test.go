package calculator

import (
	"reflect"
	"testing"

	"github.com/mmynk/cyclear/internal/models"
)

func TestBestTransfers(t *testing.T) {
	acq := Acquisitions{
		Teams: []models.Team{teamA, teamB},
		Riders: map[int64]models.Rider{
			1: {ID: 1, Name: "Ayuso"},
			2: {ID: 2, Name: "Bernal"},
			3: {ID: 3, Name: "Carapaz"},
		},
		Acquired: map[int64][]int64{teamA.ID: {1, 3}, teamB.ID: {2, 1}},
	}
	results := []ResultForScore{
		{RiderID: 1, TeamID: idPtr(teamA.ID), TeamPoints: 20},
		{RiderID: 1, TeamID: idPtr(teamA.ID), TeamPoints: 5},
		{RiderID: 1, TeamID: idPtr(teamB.ID), TeamPoints: 25},
		{RiderID: 2, TeamID: idPtr(teamB.ID), TeamPoints: 40},
		{RiderID: 2, TeamID: idPtr(teamA.ID), TeamPoints: 99}, // never acquired by A
		{RiderID: 3, TeamID: idPtr(teamA.ID)},
	}

	got := BestTransfers(acq, results)
	type row struct {
		rider string
		team  string
		pts   int
	}
	var rows []row
	for _, r := range got {
		rows = append(rows, row{r.Rider.Name, r.Team.Abbreviation, r.Points})
	}
	want := []row{
		{"Bernal", "BBB", 40},
		{"Ayuso", "AAA", 25},
		{"Ayuso", "BBB", 25},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("BestTransfers = %v, want %v", rows, want)
	}
}

func TestTransferTotals(t *testing.T) {
	acq := Acquisitions{
		Teams:    []models.Team{teamA, teamB},
		Acquired: map[int64][]int64{teamA.ID: {1, 2}},
		Drafted:  map[int64]map[int64]bool{teamA.ID: {2: true}},
	}
	results := []ResultForScore{
		{RiderID: 1, TeamID: idPtr(teamA.ID), TeamPoints: 12},
		{RiderID: 2, TeamID: idPtr(teamA.ID), TeamPoints: 30}, // drafted back, excluded
		{RiderID: 1, TeamID: idPtr(teamB.ID), TeamPoints: 7},
	}

	got := TransferTotals(acq, results)
	if len(got) != 2 || got[0].Team.ID != teamA.ID || got[0].Points != 12 || got[1].Points != 0 {
		t.Errorf("TransferTotals = %+v, want AAA=12 BBB=0", got)
	}
}
