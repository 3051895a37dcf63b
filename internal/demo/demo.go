// Package demo holds the fixture data loaded by `serve --memory` and `migrate --seed`.
package demo

import (
	"time"

	"github.com/jonathan/shift-backfill/internal/types"
)

// Fixed identifiers of the demo records.
const (
	ClientID    = "00000000-0000-4000-8000-0000000000c1"
	ShiftID     = "00000000-0000-4000-8000-0000000005f1"
	BobID       = "00000000-0000-4000-8000-0000000000b0"
	AliceID     = "00000000-0000-4000-8000-0000000000a1"
	CharlieID   = "00000000-0000-4000-8000-0000000000c3"
	ShiftLength = 4 * time.Hour
)

// Dataset is one client, three caregivers and one assigned shift.
type Dataset struct {
	Client  types.ClientRecord
	Workers []types.WorkerRecord
	Shift   types.ShiftRecord
}

// Data builds the dataset with the shift starting two hours after now.
func Data(now time.Time) Dataset {
	start := now.Add(2 * time.Hour).Truncate(time.Minute).UTC()
	bob := BobID

	return Dataset{
		Client: types.ClientRecord{
			ID:              ClientID,
			FirstName:       "Mr",
			LastInitial:     "S",
			PrimaryLanguage: "en",
			Latitude:        40.73061,
			Longitude:       -73.935242,
		},
		Workers: []types.WorkerRecord{
			{
				ID: BobID, Name: "Bob Caregiver", Phone: "+15555550101",
				Skills: []string{"BLS", "Dementia"}, Languages: []string{"en"},
				Latitude: 40.735, Longitude: -73.941,
				ReliabilityScore: 0.7, LastMinuteAcceptRate: 0.6, Active: true,
			},
			{
				ID: AliceID, Name: "Alice Caregiver", Phone: "+15555550102",
				Skills: []string{"BLS"}, Languages: []string{"es"},
				Latitude: 40.72, Longitude: -73.98,
				ReliabilityScore: 0.8, LastMinuteAcceptRate: 0.4, Active: true,
			},
			{
				ID: CharlieID, Name: "Charlie Caregiver", Phone: "+15555550103",
				Skills: []string{"BLS", "Dementia", "Hoyer Lift"}, Languages: []string{"en"},
				Latitude: 40.71, Longitude: -74.02,
				ReliabilityScore: 0.6, LastMinuteAcceptRate: 0.7, Active: true,
			},
		},
		Shift: types.ShiftRecord{
			ID:             ShiftID,
			ClientID:       ClientID,
			WorkerID:       &bob,
			Status:         types.ShiftStatusAssigned,
			StartTime:      start,
			EndTime:        start.Add(ShiftLength),
			RequiredSkills: []string{"Dementia"},
		},
	}
}
