package backfill

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/shift-backfill/internal/types"
)

// DefaultLanguage is assumed when a client has no primary language on file.
const DefaultLanguage = "en"

// Analyzer builds the vacancy snapshot for a cancelled shift.
type Analyzer struct {
	shifts ShiftStore
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(shifts ShiftStore) *Analyzer {
	return &Analyzer{shifts: shifts}
}

// Analyze loads the shift and its client. A missing shift or client is a
// *types.NotFoundError.
func (a *Analyzer) Analyze(ctx context.Context, shiftID string) (types.Vacancy, error) {
	rec, err := a.shifts.GetShiftWithClient(ctx, shiftID)
	if err != nil {
		return types.Vacancy{}, fmt.Errorf("failed to load shift %s: %w", shiftID, err)
	}
	if rec == nil {
		return types.Vacancy{}, &types.NotFoundError{Entity: "shift", ID: shiftID}
	}
	if rec.Client == nil {
		return types.Vacancy{}, &types.NotFoundError{Entity: "client", ID: rec.ClientID}
	}

	language := strings.TrimSpace(rec.Client.PrimaryLanguage)
	if language == "" {
		language = DefaultLanguage
	}
	skills := rec.RequiredSkills
	if skills == nil {
		skills = []string{}
	}

	return types.Vacancy{
		ShiftID:           rec.ID,
		ClientID:          rec.Client.ID,
		ClientFirstName:   rec.Client.FirstName,
		ClientLastInitial: rec.Client.LastInitial,
		ClientLanguage:    language,
		StartTime:         rec.StartTime,
		EndTime:           rec.EndTime,
		RequiredSkills:    append([]string(nil), skills...),
	}, nil
}
