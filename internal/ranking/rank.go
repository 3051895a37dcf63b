package ranking

import (
	"github.com/jonathan/shift-backfill/internal/phi"
	"github.com/jonathan/shift-backfill/internal/types"
)

// Deterministic ranks candidates with the weighted scoring model. It is pure:
// the same vacancy and candidates always produce the same result.
func Deterministic(vacancy types.Vacancy, candidates []types.CandidateRow) types.RankingResult {
	ranked := make([]types.RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scoreCandidate(c, len(vacancy.RequiredSkills)))
	}
	sortByScore(ranked)

	result := types.RankingResult{
		Ranked:     ranked,
		Redactions: []string{phi.RedactionClientName},
		Mode:       types.RankingDeterministic,
	}
	if len(ranked) > 0 {
		result.ChosenID = ranked[0].WorkerID
	}
	return result
}
