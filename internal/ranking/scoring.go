// Package ranking scores substitute caregivers for a vacancy and picks the one to contact.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jonathan/shift-backfill/internal/types"
)

// Weights of the scoring components. They sum to 1.
const (
	distanceWeight    = 0.4
	skillsWeight      = 0.3
	reliabilityWeight = 0.2
	languageWeight    = 0.1
)

// maxDistanceMiles is the distance at which the distance score reaches zero.
const maxDistanceMiles = 10.0

// Weights returns the scoring weights as recorded in audit metadata.
func Weights() map[string]float64 {
	return map[string]float64{
		"distance":    distanceWeight,
		"skills":      skillsWeight,
		"reliability": reliabilityWeight,
		"language":    languageWeight,
	}
}

func clamp01(n float64) float64 {
	if math.IsNaN(n) {
		return 0
	}
	return math.Max(0, math.Min(1, n))
}

// scoreCandidate computes one candidate's feature and final scores.
// A candidate without the mandatory skills always scores 0.
func scoreCandidate(c types.CandidateRow, requiredCount int) types.RankedCandidate {
	reliability := clamp01(c.ReliabilityScore)
	language := 0.0
	if c.LanguageMatch {
		language = 1
	}

	rc := types.RankedCandidate{
		WorkerID:  c.WorkerID,
		Rationale: rationale(c, reliability),
	}

	if !c.HasMandatorySkills {
		rc.FeatureScores = types.FeatureScores{Reliability: reliability, Language: language}
		return rc
	}

	distance := clamp01(1 - math.Min(c.DistanceMiles/maxDistanceMiles, 1))
	skills := clamp01(float64(len(c.SkillOverlap)) / float64(max(1, requiredCount)))

	rc.FeatureScores = types.FeatureScores{
		Distance:    distance,
		Skills:      skills,
		Reliability: reliability,
		Language:    language,
	}
	rc.FinalScore = clamp01(distanceWeight*distance +
		skillsWeight*skills +
		reliabilityWeight*reliability +
		languageWeight*language)
	return rc
}

func rationale(c types.CandidateRow, reliability float64) string {
	skills := "meets mandatory"
	if !c.HasMandatorySkills {
		skills = "missing mandatory"
	}
	lang := "no match"
	if c.LanguageMatch {
		lang = "match"
	}
	return strings.Join([]string{
		fmt.Sprintf("Distance: %.1fmi", c.DistanceMiles),
		"Skills: " + skills,
		fmt.Sprintf("Reliability: %.0f%%", reliability*100),
		"Language: " + lang,
	}, " • ")
}

// sortByScore orders ranked descending by FinalScore, keeping input order on ties.
func sortByScore(ranked []types.RankedCandidate) {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
}
