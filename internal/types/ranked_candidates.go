// Package types provides type definitions for structured data used throughout the shift-backfill system.
//
//nolint:revive // types is a standard Go package name pattern
package types

// FeatureScores holds the normalized per-feature scores of a candidate, each in [0,1].
type FeatureScores struct {
	Distance    float64 `json:"distance"`
	Skills      float64 `json:"skills"`
	Reliability float64 `json:"reliability"`
	Language    float64 `json:"language"`
}

// RankedCandidate is a scored candidate. Lists of these are ordered by FinalScore descending.
type RankedCandidate struct {
	WorkerID      string        `json:"worker_id"`
	FinalScore    float64       `json:"final_score"`
	FeatureScores FeatureScores `json:"feature_scores"`
	Rationale     string        `json:"rationale"`
}

// RankingMode identifies which algorithm produced a ranking.
type RankingMode string

const (
	// RankingDeterministic is the weighted-sum scoring computed locally.
	RankingDeterministic RankingMode = "deterministic"
	// RankingOracle is the result returned by the language-model oracle.
	RankingOracle RankingMode = "oracle"
	// RankingFallback is the deterministic result used after the oracle was rejected.
	RankingFallback RankingMode = "oracle_fallback"
)

// RankingResult is the output of ranking a candidate set for one vacancy.
type RankingResult struct {
	Ranked     []RankedCandidate `json:"ranked"`
	ChosenID   string            `json:"chosen_id"`
	Redactions []string          `json:"redactions"`
	Mode       RankingMode       `json:"mode"`
}
