package ranking

import (
	"context"

	"github.com/jonathan/shift-backfill/internal/audit"
	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/metrics"
	"github.com/jonathan/shift-backfill/internal/phi"
	"github.com/jonathan/shift-backfill/internal/types"
)

const maxAuditedRaw = 4000

// Engine ranks candidates, preferring the oracle when one is configured and
// falling back to Deterministic whenever the oracle fails. Rank never errors.
type Engine struct {
	oracle  *Oracle
	audit   audit.Recorder
	log     logging.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an Engine. oracle may be nil for deterministic-only ranking.
func NewEngine(oracle *Oracle, rec audit.Recorder, log logging.Logger, m *metrics.Metrics) *Engine {
	if rec == nil {
		rec = audit.Nop{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{oracle: oracle, audit: rec, log: log, metrics: m}
}

// Rank scores candidates for vacancy. Every call writes one audit entry.
func (e *Engine) Rank(ctx context.Context, vacancy types.Vacancy, candidates []types.CandidateRow) types.RankingResult {
	input := auditInput(vacancy, candidates)
	meta := map[string]any{"weights": Weights()}

	if e.oracle == nil || len(candidates) == 0 {
		result := Deterministic(vacancy, candidates)
		rationale := "Deterministic weighted scoring."
		if e.oracle != nil {
			rationale = "No candidates; oracle skipped."
		}
		e.record(ctx, audit.ActionRankDeterministic, vacancy, input, result, rationale, meta)
		return result
	}

	meta["model"] = e.oracle.Model()
	result, raw, err := e.oracle.Rank(ctx, vacancy, candidates)
	if err == nil {
		e.record(ctx, audit.ActionRankOracle, vacancy, input, result, "Oracle-ranked candidates using weighted scoring.", meta)
		return result
	}

	e.log.Warn("ranking oracle rejected, using deterministic scoring",
		logging.String("shift_id", vacancy.ShiftID),
		logging.Error(err),
	)
	result = Deterministic(vacancy, candidates)
	result.Mode = types.RankingFallback
	if len(raw) > maxAuditedRaw {
		raw = raw[:maxAuditedRaw]
	}
	meta["oracle_raw"] = raw
	e.record(ctx, audit.ActionRankFallback, vacancy, input, result, err.Error(), meta)
	return result
}

func (e *Engine) record(ctx context.Context, action string, vacancy types.Vacancy, input any, result types.RankingResult, rationale string, meta map[string]any) {
	e.metrics.Ranked(string(result.Mode))
	e.audit.Record(ctx, types.AuditEntry{
		Action:        action,
		EntityType:    types.EntityShift,
		EntityID:      vacancy.ShiftID,
		RedactedInput: input,
		Output: map[string]any{
			"chosen_worker_id": result.ChosenID,
			"ranked":           result.Ranked,
			"mode":             result.Mode,
		},
		Rationale: rationale,
		Metadata:  meta,
	})
}

type auditCandidate struct {
	WorkerID           string   `json:"worker_id"`
	Name               string   `json:"name"`
	DistanceMiles      float64  `json:"distance_miles"`
	SkillOverlap       []string `json:"skill_overlap"`
	HasMandatorySkills bool     `json:"has_mandatory_skills"`
	ReliabilityScore   float64  `json:"reliability_score"`
	LanguageMatch      bool     `json:"language_match"`
}

func auditInput(vacancy types.Vacancy, candidates []types.CandidateRow) map[string]any {
	list := make([]auditCandidate, len(candidates))
	for i, c := range candidates {
		list[i] = auditCandidate{
			WorkerID:           c.WorkerID,
			Name:               c.Name,
			DistanceMiles:      c.DistanceMiles,
			SkillOverlap:       c.SkillOverlap,
			HasMandatorySkills: c.HasMandatorySkills,
			ReliabilityScore:   c.ReliabilityScore,
			LanguageMatch:      c.LanguageMatch,
		}
	}
	return map[string]any{
		"shift_id":        vacancy.ShiftID,
		"client":          phi.ClientLabel(vacancy.ClientFirstName, vacancy.ClientLastInitial),
		"required_skills": vacancy.RequiredSkills,
		"candidates":      list,
	}
}
