package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jonathan/shift-backfill/internal/llm"
	"github.com/jonathan/shift-backfill/internal/phi"
	"github.com/jonathan/shift-backfill/internal/prompts"
	"github.com/jonathan/shift-backfill/internal/schemas"
	"github.com/jonathan/shift-backfill/internal/types"
)

// Oracle asks a language model to rank candidates and enforces its output contract.
// Candidates are sent under opaque refs so worker ids stay out of the prompt.
type Oracle struct {
	client llm.Client
	tier   llm.ModelTier
}

// NewOracle wraps client. The standard tier is used.
func NewOracle(client llm.Client) *Oracle {
	return &Oracle{client: client, tier: llm.TierStandard}
}

// Model names the model that will answer, for audit metadata.
func (o *Oracle) Model() string {
	return o.client.GetModel(o.tier)
}

type promptCandidate struct {
	Ref                string   `json:"ref"`
	DistanceMiles      float64  `json:"distanceMiles"`
	SkillsOverlap      []string `json:"skillsOverlap"`
	HasMandatorySkills bool     `json:"hasMandatorySkills"`
	ReliabilityScore   float64  `json:"reliabilityScore"`
	LanguageMatch      bool     `json:"languageMatch"`
}

type oracleOutput struct {
	Ranked []struct {
		Ref           string              `json:"ref"`
		FinalScore    float64             `json:"finalScore"`
		FeatureScores types.FeatureScores `json:"featureScores"`
		Rationale     string              `json:"rationale"`
	} `json:"ranked"`
	ChosenRef *string `json:"chosenRef"`
}

// Rank returns the oracle's ranking. Failures are *types.TransportError for the
// model call and *types.ContractViolationError for anything wrong with the answer.
func (o *Oracle) Rank(ctx context.Context, vacancy types.Vacancy, candidates []types.CandidateRow) (types.RankingResult, string, error) {
	prompt, refs, err := buildPrompt(vacancy, candidates)
	if err != nil {
		return types.RankingResult{}, "", err
	}

	raw, err := o.client.GenerateJSON(ctx, prompt, o.tier)
	if err != nil {
		return types.RankingResult{}, "", &types.TransportError{Op: "ranking oracle", Err: err}
	}
	raw = llm.CleanJSONBlock(raw)

	result, err := parseOutput(raw, refs, candidates)
	return result, raw, err
}

func buildPrompt(vacancy types.Vacancy, candidates []types.CandidateRow) (string, map[string]int, error) {
	refs := make(map[string]int, len(candidates))
	list := make([]promptCandidate, len(candidates))
	for i, c := range candidates {
		ref := "c" + strconv.Itoa(i+1)
		refs[ref] = i
		overlap := c.SkillOverlap
		if overlap == nil {
			overlap = []string{}
		}
		list[i] = promptCandidate{
			Ref:                ref,
			DistanceMiles:      c.DistanceMiles,
			SkillsOverlap:      overlap,
			HasMandatorySkills: c.HasMandatorySkills,
			ReliabilityScore:   c.ReliabilityScore,
			LanguageMatch:      c.LanguageMatch,
		}
	}

	candJSON, err := json.Marshal(list)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode candidates: %w", err)
	}
	skillsJSON, err := json.Marshal(vacancy.RequiredSkills)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode required skills: %w", err)
	}

	prompt, err := prompts.Render(prompts.RankingFile, prompts.KeyRankCandidates, map[string]string{
		"Client":            phi.ClientLabel(vacancy.ClientFirstName, vacancy.ClientLastInitial),
		"Language":          vacancy.ClientLanguage,
		"StartTime":         vacancy.StartTime.UTC().Format(time.RFC3339),
		"EndTime":           vacancy.EndTime.UTC().Format(time.RFC3339),
		"RequiredSkills":    string(skillsJSON),
		"Candidates":        string(candJSON),
		"DistanceWeight":    strconv.FormatFloat(distanceWeight, 'f', -1, 64),
		"SkillsWeight":      strconv.FormatFloat(skillsWeight, 'f', -1, 64),
		"ReliabilityWeight": strconv.FormatFloat(reliabilityWeight, 'f', -1, 64),
		"LanguageWeight":    strconv.FormatFloat(languageWeight, 'f', -1, 64),
	})
	if err != nil {
		return "", nil, err
	}
	return prompt, refs, nil
}

func parseOutput(raw string, refs map[string]int, candidates []types.CandidateRow) (types.RankingResult, error) {
	if err := schemas.Validate(schemas.RankingOutput, []byte(raw)); err != nil {
		return types.RankingResult{}, &types.ContractViolationError{Reason: "output failed schema validation", Cause: err}
	}

	var out oracleOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return types.RankingResult{}, &types.ContractViolationError{Reason: "output is not valid JSON", Cause: err}
	}

	qualified := make(map[string]bool, len(candidates))
	anyQualified := false
	for _, c := range candidates {
		qualified[c.WorkerID] = c.HasMandatorySkills
		anyQualified = anyQualified || c.HasMandatorySkills
	}

	seen := make(map[string]bool, len(out.Ranked))
	ranked := make([]types.RankedCandidate, 0, len(out.Ranked))
	for _, r := range out.Ranked {
		idx, ok := refs[r.Ref]
		if !ok {
			return types.RankingResult{}, &types.ContractViolationError{Reason: fmt.Sprintf("unknown candidate ref %q", r.Ref)}
		}
		if seen[r.Ref] {
			return types.RankingResult{}, &types.ContractViolationError{Reason: fmt.Sprintf("duplicate candidate ref %q", r.Ref)}
		}
		seen[r.Ref] = true

		cand := candidates[idx]
		if !cand.HasMandatorySkills && r.FinalScore > 0 {
			return types.RankingResult{}, &types.ContractViolationError{Reason: fmt.Sprintf("candidate %q lacks mandatory skills but scored %.2f", r.Ref, r.FinalScore)}
		}
		ranked = append(ranked, types.RankedCandidate{
			WorkerID:   cand.WorkerID,
			FinalScore: clamp01(r.FinalScore),
			FeatureScores: types.FeatureScores{
				Distance:    clamp01(r.FeatureScores.Distance),
				Skills:      clamp01(r.FeatureScores.Skills),
				Reliability: clamp01(r.FeatureScores.Reliability),
				Language:    clamp01(r.FeatureScores.Language),
			},
			Rationale: r.Rationale,
		})
	}
	sortByScore(ranked)

	top := ranked[0]
	if out.ChosenRef != nil && *out.ChosenRef != "" {
		idx, ok := refs[*out.ChosenRef]
		if !ok || candidates[idx].WorkerID != top.WorkerID {
			return types.RankingResult{}, &types.ContractViolationError{Reason: fmt.Sprintf("chosen ref %q is not the top-ranked candidate", *out.ChosenRef)}
		}
	}
	if anyQualified && !qualified[top.WorkerID] {
		return types.RankingResult{}, &types.ContractViolationError{Reason: "top-ranked candidate lacks mandatory skills"}
	}

	return types.RankingResult{
		Ranked:     ranked,
		ChosenID:   top.WorkerID,
		Redactions: []string{phi.RedactionClientName},
		Mode:       types.RankingOracle,
	}, nil
}
