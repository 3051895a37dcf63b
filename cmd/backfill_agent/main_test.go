package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/shift-backfill/internal/demo"
	"github.com/jonathan/shift-backfill/internal/types"
)

// isolateEnv blanks every setting that would reach an external service.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "REDIS_ADDR",
		"LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER",
		"VAPI_API_KEY", "VAPI_PHONE_NUMBER_ID", "VAPI_ASSISTANT_ID",
		"MANAGER_PHONE_NUMBER", "PORT", "LLM_PROVIDER",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	isolateEnv(t)
	memoryMode, configPath, cancelBy, rankRadius, pretty = false, "", "", 0, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRankCommand_Memory(t *testing.T) {
	out, err := execute(t, "rank", demo.ShiftID, "--memory")
	require.NoError(t, err)

	var resp struct {
		RadiusMiles float64             `json:"radius_miles"`
		Candidates  []types.CandidateRow `json:"candidates"`
		Ranking     types.RankingResult  `json:"ranking"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 10.0, resp.RadiusMiles)
	assert.NotEmpty(t, resp.Candidates)
	assert.Equal(t, types.RankingDeterministic, resp.Ranking.Mode)
	require.NotEmpty(t, resp.Ranking.Ranked)
	assert.Equal(t, resp.Ranking.Ranked[0].WorkerID, resp.Ranking.ChosenID)
}

func TestRankCommand_UnknownShift(t *testing.T) {
	_, err := execute(t, "rank", "missing", "--memory")
	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestCancelCommand_Memory(t *testing.T) {
	out, err := execute(t, "cancel", demo.ShiftID, "--memory", "--by", "ops")
	require.NoError(t, err)

	var resp struct {
		Run      types.BackfillRun       `json:"run"`
		Attempts []types.BackfillAttempt `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, types.RunStatusRunning, resp.Run.Status)
	require.Len(t, resp.Attempts, 1)
	assert.Equal(t, demo.CharlieID, resp.Attempts[0].WorkerID)
	assert.Equal(t, types.AttemptSent, resp.Attempts[0].Status)
}

func TestRankCommand_Pretty(t *testing.T) {
	out, err := execute(t, "rank", demo.ShiftID, "--memory", "--pretty")
	require.NoError(t, err)
	assert.Contains(t, out, "VACANCY")
	assert.Contains(t, out, "RANKING")
	assert.Contains(t, out, "★ #1")
}

func TestCancelCommand_Pretty(t *testing.T) {
	out, err := execute(t, "cancel", demo.ShiftID, "--memory", "--pretty")
	require.NoError(t, err)
	assert.Contains(t, out, "BACKFILL RUN")
	assert.Contains(t, out, "Status:   running")
	assert.Contains(t, out, demo.CharlieID+" via sms: sent")
}

func TestRespondCommand_InvalidDecision(t *testing.T) {
	_, err := execute(t, "respond", "attempt-1", "maybe", "--memory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid response")
}

func TestRespondCommand_UnknownAttempt(t *testing.T) {
	_, err := execute(t, "respond", "attempt-1", "accepted", "--memory")
	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestSweepCommand_Memory(t *testing.T) {
	out, err := execute(t, "sweep", "--memory")
	require.NoError(t, err)
	assert.Equal(t, "escalated 0 run(s)\n", out)
}

func TestMigrateCommand_RejectsMemory(t *testing.T) {
	_, err := execute(t, "migrate", "--memory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--memory")
}

func TestNewApp_RequiresDatabase(t *testing.T) {
	_, err := execute(t, "sweep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
