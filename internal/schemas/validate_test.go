package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_RankingOutput(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "valid",
			doc: `{"ranked":[{"ref":"w1","finalScore":0.8,
				"featureScores":{"distance":1,"skills":1,"reliability":0.5,"language":1},
				"rationale":"close"}],"chosenRef":"w1"}`,
		},
		{
			name: "null chosen",
			doc: `{"ranked":[{"ref":"w1","finalScore":0,
				"featureScores":{"distance":0,"skills":0,"reliability":0,"language":0},
				"rationale":""}],"chosenRef":null}`,
		},
		{name: "empty ranked", doc: `{"ranked":[]}`, wantErr: true},
		{name: "missing ranked", doc: `{"chosenRef":"w1"}`, wantErr: true},
		{
			name: "score out of range",
			doc: `{"ranked":[{"ref":"w1","finalScore":1.5,
				"featureScores":{"distance":1,"skills":1,"reliability":1,"language":1},
				"rationale":""}]}`,
			wantErr: true,
		},
		{
			name:    "missing feature scores",
			doc:     `{"ranked":[{"ref":"w1","finalScore":0.5,"rationale":""}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(RankingOutput, []byte(tt.doc))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
			assert.NotEmpty(t, ve.Errors)
			assert.Equal(t, RankingOutput, ve.Schema)
		})
	}
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(RankingOutput, []byte(`{not json`))
	var le *SchemaLoadError
	assert.True(t, errors.As(err, &le))
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("missing.schema.json", []byte(`{}`))
	var le *SchemaLoadError
	require.True(t, errors.As(err, &le))
	assert.Contains(t, le.Error(), "missing.schema.json")
}

func TestValidate_VoiceWebhook(t *testing.T) {
	assert.NoError(t, Validate(VoiceWebhook, []byte(`{"decision":"accepted","metadata":{"attemptId":"a1"}}`)))
	assert.Error(t, Validate(VoiceWebhook, []byte(`{"metadata":"nope"}`)))
}

func TestEmbeddedSchemas_Compile(t *testing.T) {
	entries, err := schemaFiles.ReadDir(".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, e := range entries {
		t.Run(e.Name(), func(t *testing.T) {
			_, err := load(e.Name())
			assert.NoError(t, err)
		})
	}
}
