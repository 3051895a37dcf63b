package phi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientLabel(t *testing.T) {
	tests := []struct {
		name        string
		first       string
		lastInitial string
		want        string
	}{
		{"first and initial", "Mr", "S", "Mr S."},
		{"trims whitespace", "  Ana ", " R ", "Ana R."},
		{"full last name keeps initial only", "Maria", "Gonzalez", "Maria G."},
		{"blank first name", "", "S", "Client S."},
		{"blank initial", "Joe", "  ", "Joe X."},
		{"multibyte initial", "Zoë", "Øster", "Zoë Ø."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientLabel(tt.first, tt.lastInitial))
		})
	}
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "********0103", MaskPhone("+15555550103"))
	assert.Equal(t, "***", MaskPhone("911"))
	assert.Equal(t, "", MaskPhone("  "))
}
