package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil stays nil", nil, nil},
		{"empty", []string{}, []string{}},
		{"trims", []string{" gov ", "ops\t"}, []string{"gov", "ops"}},
		{"keeps first occurrence", []string{"ops", "gov", "ops", " gov"}, []string{"ops", "gov"}},
		{"drops blanks", []string{"", "  ", "guardian"}, []string{"guardian"}},
		{"case sensitive", []string{"Gov", "gov"}, []string{"Gov", "gov"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}
