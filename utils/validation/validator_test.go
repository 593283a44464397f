package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		ok       bool
	}{
		{"all classes present", "Str0ng!pass", true},
		{"too short", "S1!a", false},
		{"missing uppercase", "weak1pass!", false},
		{"missing lowercase", "WEAK1PASS!", false},
		{"missing digit", "Weakpass!!", false},
		{"missing special", "Weakpass11", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, problems := ValidatePasswordStrength(tt.password)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.NotEmpty(t, problems)
			}
		})
	}
}
