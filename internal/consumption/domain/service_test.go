package domain

import (
	"strings"
	"testing"
)

func TestValidatePrompt(t *testing.T) {
	tests := []struct {
		prompt string
		valid  bool
	}{
		{"Coffee shop, cozy; minimal!", true},
		{"Logo 42.", true},
		{"line\nbreak", true},
		{"", false},
		{"   ", false},
		{"emoji 🙂", false},
		{"quotes \"no\"", false},
		{strings.Repeat("a", MaxPromptLength), true},
		{strings.Repeat("a", MaxPromptLength+1), false},
	}
	for _, tt := range tests {
		err := ValidatePrompt(tt.prompt)
		if tt.valid && err != nil {
			t.Fatalf("expected %q to be valid, got %v", tt.prompt, err)
		}
		if !tt.valid && err == nil {
			t.Fatalf("expected %q to be rejected", tt.prompt)
		}
	}
}
