package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRepetitive(t *testing.T) {
	tests := []struct {
		name   string
		window []string
		want   bool
	}{
		{"identical", []string{"hi", "hi", "hi"}, true},
		{"identical empty strings", []string{"", "", ""}, true},
		{"case and spacing differences", []string{"I want a meal plan", "i want a  meal plan", "I WANT A MEAL PLAN"}, true},
		{"duplicate words collapse", []string{"plan plan please", "plan please", "please plan"}, true},
		{"unrelated", []string{"hello there", "what is protein", "give me recipes"}, false},
		{"only first pair similar", []string{"a b c d", "a b c d", "x y z"}, false},
		{"only second pair similar", []string{"x y z", "a b c d", "a b c d"}, false},
		{"whitespace only never similar", []string{"", " ", ""}, false},
		{"similarity 0.75 on both pairs", []string{"a b c", "a b c d", "a b c"}, true},
		{"similarity exactly 0.70 is not enough", []string{"a b c d e f g h", "a b c d e f g i j", "a b c d e f g h"}, false},
		{"short window", []string{"hi", "hi"}, false},
		{"long window", []string{"hi", "hi", "hi", "hi"}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRepetitive(tt.window))
		})
	}
}

func TestJaccard(t *testing.T) {
	sim, ok := jaccard(wordSet("a b c"), wordSet("b c d"))
	assert.True(t, ok)
	assert.InDelta(t, 0.5, sim, 1e-9)

	_, ok = jaccard(wordSet(""), wordSet("   "))
	assert.False(t, ok)
}
