package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreener_Screen(t *testing.T) {
	s := New()

	tests := []struct {
		text   string
		flag   bool
		reason string
	}{
		{text: "paper", flag: false},
		{text: "Scissors", flag: false},
		{text: "  water  ", flag: false},
		{text: "", flag: false},
		{text: "offensive", flag: true, reason: ReasonDisallowed},
		{text: "very EXPLICIT joke", flag: true, reason: ReasonDisallowed},
		{text: "kill", flag: true, reason: ReasonViolent},
		{text: "killing", flag: true, reason: ReasonViolent},
		{text: "harmed rock", flag: true, reason: ReasonViolent},
		{text: "injure", flag: true, reason: ReasonViolent},
		{text: "fuck", flag: true, reason: ReasonProfanity},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			flagged, reason := s.Screen(tt.text)
			assert.Equal(t, tt.flag, flagged)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestScreener_ViolentPatternsNeedWordStart(t *testing.T) {
	s := New()
	flagged, _ := s.Screen("skilled")
	assert.False(t, flagged, "kill inside another word is not violent")
}

func TestWithDisallowed(t *testing.T) {
	s := New(WithDisallowed(" Banana ", ""))
	flagged, reason := s.Screen("banana")
	assert.True(t, flagged)
	assert.Equal(t, ReasonDisallowed, reason)

	flagged, _ = New().Screen("banana")
	assert.False(t, flagged)
}
