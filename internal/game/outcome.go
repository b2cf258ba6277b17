package game

import (
	"fmt"

	"whatbeats/internal/types"
)

// Reason classifies a guess outcome.
type Reason string

const (
	ReasonAccepted    Reason = "accepted"
	ReasonRejected    Reason = "rejected"
	ReasonDuplicate   Reason = "duplicate"
	ReasonAlreadyOver Reason = "already_over"
	ReasonFlagged     Reason = "flagged"
	ReasonUnavailable Reason = "unavailable"
)

// Outcome is the result of one guess.
type Outcome struct {
	SessionID   string   `json:"sessionId"`
	Accepted    bool     `json:"accepted"`
	Reason      Reason   `json:"reason"`
	Message     string   `json:"message"`
	CurrentWord string   `json:"currentWord"`
	Score       int      `json:"score"`
	HistoryTail []string `json:"historyTail"`
	GlobalCount int64    `json:"globalCount"`
	GameOver    bool     `json:"gameOver"`
	Explanation string   `json:"explanation,omitempty"`
}

// outcomeFor fills the session view of an outcome.
func outcomeFor(s *types.Session, tail int, reason Reason) Outcome {
	return Outcome{
		SessionID:   s.ID,
		Reason:      reason,
		Accepted:    reason == ReasonAccepted,
		CurrentWord: s.CurrentWord,
		Score:       s.Score,
		HistoryTail: s.Tail(tail),
		GameOver:    s.GameOver,
	}
}

func acceptedMessage(p types.Persona, guess, beaten string, count int64) string {
	if p == types.PersonaCheery {
		return fmt.Sprintf("✨ Woohoo! '%s' totally beats '%s'! Your guess has been made %d times before. Keep going! 🎉", guess, beaten, count)
	}
	return fmt.Sprintf("✅ Correct. '%s' beats '%s'. This answer has been submitted %d times globally.", guess, beaten, count)
}

func rejectedMessage(p types.Persona, guess, current string) string {
	if p == types.PersonaCheery {
		return fmt.Sprintf("Aww, sorry! It seems '%s' doesn't beat '%s'. Try something else! 🤔", guess, current)
	}
	return fmt.Sprintf("Incorrect. '%s' does not beat '%s'. Please try again.", guess, current)
}

func duplicateMessage(guess string) string {
	return fmt.Sprintf("Game Over! You already guessed '%s'.", guess)
}

func flaggedMessage(reason string) string {
	return fmt.Sprintf("Your guess was flagged: %s", reason)
}

const (
	alreadyOverMessage = "Game is already over!"
	unavailableMessage = "The judge could not be reached. Please try again."
)
