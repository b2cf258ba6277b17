package game

import "errors"

var (
	// ErrInvalidInput means the guess or seed was empty, too long or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrContentFlagged means the screener rejected the text. No turn is consumed.
	ErrContentFlagged = errors.New("content flagged")

	// ErrSessionNotFound means the session id has no stored state.
	ErrSessionNotFound = errors.New("session not found")

	// ErrOracleUnavailable means no verdict could be obtained. The turn is
	// rejected and may be retried.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrStoreUnavailable means the session or tally store failed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSessionConflict means another request changed the session first.
	ErrSessionConflict = errors.New("session changed concurrently")
)
