// Package game arbitrates guesses: it validates and screens input, obtains a
// verdict through the cache or the oracle, applies the duplicate rule, and
// persists session and tally changes.
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"whatbeats/internal/logging"
	"whatbeats/internal/oracle"
	"whatbeats/internal/store"
	"whatbeats/internal/types"
	"whatbeats/internal/verdict"
)

// Screener decides whether text may be played.
type Screener interface {
	Screen(text string) (flagged bool, reason string)
}

// Config holds the rules of play.
type Config struct {
	DefaultSeed    string
	MaxGuessLength int
	HistoryTail    int
	DefaultPersona types.Persona
	VerdictTTL     time.Duration
}

// DefaultConfig returns the standard rules.
func DefaultConfig() Config {
	return Config{
		DefaultSeed:    "rock",
		MaxGuessLength: 50,
		HistoryTail:    5,
		DefaultPersona: types.DefaultPersona,
		VerdictTTL:     verdict.DefaultTTL,
	}
}

// Engine is safe for concurrent use. It holds no lock across store, cache or
// oracle calls; concurrent guesses on one session are resolved by the store's
// version check.
type Engine struct {
	store    store.Store
	cache    verdict.Cache
	oracle   oracle.Oracle
	screener Screener
	cfg      Config

	now    func() time.Time
	newID  func() string
	flight singleflight.Group
}

// Option customizes an Engine.
type Option func(*Engine)

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New wires an engine from its collaborators.
func New(st store.Store, cache verdict.Cache, judge oracle.Oracle, screener Screener, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.DefaultSeed == "" {
		cfg.DefaultSeed = def.DefaultSeed
	}
	if cfg.MaxGuessLength <= 0 {
		cfg.MaxGuessLength = def.MaxGuessLength
	}
	if cfg.HistoryTail <= 0 {
		cfg.HistoryTail = def.HistoryTail
	}
	if cfg.DefaultPersona == "" {
		cfg.DefaultPersona = def.DefaultPersona
	}
	if cfg.VerdictTTL <= 0 {
		cfg.VerdictTTL = def.VerdictTTL
	}

	e := &Engine{
		store:    st,
		cache:    cache,
		oracle:   judge,
		screener: screener,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// NewGame creates a session seeded with seed, or the default seed when empty.
func (e *Engine) NewGame(ctx context.Context, seed string) (*types.Session, error) {
	if strings.TrimSpace(seed) == "" {
		seed = e.cfg.DefaultSeed
	}
	word, err := e.normalize(seed)
	if err != nil {
		return nil, err
	}
	if flagged, reason := e.screen(word); flagged {
		return nil, fmt.Errorf("%w: seed %s", ErrContentFlagged, reason)
	}

	s := types.NewSession(e.newID(), word, e.now())
	if err := e.store.SaveSession(ctx, s); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: session id %s already exists", ErrSessionConflict, s.ID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	logging.Engine("Session %s started with %q", s.ID, word)
	return s, nil
}

// History returns the full session state.
func (e *Engine) History(ctx context.Context, id string) (*types.Session, error) {
	return e.load(ctx, id)
}

// Stats returns how many times word has been accepted across all sessions.
func (e *Engine) Stats(ctx context.Context, word string) (string, int64, error) {
	w := types.NormalizeWord(word)
	if w == "" {
		return "", 0, fmt.Errorf("%w: empty word", ErrInvalidInput)
	}
	n, err := e.store.GetTally(ctx, w)
	if err != nil {
		return w, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return w, n, nil
}

// Reset puts a session back to its seed state. An unknown id is created with
// the default seed. Reset wins over any guess in flight on the same session.
func (e *Engine) Reset(ctx context.Context, id string) (*types.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrInvalidInput)
	}

	seed := e.cfg.DefaultSeed
	created := e.now()
	switch cur, err := e.store.LoadSession(ctx, id); {
	case err == nil:
		seed = cur.Seed()
		created = cur.CreatedAt
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s := types.NewSession(id, types.NormalizeWord(seed), created)
	s.UpdatedAt = e.now()
	if err := e.store.PutSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	logging.Engine("Session %s reset to %q", id, s.CurrentWord)
	return s, nil
}

// ResetAll deletes every session and tally entry.
func (e *Engine) ResetAll(ctx context.Context) error {
	if err := e.store.ResetAll(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	logging.EngineWarn("All sessions and tallies were reset")
	return nil
}

// =============================================================================
// GUESS ARBITRATION
// =============================================================================

// SubmitGuess plays rawGuess against the session's current word.
//
// Flagged and unavailable outcomes are returned together with
// ErrContentFlagged or ErrOracleUnavailable so callers can render the
// rejection; neither changes the session.
func (e *Engine) SubmitGuess(ctx context.Context, id, rawGuess string, persona types.Persona) (Outcome, error) {
	if persona == "" {
		persona = e.cfg.DefaultPersona
	}
	persona = types.ParsePersona(string(persona))

	s, err := e.load(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	guess, err := e.normalize(rawGuess)
	if err != nil {
		return Outcome{}, err
	}

	if flagged, reason := e.screen(guess); flagged {
		out := outcomeFor(s, e.cfg.HistoryTail, ReasonFlagged)
		out.Message = flaggedMessage(reason)
		logging.EngineDebug("Session %s: guess flagged (%s)", id, reason)
		return out, fmt.Errorf("%w: %s", ErrContentFlagged, reason)
	}

	if s.GameOver {
		out := outcomeFor(s, e.cfg.HistoryTail, ReasonAlreadyOver)
		out.Message = alreadyOverMessage
		return out, nil
	}

	if s.Contains(guess) {
		s.GameOver = true
		s.UpdatedAt = e.now()
		if err := e.save(ctx, s); err != nil {
			return Outcome{}, err
		}
		logging.Engine("Session %s: duplicate %q ends the game at score %d", id, guess, s.Score)
		out := outcomeFor(s, e.cfg.HistoryTail, ReasonDuplicate)
		out.Message = duplicateMessage(guess)
		return out, nil
	}

	key := types.NewVerdictKey(guess, s.CurrentWord, persona)
	v, err := e.verdict(ctx, key)
	if err != nil {
		out := outcomeFor(s, e.cfg.HistoryTail, ReasonUnavailable)
		out.Message = unavailableMessage
		return out, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	if !v.Beats {
		out := outcomeFor(s, e.cfg.HistoryTail, ReasonRejected)
		out.Message = rejectedMessage(persona, guess, s.CurrentWord)
		out.Explanation = v.Explanation
		return out, nil
	}

	beaten := s.CurrentWord
	s.History = append(s.History, guess)
	s.CurrentWord = guess
	s.Score++
	s.UpdatedAt = e.now()
	if err := e.save(ctx, s); err != nil {
		return Outcome{}, err
	}

	count, err := e.store.IncrementTally(ctx, guess)
	if err != nil {
		// The session is already committed; a lost increment only under-counts.
		logging.EngineWarn("Session %s: tally increment for %q failed: %v", id, guess, err)
	}

	logging.Engine("Session %s: %q beats %q (score %d, global %d)", id, guess, beaten, s.Score, count)
	out := outcomeFor(s, e.cfg.HistoryTail, ReasonAccepted)
	out.Message = acceptedMessage(persona, guess, beaten, count)
	out.GlobalCount = count
	out.Explanation = v.Explanation
	return out, nil
}

// verdict resolves key through the cache, then the oracle. Concurrent misses
// on the same key share one oracle call. Only successful verdicts are cached.
func (e *Engine) verdict(ctx context.Context, key types.VerdictKey) (types.Verdict, error) {
	if v, ok := e.lookup(ctx, key); ok {
		logging.CacheDebug("Verdict hit for %s", key)
		return v, nil
	}

	res, err, shared := e.flight.Do(flightKey(key), func() (any, error) {
		// A flight that finished just before this one may have filled the cache.
		if v, ok := e.lookup(ctx, key); ok {
			return v, nil
		}
		// The shared call must not die with whichever caller started it.
		v, err := e.oracle.Judge(context.WithoutCancel(ctx), key.Challenger, key.Incumbent, key.Persona)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Store(context.WithoutCancel(ctx), key, v, e.cfg.VerdictTTL); err != nil {
			logging.Get(logging.CategoryCache).Warn("Failed to cache verdict for %s: %v", key, err)
		}
		return v, nil
	})
	if err != nil {
		return types.Verdict{}, err
	}
	if shared {
		logging.CacheDebug("Verdict for %s shared with a concurrent request", key)
	}
	return res.(types.Verdict), nil
}

// flightKey identifies an in-flight judgment. Words are quoted so that
// separators inside a word cannot make two triples share a key.
func flightKey(k types.VerdictKey) string {
	return fmt.Sprintf("%q\x00%q\x00%s", k.Challenger, k.Incumbent, k.Persona)
}

// lookup treats cache failures as misses.
func (e *Engine) lookup(ctx context.Context, key types.VerdictKey) (types.Verdict, bool) {
	v, ok, err := e.cache.Lookup(ctx, key)
	if err != nil {
		logging.Get(logging.CategoryCache).Warn("Verdict lookup for %s failed: %v", key, err)
		return types.Verdict{}, false
	}
	return v, ok
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) load(ctx context.Context, id string) (*types.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	s, err := e.store.LoadSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s, nil
}

func (e *Engine) save(ctx context.Context, s *types.Session) error {
	err := e.store.SaveSession(ctx, s)
	if errors.Is(err, store.ErrVersionConflict) {
		logging.EngineDebug("Session %s: lost a concurrent update", s.ID)
		return fmt.Errorf("%w: %s", ErrSessionConflict, s.ID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// normalize trims and case-folds a word and enforces the length limit.
func (e *Engine) normalize(raw string) (string, error) {
	// Case folding rewrites invalid bytes to U+FFFD, so check the raw input.
	if !utf8.ValidString(raw) {
		return "", fmt.Errorf("%w: guess is not valid UTF-8", ErrInvalidInput)
	}
	w := types.NormalizeWord(raw)
	if w == "" {
		return "", fmt.Errorf("%w: guess is empty", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(w); n > e.cfg.MaxGuessLength {
		return "", fmt.Errorf("%w: guess is %d characters, limit is %d", ErrInvalidInput, n, e.cfg.MaxGuessLength)
	}
	if strings.IndexFunc(w, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: guess contains control characters", ErrInvalidInput)
	}
	return w, nil
}

func (e *Engine) screen(word string) (bool, string) {
	if e.screener == nil {
		return false, ""
	}
	return e.screener.Screen(word)
}
