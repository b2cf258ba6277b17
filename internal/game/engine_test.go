package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"whatbeats/internal/moderation"
	"whatbeats/internal/store"
	"whatbeats/internal/types"
	"whatbeats/internal/verdict"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeOracle answers from a fixed table of winning pairs.
type fakeOracle struct {
	mu    sync.Mutex
	wins  map[[2]string]bool
	calls map[types.VerdictKey]int
	err   error

	// gate, when set, is called before answering.
	gate func()
}

func newFakeOracle(pairs ...string) *fakeOracle {
	o := &fakeOracle{wins: map[[2]string]bool{}, calls: map[types.VerdictKey]int{}}
	for _, p := range pairs {
		c, i, _ := strings.Cut(p, ">")
		o.wins[[2]string{c, i}] = true
	}
	return o
}

func (o *fakeOracle) Judge(ctx context.Context, challenger, incumbent string, persona types.Persona) (types.Verdict, error) {
	if o.gate != nil {
		o.gate()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[types.VerdictKey{Challenger: challenger, Incumbent: incumbent, Persona: persona}]++
	if o.err != nil {
		return types.Verdict{}, o.err
	}
	beats := o.wins[[2]string{challenger, incumbent}]
	return types.Verdict{Beats: beats, Explanation: fmt.Sprintf("%s vs %s", challenger, incumbent)}, nil
}

func (o *fakeOracle) total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		n += c
	}
	return n
}

func (o *fakeOracle) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

type fixture struct {
	engine *Engine
	store  *store.MemoryStore
	cache  *verdict.MemoryCache
	oracle *fakeOracle
}

var defaultWins = []string{
	"paper>rock", "scissors>paper", "rock>scissors", "water>rock",
	"fire>paper", "water>fire", "sun>water", "cloud>sun", "wind>cloud", "mountain>wind",
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	if st == nil {
		st = mem
	}
	cache, err := verdict.NewMemoryCache(128, nil)
	require.NoError(t, err)
	o := newFakeOracle(defaultWins...)

	var seq atomic.Int64
	e := New(st, cache, o, moderation.New(), DefaultConfig(),
		WithIDGenerator(func() string { return fmt.Sprintf("session-%d", seq.Add(1)) }),
	)
	return &fixture{engine: e, store: mem, cache: cache, oracle: o}
}

func guess(t *testing.T, e *Engine, id, word string) Outcome {
	t.Helper()
	out, err := e.SubmitGuess(context.Background(), id, word, types.PersonaSerious)
	require.NoError(t, err, "guess %q", word)
	return out
}

func TestNewGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	s, err := f.engine.NewGame(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "session-1", s.ID)
	assert.Equal(t, "rock", s.CurrentWord)
	assert.Equal(t, []string{"rock"}, s.History)
	assert.Zero(t, s.Score)
	assert.False(t, s.GameOver)

	s, err = f.engine.NewGame(ctx, "  Fire ")
	require.NoError(t, err)
	assert.Equal(t, "fire", s.CurrentWord)

	_, err = f.engine.NewGame(ctx, "offensive")
	assert.ErrorIs(t, err, ErrContentFlagged)

	_, err = f.engine.NewGame(ctx, strings.Repeat("x", 51))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewGame_IDCollision(t *testing.T) {
	st := store.NewMemoryStore()
	cache, err := verdict.NewMemoryCache(8, nil)
	require.NoError(t, err)
	e := New(st, cache, newFakeOracle(), nil, DefaultConfig(), WithIDGenerator(func() string { return "same" }))

	_, err = e.NewGame(context.Background(), "")
	require.NoError(t, err)
	_, err = e.NewGame(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionConflict)
}

func TestSubmitGuess_RockPaperScissorsScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	out := guess(t, f.engine, s.ID, "paper")
	assert.True(t, out.Accepted)
	assert.Equal(t, ReasonAccepted, out.Reason)
	assert.Equal(t, 1, out.Score)
	assert.Equal(t, "paper", out.CurrentWord)
	assert.Equal(t, int64(1), out.GlobalCount)
	assert.Equal(t, "✅ Correct. 'paper' beats 'rock'. This answer has been submitted 1 times globally.", out.Message)
	assert.Equal(t, "paper vs rock", out.Explanation)

	out = guess(t, f.engine, s.ID, "Scissors")
	assert.True(t, out.Accepted)
	assert.Equal(t, 2, out.Score)
	assert.Equal(t, "scissors", out.CurrentWord)

	out = guess(t, f.engine, s.ID, "PAPER")
	assert.False(t, out.Accepted)
	assert.Equal(t, ReasonDuplicate, out.Reason)
	assert.True(t, out.GameOver)
	assert.Equal(t, 2, out.Score)
	assert.Equal(t, "Game Over! You already guessed 'paper'.", out.Message)

	got, err := f.engine.History(ctx, s.ID)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"rock", "paper", "scissors"}, got.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.GameOver)
	assert.Equal(t, "scissors", got.CurrentWord)
}

func TestSubmitGuess_SeedCountsAsGuessed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	out := guess(t, f.engine, s.ID, " Rock ")
	assert.Equal(t, ReasonDuplicate, out.Reason)
	assert.True(t, out.GameOver)
	assert.Zero(t, out.Score)
	assert.Zero(t, f.oracle.total(), "duplicates never reach the oracle")
}

func TestSubmitGuess_RejectedLeavesSessionPlayable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	out := guess(t, f.engine, s.ID, "feather")
	assert.False(t, out.Accepted)
	assert.Equal(t, ReasonRejected, out.Reason)
	assert.False(t, out.GameOver)
	assert.Equal(t, "rock", out.CurrentWord)
	assert.Equal(t, "Incorrect. 'feather' does not beat 'rock'. Please try again.", out.Message)

	after, err := f.engine.History(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"rock"}, after.History)
	assert.Equal(t, s.Version, after.Version, "a rejected guess writes nothing")

	out = guess(t, f.engine, s.ID, "water")
	assert.True(t, out.Accepted)

	n, err := f.store.GetTally(ctx, "feather")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmitGuess_AlreadyOverIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)
	guess(t, f.engine, s.ID, "paper")
	guess(t, f.engine, s.ID, "rock")

	before, err := f.engine.History(ctx, s.ID)
	require.NoError(t, err)

	for _, w := range []string{"scissors", "paper", "water"} {
		out := guess(t, f.engine, s.ID, w)
		assert.Equal(t, ReasonAlreadyOver, out.Reason, w)
		assert.Equal(t, "Game is already over!", out.Message)
		assert.True(t, out.GameOver)
	}

	after, err := f.engine.History(ctx, s.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("session mutated after game over (-before +after):\n%s", diff)
	}
}

func TestSubmitGuess_FlaggedDoesNotConsumeTurn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	out, err := f.engine.SubmitGuess(ctx, s.ID, "killing", types.PersonaSerious)
	require.ErrorIs(t, err, ErrContentFlagged)
	assert.Equal(t, ReasonFlagged, out.Reason)
	assert.False(t, out.Accepted)
	assert.False(t, out.GameOver)
	assert.Equal(t, "Your guess was flagged: "+moderation.ReasonViolent, out.Message)
	assert.Zero(t, f.oracle.total())

	assert.True(t, guess(t, f.engine, s.ID, "paper").Accepted)
}

func TestSubmitGuess_InvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	for _, raw := range []string{"", "   ", strings.Repeat("a", 51), "pa\x00per", "pa\xffper", "\xff"} {
		_, err := f.engine.SubmitGuess(ctx, s.ID, raw, types.PersonaSerious)
		assert.ErrorIs(t, err, ErrInvalidInput, "%q", raw)
	}

	out := guess(t, f.engine, s.ID, strings.Repeat("a", 50))
	assert.Equal(t, ReasonRejected, out.Reason)
}

func TestSubmitGuess_SessionNotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.SubmitGuess(context.Background(), "missing", "paper", types.PersonaSerious)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.engine.History(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitGuess_OracleUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	f.oracle.setErr(errors.New("upstream timeout"))
	out, err := f.engine.SubmitGuess(ctx, s.ID, "paper", types.PersonaSerious)
	require.ErrorIs(t, err, ErrOracleUnavailable)
	assert.Equal(t, ReasonUnavailable, out.Reason)
	assert.False(t, out.Accepted)
	assert.Equal(t, "rock", out.CurrentWord)
	assert.Zero(t, f.cache.Len(), "failures are never cached")

	f.oracle.setErr(nil)
	assert.True(t, guess(t, f.engine, s.ID, "paper").Accepted)
	assert.Equal(t, 2, f.oracle.total(), "the retry asks the oracle again")
}

func TestSubmitGuess_CacheServesRepeats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for i := 0; i < 3; i++ {
		s, err := f.engine.NewGame(ctx, "rock")
		require.NoError(t, err)
		assert.True(t, guess(t, f.engine, s.ID, "paper").Accepted)
	}
	assert.Equal(t, 1, f.oracle.total())

	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)
	out, err := f.engine.SubmitGuess(ctx, s.ID, "paper", types.PersonaCheery)
	require.NoError(t, err)
	assert.Equal(t, 2, f.oracle.total(), "persona is part of the key")
	assert.Equal(t, "✨ Woohoo! 'paper' totally beats 'rock'! Your guess has been made 4 times before. Keep going! 🎉", out.Message)
}

func TestSubmitGuess_CachedFalseVerdict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	require.NoError(t, f.cache.Store(ctx, types.NewVerdictKey("paper", "rock", types.PersonaSerious), types.Verdict{Beats: false}, time.Hour))
	out := guess(t, f.engine, s.ID, "paper")
	assert.Equal(t, ReasonRejected, out.Reason)
	assert.Zero(t, f.oracle.total())
}

func TestSubmitGuess_DefaultPersona(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	out, err := f.engine.SubmitGuess(ctx, s.ID, "feather", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Message, "Incorrect."))

	out, err = f.engine.SubmitGuess(ctx, s.ID, "feather", "grumpy")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Message, "Incorrect."))
	assert.Equal(t, 1, f.oracle.total(), "unknown personas share the default's cache entry")
}

func TestSubmitGuess_HistoryTailAndScoreInvariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	chain := []string{"water", "sun", "cloud", "wind", "mountain"}
	var out Outcome
	for _, w := range chain {
		out = guess(t, f.engine, s.ID, w)
		require.True(t, out.Accepted, w)
	}
	assert.Equal(t, []string{"water", "sun", "cloud", "wind", "mountain"}, out.HistoryTail)

	got, err := f.engine.History(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, len(got.History)-1, got.Score)
	assert.Equal(t, got.History[len(got.History)-1], got.CurrentWord)
	assert.Len(t, got.History, 6)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for i := 0; i < 2; i++ {
		s, err := f.engine.NewGame(ctx, "rock")
		require.NoError(t, err)
		guess(t, f.engine, s.ID, "paper")
	}

	word, n, err := f.engine.Stats(ctx, " Paper ")
	require.NoError(t, err)
	assert.Equal(t, "paper", word)
	assert.Equal(t, int64(2), n)

	_, n, err = f.engine.Stats(ctx, "never-played")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, _, err = f.engine.Stats(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "fire")
	require.NoError(t, err)
	guess(t, f.engine, s.ID, "water")
	guess(t, f.engine, s.ID, "fire")

	r, err := f.engine.Reset(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "fire", r.CurrentWord)
	assert.Equal(t, []string{"fire"}, r.History)
	assert.Zero(t, r.Score)
	assert.False(t, r.GameOver)

	assert.True(t, guess(t, f.engine, s.ID, "water").Accepted)

	fresh, err := f.engine.Reset(ctx, "brand-new")
	require.NoError(t, err)
	assert.Equal(t, "rock", fresh.CurrentWord)
	loaded, err := f.engine.History(ctx, "brand-new")
	require.NoError(t, err)
	assert.Equal(t, fresh.Version, loaded.Version)
}

func TestResetAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)
	guess(t, f.engine, s.ID, "paper")

	require.NoError(t, f.engine.ResetAll(ctx))

	_, err = f.engine.History(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, n, err := f.engine.Stats(ctx, "paper")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestSubmitGuess_ConcurrentTallyHasNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	const players = 20
	ids := make([]string, players)
	for i := range ids {
		s, err := f.engine.NewGame(ctx, "rock")
		require.NoError(t, err)
		ids[i] = s.ID
	}

	counts := make(chan int64, players)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			out, err := f.engine.SubmitGuess(ctx, id, "paper", types.PersonaSerious)
			if assert.NoError(t, err) && assert.True(t, out.Accepted) {
				counts <- out.GlobalCount
			}
		}(id)
	}
	wg.Wait()
	close(counts)

	seen := map[int64]bool{}
	for c := range counts {
		assert.False(t, seen[c], "count %d handed out twice", c)
		seen[c] = true
	}
	assert.Len(t, seen, players)
	for i := int64(1); i <= players; i++ {
		assert.True(t, seen[i], "missing count %d", i)
	}
	assert.Equal(t, 1, f.oracle.total(), "one oracle call for one triple")
}

func TestSubmitGuess_ConcurrentMissesShareOneOracleCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	const players = 8
	ids := make([]string, players)
	for i := range ids {
		s, err := f.engine.NewGame(ctx, "rock")
		require.NoError(t, err)
		ids[i] = s.ID
	}

	release := make(chan struct{})
	entered := make(chan struct{}, players)
	f.oracle.gate = func() {
		entered <- struct{}{}
		<-release
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.engine.SubmitGuess(ctx, id, "water", types.PersonaSerious)
			assert.NoError(t, err)
		}(id)
	}

	<-entered
	// Give the other callers time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.oracle.total())
	_, n, err := f.engine.Stats(ctx, "water")
	require.NoError(t, err)
	assert.Equal(t, int64(players), n)
}

func TestSubmitGuess_ConcurrentGuessesOnOneSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	// Both requests load the session before either verdict returns.
	var arrived sync.WaitGroup
	arrived.Add(2)
	f.oracle.gate = func() {
		arrived.Done()
		arrived.Wait()
	}

	errs := make(chan error, 2)
	for _, w := range []string{"paper", "water"} {
		go func(w string) {
			_, err := f.engine.SubmitGuess(ctx, s.ID, w, types.PersonaSerious)
			errs <- err
		}(w)
	}

	var ok, conflicts int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSessionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	got, err := f.engine.History(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 2)
	assert.Equal(t, 1, got.Score)

	paper, _ := f.store.GetTally(ctx, "paper")
	water, _ := f.store.GetTally(ctx, "water")
	assert.Equal(t, int64(1), paper+water, "only the committed guess is tallied")
}

func TestFlightKey_SeparatorsInWordsDoNotCollide(t *testing.T) {
	a := types.NewVerdictKey("a", "b:c", types.PersonaSerious)
	b := types.NewVerdictKey("a:b", "c", types.PersonaSerious)
	require.Equal(t, a.String(), b.String(), "display keys are ambiguous")
	assert.NotEqual(t, flightKey(a), flightKey(b))
}

func TestSubmitGuess_OverlappingJudgmentsWithColonWords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.oracle.wins[[2]string{"a", "b:c"}] = true

	first, err := f.engine.NewGame(ctx, "b:c")
	require.NoError(t, err)
	second, err := f.engine.NewGame(ctx, "c")
	require.NoError(t, err)

	// Hold each judgment until both are in flight.
	var arrived atomic.Int32
	both := make(chan struct{})
	f.oracle.gate = func() {
		if arrived.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
		case <-time.After(2 * time.Second):
		}
	}

	type result struct {
		out Outcome
		err error
	}
	firstRes, secondRes := make(chan result, 1), make(chan result, 1)
	go func() {
		out, err := f.engine.SubmitGuess(ctx, first.ID, "a", types.PersonaSerious)
		firstRes <- result{out, err}
	}()
	go func() {
		out, err := f.engine.SubmitGuess(ctx, second.ID, "a:b", types.PersonaSerious)
		secondRes <- result{out, err}
	}()

	r1, r2 := <-firstRes, <-secondRes
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)
	assert.Equal(t, ReasonAccepted, r1.out.Reason)
	assert.Equal(t, ReasonRejected, r2.out.Reason, "a:b must get its own verdict")
	assert.Equal(t, 2, f.oracle.total())
}

// =============================================================================
// STORE FAILURES
// =============================================================================

// flakyStore fails selected operations.
type flakyStore struct {
	*store.MemoryStore
	failSave  atomic.Bool
	failTally atomic.Bool
}

var errDisk = errors.New("disk on fire")

func (s *flakyStore) SaveSession(ctx context.Context, sess *types.Session) error {
	if s.failSave.Load() {
		return errDisk
	}
	return s.MemoryStore.SaveSession(ctx, sess)
}

func (s *flakyStore) IncrementTally(ctx context.Context, word string) (int64, error) {
	if s.failTally.Load() {
		return 0, errDisk
	}
	return s.MemoryStore.IncrementTally(ctx, word)
}

func TestSubmitGuess_SaveFailureIsNeverAccepted(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{MemoryStore: store.NewMemoryStore()}
	f := newFixture(t, st)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	st.failSave.Store(true)
	out, err := f.engine.SubmitGuess(ctx, s.ID, "paper", types.PersonaSerious)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, out.Accepted)

	n, err := st.GetTally(ctx, "paper")
	require.NoError(t, err)
	assert.Zero(t, n, "no tally without a committed session")
}

func TestSubmitGuess_TallyFailureIsTolerated(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{MemoryStore: store.NewMemoryStore()}
	f := newFixture(t, st)
	s, err := f.engine.NewGame(ctx, "rock")
	require.NoError(t, err)

	st.failTally.Store(true)
	out, err := f.engine.SubmitGuess(ctx, s.ID, "paper", types.PersonaSerious)
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Zero(t, out.GlobalCount)

	got, err := f.engine.History(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "paper", got.CurrentWord)
}
