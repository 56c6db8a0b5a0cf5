package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stemsi/exstem-attempt/internal/lmsclient"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/store"
)

const waitFor = 2 * time.Second

type fakeLMS struct {
	mu          sync.Mutex
	paper       *model.Paper
	fetchErr    error
	fetches     int
	failSubmits int
	submissions []model.SubmissionPayload
	tokens      []string
}

func (f *fakeLMS) FetchPaper(_ context.Context, _ string, paperID string) (*model.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	p := *f.paper
	p.ID = paperID
	return &p, nil
}

func (f *fakeLMS) Submit(_ context.Context, token string, p model.SubmissionPayload) (*model.SubmissionReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, p)
	f.tokens = append(f.tokens, token)
	if f.failSubmits > 0 {
		f.failSubmits--
		return nil, &lmsclient.APIError{Status: 503, Code: "UNAVAILABLE"}
	}
	return &model.SubmissionReceipt{ResultID: "res-42"}, nil
}

func (f *fakeLMS) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeLMS) Submissions() ([]model.SubmissionPayload, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SubmissionPayload(nil), f.submissions...), append([]string(nil), f.tokens...)
}

func samplePaper(limit int) *model.Paper {
	opts := []model.Option{{Label: "A", Text: "1"}, {Label: "B", Text: "2"}, {Label: "C", Text: "3"}}
	return &model.Paper{
		Title:            "Kinematics",
		TimeLimitSeconds: limit,
		Questions: []model.Question{
			{ID: "q1", Text: "v = ?", Options: opts, CorrectOption: "A", MarksPerQuestion: 4, NegativeMarks: 1},
			{ID: "q2", Text: "a = ?", Options: opts, CorrectOption: "C", MarksPerQuestion: 4, NegativeMarks: 1},
		},
	}
}

type fixture struct {
	svc   *AttemptService
	lms   *fakeLMS
	store store.LastAttemptStore
	clock *clock.Mock
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		lms:   &fakeLMS{paper: samplePaper(limit)},
		store: store.NewRedisStore(rdb),
		clock: clock.NewMock(),
	}
	f.svc = NewAttemptService(f.lms, f.store, notify.NewBus[AttemptEvent](), f.clock, 10*time.Minute, zerolog.Nop())
	t.Cleanup(f.svc.Shutdown)
	return f
}

func TestAttemptService_StartHidesAnswerKey(t *testing.T) {
	f := newFixture(t, 120)

	state, err := f.svc.Start(context.Background(), 7, "tok", "phy-1")
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusRunning, state.Status)
	assert.Equal(t, 120, state.RemainingSeconds)
	require.Len(t, state.Questions, 2)

	raw, err := json.Marshal(state)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct_option")

	last, err := f.svc.LastAttempt(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "phy-1", last.PaperID)
	assert.Equal(t, "Kinematics", last.Title)
	assert.Equal(t, model.SessionStatusRunning, last.Status)
}

func TestAttemptService_StartIsIdempotentWhileLive(t *testing.T) {
	f := newFixture(t, 120)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, 7, "tok", "phy-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Answer(7, "phy-1", "q1", "B"))

	again, err := f.svc.Start(ctx, 7, "tok", "phy-1")
	require.NoError(t, err)

	assert.Equal(t, 1, f.lms.Fetches())
	assert.Equal(t, "B", again.Answers["q1"])
	assert.Equal(t, 1, f.svc.ActiveCount())
}

func TestAttemptService_SeparateStudentsDoNotShare(t *testing.T) {
	f := newFixture(t, 120)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, 1, "t1", "phy-1")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, 2, "t2", "phy-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Answer(1, "phy-1", "q1", "A"))

	other, err := f.svc.State(2, "phy-1")
	require.NoError(t, err)
	assert.Empty(t, other.Answers)
	assert.Equal(t, 2, f.svc.ActiveCount())
}

func TestAttemptService_ManualSubmit(t *testing.T) {
	f := newFixture(t, 120)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, 7, "tok", "phy-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Answer(7, "phy-1", "q1", "A"))
	require.NoError(t, f.svc.Answer(7, "phy-1", "q2", "B"))
	flagged, err := f.svc.ToggleFlag(7, "phy-1", "q2")
	require.NoError(t, err)
	assert.True(t, flagged)

	res, err := f.svc.Submit(ctx, 7, "tok-2", "phy-1")
	require.NoError(t, err)

	assert.Equal(t, "res-42", res.ResultID)
	assert.Equal(t, 1, res.Score.Correct)
	assert.Equal(t, 1, res.Score.Wrong)
	assert.InDelta(t, 3.0, res.Score.Total, 1e-9)
	assert.False(t, res.Auto)

	payloads, tokens := f.lms.Submissions()
	require.Len(t, payloads, 1)
	assert.Equal(t, map[string]string{"q1": "A", "q2": "B"}, payloads[0].Answers)
	assert.Equal(t, []string{"tok-2"}, tokens)

	last, err := f.svc.LastAttempt(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, last.Status)
	require.NotNil(t, last.Result)
	assert.Equal(t, "res-42", last.Result.ResultID)

	// Answers are frozen once completed.
	assert.ErrorIs(t, f.svc.Answer(7, "phy-1", "q1", "C"), session.ErrNotRunning)
}

func TestAttemptService_AutoSubmitWhenTimeRunsOut(t *testing.T) {
	f := newFixture(t, 3)

	_, err := f.svc.Start(context.Background(), 7, "tok", "phy-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Answer(7, "phy-1", "q2", "C"))

	events, cancel := f.svc.Subscribe(7, "phy-1")
	defer cancel()

	for want := 2; want >= 0; want-- {
		f.clock.Add(session.TickInterval)
		require.Eventually(t, func() bool {
			st, _ := f.svc.State(7, "phy-1")
			return st.RemainingSeconds == want
		}, waitFor, time.Millisecond)
	}

	require.Eventually(t, func() bool {
		st, _ := f.svc.State(7, "phy-1")
		return st.Status == model.SessionStatusCompleted
	}, waitFor, time.Millisecond)

	payloads, _ := f.lms.Submissions()
	require.Len(t, payloads, 1)
	assert.True(t, payloads[0].Auto)
	assert.Equal(t, 3, payloads[0].TimeTakenSeconds)

	var graded *AttemptEvent
	for graded == nil {
		select {
		case ev := <-events:
			if ev.Type == session.EventGraded {
				graded = &ev
			}
		case <-time.After(waitFor):
			t.Fatal("no graded event")
		}
	}
	assert.Equal(t, 7, graded.StudentID)
	assert.True(t, graded.Auto)
	require.NotNil(t, graded.Result)
	assert.InDelta(t, 4.0, graded.Result.Score.Total, 1e-9)
}

func TestAttemptService_FailedSubmitKeepsAnswersAndRetries(t *testing.T) {
	f := newFixture(t, 120)
	f.lms.failSubmits = 1
	ctx := context.Background()

	_, err := f.svc.Start(ctx, 7, "tok", "phy-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Answer(7, "phy-1", "q1", "A"))

	_, err = f.svc.Submit(ctx, 7, "tok", "phy-1")
	var subErr *session.SubmissionError
	require.ErrorAs(t, err, &subErr)

	st, err := f.svc.State(7, "phy-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFailed, st.Status)
	assert.Equal(t, "A", st.Answers["q1"])
	assert.NotEmpty(t, st.LastError)

	last, err := f.svc.LastAttempt(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFailed, last.Status)

	res, err := f.svc.Submit(ctx, 7, "fresh", "phy-1")
	require.NoError(t, err)
	assert.Equal(t, "res-42", res.ResultID)

	_, tokens := f.lms.Submissions()
	assert.Equal(t, []string{"tok", "fresh"}, tokens)
}

func TestAttemptService_RestartAfterCompletion(t *testing.T) {
	f := newFixture(t, 120)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, 7, "tok", "phy-1")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, 7, "tok", "phy-1")
	require.NoError(t, err)

	state, err := f.svc.Start(ctx, 7, "tok", "phy-1")
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusRunning, state.Status)
	assert.Equal(t, 2, f.lms.Fetches())
}

func TestAttemptService_LoadErrors(t *testing.T) {
	t.Run("no questions", func(t *testing.T) {
		f := newFixture(t, 120)
		f.lms.paper.Questions = nil

		_, err := f.svc.Start(context.Background(), 7, "tok", "phy-1")

		var loadErr *session.LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.ErrorIs(t, err, session.ErrNoQuestions)
		assert.Zero(t, f.svc.ActiveCount())
	})

	t.Run("paper not found", func(t *testing.T) {
		f := newFixture(t, 120)
		f.lms.fetchErr = &lmsclient.APIError{Status: 404}

		_, err := f.svc.Start(context.Background(), 7, "tok", "nope")

		assert.ErrorIs(t, err, lmsclient.ErrNotFound)
		assert.Zero(t, f.svc.ActiveCount())

		_, err = f.svc.LastAttempt(context.Background(), 7)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestAttemptService_UnknownAttempt(t *testing.T) {
	f := newFixture(t, 120)

	assert.ErrorIs(t, f.svc.Answer(7, "phy-1", "q1", "A"), ErrAttemptNotFound)
	assert.ErrorIs(t, f.svc.ClearAnswer(7, "phy-1", "q1"), ErrAttemptNotFound)
	_, err := f.svc.ToggleFlag(7, "phy-1", "q1")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
	_, err = f.svc.Submit(context.Background(), 7, "tok", "phy-1")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
	_, err = f.svc.State(7, "phy-1")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
	assert.ErrorIs(t, f.svc.Discard(7, "phy-1"), ErrAttemptNotFound)
}

func TestAttemptService_DiscardStopsCountdown(t *testing.T) {
	f := newFixture(t, 2)

	_, err := f.svc.Start(context.Background(), 7, "tok", "phy-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Discard(7, "phy-1"))
	f.clock.Add(5 * session.TickInterval)

	payloads, _ := f.lms.Submissions()
	assert.Empty(t, payloads, "a discarded attempt never auto-submits")
	_, err = f.svc.State(7, "phy-1")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestAttemptService_ReapOnlyIdleFinishedAttempts(t *testing.T) {
	f := newFixture(t, 3600)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, 1, "t1", "phy-1")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, 2, "t2", "phy-1")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, 1, "t1", "phy-1")
	require.NoError(t, err)

	f.clock.Add(11 * time.Minute)

	assert.Equal(t, 1, f.svc.Reap())
	assert.Equal(t, 1, f.svc.ActiveCount())

	_, err = f.svc.State(2, "phy-1")
	assert.NoError(t, err, "a running attempt is never reaped")
}

func TestAttemptService_ClearAnswerValidation(t *testing.T) {
	f := newFixture(t, 120)

	_, err := f.svc.Start(context.Background(), 7, "tok", "phy-1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Answer(7, "phy-1", "q9", "A"), session.ErrUnknownQuestion)
	assert.ErrorIs(t, f.svc.Answer(7, "phy-1", "q1", "Z"), session.ErrUnknownOption)

	require.NoError(t, f.svc.Answer(7, "phy-1", "q1", "A"))
	require.NoError(t, f.svc.ClearAnswer(7, "phy-1", "q1"))

	st, err := f.svc.State(7, "phy-1")
	require.NoError(t, err)
	_, answered := st.Answers["q1"]
	assert.False(t, answered)
}

func TestAttemptService_ShutdownStopsCountdowns(t *testing.T) {
	f := newFixture(t, 60)

	_, err := f.svc.Start(context.Background(), 7, "tok", "phy-1")
	require.NoError(t, err)

	f.svc.Shutdown()
	f.clock.Add(2 * session.TickInterval)

	st, err := f.svc.State(7, "phy-1")
	require.NoError(t, err)
	assert.Equal(t, 60, st.RemainingSeconds)
	assert.True(t, errors.Is(f.svc.runCtx.Err(), context.Canceled))
}

func TestAttemptService_Overview(t *testing.T) {
	f := newFixture(t, 120)
	ctx := context.Background()

	for _, id := range []int{3, 1, 2} {
		_, err := f.svc.Start(ctx, id, "tok", "phy-1")
		require.NoError(t, err)
	}
	_, err := f.svc.Start(ctx, 1, "tok", "chem-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Answer(2, "phy-1", "q1", "A"))
	_, err = f.svc.ToggleFlag(2, "phy-1", "q2")
	require.NoError(t, err)

	rows := f.svc.Overview("phy-1")
	require.Len(t, rows, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{rows[0].StudentID, rows[1].StudentID, rows[2].StudentID})
	assert.Equal(t, 1, rows[1].Answered)
	assert.Equal(t, 1, rows[1].Flagged)
	assert.Equal(t, 2, rows[1].TotalQuestions)
	assert.Equal(t, model.SessionStatusRunning, rows[0].Status)
}

func TestRelayedToProctors(t *testing.T) {
	assert.False(t, RelayedToProctors(AttemptEvent{Event: session.Event{Type: session.EventTick}}))
	for _, typ := range []session.EventType{session.EventStatus, session.EventGraded, session.EventSubmitFailed} {
		assert.True(t, RelayedToProctors(AttemptEvent{Event: session.Event{Type: typ}}), typ)
	}
}
