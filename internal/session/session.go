package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Submitter delivers a graded attempt to the submission endpoint.
type Submitter interface {
	Submit(ctx context.Context, payload model.SubmissionPayload) (*model.SubmissionReceipt, error)
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, payload model.SubmissionPayload) (*model.SubmissionReceipt, error)

func (f SubmitterFunc) Submit(ctx context.Context, payload model.SubmissionPayload) (*model.SubmissionReceipt, error) {
	return f(ctx, payload)
}

// TestSession owns the lifecycle of one timed test attempt:
// Loading → Running → Submitting → {Completed | Failed}, with
// Failed → Submitting on a manual retry.
//
// Methods are safe for concurrent use; the countdown goroutine and request
// handlers share a session. The submission call runs without the lock held,
// so readers observe SUBMITTING while it is in flight.
type TestSession struct {
	submitter Submitter
	clock     clock.Clock
	listener  func(Event)
	log       zerolog.Logger
	countdown *Countdown

	mu        sync.Mutex
	paperID   string
	timeLimit int
	remaining int
	questions []model.Question
	index     map[string]int
	answers   map[string]string
	flags     map[string]bool
	status    model.SessionStatus
	startedAt time.Time
	autoFired bool
	result    *model.Result
	lastErr   error
}

// Option configures a TestSession.
type Option func(*TestSession)

// WithClock sets the clock used for timestamps and the countdown.
func WithClock(c clock.Clock) Option {
	return func(s *TestSession) { s.clock = c }
}

// WithListener registers a callback for session events. It is invoked
// outside the session lock and may call back into the session.
func WithListener(fn func(Event)) Option {
	return func(s *TestSession) { s.listener = fn }
}

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *TestSession) { s.log = log }
}

// New creates a session in the LOADING state.
func New(submitter Submitter, opts ...Option) *TestSession {
	s := &TestSession{
		submitter: submitter,
		clock:     clock.New(),
		log:       zerolog.Nop(),
		status:    model.SessionStatusLoading,
		answers:   make(map[string]string),
		flags:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.countdown = NewCountdown(s.clock)
	return s
}

// Start loads the question set and transitions LOADING → RUNNING.
// It does not start the countdown; see StartCountdown.
func (s *TestSession) Start(paperID string, timeLimitSeconds int, questions []model.Question) error {
	s.mu.Lock()

	if s.status != model.SessionStatusLoading {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(questions) == 0 {
		s.mu.Unlock()
		return &LoadError{PaperID: paperID, Err: ErrNoQuestions}
	}
	if timeLimitSeconds <= 0 {
		s.mu.Unlock()
		return &LoadError{PaperID: paperID, Err: ErrInvalidTimeLimit}
	}

	index := make(map[string]int, len(questions))
	for i, q := range questions {
		if _, dup := index[q.ID]; dup {
			s.mu.Unlock()
			return &LoadError{PaperID: paperID, Err: fmt.Errorf("%w: %s", ErrDuplicateQuestion, q.ID)}
		}
		index[q.ID] = i
	}

	s.paperID = paperID
	s.timeLimit = timeLimitSeconds
	s.remaining = timeLimitSeconds
	s.questions = append([]model.Question(nil), questions...)
	s.index = index
	s.status = model.SessionStatusRunning
	s.startedAt = s.clock.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("paper_id", paperID).
		Int("questions", len(questions)).
		Int("time_limit", timeLimitSeconds).
		Msg("Test session started")

	s.emit(Event{Type: EventStatus, PaperID: paperID, Status: model.SessionStatusRunning, Remaining: timeLimitSeconds})
	return nil
}

// SelectAnswer sets or overwrites the answer for a question. It changes
// nothing unless the session is RUNNING.
func (s *TestSession) SelectAnswer(questionID, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusRunning {
		return ErrNotRunning
	}
	i, ok := s.index[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if !s.questions[i].HasOption(option) {
		return ErrUnknownOption
	}
	s.answers[questionID] = option
	return nil
}

// ClearAnswer removes the answer for a question while RUNNING.
func (s *TestSession) ClearAnswer(questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusRunning {
		return ErrNotRunning
	}
	if _, ok := s.index[questionID]; !ok {
		return ErrUnknownQuestion
	}
	delete(s.answers, questionID)
	return nil
}

// ToggleFlag inverts the review flag of a question and returns the new value.
// Flags never affect grading.
func (s *TestSession) ToggleFlag(questionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[questionID]; !ok {
		return false, ErrUnknownQuestion
	}
	flagged := !s.flags[questionID]
	if flagged {
		s.flags[questionID] = true
	} else {
		delete(s.flags, questionID)
	}
	return flagged, nil
}

// Tick advances the countdown by one second. When the remaining time
// reaches zero it submits with auto=true, at most once per session.
// After the session has left RUNNING it does nothing and returns false.
func (s *TestSession) Tick(ctx context.Context) bool {
	s.mu.Lock()
	if ctx.Err() != nil {
		// Delivered by a countdown that has since been stopped or replaced.
		s.mu.Unlock()
		return false
	}
	if s.status != model.SessionStatusRunning {
		status := s.status
		s.mu.Unlock()
		s.log.Debug().Str("status", string(status)).Msg("Tick after session left RUNNING, ignored")
		return false
	}

	if s.remaining > 0 {
		s.remaining--
	}
	remaining := s.remaining

	var pending *submission
	if remaining == 0 && !s.autoFired {
		s.autoFired = true
		pending = s.beginSubmitLocked(true)
	}
	paperID := s.paperID
	status := s.status
	s.mu.Unlock()

	s.emit(Event{Type: EventTick, PaperID: paperID, Status: status, Remaining: remaining})

	if pending != nil {
		s.log.Info().Str("paper_id", paperID).Msg("Time is up, auto-submitting")
		// An in-flight submission outlives the countdown that triggered it.
		_, _ = s.finishSubmit(context.WithoutCancel(ctx), pending)
		return false
	}
	return true
}

// Submit grades the answers and sends them to the submission endpoint.
// Allowed from RUNNING, and from FAILED as a manual retry.
func (s *TestSession) Submit(ctx context.Context, auto bool) (*model.Result, error) {
	s.mu.Lock()
	switch s.status {
	case model.SessionStatusRunning:
	case model.SessionStatusFailed:
		if auto {
			s.mu.Unlock()
			return nil, ErrNotRunning
		}
	case model.SessionStatusSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmitInProgress
	case model.SessionStatusCompleted:
		s.mu.Unlock()
		return nil, ErrAlreadyCompleted
	default:
		s.mu.Unlock()
		return nil, ErrNotRunning
	}
	pending := s.beginSubmitLocked(auto)
	s.mu.Unlock()

	return s.finishSubmit(ctx, pending)
}

// submission carries a graded attempt from the locked prepare step to the
// unlocked network call.
type submission struct {
	payload model.SubmissionPayload
	score   model.Score
}

func (s *TestSession) beginSubmitLocked(auto bool) *submission {
	s.status = model.SessionStatusSubmitting
	s.lastErr = nil

	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}

	return &submission{
		payload: model.SubmissionPayload{
			PaperID:          s.paperID,
			Answers:          answers,
			TimeTakenSeconds: s.timeLimit - s.remaining,
			Auto:             auto,
		},
		score: Grade(s.questions, answers),
	}
}

func (s *TestSession) finishSubmit(ctx context.Context, p *submission) (*model.Result, error) {
	paperID := p.payload.PaperID
	s.emit(Event{Type: EventStatus, PaperID: paperID, Status: model.SessionStatusSubmitting, Auto: p.payload.Auto})

	receipt, err := s.submitter.Submit(ctx, p.payload)

	s.mu.Lock()
	if err != nil {
		subErr := &SubmissionError{PaperID: paperID, Err: err}
		s.status = model.SessionStatusFailed
		s.lastErr = subErr
		s.mu.Unlock()

		s.log.Error().Err(err).Str("paper_id", paperID).Bool("auto", p.payload.Auto).Msg("Submission failed")
		s.emit(Event{Type: EventSubmitFailed, PaperID: paperID, Status: model.SessionStatusFailed, Auto: p.payload.Auto, Error: subErr.Error()})
		return nil, subErr
	}

	result := &model.Result{
		Score:            p.score,
		TimeTakenSeconds: p.payload.TimeTakenSeconds,
		Auto:             p.payload.Auto,
		SubmittedAt:      s.clock.Now(),
	}
	if receipt != nil {
		result.ResultID = receipt.ResultID
		// The server's grading is authoritative when it sends one.
		if receipt.Score != nil {
			result.Score = *receipt.Score
		}
	}
	s.status = model.SessionStatusCompleted
	s.result = result
	s.mu.Unlock()

	s.countdown.Stop()

	s.log.Info().
		Str("paper_id", paperID).
		Str("result_id", result.ResultID).
		Float64("score", result.Score.Total).
		Int("correct", result.Score.Correct).
		Int("wrong", result.Score.Wrong).
		Bool("auto", result.Auto).
		Msg("Test submitted and graded")

	copied := *result
	s.emit(Event{Type: EventGraded, PaperID: paperID, Status: model.SessionStatusCompleted, Auto: result.Auto, Result: &copied})
	return result, nil
}

// StartCountdown starts the one-second countdown for this session,
// replacing any countdown already running.
//
// The countdown is swapped under the session lock, so a tick from the
// replaced loop either completes before the swap or is ignored.
func (s *TestSession) StartCountdown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countdown.Start(ctx, s)
}

// StopCountdown stops the countdown. An in-flight submission is not affected.
// No tick is applied after it returns.
func (s *TestSession) StopCountdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countdown.Stop()
}

// CountdownActive reports whether a countdown goroutine is running.
func (s *TestSession) CountdownActive() bool {
	return s.countdown.Active()
}

// Status returns the current state.
func (s *TestSession) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Remaining returns the remaining seconds.
func (s *TestSession) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// PaperID returns the identifier of the loaded paper.
func (s *TestSession) PaperID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paperID
}

// Answers returns a copy of the current answers.
func (s *TestSession) Answers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// LastError returns the error of the last failed submission, if any.
func (s *TestSession) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Snapshot returns a read-only copy of the session for rendering.
// Correct options are not included.
func (s *TestSession) Snapshot() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := model.SessionState{
		PaperID:          s.paperID,
		Status:           s.status,
		TimeLimitSeconds: s.timeLimit,
		RemainingSeconds: s.remaining,
		StartedAt:        s.startedAt,
		Questions:        make([]model.QuestionForStudent, 0, len(s.questions)),
		Answers:          make(map[string]string, len(s.answers)),
		Flags:            make(map[string]bool, len(s.flags)),
	}
	for i := range s.questions {
		state.Questions = append(state.Questions, s.questions[i].ForStudent())
	}
	for k, v := range s.answers {
		state.Answers[k] = v
	}
	for k, v := range s.flags {
		state.Flags[k] = v
	}
	if s.result != nil {
		r := *s.result
		state.Result = &r
	}
	if s.lastErr != nil {
		state.LastError = s.lastErr.Error()
	}
	return state
}

func (s *TestSession) emit(ev Event) {
	if s.listener != nil {
		s.listener(ev)
	}
}
