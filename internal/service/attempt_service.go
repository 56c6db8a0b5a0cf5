package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/store"
)

// Domain Errors
var (
	ErrAttemptNotFound = errors.New("no active attempt for this paper")
)

// LMS is the slice of the upstream LMS API the attempt service needs.
type LMS interface {
	FetchPaper(ctx context.Context, token, paperID string) (*model.Paper, error)
	Submit(ctx context.Context, token string, payload model.SubmissionPayload) (*model.SubmissionReceipt, error)
}

// AttemptEvent is a session event tagged with its owner.
type AttemptEvent struct {
	StudentID int `json:"student_id"`
	session.Event
}

// RelayedToProctors reports whether ev is mirrored to other replicas.
// Per-second ticks stay local to the student's own streams.
func RelayedToProctors(ev AttemptEvent) bool {
	return ev.Type != session.EventTick
}

type attemptKey struct {
	studentID int
	paperID   string
}

// attempt is one live TestSession owned by one student.
type attempt struct {
	key     attemptKey
	title   string
	session *session.TestSession

	mu        sync.Mutex
	token     string
	touchedAt time.Time
}

func (a *attempt) currentToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *attempt) touch(now time.Time, token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touchedAt = now
	if token != "" {
		a.token = token
	}
}

func (a *attempt) idleSince() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.touchedAt
}

// AttemptService hosts the live test sessions of this gateway: at most one
// per (student, paper), each with at most one countdown.
type AttemptService struct {
	lms   LMS
	store store.LastAttemptStore
	bus   *notify.Bus[AttemptEvent]
	clock clock.Clock
	idle  time.Duration
	log   zerolog.Logger

	// runCtx outlives requests; countdowns run under it.
	runCtx    context.Context
	runCancel context.CancelFunc

	mu       sync.Mutex
	attempts map[attemptKey]*attempt
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	lms LMS,
	lastAttempts store.LastAttemptStore,
	bus *notify.Bus[AttemptEvent],
	clk clock.Clock,
	idle time.Duration,
	log zerolog.Logger,
) *AttemptService {
	runCtx, runCancel := context.WithCancel(context.Background())
	return &AttemptService{
		lms:       lms,
		store:     lastAttempts,
		bus:       bus,
		clock:     clk,
		idle:      idle,
		log:       log.With().Str("component", "attempt_service").Logger(),
		runCtx:    runCtx,
		runCancel: runCancel,
		attempts:  make(map[attemptKey]*attempt),
	}
}

// Start fetches the paper and starts a timed attempt. Starting a paper that
// already has a live (non-completed) attempt returns that attempt unchanged.
func (s *AttemptService) Start(ctx context.Context, studentID int, token, paperID string) (model.SessionState, error) {
	key := attemptKey{studentID: studentID, paperID: paperID}

	if a := s.lookup(key); a != nil && a.session.Status() != model.SessionStatusCompleted {
		a.touch(s.clock.Now(), token)
		return a.session.Snapshot(), nil
	}

	paper, err := s.lms.FetchPaper(ctx, token, paperID)
	if err != nil {
		return model.SessionState{}, fmt.Errorf("fetch paper: %w", err)
	}

	a := &attempt{key: key, title: paper.Title, token: token, touchedAt: s.clock.Now()}
	a.session = session.New(
		session.SubmitterFunc(func(ctx context.Context, p model.SubmissionPayload) (*model.SubmissionReceipt, error) {
			return s.lms.Submit(ctx, a.currentToken(), p)
		}),
		session.WithClock(s.clock),
		session.WithListener(func(ev session.Event) { s.onEvent(a, ev) }),
		session.WithLogger(s.log.With().Int("student_id", studentID).Logger()),
	)

	// The paper id requested is the key; the LMS's copy of it is informative.
	if err := a.session.Start(paperID, paper.TimeLimitSeconds, paper.Questions); err != nil {
		return model.SessionState{}, err
	}

	s.mu.Lock()
	if existing, ok := s.attempts[key]; ok && existing.session.Status() != model.SessionStatusCompleted {
		// A concurrent Start won the race; keep its countdown.
		s.mu.Unlock()
		return existing.session.Snapshot(), nil
	}
	if old, ok := s.attempts[key]; ok {
		old.session.StopCountdown()
	}
	s.attempts[key] = a
	s.mu.Unlock()

	a.session.StartCountdown(s.runCtx)
	s.persist(a)

	return a.session.Snapshot(), nil
}

// Answer selects an option for a question.
func (s *AttemptService) Answer(studentID int, paperID, questionID, option string) error {
	a, err := s.get(studentID, paperID)
	if err != nil {
		return err
	}
	return a.session.SelectAnswer(questionID, option)
}

// ClearAnswer removes the answer for a question.
func (s *AttemptService) ClearAnswer(studentID int, paperID, questionID string) error {
	a, err := s.get(studentID, paperID)
	if err != nil {
		return err
	}
	return a.session.ClearAnswer(questionID)
}

// ToggleFlag flips the review flag of a question.
func (s *AttemptService) ToggleFlag(studentID int, paperID, questionID string) (bool, error) {
	a, err := s.get(studentID, paperID)
	if err != nil {
		return false, err
	}
	return a.session.ToggleFlag(questionID)
}

// Submit submits manually, or retries a failed submission. The request
// context only bounds waiting; the submission itself runs to completion.
func (s *AttemptService) Submit(ctx context.Context, studentID int, token, paperID string) (*model.Result, error) {
	a, err := s.get(studentID, paperID)
	if err != nil {
		return nil, err
	}
	a.touch(s.clock.Now(), token)
	return a.session.Submit(context.WithoutCancel(ctx), false)
}

// State returns a snapshot of the attempt.
func (s *AttemptService) State(studentID int, paperID string) (model.SessionState, error) {
	a, err := s.get(studentID, paperID)
	if err != nil {
		return model.SessionState{}, err
	}
	return a.session.Snapshot(), nil
}

// Discard drops the attempt when the student navigates away. The countdown
// is stopped; an in-flight submission still completes.
func (s *AttemptService) Discard(studentID int, paperID string) error {
	key := attemptKey{studentID: studentID, paperID: paperID}

	s.mu.Lock()
	a, ok := s.attempts[key]
	if ok {
		delete(s.attempts, key)
	}
	s.mu.Unlock()

	if !ok {
		return ErrAttemptNotFound
	}
	a.session.StopCountdown()
	s.log.Info().Int("student_id", studentID).Str("paper_id", paperID).Msg("Attempt discarded")
	return nil
}

// LastAttempt returns the cached "last test taken" blob.
func (s *AttemptService) LastAttempt(ctx context.Context, studentID int) (*model.LastAttempt, error) {
	return s.store.Get(ctx, studentID)
}

// Subscribe streams the events of one attempt.
func (s *AttemptService) Subscribe(studentID int, paperID string) (<-chan AttemptEvent, func()) {
	return s.bus.Subscribe(func(ev AttemptEvent) bool {
		return ev.StudentID == studentID && ev.PaperID == paperID
	})
}

// AttemptSummary is one row of the live monitor.
type AttemptSummary struct {
	StudentID        int                 `json:"student_id"`
	Status           model.SessionStatus `json:"status"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Answered         int                 `json:"answered"`
	Flagged          int                 `json:"flagged"`
	TotalQuestions   int                 `json:"total_questions"`
}

// Overview lists the attempts hosted for a paper, ordered by student.
func (s *AttemptService) Overview(paperID string) []AttemptSummary {
	s.mu.Lock()
	hosted := make([]*attempt, 0, len(s.attempts))
	for key, a := range s.attempts {
		if key.paperID == paperID {
			hosted = append(hosted, a)
		}
	}
	s.mu.Unlock()

	out := make([]AttemptSummary, 0, len(hosted))
	for _, a := range hosted {
		snap := a.session.Snapshot()
		out = append(out, AttemptSummary{
			StudentID:        a.key.studentID,
			Status:           snap.Status,
			RemainingSeconds: snap.RemainingSeconds,
			Answered:         len(snap.Answers),
			Flagged:          len(snap.Flags),
			TotalQuestions:   len(snap.Questions),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// ActiveCount returns the number of hosted attempts.
func (s *AttemptService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// Reap drops finished attempts that have been idle longer than the idle
// window. Running attempts are never reaped; their countdown ends them.
func (s *AttemptService) Reap() int {
	cutoff := s.clock.Now().Add(-s.idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for key, a := range s.attempts {
		if !a.session.Status().Terminal() {
			continue
		}
		if a.idleSince().Before(cutoff) {
			a.session.StopCountdown()
			delete(s.attempts, key)
			reaped++
		}
	}
	return reaped
}

// StartReaper runs Reap every minute until ctx is cancelled. Call in a goroutine.
func (s *AttemptService) StartReaper(ctx context.Context) {
	ticker := s.clock.Ticker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Reap(); n > 0 {
				s.log.Debug().Int("count", n).Msg("Reaped finished attempts")
			}
		}
	}
}

// Shutdown stops every countdown. In-flight submissions are left to finish.
func (s *AttemptService) Shutdown() {
	s.runCancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		a.session.StopCountdown()
	}
	s.log.Info().Int("attempts", len(s.attempts)).Msg("Countdowns stopped")
}

func (s *AttemptService) lookup(key attemptKey) *attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[key]
}

func (s *AttemptService) get(studentID int, paperID string) (*attempt, error) {
	a := s.lookup(attemptKey{studentID: studentID, paperID: paperID})
	if a == nil {
		return nil, ErrAttemptNotFound
	}
	a.touch(s.clock.Now(), "")
	return a, nil
}

func (s *AttemptService) onEvent(a *attempt, ev session.Event) {
	s.bus.Publish(AttemptEvent{StudentID: a.key.studentID, Event: ev})

	switch ev.Type {
	case session.EventGraded, session.EventSubmitFailed:
		a.touch(s.clock.Now(), "")
		s.persist(a)
	}
}

// persist overwrites the student's last-attempt blob. Failures are logged:
// the blob is a convenience cache, never the source of truth.
func (s *AttemptService) persist(a *attempt) {
	snap := a.session.Snapshot()
	blob := &model.LastAttempt{
		PaperID:          snap.PaperID,
		Title:            a.title,
		Status:           snap.Status,
		TimeLimitSeconds: snap.TimeLimitSeconds,
		StartedAt:        snap.StartedAt,
		Answers:          snap.Answers,
		Result:           snap.Result,
		UpdatedAt:        s.clock.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.store.Put(ctx, a.key.studentID, blob); err != nil {
		s.log.Warn().Err(err).
			Int("student_id", a.key.studentID).
			Str("paper_id", snap.PaperID).
			Msg("Failed to cache last attempt")
	}
}
