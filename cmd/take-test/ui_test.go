package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/store"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{line: "n", want: command{kind: cmdNext}},
		{line: "  prev ", want: command{kind: cmdPrev}},
		{line: "g 3", want: command{kind: cmdGoto, n: 3}},
		{line: "g 0", wantErr: true},
		{line: "g x", wantErr: true},
		{line: "a b", want: command{kind: cmdAnswer, arg: "B"}},
		{line: "A C", want: command{kind: cmdAnswer, arg: "C"}},
		{line: "a", wantErr: true},
		{line: "c", want: command{kind: cmdClear}},
		{line: "f", want: command{kind: cmdFlag}},
		{line: "s", want: command{kind: cmdSubmit}},
		{line: "r", want: command{kind: cmdReview}},
		{line: "?", want: command{kind: cmdHelp}},
		{line: "quit", want: command{kind: cmdQuit}},
		{line: "dance", wantErr: true},
		{line: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func testPaper() *model.Paper {
	opts := []model.Option{{Label: "A", Text: "one"}, {Label: "B", Text: "two"}, {Label: "C", Text: "three"}}
	return &model.Paper{
		ID:               "phy-101",
		Title:            "Physics",
		TimeLimitSeconds: 120,
		Questions: []model.Question{
			{ID: "q1", Text: "First?", Options: opts, CorrectOption: "A", MarksPerQuestion: 4, NegativeMarks: 1},
			{ID: "q2", Text: "Second?", Options: opts, CorrectOption: "C", MarksPerQuestion: 4, NegativeMarks: 1},
		},
	}
}

func newTestConsole(t *testing.T, sub session.Submitter) (*console, *bytes.Buffer) {
	t.Helper()
	p := testPaper()
	sess := session.New(sub, session.WithClock(clock.NewMock()))
	require.NoError(t, sess.Start(p.ID, p.TimeLimitSeconds, p.Questions))

	var out bytes.Buffer
	return newConsole(&out, sess, p), &out
}

func TestConsole_AnswerAdvancesCursor(t *testing.T) {
	ui, out := newTestConsole(t, localSubmitter())

	quit, err := ui.apply(context.Background(), command{kind: cmdAnswer, arg: "A"})
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, 1, ui.cursor)
	assert.Equal(t, "A", ui.sess.Answers()["q1"])
	assert.Contains(t, out.String(), "[2/2] q2")

	// Answering the last question stays on it.
	_, err = ui.apply(context.Background(), command{kind: cmdAnswer, arg: "B"})
	require.NoError(t, err)
	assert.Equal(t, 1, ui.cursor)
	assert.Contains(t, out.String(), "* (B) two")
}

func TestConsole_UnknownOptionKeepsCursor(t *testing.T) {
	ui, _ := newTestConsole(t, localSubmitter())

	_, err := ui.apply(context.Background(), command{kind: cmdAnswer, arg: "Z"})

	assert.ErrorIs(t, err, session.ErrUnknownOption)
	assert.Equal(t, 0, ui.cursor)
	assert.Empty(t, ui.sess.Answers())
}

func TestConsole_Navigation(t *testing.T) {
	ui, _ := newTestConsole(t, localSubmitter())
	ctx := context.Background()

	_, _ = ui.apply(ctx, command{kind: cmdPrev})
	assert.Equal(t, 0, ui.cursor)

	_, _ = ui.apply(ctx, command{kind: cmdNext})
	_, _ = ui.apply(ctx, command{kind: cmdNext})
	assert.Equal(t, 1, ui.cursor)

	_, err := ui.apply(ctx, command{kind: cmdGoto, n: 5})
	assert.Error(t, err)
	assert.Equal(t, 1, ui.cursor)

	_, err = ui.apply(ctx, command{kind: cmdGoto, n: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, ui.cursor)
}

func TestConsole_FlagAndReview(t *testing.T) {
	ui, out := newTestConsole(t, localSubmitter())
	ctx := context.Background()

	_, err := ui.apply(ctx, command{kind: cmdFlag})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Flagged for review.")

	_, err = ui.apply(ctx, command{kind: cmdReview})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "q1       - flagged")
	assert.Contains(t, out.String(), "Answered 0 of 2, time left 02:00")

	_, err = ui.apply(ctx, command{kind: cmdFlag})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Flag removed.")
}

func TestConsole_SubmitGrades(t *testing.T) {
	ui, out := newTestConsole(t, localSubmitter())
	ctx := context.Background()

	_, _ = ui.apply(ctx, command{kind: cmdAnswer, arg: "A"})
	_, _ = ui.apply(ctx, command{kind: cmdAnswer, arg: "B"})

	quit, err := ui.apply(ctx, command{kind: cmdSubmit})
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, model.SessionStatusCompleted, ui.sess.Status())

	snap := ui.sess.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, 3.0, snap.Result.Score.Total)

	done := ui.onEvent(session.Event{Type: session.EventGraded, Result: snap.Result})
	assert.True(t, done)
	assert.Contains(t, out.String(), "Score:       3 / 8")
	assert.Contains(t, out.String(), "Wrong:       1")
}

func TestConsole_FailedSubmitIsReportedByEvent(t *testing.T) {
	failing := session.SubmitterFunc(func(context.Context, model.SubmissionPayload) (*model.SubmissionReceipt, error) {
		return nil, errors.New("connection refused")
	})
	ui, out := newTestConsole(t, failing)

	_, err := ui.apply(context.Background(), command{kind: cmdSubmit})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFailed, ui.sess.Status())

	done := ui.onEvent(session.Event{Type: session.EventSubmitFailed, Error: "connection refused"})
	assert.False(t, done)
	assert.Contains(t, out.String(), "Type s to retry.")

	_, err = ui.apply(context.Background(), command{kind: cmdSubmit})
	assert.NoError(t, err, "retry failures are reported by events too")
}

func TestConsole_SubmitAfterCompletion(t *testing.T) {
	ui, _ := newTestConsole(t, localSubmitter())
	ctx := context.Background()

	_, err := ui.apply(ctx, command{kind: cmdSubmit})
	require.NoError(t, err)

	_, err = ui.apply(ctx, command{kind: cmdSubmit})
	assert.ErrorIs(t, err, session.ErrAlreadyCompleted)
	assert.Equal(t, "This test is already graded.", describe(err))
}

func TestConsole_Quit(t *testing.T) {
	ui, _ := newTestConsole(t, localSubmitter())

	quit, err := ui.apply(context.Background(), command{kind: cmdQuit})

	require.NoError(t, err)
	assert.True(t, quit)
	assert.Equal(t, model.SessionStatusRunning, ui.sess.Status())
}

func TestConsole_AutoSubmitNotice(t *testing.T) {
	ui, out := newTestConsole(t, localSubmitter())

	ui.onEvent(session.Event{Type: session.EventStatus, Status: model.SessionStatusSubmitting, Auto: true})
	ui.onEvent(session.Event{Type: session.EventTick, Remaining: 60})
	ui.onEvent(session.Event{Type: session.EventTick, Remaining: 59})

	assert.Contains(t, out.String(), "Time is up.")
	assert.Contains(t, out.String(), "-- 01:00 left --")
	assert.NotContains(t, out.String(), "00:59")
}

func TestWarnAt(t *testing.T) {
	for _, r := range []int{600, 300, 60, 30, 10, 1} {
		assert.True(t, warnAt(r), "%d", r)
	}
	for _, r := range []int{599, 61, 31, 11, 0, -1} {
		assert.False(t, warnAt(r), "%d", r)
	}
}

func TestClockText(t *testing.T) {
	assert.Equal(t, "00:00", clockText(-5))
	assert.Equal(t, "00:09", clockText(9))
	assert.Equal(t, "05:00", clockText(300))
	assert.Equal(t, "61:01", clockText(3661))
}

func TestShowLast(t *testing.T) {
	s := store.NewFileStore(filepath.Join(t.TempDir(), "last.json"))
	var out bytes.Buffer

	require.NoError(t, showLast(&out, s))
	assert.Contains(t, out.String(), "No test taken yet.")

	require.NoError(t, s.Put(context.Background(), 0, &model.LastAttempt{
		PaperID: "phy-101",
		Title:   "Physics",
		Status:  model.SessionStatusCompleted,
		Answers: map[string]string{"q1": "A"},
		Result:  &model.Result{ResultID: "local-1", Score: model.Score{Correct: 1, Total: 4, MaxTotal: 8}},
	}))

	out.Reset()
	require.NoError(t, showLast(&out, s))
	assert.Contains(t, out.String(), "Physics (phy-101)")
	assert.Contains(t, out.String(), "Answered: 1")
	assert.Contains(t, out.String(), "Result local-1")
}

func TestParseFlags(t *testing.T) {
	t.Setenv("LMS_BASE_URL", "")
	t.Setenv("EXSTEM_TOKEN", "")

	_, err := parseFlags([]string{"--store", "x.json"}, os.Stderr)
	assert.Error(t, err)

	_, err = parseFlags([]string{"--paper", "phy-101", "--store", "x.json"}, os.Stderr)
	assert.Error(t, err, "paper mode needs an LMS URL")

	_, err = parseFlags([]string{"-p", "phy-101", "-f", "x.yaml", "--store", "x.json"}, os.Stderr)
	assert.Error(t, err)

	opts, err := parseFlags([]string{"-f", "paper.yaml", "--store", "x.json", "-v"}, os.Stderr)
	require.NoError(t, err)
	assert.Equal(t, "paper.yaml", opts.file)
	assert.True(t, opts.verbose)

	opts, err = parseFlags([]string{"--last", "--store", "x.json"}, os.Stderr)
	require.NoError(t, err)
	assert.True(t, opts.showLast)
}

func TestRun_LocalPaperEndToEnd(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "last.json")
	paperPath := filepath.Join("..", "..", "internal", "paper", "testdata", "physics.yaml")

	var out bytes.Buffer
	in := bytes.NewBufferString("a A\na A\ns\n")

	err := run([]string{"-f", paperPath, "--store", storePath}, in, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Test submitted.")

	last, err := store.NewFileStore(storePath).Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, last.Status)
	require.NotNil(t, last.Result)
	assert.Equal(t, 2, last.Result.Score.Correct)
}

func TestPromptToken_PipedInputKeepsCommands(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("  tok-123 \na A\ns\n"))

	tok, err := promptToken(in, in)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)

	var got []string
	for line := range readLines(in) {
		got = append(got, line)
	}
	assert.Equal(t, []string{"a A", "s"}, got)
}

func TestPromptToken_Empty(t *testing.T) {
	for _, input := range []string{"", "\n", "   \na A\n"} {
		in := bufio.NewReader(strings.NewReader(input))
		_, err := promptToken(in, in)
		assert.Error(t, err, "%q", input)
	}
}
