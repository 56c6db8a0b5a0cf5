package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/session"
)

type cmdKind int

const (
	cmdNext cmdKind = iota
	cmdPrev
	cmdGoto
	cmdAnswer
	cmdClear
	cmdFlag
	cmdSubmit
	cmdReview
	cmdHelp
	cmdQuit
)

type command struct {
	kind cmdKind
	arg  string
	n    int
}

var errUnknownCommand = errors.New("unknown command, type h for help")

const helpText = `Commands:
  n        next question         p        previous question
  g N      go to question N      a B      answer with option B
  c        clear answer          f        toggle review flag
  r        review all questions  s        submit (or retry)
  h        this help             q        quit without submitting
`

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, errUnknownCommand
	}

	verb := strings.ToLower(fields[0])
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch verb {
	case "n", "next":
		return command{kind: cmdNext}, nil
	case "p", "prev":
		return command{kind: cmdPrev}, nil
	case "g", "goto":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return command{}, errors.New("usage: g N (N starts at 1)")
		}
		return command{kind: cmdGoto, n: n}, nil
	case "a", "answer":
		if arg == "" {
			return command{}, errors.New("usage: a B")
		}
		return command{kind: cmdAnswer, arg: strings.ToUpper(arg)}, nil
	case "c", "clear":
		return command{kind: cmdClear}, nil
	case "f", "flag":
		return command{kind: cmdFlag}, nil
	case "s", "submit":
		return command{kind: cmdSubmit}, nil
	case "r", "review":
		return command{kind: cmdReview}, nil
	case "h", "help", "?":
		return command{kind: cmdHelp}, nil
	case "q", "quit", "exit":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, errUnknownCommand
	}
}

// console renders one session to a terminal and applies commands to it.
type console struct {
	out    io.Writer
	sess   *session.TestSession
	paper  *model.Paper
	cursor int
}

func newConsole(out io.Writer, sess *session.TestSession, paper *model.Paper) *console {
	return &console{out: out, sess: sess, paper: paper}
}

// apply runs a command. quit reports that the user chose to leave.
func (c *console) apply(ctx context.Context, cmd command) (quit bool, err error) {
	total := len(c.paper.Questions)

	switch cmd.kind {
	case cmdNext:
		if c.cursor < total-1 {
			c.cursor++
		}
		c.renderQuestion()
	case cmdPrev:
		if c.cursor > 0 {
			c.cursor--
		}
		c.renderQuestion()
	case cmdGoto:
		if cmd.n > total {
			return false, fmt.Errorf("there are only %d questions", total)
		}
		c.cursor = cmd.n - 1
		c.renderQuestion()
	case cmdAnswer:
		if err := c.sess.SelectAnswer(c.current().ID, cmd.arg); err != nil {
			return false, err
		}
		if c.cursor < total-1 {
			c.cursor++
		}
		c.renderQuestion()
	case cmdClear:
		if err := c.sess.ClearAnswer(c.current().ID); err != nil {
			return false, err
		}
		c.renderQuestion()
	case cmdFlag:
		flagged, err := c.sess.ToggleFlag(c.current().ID)
		if err != nil {
			return false, err
		}
		if flagged {
			fmt.Fprintln(c.out, "Flagged for review.")
		} else {
			fmt.Fprintln(c.out, "Flag removed.")
		}
	case cmdSubmit:
		fmt.Fprintln(c.out, "Submitting...")
		// The outcome is reported through the session events.
		if _, err := c.sess.Submit(ctx, false); err != nil {
			var subErr *session.SubmissionError
			if errors.As(err, &subErr) {
				return false, nil
			}
			return false, err
		}
	case cmdReview:
		c.renderReview()
	case cmdHelp:
		fmt.Fprint(c.out, helpText)
	case cmdQuit:
		return true, nil
	}
	return false, nil
}

func (c *console) current() *model.Question {
	return &c.paper.Questions[c.cursor]
}

func (c *console) renderQuestion() {
	q := c.current()
	snap := c.sess.Snapshot()

	flag := ""
	if snap.Flags[q.ID] {
		flag = "  [flagged]"
	}
	fmt.Fprintf(c.out, "\n[%d/%d] %s  (+%g / -%g)%s  time left %s\n",
		c.cursor+1, len(c.paper.Questions), q.ID, q.MarksPerQuestion, q.NegativeMarks, flag, clockText(snap.RemainingSeconds))
	fmt.Fprintln(c.out, q.Text)

	for _, o := range q.Options {
		mark := " "
		if snap.Answers[q.ID] == o.Label {
			mark = "*"
		}
		fmt.Fprintf(c.out, "  %s (%s) %s\n", mark, o.Label, o.Text)
	}
}

func (c *console) renderReview() {
	snap := c.sess.Snapshot()
	answered := 0
	for i, q := range c.paper.Questions {
		ans, ok := snap.Answers[q.ID]
		if ok {
			answered++
		} else {
			ans = "-"
		}
		flag := ""
		if snap.Flags[q.ID] {
			flag = " flagged"
		}
		fmt.Fprintf(c.out, "  %2d. %-8s %s%s\n", i+1, q.ID, ans, flag)
	}
	fmt.Fprintf(c.out, "Answered %d of %d, time left %s\n", answered, len(c.paper.Questions), clockText(snap.RemainingSeconds))
}

// onEvent reports session events. It returns true once the attempt is graded.
func (c *console) onEvent(ev session.Event) bool {
	switch ev.Type {
	case session.EventTick:
		if warnAt(ev.Remaining) {
			fmt.Fprintf(c.out, "-- %s left --\n", clockText(ev.Remaining))
		}
	case session.EventStatus:
		if ev.Status == model.SessionStatusSubmitting && ev.Auto {
			fmt.Fprintln(c.out, "\nTime is up. Submitting your answers...")
		}
	case session.EventSubmitFailed:
		fmt.Fprintf(c.out, "Submission failed: %s\nYour answers are kept. Type s to retry.\n", ev.Error)
	case session.EventGraded:
		renderResult(c.out, ev.Result)
		return true
	}
	return false
}

func renderResult(out io.Writer, r *model.Result) {
	if r == nil {
		return
	}
	how := "submitted"
	if r.Auto {
		how = "auto-submitted"
	}
	fmt.Fprintf(out, "\nTest %s. Result %s\n", how, r.ResultID)
	fmt.Fprintf(out, "  Score:       %g / %g\n", r.Score.Total, r.Score.MaxTotal)
	fmt.Fprintf(out, "  Correct:     %d\n", r.Score.Correct)
	fmt.Fprintf(out, "  Wrong:       %d\n", r.Score.Wrong)
	fmt.Fprintf(out, "  Unattempted: %d\n", r.Score.Unattempted)
	fmt.Fprintf(out, "  Time taken:  %s\n", clockText(r.TimeTakenSeconds))
}

// warnAt picks the remaining-time values worth interrupting the student for.
func warnAt(remaining int) bool {
	switch {
	case remaining <= 0:
		return false
	case remaining <= 10:
		return true
	case remaining == 30:
		return true
	default:
		return remaining%300 == 0 || remaining == 60
	}
}

func clockText(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
