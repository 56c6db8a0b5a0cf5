// Command take-test runs a timed test attempt in the terminal, either against
// the LMS or from a local YAML paper.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stemsi/exstem-attempt/internal/lmsclient"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/paper"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/store"
	"golang.org/x/term"
)

type options struct {
	paperID   string
	file      string
	lmsURL    string
	token     string
	storePath string
	showLast  bool
	verbose   bool
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	defaultStore, _ := store.DefaultFilePath()

	opts := &options{}
	fs := pflag.NewFlagSet("take-test", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.paperID, "paper", "p", "", "paper id to fetch from the LMS")
	fs.StringVarP(&opts.file, "file", "f", "", "take a local YAML paper instead of fetching one")
	fs.StringVar(&opts.lmsURL, "lms", os.Getenv("LMS_BASE_URL"), "LMS API base URL")
	fs.StringVar(&opts.token, "token", os.Getenv("EXSTEM_TOKEN"), "student token (prompted when empty)")
	fs.StringVar(&opts.storePath, "store", defaultStore, "file holding the last attempt")
	fs.BoolVar(&opts.showLast, "last", false, "show the last attempt and exit")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch {
	case opts.showLast:
	case opts.file == "" && opts.paperID == "":
		return nil, errors.New("one of --paper or --file is required")
	case opts.file != "" && opts.paperID != "":
		return nil, errors.New("--paper and --file are mutually exclusive")
	case opts.paperID != "" && opts.lmsURL == "":
		return nil, errors.New("--lms (or LMS_BASE_URL) is required with --paper")
	}
	if opts.storePath == "" {
		return nil, errors.New("--store is required: no home directory")
	}
	return opts, nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log := logger.Setup(level, "pretty", os.Stderr)

	lastAttempts := store.NewFileStore(opts.storePath)
	if opts.showLast {
		return showLast(stdout, lastAttempts)
	}

	// The token prompt reads from the same buffer before the command loop
	// takes over stdin.
	in := bufio.NewReader(stdin)
	p, submitter, err := loadPaper(opts, stdin, in, log)
	if err != nil {
		return err
	}
	lines := readLines(in)

	events := make(chan session.Event, 64)
	sess := session.New(submitter,
		session.WithLogger(log),
		session.WithListener(func(ev session.Event) {
			select {
			case events <- ev:
			default:
				// Ticks are droppable; the next one carries fresh time.
			}
		}),
	)

	if err := sess.Start(p.ID, p.TimeLimitSeconds, p.Questions); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess.StartCountdown(ctx)
	defer sess.StopCountdown()

	saveLast(ctx, lastAttempts, sess, p, log)

	ui := newConsole(stdout, sess, p)
	fmt.Fprintf(stdout, "%s: %d questions, %s. Type h for help.\n", p.Title, len(p.Questions), clockText(p.TimeLimitSeconds))
	ui.renderQuestion()

	for {
		select {
		case ev := <-events:
			graded := ui.onEvent(ev)
			if ev.Type == session.EventGraded || ev.Type == session.EventSubmitFailed {
				saveLast(ctx, lastAttempts, sess, p, log)
			}
			if graded {
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				if drainEvents(ui, events) {
					return nil
				}
				fmt.Fprintln(stdout, "\nInput closed, leaving without submitting.")
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(stdout, err)
				continue
			}
			quit, err := ui.apply(ctx, cmd)
			if err != nil {
				fmt.Fprintln(stdout, describe(err))
				continue
			}
			if quit {
				fmt.Fprintln(stdout, "Left the test without submitting.")
				return nil
			}
		}
	}
}

// drainEvents reports events already queued when input ends. It returns true
// if one of them was the grade.
func drainEvents(ui *console, events <-chan session.Event) bool {
	for {
		select {
		case ev := <-events:
			if ui.onEvent(ev) {
				return true
			}
		default:
			return false
		}
	}
}

// loadPaper returns the paper and where its submission goes: the LMS, or a
// local receipt for practice papers read from disk.
func loadPaper(opts *options, stdin io.Reader, in *bufio.Reader, log zerolog.Logger) (*model.Paper, session.Submitter, error) {
	if opts.file != "" {
		p, err := paper.LoadFile(opts.file)
		if err != nil {
			return nil, nil, err
		}
		return p, localSubmitter(), nil
	}

	token := opts.token
	if token == "" {
		t, err := promptToken(stdin, in)
		if err != nil {
			return nil, nil, err
		}
		token = t
	}

	lms := lmsclient.New(opts.lmsURL, 15*time.Second, log)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := lms.FetchPaper(ctx, token, opts.paperID)
	if err != nil {
		return nil, nil, err
	}
	return p, lms.Submitter(token), nil
}

func localSubmitter() session.Submitter {
	return session.SubmitterFunc(func(context.Context, model.SubmissionPayload) (*model.SubmissionReceipt, error) {
		return &model.SubmissionReceipt{ResultID: "local-" + uuid.NewString()}, nil
	})
}

// promptToken reads the token without echo when stdin is a terminal, and
// otherwise takes the first line of in.
func promptToken(stdin io.Reader, in *bufio.Reader) (string, error) {
	fmt.Fprint(os.Stderr, "Student token: ")

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		if tok := strings.TrimSpace(string(raw)); tok != "" {
			return tok, nil
		}
		return "", errors.New("a token is required")
	}

	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	if tok := strings.TrimSpace(line); tok != "" {
		return tok, nil
	}
	return "", errors.New("a token is required")
}

// readLines delivers stdin lines until EOF, then closes the channel.
func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

func saveLast(ctx context.Context, s store.LastAttemptStore, sess *session.TestSession, p *model.Paper, log zerolog.Logger) {
	snap := sess.Snapshot()
	err := s.Put(ctx, 0, &model.LastAttempt{
		PaperID:          snap.PaperID,
		Title:            p.Title,
		Status:           snap.Status,
		TimeLimitSeconds: snap.TimeLimitSeconds,
		StartedAt:        snap.StartedAt,
		Answers:          snap.Answers,
		Result:           snap.Result,
		UpdatedAt:        time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to save last attempt")
	}
}

func showLast(out io.Writer, s store.LastAttemptStore) error {
	last, err := s.Get(context.Background(), 0)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(out, "No test taken yet.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s (%s)\n", last.Title, last.PaperID)
	fmt.Fprintf(out, "  Status:   %s\n", last.Status)
	fmt.Fprintf(out, "  Started:  %s\n", last.StartedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(out, "  Answered: %d\n", len(last.Answers))
	renderResult(out, last.Result)
	return nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrUnknownOption):
		return "That option does not exist for this question."
	case errors.Is(err, session.ErrNotRunning):
		return "The test is no longer running."
	case errors.Is(err, session.ErrSubmitInProgress):
		return "Already submitting, please wait."
	case errors.Is(err, session.ErrAlreadyCompleted):
		return "This test is already graded."
	default:
		return err.Error()
	}
}
