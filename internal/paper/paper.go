// Package paper loads practice papers from YAML files.
package paper

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/stemsi/exstem-attempt/internal/model"
	"gopkg.in/yaml.v3"
)

// Option count bounds for a question.
const (
	MinOptions = 2
	MaxOptions = 4
)

// ErrInvalidPaper wraps every validation failure.
var ErrInvalidPaper = errors.New("invalid paper")

// LoadFile reads and validates a paper from a YAML file.
func LoadFile(path string) (*model.Paper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open paper: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads and validates a paper from YAML.
func Decode(r io.Reader) (*model.Paper, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p model.Paper
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode paper: %w", err)
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the structural rules a question set must satisfy.
// An empty question list is allowed here; starting a session on it fails.
func Validate(p *model.Paper) error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidPaper)
	}
	if p.TimeLimitSeconds <= 0 {
		return fmt.Errorf("%w: time_limit_seconds must be positive", ErrInvalidPaper)
	}

	seen := make(map[string]bool, len(p.Questions))
	for i := range p.Questions {
		q := &p.Questions[i]
		if q.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidPaper, i+1)
		}
		if seen[q.ID] {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidPaper, q.ID)
		}
		seen[q.ID] = true

		if n := len(q.Options); n < MinOptions || n > MaxOptions {
			return fmt.Errorf("%w: question %q has %d options, want %d-%d", ErrInvalidPaper, q.ID, n, MinOptions, MaxOptions)
		}
		labels := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			if o.Label == "" || labels[o.Label] {
				return fmt.Errorf("%w: question %q has an empty or repeated option label", ErrInvalidPaper, q.ID)
			}
			labels[o.Label] = true
		}
		if !labels[q.CorrectOption] {
			return fmt.Errorf("%w: question %q correct option %q is not an option", ErrInvalidPaper, q.ID, q.CorrectOption)
		}
		if q.MarksPerQuestion < 0 || q.NegativeMarks < 0 {
			return fmt.Errorf("%w: question %q has negative marks", ErrInvalidPaper, q.ID)
		}
	}
	return nil
}
