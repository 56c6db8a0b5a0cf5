// Package store keeps the single "last test taken" blob per student.
// Each write overwrites the previous one; there is no history and no
// eviction policy.
package store

import (
	"context"
	"errors"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// ErrNotFound is returned when no attempt has been recorded yet.
var ErrNotFound = errors.New("no last attempt recorded")

// LastAttemptStore reads and writes the last-attempt blob.
type LastAttemptStore interface {
	Get(ctx context.Context, studentID int) (*model.LastAttempt, error)
	Put(ctx context.Context, studentID int, attempt *model.LastAttempt) error
}
