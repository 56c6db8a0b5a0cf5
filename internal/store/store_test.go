package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stemsi/exstem-attempt/internal/model"
)

func sampleAttempt(paper string) *model.LastAttempt {
	return &model.LastAttempt{
		PaperID:          paper,
		Title:            "Chemistry",
		Status:           model.SessionStatusCompleted,
		TimeLimitSeconds: 600,
		StartedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Answers:          map[string]string{"q1": "A"},
		Result:           &model.Result{ResultID: "r1", Score: model.Score{Correct: 1, Total: 2}},
		UpdatedAt:        time.Date(2026, 1, 2, 3, 14, 5, 0, time.UTC),
	}
}

// exercise runs the shared contract against any implementation.
func exercise(t *testing.T, s LastAttemptStore) {
	ctx := context.Background()

	_, err := s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, 1, sampleAttempt("p-1")))
	require.NoError(t, s.Put(ctx, 1, sampleAttempt("p-2")))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, sampleAttempt("p-2"), got, "later runs overwrite")
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb)
	exercise(t, s)

	assert.Equal(t, time.Duration(0), mr.TTL("student:1:last_attempt"), "no eviction policy")

	_, err := s.Get(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNotFound, "blobs are per student")
}

func TestRedisStore_CorruptBlob(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	require.NoError(t, mr.Set("student:5:last_attempt", "{not json"))

	_, err := NewRedisStore(rdb).Get(context.Background(), 5)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFileStore(t *testing.T) {
	exercise(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "last.json")))
}
