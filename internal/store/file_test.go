package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/clock"
	"github.com/smukkama/helmet-monitor/internal/reading"
)

func mustReading(t *testing.T, payload string, ts time.Time) reading.Reading {
	t.Helper()
	r, err := reading.Validate([]byte(payload), clock.Fixed{T: ts})
	require.NoError(t, err)
	return r
}

func openFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := OpenFile(filepath.Join(t.TempDir(), "data.json"), zap.NewNop())
	require.NoError(t, err)
	return fs
}

func TestFileStore_CreatesEmptyCollection(t *testing.T) {
	fs := openFileStore(t)

	content, err := os.ReadFile(fs.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(content))

	readings, err := fs.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestFileStore_AppendPreservesArrivalOrder(t *testing.T) {
	fs := openFileStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "a"} {
		r := mustReading(t, fmt.Sprintf(`{"person_id":%q,"seq":%d}`, id, i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, fs.Append(ctx, r))
	}

	readings, err := fs.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, readings, 3)

	for i, r := range readings {
		raw, ok := r.Field("seq")
		require.True(t, ok)
		assert.Equal(t, fmt.Sprint(i), string(raw))
	}
	assert.Equal(t, "b", readings[1].PersonID)
}

func TestFileStore_CorruptedReadsEmptyAndHeals(t *testing.T) {
	fs := openFileStore(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(fs.Path(), []byte(`[{"person_id":"a"`), 0o644))

	readings, err := fs.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, readings)

	require.NoError(t, fs.Append(ctx, mustReading(t, `{"person_id":"b"}`, time.Now())))

	readings, err = fs.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "b", readings[0].PersonID)
}

func TestFileStore_NonArrayReadsEmpty(t *testing.T) {
	fs := openFileStore(t)
	require.NoError(t, os.WriteFile(fs.Path(), []byte(`{"person_id":"a"}`), 0o644))

	readings, err := fs.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestFileStore_ExistingFileIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"person_id":"legacy","timestamp":"2026-10-19T09:00:00+03:00"}]`), 0o644))

	fs, err := OpenFile(path, zap.NewNop())
	require.NoError(t, err)

	readings, err := fs.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "legacy", readings[0].PersonID)
}

func TestSerialized_ConcurrentAppendsLoseNothing(t *testing.T) {
	s := Serialize(openFileStore(t))
	defer s.Close()
	ctx := context.Background()

	const writers = 40
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := reading.Validate([]byte(fmt.Sprintf(`{"person_id":"p%d"}`, i%4)), clock.Fixed{T: time.Now()})
			if err != nil {
				errs <- err
				return
			}
			errs <- s.Append(ctx, r)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	readings, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, readings, writers)
}

type failingStore struct{}

func (f *failingStore) Append(ctx context.Context, r reading.Reading) error {
	return fmt.Errorf("%w: disk full", ErrWrite)
}

func (f *failingStore) ReadAll(ctx context.Context) ([]reading.Reading, error) {
	return []reading.Reading{}, nil
}

func (f *failingStore) Close() error { return nil }

func TestSerialized_PropagatesWriteFailure(t *testing.T) {
	s := Serialize(&failingStore{})

	err := s.Append(context.Background(), mustReading(t, `{"person_id":"a"}`, time.Now()))
	assert.ErrorIs(t, err, ErrWrite)
}

func TestSerialized_CancelledContext(t *testing.T) {
	s := Serialize(openFileStore(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Append(ctx, mustReading(t, `{"person_id":"a"}`, time.Now()))
	assert.ErrorIs(t, err, context.Canceled)

	readings, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)
}
