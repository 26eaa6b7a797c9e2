package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamwright/internal/domain"
)

func newManager() *Manager {
	return NewManager(zerolog.Nop())
}

func TestCreateIsPending(t *testing.T) {
	m := newManager()
	job := m.Create(domain.JobKindChapterImages, map[string]any{"chapter_number": 1})

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.Equal(t, 1, job.Metadata["chapter_number"])
}

func TestStartCompletes(t *testing.T) {
	m := newManager()
	job := m.Create(domain.JobKindSceneImages, nil)

	h, err := m.Start(job.ID, func(context.Context) (any, error) {
		return map[string]any{"generated_count": 3}, nil
	})
	require.NoError(t, err)
	h.Wait()

	got, ok := m.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, map[string]any{"generated_count": 3}, got.Result)
	assert.Empty(t, got.Error)
}

func TestStartCapturesError(t *testing.T) {
	m := newManager()
	job := m.Create(domain.JobKindSceneImages, nil)

	h, err := m.Start(job.ID, func(context.Context) (any, error) {
		return nil, errors.New("model unavailable")
	})
	require.NoError(t, err)
	h.Wait()

	got, _ := m.Get(job.ID)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "model unavailable", got.Error)
	assert.NotNil(t, got.CompletedAt)
}

func TestStartRecoversPanic(t *testing.T) {
	m := newManager()
	job := m.Create(domain.JobKindSceneImages, nil)

	h, err := m.Start(job.ID, func(context.Context) (any, error) {
		panic("boom")
	})
	require.NoError(t, err)
	h.Wait()

	got, _ := m.Get(job.ID)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "boom")
}

func TestCancelRunning(t *testing.T) {
	m := newManager()
	job := m.Create(domain.JobKindChapterImages, nil)

	started := make(chan struct{})
	h, err := m.Start(job.ID, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	assert.True(t, m.Cancel(job.ID))

	got, _ := m.Get(job.ID)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
	assert.Equal(t, "cancelled", got.Error)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	// The unit returning afterwards must not overwrite the terminal status.
	h.Wait()
	got, _ = m.Get(job.ID)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
}

func TestCancelTerminalReturnsFalse(t *testing.T) {
	m := newManager()
	job := m.Create(domain.JobKindChapterImages, nil)

	h, err := m.Start(job.ID, func(context.Context) (any, error) { return "done", nil })
	require.NoError(t, err)
	h.Wait()

	before, _ := m.Get(job.ID)
	assert.False(t, m.Cancel(job.ID))
	after, _ := m.Get(job.ID)
	assert.Equal(t, before, after, "cancel on a completed job must leave the record unchanged")
}

func TestCancelPendingSetsTimestamps(t *testing.T) {
	m := newManager()
	job := m.Create(domain.JobKindChapterImages, nil)

	assert.True(t, m.Cancel(job.ID))
	got, _ := m.Get(job.ID)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
}

func TestListFiltersAndSorts(t *testing.T) {
	m := newManager()
	a := m.Create(domain.JobKindChapterImages, nil)
	time.Sleep(2 * time.Millisecond)
	b := m.Create(domain.JobKindSceneImages, nil)
	time.Sleep(2 * time.Millisecond)
	c := m.Create(domain.JobKindChapterImages, nil)

	list, total := m.List(Filter{})
	require.Equal(t, 3, total)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

	list, total = m.List(Filter{Kind: domain.JobKindChapterImages})
	assert.Equal(t, 2, total)
	assert.Len(t, list, 2)

	list, total = m.List(Filter{Limit: 1, Offset: 1})
	assert.Equal(t, 3, total)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	list, total = m.List(Filter{Offset: 10})
	assert.Equal(t, 3, total)
	assert.Empty(t, list)
}

func TestSetProgress(t *testing.T) {
	m := newManager()
	job := m.Create(domain.JobKindChapterImages, nil)
	m.SetProgress(job.ID, 2, 8)

	got, _ := m.Get(job.ID)
	assert.Equal(t, 2, got.Progress)
	assert.Equal(t, 8, got.Total)
}

func TestCleanupRemovesOldTerminalOnly(t *testing.T) {
	m := newManager()

	oldDone := m.Create(domain.JobKindChapterImages, nil)
	h, err := m.Start(oldDone.ID, func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	h.Wait()

	// Age the completion timestamp past the cutoff.
	m.mu.Lock()
	past := time.Now().UTC().Add(-48 * time.Hour)
	m.jobs[oldDone.ID].CompletedAt = &past
	m.mu.Unlock()

	pending := m.Create(domain.JobKindSceneImages, nil)

	removed := m.Cleanup(24 * time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := m.Get(oldDone.ID)
	assert.False(t, ok)
	_, ok = m.Get(pending.ID)
	assert.True(t, ok)
}
