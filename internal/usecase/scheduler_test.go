package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// immediateDriver fires the job once, synchronously, on Start.
type immediateDriver struct {
	started int
	stopped int
}

func (d *immediateDriver) Start(_ context.Context, job func(time.Time)) error {
	d.started++
	job(fixedNow)
	return nil
}

func (d *immediateDriver) Stop(context.Context) error {
	d.stopped++
	return nil
}

func TestSchedulerRunsSinceLastUpdate(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.repo.latest = time.Date(2024, time.March, 8, 10, 0, 0, 0, time.UTC)
	h.repo.hasLatest = true
	driver := &immediateDriver{}

	s := NewScheduler(driver, h.pipeline(), nil)
	_, ok := s.Last()
	assert.False(t, ok)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, 1, driver.started)
	assert.Equal(t, 1, driver.stopped)
	require.Len(t, h.source.windows, 1)
	assert.Equal(t, "2024/03/09:2024/03/10", h.source.windows[0].String())

	last, ok := s.Last()
	require.True(t, ok)
	assert.True(t, last.Success)
}

func TestSchedulerSkipsOverlappingTrigger(t *testing.T) {
	t.Parallel()

	h := newHarness()
	s := NewScheduler(nil, h.pipeline(), nil)

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	_, ran := s.Trigger(context.Background(), fixedNow)
	assert.False(t, ran)
	assert.Empty(t, h.source.windows)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	summary, ran := s.Trigger(context.Background(), fixedNow)
	assert.True(t, ran)
	assert.True(t, summary.Success)
}

func TestSchedulerWithoutDriver(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil, nil)
	assert.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}
