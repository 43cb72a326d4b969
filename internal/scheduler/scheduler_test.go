package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	ttl   time.Duration
	calls int
	err   error
}

func (f *fakePruner) PruneIdle(_ context.Context, ttl time.Duration) (int, error) {
	f.calls++
	f.ttl = ttl
	return 1, f.err
}

func TestSweepTaskPassesTTL(t *testing.T) {
	p := &fakePruner{}
	SweepTask(p, 2*time.Hour)()
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 2*time.Hour, p.ttl)

	p.err = errors.New("store down")
	SweepTask(p, time.Hour)()
	assert.Equal(t, 2, p.calls)
}

func TestScheduleSweep(t *testing.T) {
	e := NewCronEngine()
	require.NoError(t, e.ScheduleSweep("@hourly", &fakePruner{}, time.Hour))
	assert.Equal(t, 1, e.Entries())

	require.NoError(t, e.ScheduleSweep("@hourly", &fakePruner{}, 0))
	assert.Equal(t, 1, e.Entries())

	assert.Error(t, e.ScheduleSweep("not a spec", &fakePruner{}, time.Hour))
}

func TestStartStop(t *testing.T) {
	e := NewCronEngine()
	e.Start()
	e.Stop()
}
