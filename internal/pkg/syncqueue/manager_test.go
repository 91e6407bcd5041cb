package syncqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloscope/VeloScope/internal/pkg/metrics/counter"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	db := newTestDB(t)
	repo := NewRepository(db)
	queue := NewQueue(repo, &staticTokens{token: "token"}, &fakeFetcher{}, nil, nil, 1)
	return NewManager(queue, repo, counter.New(nil), ManagerOptions{
		PollInterval:  10 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
		FlushInterval: 10 * time.Millisecond,
	})
}

func TestManagerLifecycle(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.IsRunning())

	m.Start()
	assert.True(t, m.IsRunning())

	// Idempotent start
	m.Start()
	assert.True(t, m.IsRunning())

	// Let every ticker fire at least once against an empty queue.
	time.Sleep(50 * time.Millisecond)

	m.Stop()
	assert.False(t, m.IsRunning())

	// Idempotent stop
	m.Stop()
	assert.False(t, m.IsRunning())
}

func TestManagerOptionsDefaults(t *testing.T) {
	var opts ManagerOptions
	opts.applyDefaults()
	assert.Equal(t, DefaultPollInterval, opts.PollInterval)
	assert.Equal(t, DefaultSweepInterval, opts.SweepInterval)
	assert.Equal(t, DefaultStuckMaxAge, opts.StuckMaxAge)
	assert.Equal(t, DefaultFlushInterval, opts.FlushInterval)
}

// Without Redis there is nothing pending in the counter hash; a flush is a
// clean no-op rather than an error.
func TestFlushCountersOnce_NoRedis(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.flushCountersOnce(context.Background()))
}
