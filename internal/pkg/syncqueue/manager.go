package syncqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/veloscope/VeloScope/internal/pkg/metrics/counter"
)

// Manager defaults
const (
	DefaultPollInterval  = 5 * time.Second
	DefaultSweepInterval = time.Minute
	DefaultStuckMaxAge   = 10 * time.Minute
	DefaultFlushInterval = 5 * time.Second
)

// ManagerOptions tunes the background tickers. Zero values take defaults.
type ManagerOptions struct {
	PollInterval  time.Duration
	SweepInterval time.Duration
	StuckMaxAge   time.Duration
	FlushInterval time.Duration
}

func (o *ManagerOptions) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.StuckMaxAge <= 0 {
		o.StuckMaxAge = DefaultStuckMaxAge
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
}

// Manager runs the queue and its background tasks: the due-job poller (which
// materializes retry backoff), the stuck-processing sweeper and the counter
// flusher. Constructed in main with injected dependencies; there is no
// global manager.
type Manager struct {
	queue    *Queue
	repo     Repository
	counters *counter.Counters
	opts     ManagerOptions

	pollTicker  *time.Ticker
	sweepTicker *time.Ticker
	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

func NewManager(queue *Queue, repo Repository, counters *counter.Counters, opts ManagerOptions) *Manager {
	opts.applyDefaults()
	return &Manager{
		queue:    queue,
		repo:     repo,
		counters: counters,
		opts:     opts,
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the queue workers and background tickers
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[SyncQueue Manager] Starting queue and background tasks")

	m.queue.Start()

	m.pollTicker = time.NewTicker(m.opts.PollInterval)
	m.wg.Add(1)
	go m.pollWorker()

	m.sweepTicker = time.NewTicker(m.opts.SweepInterval)
	m.wg.Add(1)
	go m.sweepWorker()

	m.flushTicker = time.NewTicker(m.opts.FlushInterval)
	m.wg.Add(1)
	go m.counterFlushWorker()

	log.Info("[SyncQueue Manager] Started successfully")
}

// Stop stops the tickers and the queue, waiting for in-flight work
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[SyncQueue Manager] Stopping queue and background tasks...")

	if m.pollTicker != nil {
		m.pollTicker.Stop()
	}
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.flushTicker != nil {
		m.flushTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[SyncQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// pollWorker periodically claims due jobs. This is the retry materializer:
// a job rescheduled into the future is picked up here once scheduled_at
// elapses, independent of the request that scheduled it.
func (m *Manager) pollWorker() {
	defer m.wg.Done()
	log.Infof("[SyncQueue Manager] Poll worker running (interval=%s)", m.opts.PollInterval)
	ctx := context.Background()
	for {
		select {
		case <-m.stopCh:
			log.Info("[SyncQueue Manager] Poll worker stopping")
			return
		case <-m.pollTicker.C:
			if err := m.queue.PollOnce(ctx); err != nil {
				log.Errorf("[SyncQueue Manager] Poll error: %v", err)
			}
		}
	}
}

// sweepWorker returns jobs orphaned in processing to pending
func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	log.Infof("[SyncQueue Manager] Stuck sweeper running (maxAge=%s, interval=%s)", m.opts.StuckMaxAge, m.opts.SweepInterval)
	for {
		select {
		case <-m.stopCh:
			log.Info("[SyncQueue Manager] Stuck sweeper stopping")
			return
		case <-m.sweepTicker.C:
			n, err := m.repo.RequeueStuck(time.Now().Add(-m.opts.StuckMaxAge))
			if err != nil {
				log.Errorf("[SyncQueue Manager] Sweep error: %v", err)
				continue
			}
			if n > 0 {
				log.Warnf("[SyncQueue Manager] Recovered %d stuck jobs", n)
			}
		}
	}
}

// counterFlushWorker periodically flushes counter deltas from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-m.stopCh:
			log.Info("[SyncQueue Manager] Counter flush worker stopping")
			return
		case <-m.flushTicker.C:
			if err := m.flushCountersOnce(ctx); err != nil {
				log.Errorf("[SyncQueue Manager] Counter flush error: %v", err)
			}
		}
	}
}

func (m *Manager) flushCountersOnce(ctx context.Context) error {
	deltas, err := m.counters.Drain(ctx)
	if err != nil {
		return err
	}
	for metric, delta := range deltas {
		if err := m.repo.IncrementStat(metric, delta); err != nil {
			return err
		}
	}
	return nil
}
