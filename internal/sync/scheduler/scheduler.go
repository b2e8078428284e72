// Package scheduler provides background scheduling for the sync
// engine: periodic reconciliation while connected and periodic offline
// queue flush attempts.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/brewkit/brewsync/internal/logging"
	syncpkg "github.com/brewkit/brewsync/internal/sync"
)

// Scheduler drives periodic background sync work.
type Scheduler struct {
	coord         *syncpkg.Coordinator
	syncInterval  time.Duration
	queueInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	isRunning     bool
}

// Config holds scheduler configuration.
type Config struct {
	SyncInterval  time.Duration // full reconcile cadence while connected
	QueueInterval time.Duration // queue flush attempt cadence
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:  15 * time.Minute,
		QueueInterval: 1 * time.Minute,
	}
}

// New creates a Scheduler over a coordinator.
func New(coord *syncpkg.Coordinator, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		coord:         coord,
		syncInterval:  config.SyncInterval,
		queueInterval: config.QueueInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start starts the background loops. A second Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.reconcileLoop(ctx)
	go s.queueLoop(ctx)

	logging.Info("Background sync scheduler started", nil)
}

// Stop stops the background loops and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

// reconcileLoop runs a full pass on the sync cadence while connected.
func (s *Scheduler) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.coord.State() != syncpkg.StateConnected {
				continue
			}
			s.coord.Reconcile(ctx)
		}
	}
}

// queueLoop retries pending offline mutations on a shorter cadence.
func (s *Scheduler) queueLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.queueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.coord.State() != syncpkg.StateConnected {
				continue
			}
			if _, err := s.coord.FlushQueue(ctx); err != nil {
				logging.Debug("Scheduled queue flush skipped", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}
