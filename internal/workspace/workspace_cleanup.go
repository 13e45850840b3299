package workspace

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultRetention     = time.Hour
	defaultSweepInterval = 5 * time.Minute
)

// CleanupScheduler manages periodic removal of expired staging files
type CleanupScheduler struct {
	manager   *Manager
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
	stopOnce  sync.Once
	running   sync.WaitGroup
}

// NewCleanupScheduler creates a new cleanup scheduler
func NewCleanupScheduler(manager *Manager, retention, interval time.Duration) *CleanupScheduler {
	if retention <= 0 {
		retention = defaultRetention
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &CleanupScheduler{
		manager:   manager,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Start sweeps once immediately and then on every tick until Stop.
func (cs *CleanupScheduler) Start() {
	log.Info().
		Dur("retention", cs.retention).
		Dur("interval", cs.interval).
		Msg("Staging cleanup scheduler started")

	cs.running.Add(1)
	go cs.loop()
}

func (cs *CleanupScheduler) loop() {
	defer cs.running.Done()

	cs.runCleanup()

	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cs.runCleanup()
		case <-cs.done:
			return
		}
	}
}

func (cs *CleanupScheduler) runCleanup() SweepResult {
	result, err := cs.manager.SweepExpired(cs.retention)
	if err != nil {
		log.Error().
			Err(err).
			Msg("Failed to sweep some expired staging files")
	}

	if result.Deleted > 0 {
		log.Info().
			Int("deletedCount", result.Deleted).
			Int64("freedBytes", result.FreedBytes).
			Msg("Staging cleanup completed")
	}
	return result
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (cs *CleanupScheduler) Stop() {
	cs.stopOnce.Do(func() {
		log.Info().Msg("Stopping staging cleanup scheduler")
		close(cs.done)
	})
	cs.running.Wait()
}

// RunNow executes a sweep immediately
func (cs *CleanupScheduler) RunNow() SweepResult {
	return cs.runCleanup()
}

// Retention is the age after which staged files are removed.
func (cs *CleanupScheduler) Retention() time.Duration {
	return cs.retention
}
