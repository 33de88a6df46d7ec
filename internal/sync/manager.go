// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
)

var (
	// ErrSyncInProgress is returned when a run is requested while another
	// is still executing.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrManagerRunning is returned by Start on a running manager.
	ErrManagerRunning = errors.New("sync manager is already running")

	// ErrManagerStopped is returned by Stop on a manager that is not running.
	ErrManagerStopped = errors.New("sync manager is not running")
)

// Syncer runs a set of collections. Implemented by *Orchestrator.
type Syncer interface {
	SyncAll(ctx context.Context, cols []config.CollectionConfig) []Outcome
}

// Manager schedules sync runs and serializes operator-triggered runs
// against scheduled ones.
type Manager struct {
	syncer Syncer
	cfg    *config.Config

	mu        sync.RWMutex
	running   bool
	lastRun   []Outcome
	lastRunAt time.Time
	onRun     func([]Outcome)

	syncMu   sync.Mutex // held for the duration of a run
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a manager for the collections in cfg.
func NewManager(syncer Syncer, cfg *config.Config) *Manager {
	logging.Info().
		Dur("interval", cfg.Sync.Interval).
		Bool("on_startup", cfg.Sync.OnStartup).
		Int("collections", len(cfg.ScheduledCollections())).
		Int("max_concurrent", cfg.Sync.MaxConcurrentCollections).
		Msg("Sync manager config loaded")

	return &Manager{
		syncer: syncer,
		cfg:    cfg,
	}
}

// SetOnRunCompleted registers a callback invoked after every run.
func (m *Manager) SetOnRunCompleted(callback func([]Outcome)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRun = callback
}

// Start begins scheduled synchronization. It returns immediately; runs
// happen in background goroutines until Stop or ctx cancellation.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrManagerRunning
	}
	m.running = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	logging.Info().Msg("Starting sync manager...")

	if m.cfg.Sync.OnStartup {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.scheduledRun(ctx, stop)
		}()
	}
	if m.cfg.Sync.Interval > 0 {
		m.wg.Add(1)
		go m.syncLoop(ctx, stop)
	} else {
		logging.Info().Msg("Scheduled sync disabled (SYNC_INTERVAL=0); runs only on trigger")
	}
	return nil
}

// Stop ends scheduling and waits for an in-flight scheduled run.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
	return nil
}

// Running reports whether the scheduler is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) syncLoop(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Sync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.scheduledRun(ctx, stop)
		}
	}
}

// scheduledRun syncs the scheduled collections, skipping the tick when an
// operator-triggered run holds the lock.
func (m *Manager) scheduledRun(ctx context.Context, stop <-chan struct{}) {
	if !m.syncMu.TryLock() {
		logging.Warn().Msg("Skipping scheduled sync: previous run still in progress")
		return
	}
	defer m.syncMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	m.execute(runCtx, m.cfg.ScheduledCollections())
}

// TriggerSync runs the named collections now and returns their outcomes.
// No names selects every scheduled collection. Unknown names fail before
// any upstream call; an overlapping run fails with ErrSyncInProgress.
func (m *Manager) TriggerSync(ctx context.Context, names ...string) ([]Outcome, error) {
	cols, err := m.cfg.CollectionsByName(names)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no collections enabled", config.ErrUnknownCollection)
	}
	if !m.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer m.syncMu.Unlock()

	return m.execute(ctx, cols), nil
}

func (m *Manager) execute(ctx context.Context, cols []config.CollectionConfig) []Outcome {
	if len(cols) == 0 {
		return nil
	}
	outcomes := m.syncer.SyncAll(ctx, cols)

	m.mu.Lock()
	m.lastRun = outcomes
	m.lastRunAt = time.Now()
	callback := m.onRun
	m.mu.Unlock()

	if callback != nil {
		callback(outcomes)
	}
	return outcomes
}

// LastRun returns the outcomes and completion time of the most recent run.
func (m *Manager) LastRun() ([]Outcome, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Outcome, len(m.lastRun))
	copy(out, m.lastRun)
	return out, m.lastRunAt
}

// Collections returns every configured collection, including disabled ones.
func (m *Manager) Collections() []config.CollectionConfig {
	out := make([]config.CollectionConfig, len(m.cfg.Collections))
	copy(out, m.cfg.Collections)
	return out
}

// InProgress reports whether a run is executing.
func (m *Manager) InProgress() bool {
	if m.syncMu.TryLock() {
		m.syncMu.Unlock()
		return false
	}
	return true
}
