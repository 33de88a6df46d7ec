// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package wal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
)

var (
	// ErrWALClosed is returned by every operation after Close.
	ErrWALClosed = errors.New("WAL is closed")

	// ErrNilEvent is returned by Write for a nil event.
	ErrNilEvent = errors.New("event is nil")

	// ErrEntryNotFound is returned when an entry id is not pending.
	ErrEntryNotFound = errors.New("WAL entry not found")
)

const prefixPending = "pending:"

// Entry is one event awaiting publication.
type Entry struct {
	ID            string          `json:"id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt time.Time       `json:"last_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// UnmarshalPayload decodes the event into v.
func (e *Entry) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// BadgerWAL persists events in BadgerDB until they are confirmed.
// Confirmed entries are deleted; there is no separate compaction step.
type BadgerWAL struct {
	db       *badger.DB
	ttl      time.Duration
	inMemory bool

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the WAL at cfg.Path.
func Open(cfg config.WALConfig) (*BadgerWAL, error) {
	if cfg.Path == "" {
		return nil, errors.New("WAL path is required")
	}
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(true).
		WithLogger(nil)
	return open(opts, cfg.EntryTTL, false)
}

// OpenInMemory opens a WAL without disk persistence, for tests.
func OpenInMemory(ttl time.Duration) (*BadgerWAL, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	return open(opts, ttl, true)
}

func open(opts badger.Options, ttl time.Duration, inMemory bool) (*BadgerWAL, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	w := &BadgerWAL{db: db, ttl: ttl, inMemory: inMemory}

	if n, err := w.countPending(); err == nil {
		metrics.WALPending.Set(float64(n))
		if n > 0 {
			logging.Info().Int("pending", n).Msg("WAL recovered pending entries")
		}
	}
	return w, nil
}

func (w *BadgerWAL) checkOpen() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWALClosed
	}
	return nil
}

// Write persists event and returns its entry id. The id is stable across
// retries and can be used for downstream deduplication.
func (w *BadgerWAL) Write(ctx context.Context, event interface{}) (string, error) {
	if err := w.checkOpen(); err != nil {
		return "", err
	}
	if event == nil {
		return "", ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	entry := &Entry{
		ID:        uuid.New().String(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.put(entry, true); err != nil {
		return "", err
	}

	metrics.WALEntries.WithLabelValues("written").Inc()
	metrics.WALPending.Inc()
	return entry.ID, nil
}

func (w *BadgerWAL) put(entry *Entry, withTTL bool) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return w.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(prefixPending+entry.ID), data)
		if withTTL && w.ttl > 0 {
			e = e.WithTTL(w.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Confirm removes a published entry.
func (w *BadgerWAL) Confirm(ctx context.Context, entryID string) error {
	if err := w.delete(entryID); err != nil {
		return err
	}
	metrics.WALEntries.WithLabelValues("confirmed").Inc()
	return nil
}

// DeleteEntry removes an entry that will never be published.
func (w *BadgerWAL) DeleteEntry(ctx context.Context, entryID string) error {
	return w.delete(entryID)
}

func (w *BadgerWAL) delete(entryID string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	key := []byte(prefixPending + entryID)
	err := w.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}
	metrics.WALPending.Dec()
	return nil
}

// GetPending returns every pending entry, oldest first.
func (w *BadgerWAL) GetPending(ctx context.Context) ([]*Entry, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("WAL: skipping unreadable entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read pending entries: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// UpdateAttempt records a failed publish. The entry keeps its original
// expiry.
func (w *BadgerWAL) UpdateAttempt(ctx context.Context, entryID, lastError string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	key := []byte(prefixPending + entryID)
	return w.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		var entry Entry
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &entry) }); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}
		entry.Attempts++
		entry.LastAttemptAt = time.Now().UTC()
		entry.LastError = lastError

		data, err := json.Marshal(&entry)
		if err != nil {
			return err
		}
		e := badger.NewEntry(key, data)
		if exp := item.ExpiresAt(); exp > 0 {
			if remaining := time.Until(time.Unix(int64(exp), 0)); remaining > 0 {
				e = e.WithTTL(remaining)
			}
		}
		return txn.SetEntry(e)
	})
}

// PendingCount returns the number of pending entries.
func (w *BadgerWAL) PendingCount() (int, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	return w.countPending()
}

func (w *BadgerWAL) countPending() (int, error) {
	n := 0
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// RunGC reclaims value log space.
func (w *BadgerWAL) RunGC() error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if w.inMemory {
		return nil
	}
	for {
		if err := w.db.RunValueLogGC(0.5); err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				return nil
			}
			return err
		}
	}
}

// Close flushes and closes the WAL. Safe to call more than once.
func (w *BadgerWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.db.Close()
}
