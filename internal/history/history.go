// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package history keeps recent sync outcomes in BadgerDB so they survive
// restarts and can be listed by the API and CLI.
//
// Keys are "outcome:<collection>:<unix nanos, zero padded>:<run id>",
// which makes a prefix scan over one collection chronological. After every
// Append the collection is trimmed to the newest Retention outcomes.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	recsync "github.com/tomtom215/recordsync/internal/sync"
)

const (
	keyPrefix = "outcome:"

	// DefaultRetention is used when the configured retention is not positive.
	DefaultRetention = 100

	gcRatio = 0.5
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("history store is closed")

	// ErrReadOnly is returned by Append on a store opened with OpenReadOnly.
	ErrReadOnly = errors.New("history store is read-only")

	// ErrLocked is returned when another process holds the directory. Badger
	// allows one writer, or any number of readers with no writer.
	ErrLocked = errors.New("history store is locked by another process")
)

// Store persists sync outcomes.
type Store struct {
	db        *badger.DB
	retention int
	inMemory  bool
	readOnly  bool

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store at cfg.Path for writing.
func Open(cfg config.HistoryConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil
	return open(opts, cfg.Retention)
}

// OpenReadOnly opens an existing store for listing only. It fails with
// ErrLocked while a writer has the directory open.
func OpenReadOnly(cfg config.HistoryConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).WithReadOnly(true)
	opts.Logger = nil
	return open(opts, cfg.Retention)
}

// OpenInMemory opens a store without disk persistence.
func OpenInMemory(retention int) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, retention)
}

func open(opts badger.Options, retention int) (*Store, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	db, err := badger.Open(opts)
	if err != nil {
		// badger exports no sentinel for a held directory lock.
		if strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, fmt.Errorf("%w: %s", ErrLocked, opts.Dir)
		}
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	logging.Info().
		Str("path", opts.Dir).
		Bool("in_memory", opts.InMemory).
		Bool("read_only", opts.ReadOnly).
		Int("retention", retention).
		Msg("Outcome history opened")
	return &Store{db: db, retention: retention, inMemory: opts.InMemory, readOnly: opts.ReadOnly}, nil
}

func outcomeKey(out recsync.Outcome) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", keyPrefix, out.Collection, out.Timestamp.UnixNano(), out.RunID))
}

func collectionPrefix(collection string) []byte {
	return []byte(keyPrefix + collection + ":")
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Append stores out and trims its collection to the retention limit.
func (s *Store) Append(ctx context.Context, out recsync.Outcome) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.readOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if out.Collection == "" {
		return errors.New("outcome has no collection")
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(outcomeKey(out), data); err != nil {
			return fmt.Errorf("write outcome: %w", err)
		}
		return s.trim(txn, out.Collection)
	})
}

// trim deletes the oldest outcomes of collection beyond retention.
func (s *Store) trim(txn *badger.Txn, collection string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	it := txn.NewIterator(opts)

	prefix := collectionPrefix(collection)
	seek := append(append([]byte{}, prefix...), 0xff)

	var keysToDelete [][]byte
	seen := 0
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		seen++
		if seen > s.retention {
			keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
		}
	}
	it.Close()

	for _, key := range keysToDelete {
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("trim outcome history: %w", err)
		}
	}
	return nil
}

// List returns up to limit outcomes, newest first. An empty collection
// lists every collection. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, collection string, limit int) ([]recsync.Outcome, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	prefix := []byte(keyPrefix)
	if collection != "" {
		prefix = collectionPrefix(collection)
	}

	outcomes := make([]recsync.Outcome, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var out recsync.Outcome
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &out)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable outcome")
				continue
			}
			outcomes = append(outcomes, out)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate outcome history: %w", err)
	}

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Timestamp.After(outcomes[j].Timestamp)
	})
	if limit > 0 && len(outcomes) > limit {
		outcomes = outcomes[:limit]
	}
	return outcomes, nil
}

// Latest returns the newest outcome of every collection, by collection name.
func (s *Store) Latest(ctx context.Context) (map[string]recsync.Outcome, error) {
	all, err := s.List(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]recsync.Outcome)
	for _, out := range all {
		if _, ok := latest[out.Collection]; !ok {
			latest[out.Collection] = out
		}
	}
	return latest, nil
}

// Collections returns the names of collections with recorded outcomes.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	latest, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// RunGC reclaims value log space until nothing is left to rewrite.
func (s *Store) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.inMemory || s.readOnly {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(gcRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// GCService runs RunGC on an interval. It implements suture.Service.
type GCService struct {
	store    *Store
	interval time.Duration
}

// NewGCService creates a GC service for store.
func NewGCService(store *Store, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{store: store, interval: interval}
}

// Serve runs until ctx is cancelled.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.store.RunGC(); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				logging.Warn().Err(err).Msg("Outcome history GC failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (g *GCService) String() string {
	return "history-gc"
}
