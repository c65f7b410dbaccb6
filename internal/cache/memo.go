// Package cache memoizes read-only projections until the data they derive
// from changes.
//
// Entries never expire by time. Invalidate drops everything and advances a
// generation counter; a computation that started under an older generation
// returns its result to its callers but never stores it. With a
// VersionSource, writes made by other processes sharing the database
// invalidate the cache as well.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"

	"github.com/mmynk/cyclear/pkg/metrics"
)

// Key identifies one projection call. Zero fields mean "not narrowed".
type Key struct {
	Method   string
	SeasonID int64
	TeamID   int64
	Start    int64
	End      int64
	Extra    int64
}

// NewKey builds a key from a method, season, optional team and day range.
func NewKey(method string, seasonID int64, teamID *int64, start, end time.Time) Key {
	k := Key{Method: method, SeasonID: seasonID}
	if teamID != nil {
		k.TeamID = *teamID
	}
	if !start.IsZero() {
		k.Start = start.Unix()
	}
	if !end.IsZero() {
		k.End = end.Unix()
	}
	return k
}

// VersionSource reports a counter that changes whenever the underlying data
// does, whoever wrote it.
type VersionSource interface {
	DataVersion(ctx context.Context) (int64, error)
}

// Memo is a bounded, generation-tagged projection cache.
type Memo struct {
	mu      sync.Mutex
	entries *lru.Cache
	gen     uint64

	source  VersionSource
	version int64
	synced  bool

	flight  singleflight.Group
	metrics *metrics.Manager
}

// Option configures a Memo.
type Option func(*Memo)

// WithVersionSource makes every lookup compare src's version with the last one
// seen and drop all entries when it moved.
func WithVersionSource(src VersionSource) Option {
	return func(m *Memo) {
		m.source = src
	}
}

// New creates a Memo holding at most size entries. size <= 0 means unbounded.
func New(size int, m *metrics.Manager, opts ...Option) *Memo {
	memo := &Memo{
		entries: lru.New(size),
		metrics: m,
	}
	for _, opt := range opts {
		opt(memo)
	}
	return memo
}

// Do returns the cached value for key, or computes it with fn. Concurrent
// callers for the same key share one computation. The shared computation runs
// detached from any single caller's cancellation; a caller whose ctx ends
// stops waiting and gets ctx.Err().
func Do[T any](ctx context.Context, m *Memo, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := m.sync(ctx); err != nil {
		return zero, err
	}
	if v, ok := m.get(key); ok {
		m.metrics.RecordCacheHit(key.Method)
		return v.(T), nil
	}
	m.metrics.RecordCacheMiss(key.Method)

	gen := m.generation()
	detached := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(flightKey(gen, key), func() (any, error) {
		started := time.Now()
		val, err := fn(detached)
		if err != nil {
			return nil, err
		}
		m.metrics.ObserveProjection(key.Method, time.Since(started))
		m.put(gen, key, val)
		return val, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Invalidate drops every entry. Call it after any write to results or the
// transfer timeline.
func (m *Memo) Invalidate() {
	m.mu.Lock()
	m.clearLocked()
	m.mu.Unlock()

	m.metrics.RecordCacheInvalidation()
}

// sync drops every entry if the version source moved since the last lookup.
func (m *Memo) sync(ctx context.Context) error {
	if m.source == nil {
		return nil
	}
	v, err := m.source.DataVersion(ctx)
	if err != nil {
		return fmt.Errorf("read data version: %w", err)
	}

	m.mu.Lock()
	moved := m.synced && v != m.version
	if moved {
		m.clearLocked()
	}
	m.version = v
	m.synced = true
	m.mu.Unlock()

	if moved {
		m.metrics.RecordCacheInvalidation()
	}
	return nil
}

func (m *Memo) clearLocked() {
	m.entries.Clear()
	m.gen++
}

// Len reports the number of cached entries.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

func (m *Memo) get(key Key) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Get(key)
}

func (m *Memo) put(gen uint64, key Key, val any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.entries.Add(key, val)
}

func (m *Memo) generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func flightKey(gen uint64, k Key) string {
	return fmt.Sprintf("%d|%s|%d|%d|%d|%d|%d", gen, k.Method, k.SeasonID, k.TeamID, k.Start, k.End, k.Extra)
}
