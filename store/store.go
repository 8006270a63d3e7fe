// Package store is a typed key/value facade over chain logs. Every mutation
// is appended to the key's chain as an encoded operation; reads resolve the
// chain, and compaction rewrites a chain to its single resolved record.
package store

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/nexuschain/cache"
	"github.com/INLOpen/nexuschain/chain"
	"github.com/INLOpen/nexuschain/codec"
	"github.com/INLOpen/nexuschain/operations"
	"github.com/INLOpen/nexuschain/resolve"
)

// Options configures a Store.
type Options[K, V any] struct {
	Log    chain.Log
	Keys   codec.Codec[K]
	Values codec.Codec[V]
	Equal  operations.Equivalence[K, V]
	// Timestamped stamps every issued operation with Clock in Unix nanoseconds.
	Timestamped bool
	Clock       func() time.Time
	// CacheCapacity is the number of resolved chains kept. Zero disables the cache.
	CacheCapacity int
	CacheHits     *expvar.Int
	CacheMisses   *expvar.Int
	// Concurrency bounds CompactAll and Snapshot. Zero means unbounded.
	Concurrency int
	Logger      *slog.Logger
	Tracer      trace.Tracer
}

// Store issues operations for typed keys and values.
type Store[K, V any] struct {
	// mu orders chain mutations against cache fills: writers hold it
	// exclusively, cache-filling readers share it.
	mu          sync.RWMutex
	log         chain.Log
	keys        codec.Codec[K]
	values      codec.Codec[V]
	engine      *resolve.Engine[K, V]
	cache       cache.Interface[[]byte]
	dirty       mapset.Set[string]
	timestamped bool
	clock       func() time.Time
	concurrency int
	logger      *slog.Logger
	tracer      trace.Tracer

	appended    atomic.Int64
	resolved    atomic.Int64
	compactions atomic.Int64
}

// New creates a Store over opts.Log.
func New[K, V any](opts Options[K, V]) (*Store[K, V], error) {
	if opts.Log == nil {
		return nil, errors.New("store: a chain log is required")
	}
	if opts.Keys == nil || opts.Values == nil {
		return nil, errors.New("store: key and value codecs are required")
	}
	if opts.Equal.Keys == nil || opts.Equal.Values == nil {
		return nil, errors.New("store: key and value equivalence is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "Store_default")
	} else {
		opts.Logger = opts.Logger.With("component", "Store")
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("store")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	lru := cache.NewLRUCache[[]byte](opts.CacheCapacity, nil)
	lru.SetMetrics(opts.CacheHits, opts.CacheMisses)

	return &Store[K, V]{
		log:    opts.Log,
		keys:   opts.Keys,
		values: opts.Values,
		engine: resolve.NewEngine(resolve.Options[K, V]{
			Keys:        opts.Keys,
			Values:      opts.Values,
			Equal:       opts.Equal,
			Concurrency: opts.Concurrency,
			Logger:      opts.Logger,
			Tracer:      opts.Tracer,
		}),
		cache:       lru,
		dirty:       mapset.NewSet[string](),
		timestamped: opts.Timestamped,
		clock:       opts.Clock,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
	}, nil
}

// Put sets key to value.
func (s *Store[K, V]) Put(ctx context.Context, key K, value V) error {
	return s.Apply(ctx, operations.NewPut(key, value))
}

// PutIfAbsent sets key to value when key has no entry at resolution time.
func (s *Store[K, V]) PutIfAbsent(ctx context.Context, key K, value V) error {
	return s.Apply(ctx, operations.NewPutIfAbsent(key, value))
}

// Remove deletes key.
func (s *Store[K, V]) Remove(ctx context.Context, key K) error {
	return s.Apply(ctx, operations.NewRemove[K, V](key))
}

// Replace sets key to value when key has an entry at resolution time.
func (s *Store[K, V]) Replace(ctx context.Context, key K, value V) error {
	return s.Apply(ctx, operations.NewReplace(key, value))
}

// ConditionalReplace sets key to value when its resolved value equals expected.
func (s *Store[K, V]) ConditionalReplace(ctx context.Context, key K, expected, value V) error {
	return s.Apply(ctx, operations.NewConditionalReplace(key, expected, value))
}

// ConditionalRemove deletes key when its resolved value equals expected.
func (s *Store[K, V]) ConditionalRemove(ctx context.Context, key K, expected V) error {
	return s.Apply(ctx, operations.NewConditionalRemove(key, expected))
}

// Apply appends op to its key's chain. Untimestamped operations are stamped
// when the store is timestamped. Whether op takes effect is only decided
// when the chain is resolved.
func (s *Store[K, V]) Apply(ctx context.Context, op *operations.Operation[K, V]) error {
	_, span := s.tracer.Start(ctx, "Store.Apply")
	defer span.End()

	if s.timestamped && !op.Code().Timestamped() {
		op = op.WithTimestamp(s.clock().UnixNano())
	}
	span.SetAttributes(attribute.String("operation", op.Code().String()))

	keyBytes, err := s.keys.Encode(op.Key())
	if err != nil {
		return s.fail(span, "encode_key_failed", err)
	}
	record, err := op.Encode(s.keys, s.values)
	if err != nil {
		return s.fail(span, "encode_failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.log.Append(keyBytes, record); err != nil {
		return s.fail(span, "append_failed", fmt.Errorf("append %s: %w", op.Code(), err))
	}
	s.cache.Remove(string(keyBytes))
	s.dirty.Add(string(keyBytes))
	s.appended.Add(1)
	return nil
}

func (s *Store[K, V]) fail(span trace.Span, status string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
	return err
}

// Get resolves key's chain. ok is false when key has no entry.
func (s *Store[K, V]) Get(ctx context.Context, key K) (entry resolve.Entry[K, V], ok bool, err error) {
	ctx, span := s.tracer.Start(ctx, "Store.Get")
	defer span.End()

	keyBytes, err := s.keys.Encode(key)
	if err != nil {
		return entry, false, s.fail(span, "encode_key_failed", err)
	}

	if compacted, hit := s.cache.Get(string(keyBytes)); hit {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		if len(compacted) == 0 {
			return entry, false, nil
		}
		return s.resolveRecords(ctx, [][]byte{compacted})
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	records, err := s.log.Records(keyBytes)
	if err != nil {
		return entry, false, s.fail(span, "read_failed", err)
	}
	entry, ok, err = s.resolveRecords(ctx, records)
	if err != nil {
		return entry, false, s.fail(span, "resolve_failed", err)
	}

	var compacted []byte
	if ok {
		if compacted, err = entry.Compacted().Encode(s.keys, s.values); err != nil {
			return entry, false, s.fail(span, "encode_failed", err)
		}
	}
	s.cache.Put(string(keyBytes), compacted)
	return entry, ok, nil
}

func (s *Store[K, V]) resolveRecords(ctx context.Context, records [][]byte) (resolve.Entry[K, V], bool, error) {
	s.resolved.Add(1)
	return s.engine.Resolve(ctx, records)
}

// Keys returns every key that has a chain, including keys whose chain
// resolves to no entry and has not been compacted yet.
func (s *Store[K, V]) Keys(ctx context.Context) ([]K, error) {
	raw, err := s.log.Keys()
	if err != nil {
		return nil, err
	}
	out := make([]K, 0, len(raw))
	for _, kb := range raw {
		k, err := s.keys.Decode(kb)
		if err != nil {
			return nil, fmt.Errorf("decode key %x: %w", kb, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// Snapshot resolves every chain concurrently and returns the present entries
// in key order.
func (s *Store[K, V]) Snapshot(ctx context.Context) ([]resolve.Entry[K, V], error) {
	ctx, span := s.tracer.Start(ctx, "Store.Snapshot")
	defer span.End()

	s.mu.RLock()
	raw, err := s.log.Keys()
	if err != nil {
		s.mu.RUnlock()
		return nil, s.fail(span, "keys_failed", err)
	}
	logs := make([][][]byte, 0, len(raw))
	for _, kb := range raw {
		records, err := s.log.Records(kb)
		if err != nil {
			s.mu.RUnlock()
			return nil, s.fail(span, "read_failed", err)
		}
		logs = append(logs, records)
	}
	s.mu.RUnlock()

	results, err := s.engine.ResolveAll(ctx, logs)
	if err != nil {
		return nil, s.fail(span, "resolve_failed", err)
	}
	s.resolved.Add(int64(len(logs)))
	entries := make([]resolve.Entry[K, V], 0, len(results))
	for _, r := range results {
		if r.Present {
			entries = append(entries, r.Entry)
		}
	}
	span.SetAttributes(attribute.Int("chain.count", len(logs)), attribute.Int("entry.count", len(entries)))
	return entries, nil
}

// Compact rewrites key's chain to its resolved record, dropping it when the
// key has no entry.
func (s *Store[K, V]) Compact(ctx context.Context, key K) error {
	keyBytes, err := s.keys.Encode(key)
	if err != nil {
		return err
	}
	return s.compactKey(ctx, keyBytes)
}

// compactKey resolves outside the write lock and commits only if the chain
// did not change meanwhile; a changed chain stays dirty for the next pass.
func (s *Store[K, V]) compactKey(ctx context.Context, keyBytes []byte) error {
	ctx, span := s.tracer.Start(ctx, "Store.Compact")
	defer span.End()

	records, err := s.log.Records(keyBytes)
	if err != nil {
		return s.fail(span, "read_failed", err)
	}
	span.SetAttributes(attribute.Int("chain.length", len(records)))
	if len(records) == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		// An Apply may have landed since the read; only a still empty chain
		// leaves the dirty set.
		current, err := s.log.Records(keyBytes)
		if err != nil {
			return s.fail(span, "read_failed", err)
		}
		if len(current) == 0 {
			s.dirty.Remove(string(keyBytes))
		}
		return nil
	}
	compacted, err := s.engine.Compact(ctx, records)
	if err != nil {
		return s.fail(span, "compact_failed", fmt.Errorf("compact key %x: %w", keyBytes, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.log.Records(keyBytes)
	if err != nil {
		return s.fail(span, "read_failed", err)
	}
	if !sameRecords(records, current) {
		s.logger.Debug("Chain changed during compaction, leaving it dirty", "key", fmt.Sprintf("%x", keyBytes))
		return nil
	}
	if err := s.log.Replace(keyBytes, compacted); err != nil {
		return s.fail(span, "replace_failed", fmt.Errorf("replace key %x: %w", keyBytes, err))
	}
	s.cache.Put(string(keyBytes), compacted)
	s.dirty.Remove(string(keyBytes))
	s.compactions.Add(1)
	return nil
}

func sameRecords(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// CompactAll compacts every chain appended to since its last compaction and
// returns how many chains were examined.
func (s *Store[K, V]) CompactAll(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "Store.CompactAll")
	defer span.End()

	pending := s.dirty.ToSlice()
	span.SetAttributes(attribute.Int("chain.dirty", len(pending)))

	g, gctx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for _, key := range pending {
		key := key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return s.compactKey(gctx, []byte(key))
		})
	}
	if err := g.Wait(); err != nil {
		return len(pending), s.fail(span, "compact_all_failed", err)
	}
	if len(pending) > 0 {
		s.logger.Info("Compacted chains", "count", len(pending))
	}
	return len(pending), nil
}

// DirtyCount returns the number of chains appended to since their last compaction.
func (s *Store[K, V]) DirtyCount() int {
	return s.dirty.Cardinality()
}
