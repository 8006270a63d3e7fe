package resolve

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/nexuschain/codec"
	"github.com/INLOpen/nexuschain/operations"
)

// Options configures an Engine.
type Options[K, V any] struct {
	Keys   codec.Codec[K]
	Values codec.Codec[V]
	Equal  operations.Equivalence[K, V]
	// Concurrency bounds ResolveAll. Zero means unbounded.
	Concurrency int
	Logger      *slog.Logger
	Tracer      trace.Tracer
}

// Engine binds codecs to the package-level resolution functions and adds
// tracing and logging. It keeps no state between calls; concurrent calls are
// independent.
type Engine[K, V any] struct {
	keys        codec.Codec[K]
	values      codec.Codec[V]
	eq          operations.Equivalence[K, V]
	concurrency int
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewEngine creates an Engine.
func NewEngine[K, V any](opts Options[K, V]) *Engine[K, V] {
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "ResolveEngine_default")
	} else {
		opts.Logger = opts.Logger.With("component", "ResolveEngine")
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("resolve")
	}
	return &Engine[K, V]{
		keys:        opts.Keys,
		values:      opts.Values,
		eq:          opts.Equal,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
	}
}

// Resolve folds one key's records into its effective entry.
func (e *Engine[K, V]) Resolve(ctx context.Context, records [][]byte) (Entry[K, V], bool, error) {
	_, span := e.tracer.Start(ctx, "ResolveEngine.Resolve")
	defer span.End()
	span.SetAttributes(attribute.Int("chain.length", len(records)))

	entry, ok, err := Resolve(records, e.keys, e.values, e.eq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve_failed")
		e.logger.Warn("Failed to resolve chain", "records", len(records), "error", err)
		return entry, false, err
	}
	span.SetAttributes(attribute.Bool("chain.present", ok))
	return entry, ok, nil
}

// Step folds a single record onto acc.
func (e *Engine[K, V]) Step(acc *operations.Operation[K, V], record []byte) (*operations.Operation[K, V], error) {
	return Step(acc, record, e.keys, e.values, e.eq)
}

// Compact returns the record a key's log should be rewritten to, nil if the
// log can be dropped.
func (e *Engine[K, V]) Compact(ctx context.Context, records [][]byte) ([]byte, error) {
	_, span := e.tracer.Start(ctx, "ResolveEngine.Compact")
	defer span.End()
	span.SetAttributes(attribute.Int("chain.length", len(records)))

	compacted, err := Compact(records, e.keys, e.values, e.eq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compact_failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("chain.compacted_bytes", len(compacted)))
	return compacted, nil
}

// Result is the outcome of resolving one log in ResolveAll.
type Result[K, V any] struct {
	Entry   Entry[K, V]
	Present bool
}

// ResolveAll resolves independent logs concurrently. logs[i] is one key's
// ordered records and results[i] its outcome. The first error cancels the
// remaining work and is returned.
func (e *Engine[K, V]) ResolveAll(ctx context.Context, logs [][][]byte) ([]Result[K, V], error) {
	ctx, span := e.tracer.Start(ctx, "ResolveEngine.ResolveAll")
	defer span.End()
	span.SetAttributes(attribute.Int("chain.count", len(logs)))

	results := make([]Result[K, V], len(logs))
	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i := range logs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry, ok, err := e.Resolve(gctx, logs[i])
			if err != nil {
				return err
			}
			results[i] = Result[K, V]{Entry: entry, Present: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve_all_failed")
		return nil, err
	}
	return results, nil
}
