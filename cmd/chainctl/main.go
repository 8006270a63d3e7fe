// Command chainctl issues operations against a durable chain directory and
// inspects the resolved state.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/INLOpen/nexuschain/chain"
	"github.com/INLOpen/nexuschain/codec"
	"github.com/INLOpen/nexuschain/compressors"
	"github.com/INLOpen/nexuschain/config"
	"github.com/INLOpen/nexuschain/core"
	"github.com/INLOpen/nexuschain/operations"
	"github.com/INLOpen/nexuschain/store"
)

const usage = `usage: chainctl [flags] <command> [args]

commands:
  put <key> <value>                 set key
  putifabsent <key> <value>         set key when it has no entry
  replace <key> <value>             set key when it has an entry
  cas <key> <expected> <value>      set key when its value equals expected
  remove <key>                      delete key
  cremove <key> <expected>          delete key when its value equals expected
  get <key>                         print the resolved value
  compact [key]                     rewrite one chain, or every chain, to its resolved record
  keys                              list keys with a chain
  dump                              print every resolved entry
  stats                             print chain statistics

flags:
`

// errUsage marks argument errors that should print the usage text.
var errUsage = errors.New("invalid arguments")

// createLogger creates a slog.Logger based on the provided configuration.
func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// initTracerProvider creates and configures an OpenTelemetry TracerProvider.
// It sets up an exporter based on the configuration to send traces to a collector.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		logger.Debug("Distributed tracing is disabled.")
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	logger.Info("Initializing distributed tracing...", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error

	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exporter, err = otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	case "grpc":
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	default:
		return nil, nil, fmt.Errorf("unsupported tracing protocol: %q", cfg.Protocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("nexuschain")))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	cleanup := func() {
		logger.Debug("Shutting down tracer provider...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}
	return tp, cleanup, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chainctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	configPath := fs.String("config", "", "Path to a YAML config file")
	dataDir := fs.String("data-dir", "", "Chain data directory (overrides config)")
	compression := fs.String("compression", "", "WAL compression: none, snappy, lz4, zstd (overrides config)")
	timestamped := fs.Bool("timestamped", false, "Stamp issued operations with the current time")
	checkpoint := fs.Bool("checkpoint", false, "With compact: also rewrite the WAL and purge old segments")
	logLevel := fs.String("log-level", "", "Log level (overrides config)")

	printUsage := func() {
		fmt.Fprint(stderr, usage)
		fmt.Fprint(stderr, fs.FlagUsages())
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage()
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		printUsage()
		return 2
	}
	if fs.NArg() == 0 {
		printUsage()
		return 2
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
	} else {
		cfg, err = config.Load(nil)
		if err == nil {
			// Keep stdout for command output.
			cfg.Logging.Output = "stderr"
			cfg.Logging.Level = "warn"
		}
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if *dataDir != "" {
		cfg.Chain.DataDir = *dataDir
	}
	if *compression != "" {
		cfg.WAL.Compression = *compression
	}
	if fs.Changed("timestamped") {
		cfg.Chain.Timestamped = *timestamped
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	logger, closer, err := createLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if closer != nil {
		defer closer.Close()
	}

	_, cleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer cleanup()

	err = execute(context.Background(), cfg, logger, *checkpoint, fs.Args(), stdout)
	if errors.Is(err, errUsage) {
		fmt.Fprintln(stderr, "error:", err)
		printUsage()
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store[string, string], *chain.DurableLog, error) {
	compressor, err := compressors.ByName(cfg.WAL.Compression)
	if err != nil {
		return nil, nil, err
	}
	log, err := chain.OpenDurable(chain.DurableOptions{
		Dir:            cfg.Chain.DataDir,
		SyncMode:       core.WALSyncMode(cfg.WAL.SyncMode),
		MaxSegmentSize: cfg.WAL.MaxSegmentSizeBytes,
		Compressor:     compressor,
		LockTimeout:    config.ParseDuration(cfg.Chain.LockTimeout, time.Second, logger),
		Logger:         logger,
	})
	if err != nil {
		return nil, nil, err
	}
	s, err := store.New(store.Options[string, string]{
		Log:           log,
		Keys:          codec.String{},
		Values:        codec.String{},
		Equal:         operations.Comparable[string, string](),
		Timestamped:   cfg.Chain.Timestamped,
		CacheCapacity: cfg.Chain.ResolvedCacheCapacity,
		Concurrency:   cfg.Chain.ResolveConcurrency,
		Logger:        logger,
		Tracer:        otel.Tracer("chainctl"),
	})
	if err != nil {
		log.Close()
		return nil, nil, err
	}
	return s, log, nil
}

func execute(ctx context.Context, cfg *config.Config, logger *slog.Logger, checkpoint bool, args []string, out io.Writer) (err error) {
	cmd, rest := args[0], args[1:]
	want := map[string]int{
		"put": 2, "putifabsent": 2, "replace": 2, "cas": 3, "remove": 1, "cremove": 2,
		"get": 1, "keys": 0, "dump": 0, "stats": 0,
	}
	if n, ok := want[cmd]; ok && len(rest) != n {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", errUsage, cmd, n, len(rest))
	}
	if _, ok := want[cmd]; !ok && cmd != "compact" {
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	if cmd == "compact" && len(rest) > 1 {
		return fmt.Errorf("%w: compact takes at most one key", errUsage)
	}

	s, log, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := log.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch cmd {
	case "put":
		return s.Put(ctx, rest[0], rest[1])
	case "putifabsent":
		return s.PutIfAbsent(ctx, rest[0], rest[1])
	case "replace":
		return s.Replace(ctx, rest[0], rest[1])
	case "cas":
		return s.ConditionalReplace(ctx, rest[0], rest[1], rest[2])
	case "remove":
		return s.Remove(ctx, rest[0])
	case "cremove":
		return s.ConditionalRemove(ctx, rest[0], rest[1])
	case "get":
		entry, ok, err := s.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("key %q has no entry", rest[0])
		}
		fmt.Fprintln(out, entry.Value)
	case "keys":
		keys, err := s.Keys(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
	case "dump":
		entries, err := s.Snapshot(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Timestamped {
				fmt.Fprintf(out, "%s\t%s\t%s\n", e.Key, e.Value, time.Unix(0, e.Timestamp).UTC().Format(time.RFC3339Nano))
			} else {
				fmt.Fprintf(out, "%s\t%s\n", e.Key, e.Value)
			}
		}
	case "compact":
		return compact(ctx, s, log, rest, checkpoint, out)
	case "stats":
		st, err := s.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "chains\t%d\n", st.Chains)
		fmt.Fprintf(out, "chain_length_p50\t%.1f\n", st.ChainLengthP50)
		fmt.Fprintf(out, "chain_length_p90\t%.1f\n", st.ChainLengthP90)
		fmt.Fprintf(out, "chain_length_p99\t%.1f\n", st.ChainLengthP99)
		fmt.Fprintf(out, "chain_length_max\t%d\n", st.ChainLengthMax)
	}
	return nil
}

func compact(ctx context.Context, s *store.Store[string, string], log *chain.DurableLog, keys []string, checkpoint bool, out io.Writer) error {
	if len(keys) == 0 {
		// The dirty set does not survive a restart, so every chain is a candidate.
		var err error
		if keys, err = s.Keys(ctx); err != nil {
			return err
		}
	}
	for _, k := range keys {
		if err := s.Compact(ctx, k); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "compacted %d chain(s)\n", len(keys))
	if checkpoint {
		return log.Checkpoint()
	}
	return nil
}
