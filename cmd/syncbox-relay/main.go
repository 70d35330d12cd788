// Command syncbox-relay drains a local SQLite outbox against a remote sync
// service. It runs the processor loop until SIGINT/SIGTERM and optionally
// removes settled rows past a retention period.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/velmie/syncbox"
	"github.com/velmie/syncbox/remote"
	sqlitestore "github.com/velmie/syncbox/sqlite"
)

const exitUsage = 2

type stdLogger struct {
	logger  *log.Logger
	verbose bool
}

func (l stdLogger) Debug(msg string, args ...any) {
	if !l.verbose {
		return
	}
	l.logger.Printf("DEBUG %s %s", msg, formatArgs(args))
}

func (l stdLogger) Info(msg string, args ...any) {
	l.logger.Printf("INFO %s %s", msg, formatArgs(args))
}

func (l stdLogger) Warn(msg string, args ...any) {
	l.logger.Printf("WARN %s %s", msg, formatArgs(args))
}

func (l stdLogger) Error(msg string, args ...any) {
	l.logger.Printf("ERROR %s %s", msg, formatArgs(args))
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		key := args[i]
		val := any("<missing>")
		if i+1 < len(args) {
			val = args[i+1]
		}
		pairs = append(pairs, fmt.Sprintf("%v=%v", key, val))
	}

	return strings.Join(pairs, " ")
}

func main() {
	var (
		dbPath           string
		table            string
		remoteURL        string
		token            string
		mutatePath       string
		comparePath      string
		tick             time.Duration
		staleLease       time.Duration
		sendTimeout      time.Duration
		maxAttempts      int
		breakerThreshold int
		breakerCooldown  time.Duration
		backoffBase      time.Duration
		backoffMax       time.Duration
		retention        time.Duration
		verbose          bool
	)

	flag.StringVar(&dbPath, "db", "", "Path to the SQLite outbox database file")
	flag.StringVar(&table, "table", "outbox", "Outbox table name")
	flag.StringVar(&remoteURL, "remote", "", "Remote sync service base URL")
	flag.StringVar(&token, "token", "", "Bearer token for the remote service (optional)")
	flag.StringVar(&mutatePath, "mutate-path", "", "Mutation endpoint path (default /v1/mutations)")
	flag.StringVar(&comparePath, "compare-path", "", "Compare endpoint path (default /v1/compare)")
	flag.DurationVar(&tick, "tick", 15*time.Second, "Interval between processing cycles")
	flag.DurationVar(&staleLease, "stale-lease", 2*time.Minute, "Requeue items stuck in processing longer than this")
	flag.DurationVar(&sendTimeout, "send-timeout", 20*time.Second, "Per-send timeout")
	flag.IntVar(&maxAttempts, "max-attempts", 5, "Default retry budget per item")
	flag.IntVar(&breakerThreshold, "breaker-threshold", 5, "Failures before the circuit opens")
	flag.DurationVar(&breakerCooldown, "breaker-cooldown", 30*time.Second, "Cooldown before a half-open probe")
	flag.DurationVar(&backoffBase, "backoff-base", time.Second, "Base retry delay")
	flag.DurationVar(&backoffMax, "backoff-max", 5*time.Minute, "Maximum retry delay")
	flag.DurationVar(&retention, "retention", 0, "Delete completed rows older than this (0 disables)")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if dbPath == "" || remoteURL == "" {
		fmt.Fprintln(os.Stderr, "db and remote are required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	cfg := relayConfig{
		dbPath:           dbPath,
		table:            table,
		remoteURL:        remoteURL,
		token:            token,
		mutatePath:       mutatePath,
		comparePath:      comparePath,
		tick:             tick,
		staleLease:       staleLease,
		sendTimeout:      sendTimeout,
		maxAttempts:      maxAttempts,
		breakerThreshold: breakerThreshold,
		breakerCooldown:  breakerCooldown,
		backoffBase:      backoffBase,
		backoffMax:       backoffMax,
		retention:        retention,
		verbose:          verbose,
	}
	if err := run(cfg); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

type relayConfig struct {
	dbPath           string
	table            string
	remoteURL        string
	token            string
	mutatePath       string
	comparePath      string
	tick             time.Duration
	staleLease       time.Duration
	sendTimeout      time.Duration
	maxAttempts      int
	breakerThreshold int
	breakerCooldown  time.Duration
	backoffBase      time.Duration
	backoffMax       time.Duration
	retention        time.Duration
	verbose          bool
}

func run(cfg relayConfig) error {
	db, err := sql.Open("sqlite", cfg.dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	logger := stdLogger{logger: log.New(os.Stdout, "", log.LstdFlags), verbose: cfg.verbose}

	store, err := sqlitestore.NewStore(db,
		sqlitestore.WithTable(cfg.table),
		sqlitestore.WithMaxAttempts(cfg.maxAttempts),
	)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	client, err := remote.NewClient(remote.ClientOptions{
		BaseURL:       cfg.remoteURL,
		MutatePath:    cfg.mutatePath,
		ComparePath:   cfg.comparePath,
		TokenProvider: remote.StaticToken(cfg.token),
		UserAgent:     "syncbox-relay",
	})
	if err != nil {
		return fmt.Errorf("init remote client: %w", err)
	}

	breaker := syncbox.NewCircuitBreaker(
		syncbox.WithBreakerThreshold(cfg.breakerThreshold),
		syncbox.WithBreakerCooldown(cfg.breakerCooldown),
	)
	processor := syncbox.NewProcessor(store, client,
		syncbox.WithBreaker(breaker),
		syncbox.WithTickInterval(cfg.tick),
		syncbox.WithStaleLease(cfg.staleLease),
		syncbox.WithSendTimeout(cfg.sendTimeout),
		syncbox.WithBackoff(syncbox.Backoff{Base: cfg.backoffBase, Max: cfg.backoffMax}),
		syncbox.WithLogger(logger),
	)

	if cfg.retention > 0 {
		go cleanupLoop(ctx, store, cfg.retention, logger)
	}

	logger.Info("syncbox relay started", "db", cfg.dbPath, "remote", cfg.remoteURL)
	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run processor: %w", err)
	}

	return nil
}

func cleanupLoop(ctx context.Context, store *sqlitestore.Store, retention time.Duration, logger stdLogger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		result, err := store.Cleanup(ctx, sqlitestore.CleanupOptions{
			Before: time.Now().Add(-retention),
		})
		if err != nil {
			logger.Warn("cleanup failed", "err", err)
		} else if result.Completed > 0 {
			logger.Info("cleanup done", "completed", result.Completed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
