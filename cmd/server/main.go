// Command server runs the attesto proof-token ledger: the HTTP API, the
// issuer registry, the append-only event log, and the optional export and
// storage-notification side channels.
//
// Backends come from the environment. With no configuration the process runs
// entirely in memory, which is the test and demo mode; ATTESTO_POSTGRES_URL
// or ATTESTO_LEVELDB_PATH select a durable ledger, ATTESTO_REDIS_URL adds the
// verification cache, ATTESTO_KAFKA_BROKERS starts the audit export relay,
// and ATTESTO_AMQP_URL routes revocation delete instructions to the document
// vault.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	goleveldb "github.com/syndtr/goleveldb/leveldb"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	_ "github.com/jackc/pgx/v5/stdlib"

	"attesto/internal/accesstoken"
	"attesto/internal/auditquery"
	audithandler "attesto/internal/auditquery/handler"
	"attesto/internal/eventlog"
	"attesto/internal/eventlog/relay"
	ldblog "attesto/internal/eventlog/store/leveldb"
	memlog "attesto/internal/eventlog/store/memory"
	pglog "attesto/internal/eventlog/store/postgres"
	ledgerhandler "attesto/internal/ledger/handler"
	ledgermetrics "attesto/internal/ledger/metrics"
	ledgerservice "attesto/internal/ledger/service"
	ldbstore "attesto/internal/ledger/store/leveldb"
	memstore "attesto/internal/ledger/store/memory"
	pgstore "attesto/internal/ledger/store/postgres"
	"attesto/internal/ledger/store/verifycache"
	"attesto/internal/platform/config"
	"attesto/internal/platform/httpserver"
	"attesto/internal/platform/logger"
	platformmetrics "attesto/internal/platform/metrics"
	platformredis "attesto/internal/platform/redis"
	"attesto/internal/platform/status"
	registryhandler "attesto/internal/registry/handler"
	regmetrics "attesto/internal/registry/metrics"
	regservice "attesto/internal/registry/service"
	regstore "attesto/internal/registry/store"
	"attesto/internal/registry/store/issuer"
	httptransport "attesto/internal/transport/http"
	"attesto/internal/vault"
)

func main() {
	// .env is a development convenience; absence is the production case.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Ledger.DerivationKey == "" {
		return errors.New("ATTESTO_DERIVATION_KEY is required: token ids cannot be derived without it")
	}

	deps, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	registry := regservice.New(deps.issuers,
		regservice.WithLogger(log),
		regservice.WithMetrics(regmetrics.New()),
	)
	if cfg.Registry.SeedPath != "" {
		seed, err := regstore.LoadSeed(cfg.Registry.SeedPath)
		if err != nil {
			return fmt.Errorf("load issuer seed: %w", err)
		}
		added, err := seed.Apply(ctx, registry)
		if err != nil {
			return fmt.Errorf("apply issuer seed: %w", err)
		}
		log.Info("issuer seed applied", "path", cfg.Registry.SeedPath, "registered", added)
	}

	ledgerOpts := []ledgerservice.Option{
		ledgerservice.WithLogger(log),
		ledgerservice.WithMetrics(ledgermetrics.New()),
		ledgerservice.WithNotifier(deps.notifier),
		ledgerservice.WithMaxExpiry(cfg.Ledger.MaxExpiry),
	}
	if deps.cache != nil {
		ledgerOpts = append(ledgerOpts, ledgerservice.WithCache(deps.cache))
	}
	ledger := ledgerservice.New(deps.tokens, registry, []byte(cfg.Ledger.DerivationKey), ledgerOpts...)

	audit := auditquery.New(deps.eventLog, deps.tokens)

	tokens := accesstoken.NewService(cfg.Server.JWTSigningKey, "attesto", "attesto-api")
	httpMetrics := platformmetrics.New()

	statusOpts := append(deps.statusOpts, status.WithEventHead(deps.eventLog.Head))
	router := httptransport.NewRouter(httptransport.Handlers{
		Ledger:   ledgerhandler.New(ledger, log, httpMetrics, tokens),
		Registry: registryhandler.New(registry, log, httpMetrics, tokens),
		Audit:    audithandler.New(audit, log, httpMetrics, tokens),
		Status:   status.New(log, statusOpts...),
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if deps.exporter != nil {
		group.Go(func() error {
			log.Info("audit export relay running", "topic", cfg.Kafka.Topic)
			return ignoreCancel(deps.exporter.Run(ctx))
		})
	}
	if cfg.Registry.SeedPath != "" && cfg.Registry.WatchSeed {
		watcher := regstore.NewWatcher(cfg.Registry.SeedPath, registry,
			regstore.WithWatcherLogger(log))
		group.Go(func() error {
			return ignoreCancel(watcher.Run(ctx))
		})
	}

	return group.Wait()
}

// backends holds the storage and side-channel implementations selected by
// configuration, plus the cleanup and readiness hooks they contribute.
type backends struct {
	eventLog eventlog.Log
	cursors  eventlog.CursorStore
	tokens   ledgerservice.Store
	issuers  regservice.Store
	cache    ledgerservice.VerifyCache
	notifier ledgerservice.StorageNotifier
	exporter *relay.Relay

	statusOpts []status.Option
	closers    []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

func (b *backends) close(log *slog.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].fn(); err != nil {
			log.Error("backend close failed", "backend", b.closers[i].name, "error", err)
		}
	}
}

// openBackends selects the ledger, log, and registry stores and dials the
// optional side channels. Postgres wins over LevelDB; with neither the
// process is memory-only and says so.
func openBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{notifier: vault.Noop{}}

	switch {
	case cfg.Postgres.URL != "":
		db, err := sql.Open("pgx", cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.closers = append(b.closers, namedCloser{"postgres", db.Close})
		if err := db.PingContext(ctx); err != nil {
			b.close(log)
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		for _, ensure := range []func(context.Context, *sql.DB) error{
			pglog.EnsureSchema, pgstore.EnsureSchema, issuer.EnsureSchema,
		} {
			if err := ensure(ctx, db); err != nil {
				b.close(log)
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
		}

		eventLog := pglog.NewLog(db)
		b.eventLog = eventLog
		b.cursors = eventLog
		b.tokens = pgstore.New(db, pgstore.WithLockWait(cfg.Ledger.LockWait))
		b.issuers = issuer.NewPostgres(db)
		b.statusOpts = append(b.statusOpts, status.WithCheck("postgres", db.PingContext))
		log.Info("ledger backend", "store", "postgres")

	case cfg.LevelDB.Path != "":
		db, err := goleveldb.OpenFile(cfg.LevelDB.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("open leveldb at %s: %w", cfg.LevelDB.Path, err)
		}
		b.closers = append(b.closers, namedCloser{"leveldb", db.Close})

		eventLog, err := ldblog.NewLog(db)
		if err != nil {
			b.close(log)
			return nil, fmt.Errorf("open leveldb event log: %w", err)
		}
		b.eventLog = eventLog
		b.cursors = eventLog
		b.tokens = ldbstore.New(db, eventLog, ldbstore.WithLockWait(cfg.Ledger.LockWait))
		// The registry has no embedded store; the seed file restores issuers
		// on boot.
		b.issuers = issuer.NewInMemory()
		log.Info("ledger backend", "store", "leveldb", "path", cfg.LevelDB.Path)

	default:
		eventLog := memlog.NewLog()
		b.eventLog = eventLog
		b.cursors = eventLog
		b.tokens = memstore.New(eventLog, memstore.WithLockWait(cfg.Ledger.LockWait))
		b.issuers = issuer.NewInMemory()
		log.Warn("ledger backend is memory-only, state is lost on restart")
	}

	if cfg.Redis.URL != "" {
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			b.close(log)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.closers = append(b.closers, namedCloser{"redis", client.Close})
		b.cache = verifycache.NewRedis(client.Client, verifycache.WithTTL(cfg.Ledger.VerifyCacheTTL))
		b.statusOpts = append(b.statusOpts, status.WithCheck("redis", client.Health))
		log.Info("verification cache enabled", "ttl", cfg.Ledger.VerifyCacheTTL)
	}

	if cfg.AMQP.URL != "" {
		notifier, err := vault.NewAMQPNotifier(cfg.AMQP.URL, vault.WithExchange(cfg.AMQP.Exchange))
		if err != nil {
			b.close(log)
			return nil, fmt.Errorf("connect vault notifier: %w", err)
		}
		b.closers = append(b.closers, namedCloser{"amqp", func() error {
			notifier.Close()
			return nil
		}})
		b.notifier = notifier
		log.Info("vault delete notifier enabled", "exchange", cfg.AMQP.Exchange)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			b.close(log)
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		b.closers = append(b.closers, namedCloser{"kafka", func() error {
			client.Close()
			return nil
		}})
		if err := relay.EnsureTopic(ctx, client, cfg.Kafka.Topic); err != nil {
			b.close(log)
			return nil, err
		}
		b.exporter = relay.New(b.eventLog, b.cursors, client, cfg.Kafka.Topic,
			relay.WithLogger(log),
			relay.WithMetrics(relay.NewMetrics()),
		)
	}

	return b, nil
}

// ignoreCancel treats context cancellation as a clean exit so shutdown does
// not report the stop signal as a failure.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
