package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"ekyc/internal/audit"
	"ekyc/internal/audit/outbox"
	"ekyc/internal/contentstore"
	dochandler "ekyc/internal/document/handler"
	docmetrics "ekyc/internal/document/metrics"
	docservice "ekyc/internal/document/service"
	docstore "ekyc/internal/document/store"
	idhandler "ekyc/internal/identity/handler"
	idservice "ekyc/internal/identity/service"
	idstore "ekyc/internal/identity/store"
	"ekyc/internal/jobs"
	jwttoken "ekyc/internal/jwt_token"
	"ekyc/internal/ledger"
	"ekyc/internal/ledger/watcher"
	"ekyc/internal/notification"
	"ekyc/internal/platform/config"
	"ekyc/internal/platform/database"
	"ekyc/internal/platform/health"
	"ekyc/internal/platform/kafka"
	"ekyc/internal/platform/kafka/producer"
	"ekyc/internal/platform/logger"
	"ekyc/internal/platform/metrics"
	"ekyc/internal/platform/redis"
	"ekyc/internal/signature"
	httptransport "ekyc/internal/transport/http"
	"ekyc/pkg/domain"
	"ekyc/pkg/platform/middleware/request"
	"ekyc/pkg/platform/tracer"
)

const (
	shutdownTimeout = 10 * time.Second
	tokenIssuer     = "ekyc"
)

// ledgerBackend is what the server needs from a ledger adapter: the contract
// capability, the event feed the watcher follows and the signer mapping used
// to match those events to records.
type ledgerBackend interface {
	ledger.Ledger
	ledger.EventSource
	ledger.SignerResolver
}

type infra struct {
	db       *database.Pool
	redis    *redis.Client
	producer *producer.Producer
}

func (i *infra) close(log *slog.Logger) {
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			log.Error("kafka producer close failed", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Error("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Error("database close failed", "error", err)
		}
	}
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("initializing ekyc",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"content_store", cfg.ContentStore.Backend,
		"ledger", cfg.Ledger.Backend,
		"notifications", cfg.Notifications.Channel,
	)

	healthHandler := health.New(cfg.Server.Environment)

	deps, err := buildInfra(ctx, cfg, log, healthHandler)
	if err != nil {
		return err
	}
	defer deps.close(log)

	ldg, closeLedger, err := buildLedger(ctx, cfg.Ledger, log)
	if err != nil {
		return err
	}
	defer closeLedger()
	healthHandler.RegisterCheck("ledger", func(ctx context.Context) error {
		_, err := ldg.LatestBlock(ctx)
		return err
	})

	auditor, auditOutbox := buildAuditor(deps, cfg.Kafka.AuditTopic, log)
	defer auditor.Close()

	var (
		identityStore idservice.Store = idstore.NewInMemory()
		documentStore docservice.Store = docstore.NewInMemory()
		docOpts                        []docservice.Option
	)
	if deps.db != nil {
		identityStore = idstore.NewPostgres(deps.db.DB())
		documentStore = docstore.NewPostgres(deps.db.DB())
		docOpts = append(docOpts, docservice.WithTx(newDocumentPostgresTx(deps.db.DB())))
	}

	identityService := idservice.NewService(identityStore, signature.NewVerifier(), log,
		idservice.WithAuditor(auditor),
	)
	documentService := docservice.NewService(documentStore, identityService, buildContentStore(cfg.ContentStore), ldg, log,
		append(docOpts,
			docservice.WithSignerResolver(ldg),
			docservice.WithNotifier(buildNotifier(cfg, deps, log)),
			docservice.WithAuditor(auditor),
			docservice.WithMetrics(docmetrics.New()),
		)...,
	)

	var jobStore jobs.Store = jobs.NewInMemoryStore(cfg.Jobs.ResultTTL)
	if deps.redis != nil {
		jobStore = jobs.NewRedisStore(deps.redis.Client, cfg.Jobs.ResultTTL)
	}
	pool := jobs.NewPool(jobStore, cfg.Jobs.Workers, cfg.Jobs.QueueSize, log)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, tokenIssuer, cfg.Server.TokenTTL)
	identityHandler := idhandler.New(identityService, jwtService, log, idhandler.WithMetrics(metrics.New()))
	var docHandlerOpts []dochandler.Option
	if cfg.Ledger.ConfirmTimeout < cfg.Server.RequestTimeout {
		docHandlerOpts = append(docHandlerOpts, dochandler.WithInlineLedgerWait())
	}
	documentHandler := dochandler.New(documentService, pool, log, cfg.Server.MaxUploadBytes, docHandlerOpts...)

	router := httptransport.NewRouter(httptransport.Routes{
		Public: []httptransport.Registrar{healthHandler, identityHandler},
		Authenticated: []httptransport.Registrar{
			httptransport.RegistrarFunc(identityHandler.RegisterAuthenticated),
			documentHandler,
		},
	}, jwttoken.NewMiddlewareAdapter(jwtService), request.NewMetrics(), cfg.Server.RequestTimeout, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return pool.Run(gctx) })

	if cfg.Watcher.Enabled {
		w := watcher.New(ldg, ldg, documentService, cfg.Watcher.Interval, cfg.Watcher.StartBlock, cfg.Watcher.MaxBlockRange,
			watcher.WithLogger(log),
		)
		g.Go(func() error { return w.Run(gctx) })
	}
	if auditOutbox != nil {
		g.Go(func() error { return auditOutbox.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger, h *health.Handler) (*infra, error) {
	deps := &infra{}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		deps.db = db
		h.RegisterCheck("database", db.Health)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		deps.close(log)
		return nil, err
	}
	if rc != nil {
		deps.redis = rc
		h.RegisterCheck("redis", rc.Health)
	}

	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(kafka.ProducerConfigFrom(cfg.Kafka), log)
		if err != nil {
			deps.close(log)
			return nil, err
		}
		deps.producer = p
		for _, topic := range []string{cfg.Kafka.NotificationTopic, cfg.Kafka.AuditTopic} {
			if err := p.EnsureTopic(ctx, topic, 3, 1); err != nil {
				log.Warn("kafka topic not ensured", "topic", topic, "error", err)
			}
		}
		checker := kafka.NewHealthChecker(p.Client())
		h.RegisterCheck(checker.Name(), checker.Check)
	}
	return deps, nil
}

// buildLedger returns the adapter and a function releasing its connection.
func buildLedger(ctx context.Context, cfg config.Ledger, log *slog.Logger) (ledgerBackend, func(), error) {
	keys, err := ledger.NewKeyring(cfg.OperatorKey, cfg.CustodialKeys)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Backend == "memory" {
		operator := keys.Operator()
		if operator.IsZero() {
			key, err := crypto.GenerateKey()
			if err != nil {
				return nil, nil, err
			}
			operator = domain.WalletFromAddress(crypto.PubkeyToAddress(key.PublicKey))
		}
		log.Warn("using in-memory ledger; anchors are not durable", "operator", operator.Checksum())
		return ledger.NewMemoryLedger(operator), func() {}, nil
	}

	eth, client, err := ledger.Dial(ctx, cfg, keys,
		ledger.WithLogger(log),
		ledger.WithMetrics(ledger.NewMetrics()),
		ledger.WithTracer(tracer.NewOTel("ekyc/ledger")),
	)
	if err != nil {
		return nil, nil, err
	}
	return eth, client.Close, nil
}

func buildContentStore(cfg config.ContentStore) contentstore.Store {
	if cfg.Backend == "memory" {
		return contentstore.NewMemoryStore(cfg.GatewayURL)
	}
	return contentstore.NewPinataStore(contentstore.PinataConfig{
		APIURL:     cfg.APIURL,
		GatewayURL: cfg.GatewayURL,
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		JWT:        cfg.JWT,
		Timeout:    cfg.Timeout,
	})
}

func buildNotifier(cfg config.Config, deps *infra, log *slog.Logger) docservice.Notifier {
	switch cfg.Notifications.Channel {
	case "kafka":
		if deps.producer != nil {
			return notification.NewKafkaNotifier(deps.producer, cfg.Kafka.NotificationTopic)
		}
	case "redis":
		if deps.redis != nil {
			return notification.NewRedisNotifier(deps.redis.Client)
		}
	}
	return notification.NewLogNotifier(log)
}

// buildAuditor persists audit events through the outbox when both a database
// and Kafka are configured; otherwise events stay in memory.
func buildAuditor(deps *infra, topic string, log *slog.Logger) (*audit.Publisher, *outbox.Worker) {
	if deps.db == nil || deps.producer == nil {
		return audit.NewPublisher(audit.NewInMemoryStore(),
			audit.WithAsyncBuffer(256),
			audit.WithPublisherLogger(log),
		), nil
	}
	entries := outbox.NewPostgresStore(deps.db.DB())
	publisher := audit.NewPublisher(audit.NewOutboxStore(entries),
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	worker := outbox.NewWorker(entries, deps.producer,
		outbox.WithTopic(topic),
		outbox.WithRetention(7*24*time.Hour),
		outbox.WithMetrics(outbox.NewMetrics()),
		outbox.WithLogger(log),
	)
	return publisher, worker
}
