package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appinventory "github.com/tablekit/backhouse/internal/application/inventory"
	appkitchen "github.com/tablekit/backhouse/internal/application/kitchen"
	apporder "github.com/tablekit/backhouse/internal/application/order"
	"github.com/tablekit/backhouse/internal/auth"
	"github.com/tablekit/backhouse/internal/config"
	domaudit "github.com/tablekit/backhouse/internal/domain/audit"
	domidem "github.com/tablekit/backhouse/internal/domain/idempotency"
	domledger "github.com/tablekit/backhouse/internal/domain/ledger"
	domorder "github.com/tablekit/backhouse/internal/domain/order"
	domoutbox "github.com/tablekit/backhouse/internal/domain/outbox"
	domrouting "github.com/tablekit/backhouse/internal/domain/routing"
	domticket "github.com/tablekit/backhouse/internal/domain/ticket"
	"github.com/tablekit/backhouse/internal/infrastructure/auditlog"
	"github.com/tablekit/backhouse/internal/infrastructure/id"
	"github.com/tablekit/backhouse/internal/infrastructure/janitor"
	"github.com/tablekit/backhouse/internal/infrastructure/memory"
	mongostore "github.com/tablekit/backhouse/internal/infrastructure/mongo"
	natsrelay "github.com/tablekit/backhouse/internal/infrastructure/nats"
	"github.com/tablekit/backhouse/internal/infrastructure/observability/oteltrace"
	"github.com/tablekit/backhouse/internal/infrastructure/observability/prometrics"
	"github.com/tablekit/backhouse/internal/infrastructure/observability/telemetry"
	"github.com/tablekit/backhouse/internal/infrastructure/observability/zaplogger"
	outboxinfra "github.com/tablekit/backhouse/internal/infrastructure/outbox"
	"github.com/tablekit/backhouse/internal/observability"
	httppresentation "github.com/tablekit/backhouse/internal/presentation/http"
)

// repos bundles the persistence ports so the memory and mongo stores swap as
// a unit.
type repos struct {
	orders     domorder.Repository
	tickets    domticket.Repository
	itemStates domticket.ItemStateRepository
	ledger     domledger.Repository
	stock      domledger.StockRepository
	outbox     domoutbox.Repository
	heartbeats domoutbox.HeartbeatRepository
	idem       domidem.Repository
	counters   id.CounterRepository
	routing    domrouting.Repository
	audit      domaudit.Repository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store repos
	if cfg.MongoURL != "" {
		s, err := mongostore.Connect(ctx, cfg.MongoURL, cfg.MongoDB, logger)
		if err != nil {
			logger.Error("mongo_connect_failed", observability.F("error", err))
			os.Exit(1)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Close(closeCtx)
		}()
		store = repos{
			orders:     mongostore.NewOrderRepository(s),
			tickets:    mongostore.NewTicketRepository(s),
			itemStates: mongostore.NewItemStateRepository(s),
			ledger:     mongostore.NewLedgerRepository(s),
			stock:      mongostore.NewStockRepository(s),
			outbox:     mongostore.NewOutboxRepository(s),
			heartbeats: mongostore.NewHeartbeatRepository(s),
			idem:       mongostore.NewIdempotencyRepository(s),
			counters:   mongostore.NewCounterRepository(s),
			routing:    mongostore.NewRoutingRepository(s),
			audit:      mongostore.NewAuditRepository(s),
		}
	} else {
		store = repos{
			orders:     memory.NewOrderRepository(),
			tickets:    memory.NewTicketRepository(),
			itemStates: memory.NewItemStateRepository(),
			ledger:     memory.NewLedgerRepository(),
			stock:      memory.NewStockRepository(),
			outbox:     memory.NewOutboxRepository(),
			heartbeats: memory.NewHeartbeatRepository(),
			idem:       memory.NewIdempotencyRepository(),
			counters:   memory.NewCounterRepository(),
			routing:    memory.NewRoutingRepository(),
			audit:      memory.NewAuditRepository(),
		}
	}

	reg := prometrics.New("", cfg.ServiceName)
	tel := telemetry.New(
		oteltrace.New(cfg.ServiceName),
		logger,
		map[string]observability.Counter{
			"http_requests_total":           reg.Counter("http_requests_total", "HTTP requests.", "method", "route", "status"),
			"http_rate_limited_total":       reg.Counter("http_rate_limited_total", "Requests rejected by the rate limiter.", "route"),
			"idempotent_replays_total":      reg.Counter("idempotent_replays_total", "Mutations answered from the idempotency cache."),
			"outbox_events_total":           reg.Counter("outbox_events_total", "Outbox events by outcome.", "outcome"),
			"kds_ticket_transitions_total":  reg.Counter("kds_ticket_transitions_total", "Ticket state transitions.", "from", "to"),
			"ledger_append_conflicts_total": reg.Counter("ledger_append_conflicts_total", "Ledger appends that lost the tail race."),
		},
		map[string]observability.Gauge{
			"outbox_backlog": reg.Gauge("outbox_backlog", "PENDING events awaiting the consumer."),
		},
		map[string]observability.Histogram{
			"http_request_duration_seconds": reg.Histogram("http_request_duration_seconds", "HTTP request latency.", prometheus.DefBuckets, "method", "route"),
		},
	)

	gen := id.NewGenerator(store.counters)
	publisher := outboxinfra.NewPublisher(store.outbox, cfg.OutboxMaxRetries, logger)
	auditor := auditlog.New(store.audit, logger)

	orderSvc := apporder.NewService(
		store.orders, store.tickets, store.itemStates, store.routing,
		gen, publisher, auditor, cfg.DefaultStation, logger,
	)
	kitchenSvc := appkitchen.NewService(
		store.tickets, store.itemStates, publisher, auditor,
		cfg.UndoWindow, logger, tel,
	)
	inventorySvc := appinventory.NewService(
		store.ledger, store.stock, gen, publisher, auditor,
		cfg.LowStockThreshold, logger, tel,
	)

	// Subscriber wiring. Order matters only within a topic.
	registry := outboxinfra.NewRegistry()
	reconciler := apporder.NewReconciler(store.orders, store.tickets, publisher, logger)
	registry.Subscribe(domticket.TopicTicketStatusChanged, reconciler.Handle)

	hub := httppresentation.NewEventHub(logger)
	allTopics := []string{
		domorder.TopicOrderCreated,
		domorder.TopicOrderClosed,
		domorder.TopicKDSStatusChanged,
		domticket.TopicTicketCreated,
		domticket.TopicTicketStatusChanged,
		domticket.TopicItemStatusChanged,
		domledger.TopicMovementCreated,
		domledger.TopicLowStock,
	}
	for _, topic := range allTopics {
		registry.Subscribe(topic, hub.Handle)
	}

	if cfg.NATSURL != "" {
		relay, err := natsrelay.NewRelay(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("nats_connect_failed", observability.F("error", err))
			os.Exit(1)
		}
		defer func() { _ = relay.Close() }()
		for _, topic := range allTopics {
			registry.Subscribe(topic, relay.Handle)
		}
	}

	worker := outboxinfra.NewWorker(
		store.outbox, store.heartbeats, registry,
		cfg.OutboxBatchSize, cfg.OutboxTick, logger, tel,
	)
	go worker.Run(ctx)

	jan := janitor.New(store.idem, store.heartbeats, time.Minute, logger)
	go jan.Run(ctx)

	codec := auth.NewCodec(cfg.JWTSecret)
	handler := httppresentation.NewHandler(httppresentation.HandlerDeps{
		Orders:     orderSvc,
		Kitchen:    kitchenSvc,
		Inventory:  inventorySvc,
		AuditTrail: store.audit,
		Outbox:     store.outbox,
		Heartbeats: store.heartbeats,
		Hub:        hub,
		Codec:      codec,
		Limiter:    httppresentation.NewRateLimiter(cfg.RateLimitDefaultRPM, cfg.RateLimitOverrides, tel),
		Idem:       httppresentation.NewIdempotency(store.idem, cfg.IdempotencyTTL, logger, tel),
		Build: httppresentation.BuildInfo{
			BuildID: cfg.BuildID,
			GitSHA:  cfg.GitSHA,
			BuiltAt: cfg.BuiltAt,
		},
		MetricsHandler: promhttp.Handler(),
		Logger:         logger,
		Telemetry:      tel,
	})

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", observability.F("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		logger.Info("http_server_stopped")
	}
}
