package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"flowgate/internal/announcer"
	"flowgate/internal/clients"
	"flowgate/internal/consentauthority"
	"flowgate/internal/flowrequest/ceremony"
	"flowgate/internal/flowrequest/codes"
	"flowgate/internal/flowrequest/service"
	"flowgate/internal/flowrequest/store"
	"flowgate/internal/messages"
	"flowgate/internal/platform/config"
	"flowgate/internal/platform/database"
	"flowgate/internal/platform/kafka"
	"flowgate/internal/platform/logger"
	"flowgate/internal/platform/metrics"
	redisclient "flowgate/internal/platform/redis"
	"flowgate/internal/sources"
)

// app holds every long-lived component of a serve run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	db    *sql.DB
	redis *redisclient.Client
	kafka *kgo.Client

	clients     *clients.Service
	flows       *service.Service
	coordinator *ceremony.Coordinator
	announcer   *announcer.Announcer
	sources     sources.Registry
	messages    *messages.Reader

	closers []func()
}

// newApp connects the backing services and builds the component graph.
// Without a database URL every store is in memory; without brokers the
// control topic and the destination logs live in one in-process log.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger.New(cfg.Log.Level),
		metrics: metrics.New(),
	}

	flowStore, clientStore, outbox, err := a.openStores(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.clients = clients.NewService(clientStore)

	publisher, partitions, err := a.openLogs(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.messages = messages.New(partitions, cfg.Messages, a.metrics)
	a.announcer = announcer.New(outbox, publisher, cfg.Kafka.ControlTopic,
		announcer.WithLogger(a.logger),
		announcer.WithMetrics(a.metrics),
		announcer.WithPublishTimeout(cfg.Kafka.PublishTimeout),
	)

	if err := a.openSources(ctx); err != nil {
		a.close()
		return nil, err
	}

	authority := consentauthority.NewClient(cfg.ConsentAuthority)
	a.coordinator = ceremony.New(flowStore, authority, a.announcer, a.clients, cfg.Server.PublicBaseURL,
		ceremony.WithLogger(a.logger),
		ceremony.WithMetrics(a.metrics),
	)
	a.flows = service.New(flowStore, codes.New(cfg.Flow.CodeTTL), a.sources, a.coordinator,
		service.WithLogger(a.logger),
		service.WithMetrics(a.metrics),
		service.WithMaxPageSize(cfg.Flow.MaxLimit),
	)

	if err := a.seedBootstrapClient(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) (store.Tx, clients.Store, announcer.OutboxStore, error) {
	if a.cfg.Database.URL == "" {
		a.logger.Warn("database.url is empty, using in-memory stores")
		return store.NewInMemory(), clients.NewInMemoryStore(), announcer.NewInMemoryOutbox(), nil
	}
	db, err := database.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	a.db = db
	a.closers = append(a.closers, func() { _ = db.Close() })
	if err := database.Migrate(ctx, db); err != nil {
		return nil, nil, nil, err
	}
	return store.NewPostgres(db), clients.NewPostgresStore(db), announcer.NewPostgresOutbox(db), nil
}

func (a *app) openLogs(ctx context.Context) (announcer.Publisher, messages.PartitionLog, error) {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Warn("kafka.brokers is empty, using an in-process message log")
		log := messages.NewMemoryLog()
		return memoryPublisher{log: log}, log, nil
	}
	producer, err := kafka.NewProducer(a.cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	a.kafka = producer
	a.closers = append(a.closers, producer.Close)

	admin := kadm.NewClient(producer)
	if err := kafka.EnsureTopic(ctx, admin, a.cfg.Kafka.ControlTopic); err != nil {
		// The outbox worker retries once the broker is reachable.
		a.logger.WarnContext(ctx, "control topic not ensured", "topic", a.cfg.Kafka.ControlTopic, "error", err)
	}
	log := messages.NewKafkaLog(admin, a.cfg.Kafka.Brokers, a.cfg.Kafka.FetchTimeout)
	return announcer.NewKafkaPublisher(producer), log, nil
}

func (a *app) openSources(ctx context.Context) error {
	var registry sources.Registry = sources.NewClient(a.cfg.SourceRegistry)
	rdb, err := redisclient.New(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		a.redis = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		registry = sources.NewCached(registry, rdb, a.cfg.Redis.CatalogTTL,
			sources.WithCacheLogger(a.logger),
			sources.WithCacheMetrics(a.metrics),
		)
	}
	a.sources = registry
	return nil
}

// seedBootstrapClient registers the configured super client, if any.
func (a *app) seedBootstrapClient(ctx context.Context) error {
	id, secret := a.cfg.Auth.BootstrapClientID, a.cfg.Auth.BootstrapClientSecret
	if id == "" || secret == "" {
		return nil
	}
	c := &clients.RESTClient{ClientID: id, Name: "bootstrap", Scopes: clients.AllScopes(), Super: true}
	if err := a.clients.RegisterClient(ctx, c, secret); err != nil {
		return fmt.Errorf("seed bootstrap client: %w", err)
	}
	a.logger.Info("bootstrap client registered", "client_id", id)
	return nil
}

// health reports the first failing backing service.
func (a *app) health(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// memoryPublisher appends announcements to the in-process log so broker-less
// runs can read the control topic through the message endpoints.
type memoryPublisher struct {
	log *messages.MemoryLog
}

func (p memoryPublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	p.log.Append(topic, key, value)
	return nil
}
