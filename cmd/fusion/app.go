package main

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fusion/config"
	"github.com/Ramsey-B/fusion/internal/repositories/directory"
	"github.com/Ramsey-B/fusion/internal/repositories/fusionaccount"
	"github.com/Ramsey-B/fusion/internal/repositories/fusionsource"
	"github.com/Ramsey-B/fusion/internal/repositories/identity"
	"github.com/Ramsey-B/fusion/internal/repositories/reviewrequest"
	"github.com/Ramsey-B/fusion/internal/repositories/sourceaccount"
	"github.com/Ramsey-B/fusion/pkg/database"
	"github.com/Ramsey-B/fusion/pkg/events"
	"github.com/Ramsey-B/fusion/pkg/fusion"
	"github.com/Ramsey-B/fusion/pkg/graph"
	"github.com/Ramsey-B/fusion/pkg/kafka"
	"github.com/Ramsey-B/fusion/pkg/processor"
	"github.com/Ramsey-B/fusion/pkg/redis"
	"github.com/Ramsey-B/fusion/pkg/review"
	"github.com/Ramsey-B/fusion/pkg/routes/health"
	"github.com/Ramsey-B/fusion/pkg/scheduler"
	"github.com/Ramsey-B/fusion/pkg/startup"
	"github.com/Ramsey-B/fusion/pkg/tracing"
	"github.com/Ramsey-B/fusion/pkg/tracing/exporters"
)

const (
	depTracing   = "tracing"
	depPostgres  = "postgres"
	depRedis     = "redis"
	depGraph     = "graph"
	depProducer  = "kafka-producer"
	depFusion    = "fusion"
	depScheduler = "scheduler"
	depConsumers = "kafka-consumers"
	depHTTP      = "http"
)

// dependency adapts a pair of start and stop funcs to startup.Dependency
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string { return d.name }

func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error {
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

// app holds every component of the running service
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	health *health.Checker

	tracingShutdown func(context.Context) error

	db             *database.DatabaseInstance
	fusionSources  *fusionsource.Repository
	fusionAccounts *fusionaccount.Repository
	reviewRequests *reviewrequest.Repository
	sourceAccounts *sourceaccount.Repository
	identities     *identity.Repository

	redis       *redis.Client
	locker      *redis.Locker
	deadLetters *redis.DeadLetterQueue

	graph     *graph.Client
	projector *graph.Projector

	producer *kafka.Producer
	emitter  *events.Emitter

	reconciler *fusion.Reconciler
	reviews    *review.Service
	scheduler  *scheduler.Scheduler
	processor  *processor.Processor
	consumers  []*kafka.Consumer

	server    *server
	serverErr chan error
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{
		cfg:       cfg,
		logger:    logger,
		health:    health.NewChecker(cfg.Version),
		serverErr: make(chan error, 1),
	}
}

func (a *app) dependencies() []startup.Dependency {
	fusionDeps := []string{depPostgres, depRedis, depProducer}
	deps := []startup.Dependency{
		&dependency{name: depTracing, start: a.startTracing, stop: a.stopTracing},
		&dependency{name: depPostgres, start: a.startPostgres, stop: a.stopPostgres},
		&dependency{name: depRedis, start: a.startRedis, stop: a.stopRedis},
		&dependency{name: depProducer, start: a.startProducer, stop: a.stopProducer},
	}
	if a.cfg.GraphEnabled {
		fusionDeps = append(fusionDeps, depGraph)
		deps = append(deps, &dependency{name: depGraph, start: a.startGraph, stop: a.stopGraph})
	}

	return append(deps,
		&dependency{name: depFusion, dependsOn: fusionDeps, start: a.startFusion},
		&dependency{name: depScheduler, dependsOn: []string{depFusion}, start: a.startScheduler, stop: a.stopScheduler},
		&dependency{name: depConsumers, dependsOn: []string{depFusion}, start: a.startConsumers, stop: a.stopConsumers},
		&dependency{name: depHTTP, dependsOn: []string{depTracing, depFusion}, start: a.startHTTP, stop: a.stopHTTP},
	)
}

func (a *app) startTracing(ctx context.Context) error {
	otlp := exporters.DefaultOTLPConfig()
	otlp.Endpoint = a.cfg.OTLPEndpoint
	otlp.Protocol = a.cfg.OTLPProtocol
	otlp.Insecure = a.cfg.OTLPInsecure

	shutdown, err := tracing.Setup(ctx, tracing.ProviderConfig{
		ServiceName: a.cfg.AppName,
		Exporter:    a.cfg.TraceExporter,
		OTLP:        otlp,
		SampleRatio: a.cfg.TraceSampleRatio,
	}, a.logger)
	if err != nil {
		return err
	}
	a.tracingShutdown = shutdown
	return nil
}

func (a *app) stopTracing(ctx context.Context) error {
	return a.tracingShutdown(ctx)
}

func (a *app) startPostgres(ctx context.Context) error {
	db, err := database.Connect(ctx, database.Config{
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             a.cfg.DatabaseMigrationVersion,
		Force:               a.cfg.DatabaseMigrationForce,
	})
	if err := migrations.Migrate(db.DB, a.cfg.DatabaseName); err != nil {
		_ = db.Close()
		return err
	}

	a.db = db
	a.fusionSources = fusionsource.NewRepository(db, a.logger)
	a.fusionAccounts = fusionaccount.NewRepository(db, a.logger)
	a.reviewRequests = reviewrequest.NewRepository(db, a.logger)
	a.sourceAccounts = sourceaccount.NewRepository(db, a.logger)
	a.identities = identity.NewRepository(db, a.logger)

	a.health.AddCheck(depPostgres, db.PingContext)
	return nil
}

func (a *app) stopPostgres(_ context.Context) error {
	return a.db.Close()
}

func (a *app) startRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
		PoolSize: a.cfg.RedisPoolSize,
	}, a.logger)
	if err != nil {
		return err
	}

	a.redis = client
	a.locker = redis.NewLocker(client, a.cfg.LockKeyPrefix)
	a.deadLetters = redis.NewDeadLetterQueue(client, a.cfg.DLQStreamName, a.logger)

	a.health.AddCheck(depRedis, client.Ping)
	return nil
}

func (a *app) stopRedis(_ context.Context) error {
	return a.redis.Close()
}

func (a *app) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(ctx, graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
		Database: a.cfg.GraphDBName,
	}, a.logger)
	if err != nil {
		return err
	}

	a.graph = client
	a.projector = graph.NewProjector(client, a.logger)

	// the graph is a projection, passes still succeed without it
	a.health.AddOptionalCheck(depGraph, client.VerifyConnectivity)
	return nil
}

func (a *app) stopGraph(ctx context.Context) error {
	return a.graph.Close(ctx)
}

func (a *app) startProducer(_ context.Context) error {
	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)

	a.emitter = events.NewEmitter(a.producer, events.Topics{
		FusionAccounts: a.cfg.KafkaFusionAccountsTopic,
		ReviewRequests: a.cfg.KafkaReviewRequestsTopic,
		Errors:         a.cfg.KafkaErrorsTopic,
	}, a.logger)
	return nil
}

func (a *app) stopProducer(_ context.Context) error {
	return a.producer.Close()
}

// startFusion builds the domain services on top of the started infrastructure
func (a *app) startFusion(_ context.Context) error {
	dir := directory.New(a.identities, a.sourceAccounts)

	a.reconciler = fusion.NewReconciler(a.logger, dir, a.fusionAccounts, a.reviewRequests, a.emitter, a.emitter).
		WithTransactor(a.db)
	if a.projector != nil {
		a.reconciler = a.reconciler.WithProjector(a.projector)
	}

	a.reviews = review.NewService(a.reviewRequests, review.NewWorkflow(a.logger), a.logger)
	a.scheduler = scheduler.NewScheduler(a.fusionSources, a.reconciler, scheduler.NewRedisLocker(a.locker), scheduler.Config{
		PollInterval: a.cfg.PollInterval(),
		LockTTL:      a.cfg.LockTTL(),
	}, a.logger)
	a.processor = processor.NewProcessor(a.logger, a.reviews, a.sourceAccounts, a.identities)
	return nil
}

func (a *app) startScheduler(ctx context.Context) error {
	if !a.cfg.SchedulerEnabled {
		a.logger.Info("Scheduler disabled, passes run on demand only")
		return nil
	}
	return a.scheduler.Start(ctx)
}

func (a *app) stopScheduler(ctx context.Context) error {
	return a.scheduler.Stop(ctx)
}

func (a *app) startConsumers(ctx context.Context) error {
	if !a.cfg.KafkaConsumerEnabled {
		a.logger.Info("Kafka consumers disabled")
		return nil
	}

	handlers := map[string]kafka.MessageHandler{
		a.cfg.KafkaReviewDecisionsTopic: a.processor.HandleReviewDecision,
		a.cfg.KafkaSourceAccountsTopic:  a.processor.HandleSourceRecord,
	}
	for topic, handler := range handlers {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       a.cfg.KafkaBrokers,
			Topic:         topic,
			ConsumerGroup: a.cfg.KafkaConsumerGroup,
		}, a.logger, handler, a.deadLetters)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		a.consumers = append(a.consumers, consumer)
	}

	a.health.AddCheck(depConsumers, func(context.Context) error {
		for _, c := range a.consumers {
			if !c.Health() {
				return errors.New("kafka consumer is not running")
			}
		}
		return nil
	})
	return nil
}

func (a *app) stopConsumers(_ context.Context) error {
	var errs []error
	for _, c := range a.consumers {
		errs = append(errs, c.Stop())
	}
	a.consumers = nil
	return errors.Join(errs...)
}

func (a *app) startHTTP(_ context.Context) error {
	a.server = newServer(a)
	go func() {
		if err := a.server.start(); err != nil {
			a.serverErr <- err
		}
	}()
	return nil
}

func (a *app) stopHTTP(ctx context.Context) error {
	return a.server.shutdown(ctx)
}
