package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/document"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	syncroutes "github.com/Ramsey-B/fern/pkg/routes/sync"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/summary"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

func NewServeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the change event consumer and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			logger, flush, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return newServer(cfg, logger).run(ctx)
		},
	}
}

// server owns every long lived dependency of the serve command.
type server struct {
	cfg    config.Config
	logger ectologger.Logger

	db        database.DB
	redis     *redis.Client
	graph     *graph.Client
	producer  *kafka.Producer
	consumer  *kafka.Consumer
	processor *processor.Processor
	echo      *echo.Echo
	health    *health.Checker
}

func newServer(cfg config.Config, logger ectologger.Logger) *server {
	return &server{
		cfg:    cfg,
		logger: logger,
		health: health.NewChecker(cfg.Version),
	}
}

func (s *server) run(ctx context.Context) error {
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: s.cfg.AppName,
		Endpoint:    s.cfg.TracingEndpoint,
		Protocol:    s.cfg.TracingProtocol,
		Insecure:    s.cfg.TracingInsecure,
		Timeout:     s.cfg.TracingTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	boot := startup.NewStartup(s.logger, s.cfg.StartupMaxAttempts)
	for _, dependency := range s.dependencies() {
		boot.AddDependency(dependency)
	}

	if err := boot.Start(ctx); err != nil {
		_ = boot.Stop(context.Background())
		_ = shutdownTracing(context.Background())
		return err
	}
	s.health.SetReady(true)
	s.logger.WithContext(ctx).Info("fern is ready")

	<-ctx.Done()
	s.health.SetReady(false)
	s.logger.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopErr := boot.Stop(stopCtx)
	if err := shutdownTracing(stopCtx); err != nil {
		s.logger.WithError(err).Warn("Failed to flush traces")
	}
	return stopErr
}

func (s *server) dependencies() []startup.StartupDependency {
	processorNeeds := []string{"database"}
	deps := []startup.StartupDependency{
		startup.Func{Name: "database", OnStart: s.startDatabase, OnStop: func(context.Context) error {
			return s.db.Close()
		}},
	}

	if s.cfg.RedisEnabled {
		processorNeeds = append(processorNeeds, "redis")
		deps = append(deps, startup.Func{Name: "redis", OnStart: s.startRedis, OnStop: func(context.Context) error {
			return s.redis.Close()
		}})
	}
	if s.cfg.GraphEnabled {
		processorNeeds = append(processorNeeds, "graph")
		deps = append(deps, startup.Func{Name: "graph", OnStart: s.startGraph, OnStop: func(ctx context.Context) error {
			return s.graph.Close(ctx)
		}})
	}
	if s.cfg.KafkaProducerEnabled {
		processorNeeds = append(processorNeeds, "producer")
		deps = append(deps, startup.Func{Name: "producer", OnStart: s.startProducer, OnStop: func(context.Context) error {
			return s.producer.Close()
		}})
	}

	deps = append(deps,
		startup.Func{Name: "processor", Needs: processorNeeds, OnStart: s.startProcessor},
		startup.Func{Name: "http", Needs: []string{"processor"}, OnStart: s.startHTTP, OnStop: func(ctx context.Context) error {
			return s.echo.Shutdown(ctx)
		}},
	)

	if s.cfg.KafkaConsumerEnabled {
		deps = append(deps, startup.Func{Name: "consumer", Needs: []string{"processor"}, OnStart: s.startConsumer, OnStop: func(context.Context) error {
			return s.consumer.Stop()
		}})
	}
	return deps
}

func (s *server) startDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, databaseConfig(s.cfg), s.logger)
	if err != nil {
		return err
	}
	if s.cfg.DatabaseMigrateOnStart {
		if err := migrate(ctx, s.cfg, db, s.logger); err != nil {
			_ = db.Close()
			return err
		}
	}
	s.db = db
	s.health.AddCheck("database", db.PingContext)
	return nil
}

func (s *server) startRedis(context.Context) error {
	client, err := redis.NewClient(redis.Config{
		Host:     s.cfg.RedisHost,
		Port:     s.cfg.RedisPort,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	}, s.logger)
	if err != nil {
		return err
	}
	s.redis = client
	s.health.AddCheck("redis", client.Ping)
	return nil
}

func (s *server) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		Host:     s.cfg.GraphDBHost,
		Port:     s.cfg.GraphDBPort,
		Username: s.cfg.GraphDBUser,
		Password: s.cfg.GraphDBPassword,
		Database: s.cfg.GraphDBName,
	}, s.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return err
	}
	if err := client.EnsureSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return err
	}
	s.graph = client
	s.health.AddCheck("graph", client.VerifyConnectivity)
	return nil
}

func (s *server) startProducer(context.Context) error {
	s.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      s.cfg.KafkaBrokers,
		Topic:        s.cfg.KafkaOutputTopic,
		BatchSize:    s.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(s.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: s.cfg.KafkaRequiredAcks,
		Compression:  s.cfg.KafkaCompression,
	}, s.logger)
	return nil
}

func (s *server) startProcessor(context.Context) error {
	policy, err := rules.LoadPolicy(s.cfg.SyncPolicyFile)
	if err != nil {
		return err
	}
	prefix := policy.InvoicePrefix
	if s.cfg.SyncInvoicePrefix != "" {
		prefix = s.cfg.SyncInvoicePrefix
	}

	documents := document.NewRepository(s.db, s.logger)

	var locker rules.Locker
	if s.redis != nil {
		locker = redis.NewLocker(s.redis, "", s.cfg.SyncLockTTL)
	}

	var publishers []processor.Publisher
	if s.producer != nil {
		publishers = append(publishers, events.NewEmitter(s.producer, s.logger))
	}
	if s.graph != nil {
		publishers = append(publishers, graph.NewProjector(s.graph, s.logger))
	}

	s.processor = processor.NewProcessor(
		s.logger,
		documents,
		upsert.NewEngine(documents, s.logger, s.cfg.SyncRevisionCheck),
		rules.DefaultRegistry(policy, rules.NewNumberer(documents, locker, prefix, s.cfg.SyncLockTTL, s.logger)),
		summary.NewBuilder(),
		processor.WithPublishers(publishers...),
	)
	return nil
}

func (s *server) startConsumer(ctx context.Context) error {
	s.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       s.cfg.KafkaBrokers,
		Topic:         s.cfg.KafkaInputTopic,
		ConsumerGroup: s.cfg.KafkaConsumerGroup,
		MaxRetries:    s.cfg.KafkaMaxRetries,
		RetryBackoff:  s.cfg.KafkaRetryBackoff,
	}, s.logger, s.processor.HandleMessage)
	s.health.AddCheck("consumer", func(context.Context) error {
		if !s.consumer.Health() {
			return errors.New("consumer is not running")
		}
		return nil
	})
	// The consumer outlives the startup context.
	return s.consumer.Start(context.WithoutCancel(ctx))
}

func (s *server) startHTTP(context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(s.logger)
	e.Server.ReadTimeout = time.Duration(s.cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(s.cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(s.cfg.HttpServerIdleTimeoutSeconds) * time.Second

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(s.cfg.AppName))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: s.cfg.AllowOrigins}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(s.logger))

	s.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1", echomw.ContextTimeout(s.cfg.SyncRequestTimeout))
	if s.cfg.AuthEnabled {
		verifier, err := middleware.NewOIDCVerifier(context.Background(), s.cfg.AuthIssuerURL, s.cfg.AuthClientID)
		if err != nil {
			return err
		}
		api.Use(middleware.Authentication(s.logger, verifier))
	}
	syncroutes.NewHandler(s.processor, document.NewRepository(s.db, s.logger), s.logger).Register(api)

	s.echo = e
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	s.logger.Infof("HTTP server listening on %s", addr)
	return nil
}
