package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"eventrouter/internal/broker"
	"eventrouter/internal/config"
	"eventrouter/internal/config_handler"
	"eventrouter/internal/constants"
	"eventrouter/internal/deadletter"
	"eventrouter/internal/dedup"
	"eventrouter/internal/dispatch"
	"eventrouter/internal/logger"
	"eventrouter/internal/management"
	"eventrouter/internal/rules"
	"eventrouter/internal/scheduler"
	"eventrouter/internal/targets"
	"eventrouter/pkg/bootstrap"
	"eventrouter/pkg/health"
	"eventrouter/pkg/logging"
	"eventrouter/pkg/metrics"
	"eventrouter/pkg/models"
	"eventrouter/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	stores *bootstrap.Stores

	// producers opened for targets or sinks whose kind differs from the
	// ingress broker.
	extraProducers map[string]broker.Producer

	registry   *rules.Registry
	rules      *rules.Service
	targets    *targets.Registry
	sink       deadletter.Sink
	retries    *deadletter.Handler
	dispatcher *dispatch.Dispatcher
	scheduler  *scheduler.Scheduler
	health     *health.CheckerRegistry

	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:           bootstrap.NewBase(cfg, log),
		extraProducers: make(map[string]broker.Producer),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	stores, err := bootstrap.OpenStores(ctx, a.Config.Database, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}
	a.stores = stores

	if err := a.InitBroker(constants.ServiceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterRouterMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}
	if a.Config.Management.Enabled {
		metrics.RegisterManagementMetrics()
	}

	if err := a.initTargets(); err != nil {
		return fmt.Errorf("failed to initialize targets: %w", err)
	}

	if err := a.initDeadLetters(ctx); err != nil {
		return fmt.Errorf("failed to initialize dead-letter sink: %w", err)
	}

	if err := a.initRouting(ctx); err != nil {
		return fmt.Errorf("failed to initialize routing: %w", err)
	}

	if err := a.initScheduler(); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	a.initHealth()

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

// producerFor returns a producer of the given broker kind, reusing the
// ingress producer when the kinds agree.
func (a *App) producerFor(kind string) (broker.Producer, error) {
	if a.Producer != nil && a.Config.Broker.Type == kind {
		return a.Producer, nil
	}
	if p, ok := a.extraProducers[kind]; ok {
		return p, nil
	}

	var p broker.Producer
	switch kind {
	case constants.BrokerKafka:
		p = broker.NewKafkaProducer(a.Config.Broker.Kafka, a.Logger)
	case constants.BrokerNATS:
		conn, err := a.EnsureNATS()
		if err != nil {
			return nil, err
		}
		p = broker.NewNATSProducer(conn, a.Logger)
	default:
		return nil, fmt.Errorf("unknown broker type: %s", kind)
	}
	a.extraProducers[kind] = p
	return p, nil
}

func (a *App) initTargets() error {
	deps := targets.Deps{
		CircuitBreaker: a.Config.CircuitBreaker,
		OnAbandon: func(ctx context.Context, ruleID, targetID string, env models.Envelope, attempts int, cause string) {
			a.retries.Abandon(ctx, ruleID, targetID, env, nil, attempts, cause)
		},
		Logger: a.Logger,
	}
	for _, t := range a.Config.Targets {
		var err error
		switch t.Type {
		case constants.TargetTypeKafka:
			if deps.Kafka == nil {
				deps.Kafka, err = a.producerFor(constants.BrokerKafka)
			}
		case constants.TargetTypeNATS:
			if deps.NATS == nil {
				deps.NATS, err = a.producerFor(constants.BrokerNATS)
			}
		}
		if err != nil {
			return fmt.Errorf("target %s: %w", t.ID, err)
		}
	}

	a.targets = targets.NewRegistry()
	if err := targets.RegisterAll(a.targets, a.Config.Targets, deps); err != nil {
		return err
	}
	a.Logger.Infow("Targets registered", "targets_count", len(a.Config.Targets))
	return nil
}

func (a *App) initDeadLetters(ctx context.Context) error {
	deps := deadletter.SinkDeps{
		Postgres: a.stores.Postgres,
		Mongo:    a.stores.MongoDB,
		Redis:    a.stores.Redis,
		Logger:   a.Logger.Named("deadletter"),
	}

	var err error
	switch a.Config.DeadLetter.Sink {
	case constants.SinkKafka:
		deps.KafkaTopic = a.Config.Broker.Kafka.DLQTopic
		deps.KafkaProducer, err = a.producerFor(constants.BrokerKafka)
	case constants.SinkNATS:
		deps.NATSSubject = a.Config.Broker.NATS.DLQSubject
		deps.NATSProducer, err = a.producerFor(constants.BrokerNATS)
	}
	if err != nil {
		return err
	}

	sink, err := deadletter.NewSink(ctx, a.Config.DeadLetter, deps)
	if err != nil {
		return err
	}
	a.sink = sink
	a.retries = deadletter.NewHandler(deadletter.PolicyFromConfig(a.Config.Retry), sink, a.Logger.Named("retry"))
	return nil
}

func (a *App) initRouting(ctx context.Context) error {
	registry, err := rules.NewRegistry(a.Logger.Named("rules"))
	if err != nil {
		return err
	}
	a.registry = registry

	var repo rules.Repository
	if a.Config.Rules.Source == constants.RuleSourcePostgres {
		if a.stores.Postgres == nil {
			return fmt.Errorf("rules source postgres requires a database")
		}
		repo = rules.NewRepository(a.stores.Postgres)
	}

	svc := rules.NewService(registry, repo, a.Config.Rules, a.Logger.Named("rules"))
	if a.Producer != nil {
		svc.WithNotifier(config_handler.NewNotifier(a.Producer, broker.ConfigUpdateTopic(a.Config.Broker), constants.ServiceName))
	}

	if err := svc.LoadConfigRules(a.Config.Rules.Definitions); err != nil {
		return err
	}
	if err := svc.ReloadRules(ctx, true); err != nil {
		initCtx := logging.WithServiceName(ctx, constants.ServiceName)
		a.Logger.WarnwCtx(initCtx, "Failed to load stored rules", "error", err)
	}
	a.rules = svc

	opts := dispatch.OptionsFromConfig(a.Config.Dispatch)
	dd, err := dedup.New(a.Config.Deduplication, a.Config.CircuitBreaker, a.stores.Redis, a.Logger.Named("dedup"))
	if err != nil {
		return err
	}
	if dd != nil {
		opts.Deduplicator = dd
	}
	a.dispatcher = dispatch.New(registry, a.targets, a.retries, a.Logger.Named("dispatch"), opts)
	return nil
}

func (a *App) initScheduler() error {
	a.scheduler = scheduler.New(a.dispatcher, a.registry, a.Logger.Named("scheduler"))
	if a.Config.Scheduler.Paused {
		a.scheduler.Pause()
	}
	for _, sc := range a.Config.Scheduler.Schedules {
		if err := a.scheduler.Add(scheduler.FromConfig(sc)); err != nil {
			return fmt.Errorf("schedule %s: %w", sc.ID, err)
		}
	}
	return nil
}

func (a *App) initHealth() {
	a.health = health.NewCheckerRegistry()
	if a.stores.Postgres != nil {
		a.health.Register(health.NewPostgreSQLChecker(a.stores.Postgres))
	}
	if a.stores.Redis != nil {
		a.health.RegisterOptional(health.NewRedisChecker(a.stores.Redis))
	}
	if a.stores.Mongo != nil {
		a.health.RegisterOptional(health.NewMongoDBChecker(a.stores.Mongo))
	}
	if a.NATS != nil {
		a.health.Register(health.NewNATSChecker(a.NATS))
	}
	a.health.Register(health.NewFuncChecker("dispatcher", a.dispatcher.Healthy))
}

func (a *App) initHTTPServer(ctx context.Context) error {
	var handler http.Handler
	if a.Config.Management.Enabled {
		var lister deadletter.Lister
		if l, ok := a.sink.(deadletter.Lister); ok {
			lister = l
		}
		h := management.NewHandler(management.Deps{
			Rules:       a.rules,
			Dispatcher:  a.dispatcher,
			Schedules:   a.scheduler,
			Targets:     a.targets,
			DeadLetters: lister,
		}, a.Logger.Named("management"))

		handler = management.NewRouter(ctx, h, management.RouterOptions{
			ServiceName: constants.ServiceName,
			Tracing:     a.Config.Tracing.Enabled,
			RateLimit:   a.Config.Management.RateLimit,
			Health:      a.health,
			Swagger:     true,
		}, a.Logger.Named("http"))
	} else {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			h := a.health.Check(r.Context())
			statusCode := http.StatusOK
			if h.Status == health.StatusUnhealthy {
				statusCode = http.StatusServiceUnavailable
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(statusCode)
			fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
		})
		mux.Handle("/metrics", promhttp.Handler())
		handler = mux
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	a.targets.Start()
	a.scheduler.Start(gCtx)

	g.Go(func() error {
		return ignoreCanceled(a.rules.StartReloader(gCtx))
	})

	if a.Consumer != nil {
		configTopic := broker.ConfigUpdateTopic(a.Config.Broker)
		if configTopic != "" {
			configConsumer, err := broker.NewConsumer(a.Config.Broker, a.NATS, a.Logger)
			if err != nil {
				configCtx := logging.WithServiceName(ctx, constants.ServiceName)
				a.Logger.WarnwCtx(configCtx, "Failed to create config event consumer, event-driven reload disabled",
					"error", err,
				)
			} else {
				configConsumer.SetServiceName(constants.ServiceName)
				defer configConsumer.Close()
				configEventHandler := config_handler.NewHandler(a.Logger).WithReloader(models.EventTypeRuleUpdated, a.rules)

				g.Go(func() error {
					configCtx := logging.WithServiceName(gCtx, constants.ServiceName)
					a.Logger.InfowCtx(configCtx, "Starting config update event consumer", "topic", configTopic)
					return ignoreCanceled(configConsumer.Consume(gCtx, configTopic, configEventHandler.HandleConfigUpdateEvent))
				})
			}
		}

		inputTopic := broker.InputTopic(a.Config.Broker)
		g.Go(func() error {
			return ignoreCanceled(a.Consumer.Consume(gCtx, inputTopic, a.handleMessage))
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return nil
	})

	return g.Wait()
}

func (a *App) handleMessage(ctx context.Context, env models.Envelope) error {
	receipt, err := a.dispatcher.Submit(ctx, env)
	if err != nil {
		a.Logger.ErrorwCtx(ctx, "Failed to submit event", "error", err)
		return err
	}
	a.Logger.DebugwCtx(ctx, "Event routed",
		"matched_rules", len(receipt.MatchedRules),
		"deliveries", receipt.Deliveries,
		"duplicate", receipt.Duplicate,
	)
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown stops ingress first, then drains the dispatcher while sinks and
// producers are still open.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down router service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.scheduler != nil {
			a.scheduler.Stop()
		}

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.dispatcher != nil {
			grace := a.Config.Dispatch.DrainGrace
			drainCtx, cancel := context.WithTimeout(ctx, grace+constants.ShutdownTimeout)
			defer cancel()
			if err := a.dispatcher.Drain(drainCtx, grace); err != nil {
				errs = append(errs, fmt.Errorf("dispatcher drain error: %w", err))
			}
		}

		// Queued targets outlive the run context so the dispatcher can still
		// hand them work while draining; they stop only once it is done.
		if a.targets != nil {
			stopCtx, cancel := context.WithTimeout(ctx, a.Config.Dispatch.DrainGrace)
			if n := a.targets.Stop(stopCtx); n > 0 {
				errs = append(errs, fmt.Errorf("queued targets abandoned %d envelopes at shutdown", n))
			}
			cancel()
			a.targets.Wait()
		}

		for kind, p := range a.extraProducers {
			if err := p.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s producer close error: %w", kind, err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.stores.Close(ctx)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
