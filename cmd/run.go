package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/database"
	"github.com/master-pd/MARPD-MAX/events"
	"github.com/master-pd/MARPD-MAX/infrastructure"
	"github.com/master-pd/MARPD-MAX/observability"
	"github.com/master-pd/MARPD-MAX/repository"
	"github.com/master-pd/MARPD-MAX/service"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ConfigureLogging sets the global logger level and format
func ConfigureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// runtime holds the wired core and everything that must be closed with it
type runtime struct {
	core    *service.Core
	db      *database.DB
	metrics *observability.MetricsProvider
	nats    *infrastructure.NATSClient
}

// newRuntime connects to the database and NATS and builds the core
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	metrics := observability.NewMetricsProvider(cfg)
	if err := metrics.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	eventBus := events.NewBus()
	rt := &runtime{db: db, metrics: metrics}

	var publisher infrastructure.MessagePublisher = infrastructure.NewNoopMessagePublisher()
	if cfg.NATSServers != "" {
		client := infrastructure.NewNATSClient(cfg.NATSServers, cfg.OTelServiceName)
		if err := client.Connect(ctx); err != nil {
			db.Close()
			return nil, err
		}
		mapper := infrastructure.NewEventSubjectMapper()
		if err := client.EnsureStream(infrastructure.StreamName, mapper.GetAllSubjects()); err != nil {
			client.Close()
			db.Close()
			return nil, err
		}
		publisher = client
		rt.nats = client
	}
	infrastructure.NewNATSEventPublisher(publisher, infrastructure.NewEventSubjectMapper(), metrics, cfg.OTelServiceName).Attach(eventBus)

	rt.core = service.NewCore(
		repository.NewUnitOfWorkFactory(db, eventBus),
		repository.NewLedgerRepository(db),
		cfg,
		service.CryptoRandom{},
		metrics,
	)
	return rt, nil
}

// close releases the runtime's connections, flushing metrics last
func (rt *runtime) close() {
	if rt.nats != nil {
		if err := rt.nats.Close(); err != nil {
			log.WithError(err).Warn("Error closing NATS connection")
		}
	}
	rt.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.metrics.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Error shutting down metrics")
	}
}

// Run starts the wallet core and its workers and blocks until ctx is cancelled
func Run(ctx context.Context) error {
	cfg := config.Get()
	ConfigureLogging(cfg)
	log.WithField("environment", cfg.Environment).Info("Starting wallet core...")

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	stopWorkers, err := rt.core.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start core: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Stopping workers...")
		stopWorkers()
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := rt.db.Ping(gctx); err != nil && gctx.Err() == nil {
					log.WithError(err).Error("Database health check failed")
				}
			}
		}
	})

	log.Info("Wallet core is running")
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Shutdown completed")
	return nil
}
