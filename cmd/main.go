package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/YelzhanWeb/qristal-sync/internal/adapter/logger"
	"github.com/YelzhanWeb/qristal-sync/internal/adapter/postgres"
	"github.com/YelzhanWeb/qristal-sync/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/qristal-sync/internal/app/inventory"
	appsync "github.com/YelzhanWeb/qristal-sync/internal/app/sync"
	"github.com/YelzhanWeb/qristal-sync/internal/config"
	"github.com/YelzhanWeb/qristal-sync/internal/interfaces"

	amqpAdapter "github.com/YelzhanWeb/qristal-sync/internal/adapter/amqp"
	httpAdapter "github.com/YelzhanWeb/qristal-sync/internal/adapter/http"
)

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	configPath string
	port       int
}

func main() {
	// terminals expect prices and stock as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "qristal-sync",
		Short: "Offline-first POS synchronization service",
		Long: `Reconciles offline POS terminals with the central store.

Terminals push the shifts, orders, payments and audit logs they recorded
offline and pull catalog, staff, seating and order changes for their branch.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML config file")
	cmd.PersistentFlags().IntVar(&opts.port, "port", 0, "HTTP port, overrides http.port")

	cmd.AddCommand(newSyncServiceCommand(opts))
	cmd.AddCommand(newInventoryWorkerCommand(opts))
	cmd.AddCommand(newDashboardSubscriberCommand(opts))

	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.port != 0 {
		cfg.HTTP.Port = o.port
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newSyncServiceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-service",
		Short: "Serve the terminal sync API",
		Long: `Serves /sync/pull, /sync/push and /sync/logs.

Unless outbox.embedded_worker is false, the same process also drains the
inventory deduction outbox.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runSyncService(ctx, cfg, logger.New("sync-service"))
		},
	}
}

func newInventoryWorkerCommand(opts *rootOptions) *cobra.Command {
	var prefetch int

	cmd := &cobra.Command{
		Use:   "inventory-worker",
		Short: "Drain the inventory deduction outbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runInventoryWorker(ctx, cfg, logger.New("inventory-worker"), prefetch)
		},
	}

	cmd.Flags().IntVar(&prefetch, "prefetch", 1, "RabbitMQ prefetch count")
	return cmd
}

func newDashboardSubscriberCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard-subscriber",
		Short: "Log every live dashboard event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runDashboardSubscriber(ctx, cfg, logger.New("dashboard-subscriber"))
		},
	}
}

func connectStore(ctx context.Context, cfg *config.Config, lgr logger.Logger) (postgres.DB, error) {
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := postgres.ApplySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})
	return db, nil
}

func connectBroker(cfg *config.Config, lgr logger.Logger) (rabbitmq.Connection, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}

	lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
		"host":  cfg.RabbitMQ.Host,
		"vhost": cfg.RabbitMQ.VHost,
	})
	return conn, nil
}

func newWorker(db postgres.DB, publisher interfaces.EventPublisher, lgr logger.Logger, cfg config.OutboxConfig) *inventory.Worker {
	effector := inventory.NewEffector(postgres.NewInventoryRepository(db), lgr)
	return inventory.NewWorker(postgres.NewOutboxRepository(db), effector, publisher, lgr, cfg)
}

func runSyncService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	db, err := connectStore(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer db.Close()

	// live events are advisory, so the API starts without the broker
	mqConn, err := connectBroker(cfg, lgr)
	if err != nil {
		lgr.Error("rabbitmq_unavailable", "RabbitMQ unavailable, events will redial on publish", "startup", map[string]interface{}{
			"host": cfg.RabbitMQ.Host,
		}, err)
		mqConn = rabbitmq.NewDeferredConnection(cfg.RabbitMQ)
	}
	defer mqConn.Close()

	publisher := rabbitmq.NewPublisher(mqConn)
	worker := newWorker(db, publisher, lgr, cfg.Outbox)

	// an embedded worker is woken in-process; otherwise a standalone
	// inventory-worker is nudged through the broker
	var requester interfaces.DeductionRequester = publisher
	if cfg.Outbox.EmbeddedWorker {
		requester = worker
	}

	ledger := appsync.NewLedger(postgres.NewSyncLogRepository(db), lgr)
	reconciler := appsync.NewReconciler(
		postgres.NewChangeLog(db),
		postgres.NewChangeStore(db),
		ledger,
		publisher,
		requester,
		lgr,
		cfg.Sync,
	)

	handler := httpAdapter.NewRouter(
		httpAdapter.NewSyncHandler(reconciler, lgr),
		httpAdapter.NewInventoryHandler(worker, lgr),
		lgr,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Outbox.EmbeddedWorker {
		g.Go(func() error { return worker.Run(ctx) })
	}

	g.Go(func() error {
		lgr.Info("service_started", fmt.Sprintf("Sync Service started on port %d", cfg.HTTP.Port), "startup", map[string]interface{}{
			"port":            cfg.HTTP.Port,
			"embedded_worker": cfg.Outbox.EmbeddedWorker,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		lgr.Info("shutdown_initiated", "Shutting down Sync Service", "shutdown", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return ignoreCanceled(g.Wait())
}

func runInventoryWorker(ctx context.Context, cfg *config.Config, lgr logger.Logger, prefetch int) error {
	db, err := connectStore(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer db.Close()

	mqConn, err := connectBroker(cfg, lgr)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	worker := newWorker(db, rabbitmq.NewPublisher(mqConn), lgr, cfg.Outbox)
	consumer := rabbitmq.NewConsumer(mqConn, prefetch, lgr)
	handler := amqpAdapter.NewDeductionHandler(worker, lgr)

	lgr.Info("service_started", "Inventory Worker started", "startup", map[string]interface{}{
		"prefetch":     prefetch,
		"max_attempts": cfg.Outbox.MaxAttempts,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error { return consumer.ConsumeDeductionRequests(ctx, handler.HandleDeductionRequest) })

	err = ignoreCanceled(g.Wait())
	lgr.Info("graceful_shutdown", "Inventory Worker stopped", "shutdown", nil)
	return err
}

func runDashboardSubscriber(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	mqConn, err := connectBroker(cfg, lgr)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	consumer := rabbitmq.NewConsumer(mqConn, 1, lgr)
	handler := amqpAdapter.NewDashboardHandler(lgr)

	lgr.Info("service_started", "Dashboard Subscriber started", "startup", nil)

	err = ignoreCanceled(consumer.ConsumeDashboardEvents(ctx, handler.HandleDashboardEvent))
	lgr.Info("shutdown_initiated", "Shutting down Dashboard Subscriber", "shutdown", nil)
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
