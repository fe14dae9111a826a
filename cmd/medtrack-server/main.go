package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/medtrack/medtrack/internal/config"
	"github.com/medtrack/medtrack/internal/domain/device"
	"github.com/medtrack/medtrack/internal/domain/doselog"
	"github.com/medtrack/medtrack/internal/domain/patient"
	"github.com/medtrack/medtrack/internal/domain/schedule"
	"github.com/medtrack/medtrack/internal/domain/user"
	"github.com/medtrack/medtrack/internal/platform/apperr"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/platform/logging"
	"github.com/medtrack/medtrack/internal/platform/middleware"
	"github.com/medtrack/medtrack/internal/platform/mongodb"
	"github.com/medtrack/medtrack/internal/platform/mqtt"
)

const (
	shutdownTimeout = 10 * time.Second
	bodyLimit       = "1M"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "medtrack-server",
		Short:        "Medicine adherence tracker API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(indexesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPostgres(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPostgres(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(os.Stdout, statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStoreConfig(config.StoreMongo)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cli, err := mongodb.Connect(ctx, mongoConfig(cfg))
			if err != nil {
				return err
			}
			defer cli.Close(context.Background())

			if err := mongodb.EnsureIndexes(ctx, cli.Database()); err != nil {
				return err
			}
			fmt.Println("Indexes are up to date.")
			return nil
		},
	}
}

func loadStoreConfig(driver string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.StoreDriver = driver
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := loadStoreConfig(config.StorePostgres)
	if err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func mongoConfig(cfg *config.Config) mongodb.Config {
	return mongodb.Config{
		URI:         cfg.MongoURI,
		Database:    cfg.MongoDatabase,
		Timeout:     cfg.MongoTimeout,
		MaxPoolSize: cfg.MongoMaxPoolSize,
	}
}

// repositories is the store-specific half of the wiring.
type repositories struct {
	users     user.Repository
	patients  patient.Repository
	schedules schedule.Repository
	events    doselog.Repository
	pinger    db.Pinger
	close     func()
}

func openRepositories(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repositories, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		if _, err := db.NewMigrator(pool, db.Migrations()).Up(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("connected to postgres")
		return &repositories{
			users:     user.NewRepoPG(pool),
			patients:  patient.NewRepoPG(pool),
			schedules: schedule.NewRepoPG(pool),
			events:    doselog.NewRepoPG(pool),
			pinger:    pool,
			close:     pool.Close,
		}, nil

	case config.StoreMongo:
		cli, err := mongodb.Connect(ctx, mongoConfig(cfg))
		if err != nil {
			return nil, err
		}
		database := cli.Database()
		if err := ensureIndexes(ctx, database, mongodb.EnsureIndexes, logger); err != nil {
			_ = cli.Close(context.Background())
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongodb")
		return &repositories{
			users:     user.NewRepoMongo(database),
			patients:  patient.NewRepoMongo(database),
			schedules: schedule.NewRepoMongo(database),
			events:    doselog.NewRepoMongo(database),
			pinger:    cli,
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := cli.Close(ctx); err != nil {
					logger.Warn().Err(err).Msg("mongodb disconnect")
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// ensureIndexes builds the Mongo indexes for serve. Data that already
// violates a unique index is logged and left for an operator to clean up,
// after which the indexes command builds the rest. Any other failure aborts
// startup.
func ensureIndexes(ctx context.Context, database *mongo.Database, ensure func(context.Context, *mongo.Database) error, logger zerolog.Logger) error {
	err := ensure(ctx, database)
	if err == nil || !mongodb.IsDuplicateKey(err) {
		return err
	}
	logger.Warn().Err(err).Msg("existing documents violate a unique index; serving without it")
	return nil
}

// services holds everything the HTTP layer and the MQTT gateway call into.
type services struct {
	users     *user.Service
	patients  *patient.Service
	devices   *device.Service
	schedules *schedule.Service
	doses     *doselog.Service
}

func newServices(cfg *config.Config, repos *repositories, tokens *auth.TokenIssuer, publisher schedule.Publisher, logger zerolog.Logger) *services {
	scheduleOpts := []schedule.Option{
		schedule.WithStrictCaregivers(cfg.ScheduleStrictCaregivers),
		schedule.WithLogger(logger),
	}
	if publisher != nil {
		scheduleOpts = append(scheduleOpts, schedule.WithPublisher(publisher))
	}
	return &services{
		users:     user.NewService(repos.users, repos.patients, tokens, logger),
		patients:  patient.NewService(repos.patients),
		devices:   device.NewService(repos.patients),
		schedules: schedule.NewService(repos.schedules, repos.patients, scheduleOpts...),
		doses:     doselog.NewService(repos.events, repos.patients),
	}
}

// newServer builds the echo instance with middleware and routes. Device
// routes are public; everything a person does needs a bearer token.
func newServer(cfg *config.Config, logger zerolog.Logger, svcs *services, pinger db.Pinger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.CORS(cfg.AllowedOrigins(), !cfg.IsProduction()))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(bodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"message": "Server is running",
		})
	})
	if pinger != nil {
		e.GET("/health/store", db.HealthHandler(cfg.StoreDriver, pinger))
	}

	api := e.Group("/api")
	user.NewHandler(svcs.users).RegisterRoutes(api)

	deviceHandler := device.NewHandler(svcs.devices)
	scheduleHandler := schedule.NewHandler(svcs.schedules)
	deviceHandler.RegisterPublicRoutes(api)
	scheduleHandler.RegisterPublicRoutes(api)
	doselog.NewHandler(svcs.doses).RegisterRoutes(api)

	protected := api.Group("", auth.JWTMiddleware(auth.JWTConfig{SigningKey: []byte(cfg.JWTSecret)}))
	patient.NewHandler(svcs.patients).RegisterRoutes(protected)
	deviceHandler.RegisterRoutes(protected)
	scheduleHandler.RegisterRoutes(protected)

	return e
}

func mqttConfig(cfg *config.Config) mqtt.Config {
	return mqtt.Config{
		BrokerURL:   cfg.MQTTBrokerURL,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
	}
}

// lazyPublisher lets the schedule service be built before the gateway that
// depends on the device and dose services.
type lazyPublisher struct{ gw *mqtt.Gateway }

func (p *lazyPublisher) PublishSchedule(ctx context.Context, s *schedule.Schedule) error {
	if p.gw == nil {
		return errors.New("mqtt gateway not started")
	}
	return p.gw.PublishSchedule(ctx, s)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.LogOptions())
	if err != nil {
		return err
	}
	defer logCloser.Close()

	lifetime, _ := cfg.TokenLifetime()
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), lifetime)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("store", cfg.StoreDriver).Msg("failed to connect to store")
		return err
	}
	defer repos.close()

	var (
		publisher schedule.Publisher
		lazy      *lazyPublisher
	)
	if cfg.MQTTEnabled() {
		lazy = &lazyPublisher{}
		publisher = lazy
	}
	svcs := newServices(cfg, repos, tokens, publisher, logger)
	e := newServer(cfg, logger, svcs, repos.pinger)

	g, gctx := errgroup.WithContext(ctx)

	if lazy != nil {
		gw := mqtt.New(mqttConfig(cfg), svcs.devices, svcs.doses, logger)
		lazy.gw = gw
		defer gw.Close()
		g.Go(func() error {
			// The HTTP API keeps serving if the broker is unreachable.
			if err := gw.Connect(gctx); err != nil && gctx.Err() == nil {
				logger.Error().Err(err).Msg("mqtt gateway disabled")
			}
			return nil
		})
	}

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
