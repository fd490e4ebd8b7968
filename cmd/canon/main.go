package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/scout-edge/canon/config"
	"github.com/scout-edge/canon/internal/repositories/brandtaxonomy"
	"github.com/scout-edge/canon/internal/repositories/canonical"
	"github.com/scout-edge/canon/internal/repositories/pipelinerun"
	"github.com/scout-edge/canon/internal/repositories/rawpayload"
	"github.com/scout-edge/canon/internal/repositories/storedirectory"
	"github.com/scout-edge/canon/pkg/database"
	"github.com/scout-edge/canon/pkg/dedup"
	"github.com/scout-edge/canon/pkg/events"
	"github.com/scout-edge/canon/pkg/geo"
	"github.com/scout-edge/canon/pkg/items"
	"github.com/scout-edge/canon/pkg/kafka"
	"github.com/scout-edge/canon/pkg/logging"
	"github.com/scout-edge/canon/pkg/parser"
	"github.com/scout-edge/canon/pkg/pipeline"
	"github.com/scout-edge/canon/pkg/quality"
	"github.com/scout-edge/canon/pkg/redis"
	"github.com/scout-edge/canon/pkg/routes/health"
	runroute "github.com/scout-edge/canon/pkg/routes/run"
	"github.com/scout-edge/canon/pkg/routes/transaction"
	"github.com/scout-edge/canon/pkg/substitution"
	"github.com/scout-edge/canon/pkg/tracing"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "canon",
		Short: "Transaction canonicalization pipeline",
	}

	root.AddCommand(serveCmd(), runCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the pipeline API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := connectDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return migrateDatabase(cfg, logger, db)
		},
	}
}

// bootstrap loads configuration and builds the logger.
func bootstrap() (*config.Config, ectologger.Logger, error) {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &cfg, logger, nil
}

func connectDatabase(cfg *config.Config, logger ectologger.Logger) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	db, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	logger.Infof("Connected to database %s", cfg.DatabaseName)
	return db, nil
}

func migrateDatabase(cfg *config.Config, logger ectologger.Logger, db *sqlx.DB) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	svc := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return svc.Migrate(cfg.DatabaseName, driver)
}

// application holds the wired dependencies shared by serve and run.
type application struct {
	cfg      *config.Config
	logger   ectologger.Logger
	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
	pipeline *pipeline.Pipeline
	runs     *pipelinerun.Repository
	txs      *canonical.Repository
}

func (a *application) close() {
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// buildApplication wires the full pipeline from configuration. Redis and
// Kafka are optional; the pipeline degrades to unlocked runs and silent
// events when they are not configured.
func buildApplication(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (*application, error) {
	sqlDB, err := connectDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}
	db := database.NewDatabaseInstance(sqlDB, logger)

	app := &application{cfg: cfg, logger: logger, db: db}

	if err := migrateDatabase(cfg, logger, sqlDB); err != nil {
		app.close()
		return nil, err
	}

	var locker pipeline.RunLocker
	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Warn("Redis unavailable, runs will not be lock-guarded")
	} else {
		app.redis = redisClient
		locker = pipeline.NewRedisRunLocker(redis.NewLocker(redisClient, "canon:"))
	}

	if cfg.KafkaEnabled {
		app.producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaRunTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
	}
	emitter := events.NewEmitter(app.producer, logger)

	payloadRepo := rawpayload.NewRepository(db, logger)
	storeRepo := storedirectory.NewRepository(db, logger)
	brandRepo := brandtaxonomy.NewRepository(db, logger)
	app.runs = pipelinerun.NewRepository(db, logger)
	app.txs = canonical.NewRepository(db, logger)

	geoResolver := geo.NewResolver(storeRepo, geo.Bounds{
		MinLatitude:  cfg.GeoMinLatitude,
		MaxLatitude:  cfg.GeoMaxLatitude,
		MinLongitude: cfg.GeoMinLongitude,
		MaxLongitude: cfg.GeoMaxLongitude,
	}, logger)

	app.pipeline = pipeline.New(
		pipeline.Config{
			WorkerCount: cfg.ParseWorkerCount,
			BatchSize:   cfg.ParseBatchSize,
			LockTTL:     cfg.RunLockTTL,
		},
		parser.New(),
		dedup.NewEngine(dedup.Config{
			DenylistedStoreIDs: cfg.DenylistedStoreIDs,
			MinPayloadBytes:    cfg.MinPayloadBytes,
		}),
		geoResolver,
		items.NewExtractor(brandRepo, logger),
		substitution.NewDetector(substitution.Config{
			ShortThreshold: cfg.SubstitutionShortThreshold,
			LongThreshold:  cfg.SubstitutionLongThreshold,
			LowConfidence:  cfg.SubstitutionLowConfidence,
			MidConfidence:  cfg.SubstitutionMidConfidence,
			HighConfidence: cfg.SubstitutionHighConfidence,
		}),
		quality.NewScorer(quality.Weights{
			TransactionID: cfg.QualityWeightTransactionID,
			TotalAmount:   cfg.QualityWeightTotalAmount,
			Timestamp:     cfg.QualityWeightTimestamp,
			Municipality:  cfg.QualityWeightMunicipality,
			DeviceID:      cfg.QualityWeightDeviceID,
			StoreID:       cfg.QualityWeightStoreID,
			Transcript:    cfg.QualityWeightTranscript,
		}),
		payloadRepo,
		app.runs,
		app.txs,
		brandRepo,
		locker,
		emitter,
		logger,
	)

	return app, nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	if cfg.TracingEnabled {
		shutdown, err := tracing.Init(ctx, cfg.AppName, cfg.TracingEndpoint)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var redisPinger health.Pinger
	if app.redis != nil {
		redisPinger = app.redis
	}
	checker := health.NewChecker(app.db, redisPinger, version)
	checker.RegisterRoutes(e)

	runroute.NewHandler(app.pipeline, app.runs).Register(e.Group("/api/v1/runs"))
	transaction.NewHandler(app.txs).Register(e.Group("/api/v1/transactions"))

	schedulerCtx, cancelScheduler := context.WithCancel(ctx)
	defer cancelScheduler()
	if cfg.ScheduleInterval > 0 {
		scheduler := pipeline.NewScheduler(app.pipeline, cfg.ScheduleInterval, logger)
		go scheduler.Start(schedulerCtx)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:  time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
	}

	go func() {
		checker.SetReady(true)
		logger.Infof("Starting %s on port %d", cfg.AppName, cfg.Port)
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	checker.SetReady(false)
	cancelScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func runOnce(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	run, err := app.pipeline.Run(ctx)
	if err != nil && run == nil {
		return err
	}

	summary, marshalErr := json.MarshalIndent(run, "", "  ")
	if marshalErr != nil {
		return marshalErr
	}
	fmt.Println(string(summary))

	return err
}

// errorHandler maps httperror-wrapped errors onto their status codes.
func errorHandler(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := err.Error()

		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			status = echoErr.Code
			message = fmt.Sprintf("%v", echoErr.Message)
		} else if httperror.IsHTTPError(err) {
			status = httperror.GetStatusCode(err)
		}

		if status >= http.StatusInternalServerError {
			logger.WithContext(c.Request().Context()).WithError(err).Error("Request failed")
		}

		if jsonErr := c.JSON(status, map[string]string{"error": message}); jsonErr != nil {
			logger.WithContext(c.Request().Context()).WithError(jsonErr).Error("Failed to write error response")
		}
	}
}
