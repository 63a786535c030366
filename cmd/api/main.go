package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/orderdesk/internal/di"
	"github.com/hanko-field/orderdesk/internal/handlers"
	"github.com/hanko-field/orderdesk/internal/platform/auth"
	"github.com/hanko-field/orderdesk/internal/platform/config"
	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/platform/jobs"
	"github.com/hanko-field/orderdesk/internal/platform/observability"
	"github.com/hanko-field/orderdesk/internal/platform/secrets"
	platformstorage "github.com/hanko-field/orderdesk/internal/platform/storage"
	"github.com/hanko-field/orderdesk/internal/repositories"
	firestoreRepo "github.com/hanko-field/orderdesk/internal/repositories/firestore"
	"github.com/hanko-field/orderdesk/internal/repositories/memory"
	"github.com/hanko-field/orderdesk/internal/repositories/postgres"
	"github.com/hanko-field/orderdesk/internal/services"
)

const (
	meterName              = "github.com/hanko-field/orderdesk"
	envPubSubEmulatorHost  = "PUBSUB_EMULATOR_HOST"
	secretHealthReference  = "secret://system/healthz?version=latest"
	shutdownTimeout        = 10 * time.Second
	dependencyCloseTimeout = 5 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	infra, err := buildInfrastructure(ctx, logger, cfg, fetcher, buildInfo)
	if err != nil {
		logger.Fatal("failed to initialise infrastructure", zap.Error(err))
	}

	container, err := di.NewContainer(cfg, infra)
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), dependencyCloseTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	authenticator, err := buildAuthenticator(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise firebase auth", zap.Error(err))
	}

	svc := container.Services
	orderHandlers := handlers.NewAdminOrderHandlers(handlers.AdminOrderHandlersDeps{
		Authenticator:    authenticator,
		Queries:          svc.Queries,
		Status:           svc.Status,
		Amounts:          svc.Amounts,
		Bulk:             svc.Bulk,
		BulkPerMinute:    cfg.Orders.BulkPerMinute,
		BulkBurst:        cfg.Orders.BulkBurst,
		BulkTimeout:      cfg.Orders.BulkTimeout,
		MaxBulkSelection: cfg.Orders.MaxBulkSelection,
	})
	auditHandlers := handlers.NewAdminAuditHandlers(authenticator, svc.Audit)

	var healthOpts []handlers.HealthOption
	healthOpts = append(healthOpts, handlers.WithHealthBuildInfo(buildInfo))
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}

	projectID := traceProjectID(cfg)
	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithAdminRoutes(orderHandlers.Routes, auditHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr), zap.String("backend", cfg.Orders.Backend))
	go func() {
		serverLogger.Info("orderdesk api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildInfrastructure opens the order store, the audit sinks and the event publisher selected by
// configuration. Every opened client is registered as a closer on the returned value.
func buildInfrastructure(ctx context.Context, logger *zap.Logger, cfg config.Config, fetcher *secrets.Fetcher, build services.BuildInfo) (di.Infrastructure, error) {
	infra := di.Infrastructure{
		Logger: logger,
		Clock:  time.Now,
		Build:  build,
	}
	var checks []repositories.DependencyCheck

	metrics, err := observability.NewMetrics(otel.Meter(meterName))
	if err != nil {
		return infra, fmt.Errorf("register metrics: %w", err)
	}
	infra.Metrics = metrics

	if dsn := strings.TrimSpace(cfg.Postgres.AuditDSN); dsn != "" {
		mirror, err := postgres.Open(ctx, dsn,
			postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
			postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		)
		if err != nil {
			return infra, err
		}
		infra.AuditSinks = append(infra.AuditSinks, mirror)
		infra.Closers = append(infra.Closers, func(context.Context) error { return mirror.Close() })
		checks = append(checks, repositories.DependencyCheck{Name: "postgres", Timeout: time.Second, Optional: true, Check: mirror.Ping})
	}

	if bucket := strings.TrimSpace(cfg.Storage.AuditBucket); bucket != "" {
		client, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return infra, fmt.Errorf("storage client: %w", err)
		}
		infra.Closers = append(infra.Closers, func(context.Context) error { return client.Close() })
		writer, err := platformstorage.NewGCSObjectWriter(client)
		if err != nil {
			return infra, err
		}
		archive, err := platformstorage.NewAuditArchive(writer, bucket, cfg.Storage.ArchivePrefix)
		if err != nil {
			return infra, err
		}
		infra.AuditSinks = append(infra.AuditSinks, archive)
		checks = append(checks, repositories.DependencyCheck{
			Name:     "storage",
			Optional: true,
			Timeout:  1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				_, err := client.Bucket(bucket).Attrs(ctx)
				return err
			},
		})
	}

	if topicName := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topicName != "" && cfg.PubSub.ProjectID != "" {
		if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" && os.Getenv(envPubSubEmulatorHost) == "" {
			_ = os.Setenv(envPubSubEmulatorHost, host)
		}
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return infra, fmt.Errorf("pubsub client: %w", err)
		}
		infra.Closers = append(infra.Closers, func(context.Context) error { return client.Close() })
		topic := client.Topic(topicName)
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			return infra, err
		}
		// Stop flushes pending publishes before the client closes.
		infra.Closers = append(infra.Closers, func(context.Context) error { publisher.Stop(); return nil })
		infra.Events = publisher
		checks = append(checks, repositories.DependencyCheck{
			Name:     "pubsub",
			Optional: true,
			Timeout:  1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topicName)
				}
				return nil
			},
		})
	}

	if fetcher != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Optional: true,
			Timeout:  time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}

	switch cfg.Orders.Backend {
	case config.BackendMemory:
		health, err := healthRepository(checks)
		if err != nil {
			return infra, err
		}
		logger.Warn("orders: using in-memory store; data is lost on restart")
		infra.Registry = memory.NewRegistry(health)
	default:
		provider := pfirestore.NewProvider(cfg.Firestore)
		checks = append(checks, repositories.DependencyCheck{Name: "firestore", Timeout: 1500 * time.Millisecond, Check: provider.Ping})
		health, err := healthRepository(checks)
		if err != nil {
			return infra, err
		}
		reg, err := firestoreRepo.NewRegistry(provider, firestoreRepo.WithHealth(health))
		if err != nil {
			return infra, err
		}
		infra.Registry = reg
	}
	return infra, nil
}

func healthRepository(checks []repositories.DependencyCheck) (repositories.HealthRepository, error) {
	if len(checks) == 0 {
		return nil, nil
	}
	return repositories.NewDependencyHealthRepository(checks)
}

// buildAuthenticator returns a nil authenticator only for the local environment without Firebase.
func buildAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) (*auth.Authenticator, error) {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		if cfg.Security.Environment != "local" {
			return nil, errors.New("firebase project id is required outside local environments")
		}
		logger.Warn("auth: firebase not configured; admin requests carry no roles and are rejected")
		return nil, nil
	}
	// The auth emulator does not track revocations.
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase,
		auth.WithRevocationCheck(os.Getenv("FIREBASE_AUTH_EMULATOR_HOST") == ""),
	)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(verifier), nil
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
