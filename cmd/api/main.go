// Package main is the entry point for the tourism assistant API.
//
// Locally (APP_ENV=local) it runs a plain HTTP server and accepts the caller
// identity from the X-User-Id header. Inside AWS Lambda it serves API Gateway
// proxy events and takes the caller from the Cognito authorizer claims.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"tourism/internal/api/handlers"
	"tourism/internal/billing"
	"tourism/internal/config"
	"tourism/internal/core"
	"tourism/internal/db"
	"tourism/internal/dynamo"
	"tourism/internal/entitlement"
	"tourism/internal/external"
	"tourism/internal/metrics"
	"tourism/internal/security"
	"tourism/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("tourism API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"store_backend", cfg.Store.Backend,
	)

	ctx := context.Background()
	srv, err := buildServer(ctx, cfg, logger, awsConfigLoader(cfg))
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		lambda.Start(core.NewLambdaHandler(srv.Handler()).Handle)
		return nil
	}
	return runHTTPServer(srv, cfg, logger)
}

// secretProvider resolves *_SSM_PARAM variables from Parameter Store outside
// local mode.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return config.NewEnvVarProvider()
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "ap-northeast-1"
	}
	return config.NewSSMProvider(region)
}

// awsConfigLoader defers loading AWS credentials until a component needs them,
// so the memory and postgres backends run without an AWS environment.
func awsConfigLoader(cfg *config.Config) func(context.Context) (aws.Config, error) {
	var (
		loaded aws.Config
		err    error
		done   bool
	)
	return func(ctx context.Context) (aws.Config, error) {
		if !done {
			loaded, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
			done = true
		}
		return loaded, err
	}
}

// storeSet is the persistence chosen by STORE_BACKEND.
type storeSet struct {
	entitlements entitlement.Store
	payments     handlers.PaymentStore
	probe        core.HealthProbe
	close        func() error
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger, loadAWS func(context.Context) (aws.Config, error)) (*storeSet, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.Store.DatabaseURL.Unmask(), db.PoolOptions{
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			MaxConnLifetime: cfg.Store.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if cfg.Store.ApplySchema {
			if err := db.ApplySchema(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &storeSet{
			entitlements: db.NewEntitlementRepository(pool),
			payments:     db.NewPaymentRepository(pool, logger),
			probe:        core.ProbeFunc{ProbeName: "database", Fn: pool.Ping},
			close:        func() error { pool.Close(); return nil },
		}, nil

	case config.BackendDynamoDB:
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		client := dynamo.NewClient(awsCfg, cfg.AWS.EndpointURL)
		users := dynamo.NewEntitlementStore(client, cfg.Store.UsersTable, logger)
		return &storeSet{
			entitlements: users,
			payments:     dynamo.NewPaymentStore(client, cfg.Store.PaymentsTable),
			probe: core.ProbeFunc{ProbeName: "dynamodb", Fn: func(ctx context.Context) error {
				_, err := users.Get(ctx, "healthcheck")
				return err
			}},
			close: func() error { return nil },
		}, nil

	case config.BackendMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return &storeSet{
			entitlements: entitlement.NewMemoryStore(),
			payments:     billing.NewMemoryLedger(),
			close:        func() error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger, loadAWS func(context.Context) (aws.Config, error)) (metrics.Collector, error) {
	if !cfg.Observability.EnableMetrics || cfg.IsLocal() {
		return metrics.Nop{}, nil
	}
	awsCfg, err := loadAWS(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return metrics.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger), nil
}

// buildServer wires every dependency and mounts the routes.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, loadAWS func(context.Context) (aws.Config, error)) (*core.Server, error) {
	stores, err := openStores(ctx, cfg, logger, loadAWS)
	if err != nil {
		return nil, err
	}
	collector, err := newMetrics(ctx, cfg, logger, loadAWS)
	if err != nil {
		_ = stores.close()
		return nil, err
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		_ = stores.close()
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = collector
	srv.OnShutdown(stores.close)
	if stores.probe != nil {
		srv.HealthProbes = append(srv.HealthProbes, stores.probe)
	}
	if cfg.IsLocal() {
		srv.Authenticator = core.ChainAuthenticator{core.AuthorizerAuthenticator{}, core.HeaderAuthenticator{}}
	} else {
		srv.Authenticator = core.AuthorizerAuthenticator{}
	}

	clock := types.RealClock{}
	engine := entitlement.NewEngine(stores.entitlements, cfg.Entitlement.FreeTierLimit, logger,
		entitlement.WithObserver(collector))
	recorder := entitlement.NewRecorder(stores.entitlements, clock, logger)
	granter := entitlement.NewGranter(stores.entitlements, logger)
	catalog := billing.NewCatalog(cfg.Billing.PriceIDs())

	stripeClient := external.NewStripeClient(outboundClient(cfg, cfg.Billing.Timeout), external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey,
		BaseURL:   cfg.Billing.StripeBaseURL,
		Logger:    logger,
	})
	analyzer := external.NewGeminiAnalyzer(outboundClient(cfg, cfg.Analysis.Timeout), external.GeminiConfig{
		APIKey:   cfg.Analysis.GeminiAPIKey,
		Model:    cfg.Analysis.GeminiModel,
		Endpoint: cfg.Analysis.GeminiEndpoint,
		Logger:   logger,
	})

	usageHandler := handlers.NewUsageHandler(engine, engine.FreeTierLimit(), clock, logger)
	analysisHandler := handlers.NewAnalysisHandler(engine, recorder, analyzer, srv.Validator, clock, logger)
	billingHandler := handlers.NewBillingHandler(stripeClient, catalog, stores.payments, cfg.Server.FrontendURL, srv.Validator, logger)
	userHandler := handlers.NewUserHandler(engine, stores.entitlements, stores.payments, clock, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(external.StripeVerifier{}, stores.payments, granter, stores.entitlements, catalog,
		cfg.Billing.StripeWebhookSecret, clock, logger)

	srv.V1Routes = append(srv.V1Routes,
		usageHandler.RegisterRoutes,
		analysisHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		userHandler.RegisterRoutes,
	)
	srv.PublicRoutes = append(srv.PublicRoutes, webhookHandler.RegisterRoutes)
	srv.MountRoutes()
	return srv, nil
}

// outboundClient returns the provider HTTP client. Local runs may point the
// providers at mocks on localhost, so the address guard is skipped there.
func outboundClient(cfg *config.Config, timeout time.Duration) *http.Client {
	if cfg.IsLocal() {
		return &http.Client{Timeout: timeout}
	}
	return security.NewOutboundClient(nil, timeout, 3)
}

// isLambdaEnvironment reports whether the process runs inside the Lambda runtime.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer serves until SIGINT/SIGTERM and then drains for up to 10s.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger for the given level name.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
