// Package config defines the configuration of the tourism assistant backend.
// It is loaded once at startup (Lambda cold start or local process) and never
// modified afterwards.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"tourism/internal/types"
)

// SecretString is an alias for types.SecretString so secrets loaded here are
// redacted in logs and JSON.
type SecretString = types.SecretString

// Store backends selectable with STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config is the top-level configuration struct. Components receive only the
// section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tourism-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Store         StoreConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Entitlement   EntitlementConfig
	Analysis      AnalysisConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// IsLocal reports whether the process runs outside AWS.
func (c *Config) IsLocal() bool { return c.Environment == localEnv }

// ServerConfig holds the HTTP listener and public URL configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	FrontendURL    string        `envconfig:"FRONTEND_URL" validate:"required,url"` // no trailing slash
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`        // API Gateway hard limit is 29s
}

// StoreConfig selects and tunes the entitlement and payment stores.
type StoreConfig struct {
	Backend string `envconfig:"STORE_BACKEND" default:"dynamodb" validate:"oneof=postgres dynamodb memory"`

	// postgres
	DatabaseURL     SecretString  `envconfig:"DATABASE_URL"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	ApplySchema     bool          `envconfig:"DB_APPLY_SCHEMA" default:"false"`

	// dynamodb
	UsersTable    string `envconfig:"USERS_TABLE" default:"tourism-users"`
	PaymentsTable string `envconfig:"PAYMENTS_TABLE" default:"tourism-payments"`
}

// AWSConfig holds regional configuration shared by the AWS SDK clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-northeast-1"`
	// LocalStack / DynamoDB Local support. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe credentials and the price of each premium pass.
type BillingConfig struct {
	StripeSecretKey     SecretString  `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret SecretString  `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeBaseURL       string        `envconfig:"STRIPE_BASE_URL"`
	Price7Days          string        `envconfig:"STRIPE_PRICE_7DAYS"`
	Price20Days         string        `envconfig:"STRIPE_PRICE_20DAYS"`
	Timeout             time.Duration `envconfig:"STRIPE_TIMEOUT" default:"20s"`
}

// PriceIDs maps plan keys to their configured Stripe price IDs.
func (b BillingConfig) PriceIDs() map[string]string {
	return map[string]string{
		"7days":  b.Price7Days,
		"20days": b.Price20Days,
	}
}

// EntitlementConfig holds the free-tier allowance.
type EntitlementConfig struct {
	FreeTierLimit int `envconfig:"FREE_TIER_LIMIT" default:"5" validate:"min=1"`
}

// AnalysisConfig holds the image analysis provider settings.
type AnalysisConfig struct {
	GeminiAPIKey   SecretString  `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	GeminiEndpoint string        `envconfig:"GEMINI_ENDPOINT"`
	Timeout        time.Duration `envconfig:"ANALYSIS_TIMEOUT" default:"25s"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds metric publishing settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"TourismAssistant"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
