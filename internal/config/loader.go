package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// SecretProvider resolves secret references (SSM parameter paths in AWS, env
// var names locally) to plaintext values. Keys that cannot be found are left
// out of the returned map.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// ConfigError is returned by LoadConfig for every failure.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ssmParamSuffix marks pointer variables: STRIPE_SECRET_KEY_SSM_PARAM holds
// the SSM path whose value becomes STRIPE_SECRET_KEY.
const ssmParamSuffix = "_SSM_PARAM"

const localEnv = "local"

type loaderDeps struct {
	lookupEnv func(string) (string, bool)
	setEnv    func(string, string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{lookupEnv: os.LookupEnv, setEnv: os.Setenv, environ: os.Environ}
}

// LoadConfig loads and validates the configuration:
//  1. Sets the process timezone to UTC.
//  2. Loads .env if present. Existing variables win.
//  3. Outside local mode, resolves every *_SSM_PARAM variable via provider.
//  4. Populates Config with envconfig and BuildInfo from ldflags.
//  5. Validates tags plus cross-field rules (backend credentials, billing
//     and analysis secrets outside local mode).
//
// provider may be nil when APP_ENV=local or no *_SSM_PARAM variable is set.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	_ = godotenv.Load()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment configuration", Err: err}
	}
	cfg.Server.FrontendURL = strings.TrimRight(cfg.Server.FrontendURL, "/")
	cfg.Build = NewBuildInfo()

	if err := newValidator().Struct(cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	return &cfg, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateConfig, Config{})
	return v
}

// validateConfig holds the rules that depend on more than one field.
func validateConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	if cfg.Store.Backend == BackendPostgres && !cfg.Store.DatabaseURL.IsSet() {
		sl.ReportError(cfg.Store.DatabaseURL, "DatabaseURL", "DatabaseURL", "required_for_postgres", "")
	}
	if cfg.Store.Backend == BackendMemory && cfg.Environment != localEnv {
		sl.ReportError(cfg.Store.Backend, "Backend", "Backend", "memory_only_local", "")
	}
	if cfg.Environment == localEnv {
		return
	}
	required := map[string]bool{
		"StripeSecretKey":     cfg.Billing.StripeSecretKey.IsSet(),
		"StripeWebhookSecret": cfg.Billing.StripeWebhookSecret.IsSet(),
		"Price7Days":          cfg.Billing.Price7Days != "",
		"Price20Days":         cfg.Billing.Price20Days != "",
		"GeminiAPIKey":        cfg.Analysis.GeminiAPIKey.IsSet(),
	}
	for field, ok := range required {
		if !ok {
			sl.ReportError("", field, field, "required_outside_local", "")
		}
	}
}

// ResolveSecrets runs only the SSM step, for entry points that read
// individual variables before calling LoadConfig. No-op when APP_ENV=local.
func ResolveSecrets(provider SecretProvider) error {
	if appEnv, _ := os.LookupEnv("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// resolveSSMParams fetches every *_SSM_PARAM target that is not already set
// and exports the result. A variable set directly always wins over SSM.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	pathToTarget := make(map[string]string)
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		pathToTarget[path] = target
	}
	if len(pathToTarget) == 0 {
		return nil
	}

	paths := make([]string, 0, len(pathToTarget))
	for p := range pathToTarget {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if provider == nil {
		targets := make([]string, 0, len(paths))
		for _, p := range paths {
			targets = append(targets, pathToTarget[p])
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "SecretProvider is required outside local mode (need to resolve: " + strings.Join(targets, ", ") + ")",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{Type: ErrSSMResolution, Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)), Err: err}
	}

	var missing []string
	for _, p := range paths {
		value, ok := resolved[p]
		if !ok {
			missing = append(missing, pathToTarget[p])
			continue
		}
		if err := deps.setEnv(pathToTarget[p], value); err != nil {
			return &ConfigError{Type: ErrSSMResolution, Message: "failed to export " + pathToTarget[p], Err: err}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Type: ErrSSMResolution, Message: "SSM parameters not found for: " + strings.Join(missing, ", ")}
	}
	return nil
}
