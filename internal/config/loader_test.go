package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
)

type testSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
}

func (p *testSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// unsetEnv removes keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

var allKeys = []string{
	"APP_ENV", "LOG_LEVEL", "FRONTEND_URL", "STORE_BACKEND", "DATABASE_URL",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "STRIPE_PRICE_7DAYS", "STRIPE_PRICE_20DAYS",
	"GEMINI_API_KEY", "FREE_TIER_LIMIT", "CORS_ALLOWED_ORIGINS", "USERS_TABLE",
	"STRIPE_SECRET_KEY_SSM_PARAM", "GEMINI_API_KEY_SSM_PARAM",
}

func setLocalEnv(t *testing.T) {
	t.Helper()
	unsetEnv(t, allKeys...)
	t.Setenv("APP_ENV", "local")
	t.Setenv("FRONTEND_URL", "http://localhost:3000/")
	t.Setenv("STORE_BACKEND", "memory")
}

func setProdEnv(t *testing.T) {
	t.Helper()
	unsetEnv(t, allKeys...)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("FRONTEND_URL", "https://guide.example.com")
	t.Setenv("STORE_BACKEND", "dynamodb")
	t.Setenv("STRIPE_SECRET_KEY", "sk_live_x")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_x")
	t.Setenv("STRIPE_PRICE_7DAYS", "price_7")
	t.Setenv("STRIPE_PRICE_20DAYS", "price_20")
	t.Setenv("GEMINI_API_KEY", "gm_x")
}

func TestLoadConfigLocalDefaults(t *testing.T) {
	setLocalEnv(t)

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.IsLocal() {
		t.Error("expected local environment")
	}
	if cfg.Server.FrontendURL != "http://localhost:3000" {
		t.Errorf("FrontendURL = %q, trailing slash should be trimmed", cfg.Server.FrontendURL)
	}
	if cfg.Entitlement.FreeTierLimit != 5 {
		t.Errorf("FreeTierLimit = %d, want default 5", cfg.Entitlement.FreeTierLimit)
	}
	if cfg.Store.UsersTable != "tourism-users" || cfg.Store.PaymentsTable != "tourism-payments" {
		t.Errorf("unexpected table defaults %+v", cfg.Store)
	}
	if cfg.Server.RequestTimeout != 29*time.Second {
		t.Errorf("RequestTimeout = %v, want 29s", cfg.Server.RequestTimeout)
	}
	if cfg.Observability.MetricNamespace != "TourismAssistant" {
		t.Errorf("MetricNamespace = %q", cfg.Observability.MetricNamespace)
	}
	if len(cfg.Security.CorsAllowedOrigins) != 1 || cfg.Security.CorsAllowedOrigins[0] != "*" {
		t.Errorf("CorsAllowedOrigins = %v", cfg.Security.CorsAllowedOrigins)
	}
	if cfg.Build.Version != "dev" {
		t.Errorf("Build.Version = %q, want dev", cfg.Build.Version)
	}
	if time.Local != time.UTC {
		t.Errorf("time.Local = %v, want UTC", time.Local)
	}
}

func TestLoadConfigFreeTierOverride(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("FREE_TIER_LIMIT", "10")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Entitlement.FreeTierLimit != 10 {
		t.Errorf("FreeTierLimit = %d, want 10", cfg.Entitlement.FreeTierLimit)
	}
}

func TestLoadConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T)
		want  ConfigErrorType
		field string
	}{
		{"bad env", func(t *testing.T) { setLocalEnv(t); t.Setenv("APP_ENV", "qa") }, ErrValidation, "Environment"},
		{"missing frontend", func(t *testing.T) { setLocalEnv(t); unsetEnv(t, "FRONTEND_URL") }, ErrValidation, "FrontendURL"},
		{"zero limit", func(t *testing.T) { setLocalEnv(t); t.Setenv("FREE_TIER_LIMIT", "0") }, ErrValidation, "FreeTierLimit"},
		{"non numeric limit", func(t *testing.T) { setLocalEnv(t); t.Setenv("FREE_TIER_LIMIT", "five") }, ErrParsing, ""},
		{"postgres without url", func(t *testing.T) { setLocalEnv(t); t.Setenv("STORE_BACKEND", "postgres") }, ErrValidation, "DatabaseURL"},
		{"unknown backend", func(t *testing.T) { setLocalEnv(t); t.Setenv("STORE_BACKEND", "redis") }, ErrValidation, "Backend"},
		{"memory in prod", func(t *testing.T) { setProdEnv(t); t.Setenv("STORE_BACKEND", "memory") }, ErrValidation, "Backend"},
		{"prod without stripe", func(t *testing.T) { setProdEnv(t); unsetEnv(t, "STRIPE_SECRET_KEY") }, ErrValidation, "StripeSecretKey"},
		{"prod without gemini", func(t *testing.T) { setProdEnv(t); unsetEnv(t, "GEMINI_API_KEY") }, ErrValidation, "GeminiAPIKey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)

			_, err := LoadConfig(nil)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if cfgErr.Type != tt.want {
				t.Errorf("Type = %q, want %q", cfgErr.Type, tt.want)
			}
			if tt.field == "" {
				return
			}
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected validator errors, got %v", err)
			}
			found := false
			for _, fe := range verrs {
				if fe.Field() == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a failure on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestLoadConfigProdSuccess(t *testing.T) {
	setProdEnv(t)

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	prices := cfg.Billing.PriceIDs()
	if prices["7days"] != "price_7" || prices["20days"] != "price_20" {
		t.Errorf("PriceIDs = %v", prices)
	}
	if cfg.Billing.StripeSecretKey.Unmask() != "sk_live_x" {
		t.Error("secret was not loaded")
	}
}

func TestLoadConfigSSMResolution(t *testing.T) {
	setProdEnv(t)
	unsetEnv(t, "STRIPE_SECRET_KEY", "GEMINI_API_KEY")
	t.Setenv("STRIPE_SECRET_KEY_SSM_PARAM", "/prod/tourism/stripe")
	t.Setenv("GEMINI_API_KEY_SSM_PARAM", "/prod/tourism/gemini")

	provider := &testSecretProvider{values: map[string]string{
		"/prod/tourism/stripe": "sk_from_ssm",
		"/prod/tourism/gemini": "gm_from_ssm",
	}}
	cfg, err := LoadConfig(provider)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Billing.StripeSecretKey.Unmask() != "sk_from_ssm" {
		t.Errorf("StripeSecretKey = %q", cfg.Billing.StripeSecretKey.Unmask())
	}
	if cfg.Analysis.GeminiAPIKey.Unmask() != "gm_from_ssm" {
		t.Errorf("GeminiAPIKey = %q", cfg.Analysis.GeminiAPIKey.Unmask())
	}
	if len(provider.calledWith) != 2 {
		t.Errorf("expected one batch of 2 paths, got %v", provider.calledWith)
	}
}

func TestLoadConfigSSMSkippedWhenSetDirectly(t *testing.T) {
	setProdEnv(t)
	t.Setenv("STRIPE_SECRET_KEY_SSM_PARAM", "/prod/tourism/stripe")

	provider := &testSecretProvider{}
	cfg, err := LoadConfig(provider)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Billing.StripeSecretKey.Unmask() != "sk_live_x" {
		t.Error("direct env var should win over SSM")
	}
	if len(provider.calledWith) != 0 {
		t.Errorf("provider should not be called, got %v", provider.calledWith)
	}
}

func TestLoadConfigSSMSkippedForLocal(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("STRIPE_SECRET_KEY_SSM_PARAM", "/dev/tourism/stripe")

	provider := &testSecretProvider{err: errors.New("should not be called")}
	if _, err := LoadConfig(provider); err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
}

func TestLoadConfigSSMFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider SecretProvider
		contains string
	}{
		{"nil provider", nil, "STRIPE_SECRET_KEY"},
		{"provider error", &testSecretProvider{err: errors.New("access denied")}, "access denied"},
		{"missing param", &testSecretProvider{values: map[string]string{}}, "not found for: STRIPE_SECRET_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setProdEnv(t)
			unsetEnv(t, "STRIPE_SECRET_KEY")
			t.Setenv("STRIPE_SECRET_KEY_SSM_PARAM", "/prod/tourism/stripe")

			_, err := LoadConfig(tt.provider)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Type != ErrSSMResolution {
				t.Fatalf("expected SSM ConfigError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q should contain %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestResolveSSMParamsWithDeps(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL_SSM_PARAM": "/prod/tourism/db",
		"EMPTY_SSM_PARAM":        "",
	}
	deps := loaderDeps{
		lookupEnv: func(k string) (string, bool) { v, ok := env[k]; return v, ok },
		setEnv:    func(k, v string) error { env[k] = v; return nil },
		environ: func() []string {
			out := make([]string, 0, len(env))
			for k, v := range env {
				out = append(out, k+"="+v)
			}
			return out
		},
	}
	provider := &testSecretProvider{values: map[string]string{"/prod/tourism/db": "postgres://db"}}

	if err := resolveSSMParams(provider, deps); err != nil {
		t.Fatalf("resolveSSMParams returned error: %v", err)
	}
	if env["DATABASE_URL"] != "postgres://db" {
		t.Errorf("DATABASE_URL = %q", env["DATABASE_URL"])
	}
	if _, ok := env["EMPTY"]; ok {
		t.Error("empty SSM paths should be skipped")
	}
}

func TestLoadConfigDotenvFile(t *testing.T) {
	unsetEnv(t, allKeys...)
	dir := t.TempDir()
	content := "APP_ENV=local\nFRONTEND_URL=http://dotenv.local\nSTORE_BACKEND=memory\nFREE_TIER_LIMIT=7\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("FREE_TIER_LIMIT", "9")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Server.FrontendURL != "http://dotenv.local" {
		t.Errorf("FrontendURL = %q, want value from .env", cfg.Server.FrontendURL)
	}
	if cfg.Entitlement.FreeTierLimit != 9 {
		t.Errorf("FreeTierLimit = %d, process env should win over .env", cfg.Entitlement.FreeTierLimit)
	}
}

func TestConfigError(t *testing.T) {
	inner := errors.New("boom")
	err := &ConfigError{Type: ErrParsing, Message: "bad", Err: inner}
	if err.Error() != "[PARSING_FAILED] bad: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the inner error")
	}
	if (&ConfigError{Type: ErrValidation, Message: "x"}).Error() != "[VALIDATION_FAILED] x" {
		t.Error("unexpected message without inner error")
	}
}
