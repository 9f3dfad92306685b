// Package config provides configuration utilities for the application.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the application reads.
const EnvPrefix = "MEALIE"

// Concurrency limits for batch parsing.
const (
	DefaultConcurrency = 4
	MinConcurrency     = 1
	MaxConcurrency     = 32
)

var validate = validator.New()

// Config holds the resolved runtime configuration.
type Config struct {
	MealieURL           string        `validate:"required,url"`
	APIKey              string        `validate:"required"`
	ParseMethod         string        `validate:"oneof=nlp brute openai"`
	SessionDir          string        `validate:"required"`
	DBPath              string        `validate:"required"`
	MetricsPath         string
	Retry               RetrySettings
	Timeout             time.Duration `validate:"gt=0"`
	CatalogTTL          time.Duration `validate:"gte=0"`
	Concurrency         int           `validate:"min=1,max=32"`
	SimilarityThreshold float64       `validate:"gt=0,lte=1"`
	RequestsPerSecond   float64       `validate:"gte=0"`
}

// RetrySettings configures retries against the recipe manager.
type RetrySettings struct {
	MaxRetries int           `validate:"gte=0,lte=10"`
	BaseDelay  time.Duration `validate:"gte=0"`
	MaxDelay   time.Duration `validate:"gtefield=BaseDelay"`
}

// Policy converts the settings into a retry policy.
func (r RetrySettings) Policy() common.RetryPolicy {
	return common.RetryPolicy{
		MaxRetries: r.MaxRetries,
		BaseDelay:  r.BaseDelay,
		MaxDelay:   r.MaxDelay,
	}
}

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("parse.method", "nlp")
	v.SetDefault("parse.concurrency", DefaultConcurrency)
	v.SetDefault("parse.similarity_threshold", 0.85)
	v.SetDefault("retry.max_retries", common.DefaultMaxRetries)
	v.SetDefault("retry.base_delay", common.DefaultBaseDelay)
	v.SetDefault("retry.max_delay", common.DefaultMaxDelay)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.requests_per_second", 10.0)
	v.SetDefault("catalog.ttl", 5*time.Minute)
	v.SetDefault("session.dir", ".ai")
	v.SetDefault("project.dir", "")
	v.SetDefault("storage.db_path", "~/.local/share/mealie-parser/history.db")
	v.SetDefault("metrics.path", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The recipe manager's own variable names.
	_ = v.BindEnv("url", "MEALIE_URL")
	_ = v.BindEnv("api_key", "MEALIE_API_KEY")
}

// LoadDotEnv loads variables from the given .env files (".env" when none are given).
// Missing files are ignored and existing environment variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(ExpandPath(p)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a validated Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		MealieURL:           strings.TrimRight(v.GetString("url"), "/"),
		APIKey:              v.GetString("api_key"),
		ParseMethod:         v.GetString("parse.method"),
		Concurrency:         v.GetInt("parse.concurrency"),
		SimilarityThreshold: v.GetFloat64("parse.similarity_threshold"),
		SessionDir:          SessionDir(v),
		DBPath:              ExpandPath(v.GetString("storage.db_path")),
		MetricsPath:         ExpandPath(v.GetString("metrics.path")),
		Timeout:             v.GetDuration("http.timeout"),
		RequestsPerSecond:   v.GetFloat64("http.requests_per_second"),
		CatalogTTL:          v.GetDuration("catalog.ttl"),
		Retry: RetrySettings{
			MaxRetries: v.GetInt("retry.max_retries"),
			BaseDelay:  v.GetDuration("retry.base_delay"),
			MaxDelay:   v.GetDuration("retry.max_delay"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SessionDir resolves the session directory against project.dir when one is set.
func SessionDir(v *viper.Viper) string {
	if project := v.GetString("project.dir"); project != "" {
		return ProjectPath(project, v.GetString("session.dir"))
	}
	return ExpandPath(v.GetString("session.dir"))
}

// Validate checks every field and reports the first offending ones by name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	switch fe.Field() {
	case "MealieURL":
		if fe.Tag() == "required" {
			return "MEALIE_URL is not set (add it to your .env file)"
		}
		return fmt.Sprintf("MEALIE_URL %q is not a valid URL", fe.Value())
	case "APIKey":
		return "MEALIE_API_KEY is not set (add it to your .env file)"
	case "Concurrency":
		return fmt.Sprintf("concurrency must be between %d and %d, got %v", MinConcurrency, MaxConcurrency, fe.Value())
	case "ParseMethod":
		return fmt.Sprintf("parse method must be one of nlp, brute, openai, got %q", fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag())
	}
}
