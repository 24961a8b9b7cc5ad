package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Gurpartap/promptchain/chain"
	"github.com/Gurpartap/promptchain/policy/retry"
)

// EnvPrefix namespaces every environment override, e.g. PROMPTCHAIN_LOG_LEVEL.
const EnvPrefix = "PROMPTCHAIN"

var ErrInvalid = errors.New("invalid config")

// Config is the runtime configuration for the CLI and pipelines.
type Config struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	LogLevel          string        `mapstructure:"log_level"`
	Tiers             Tiers         `mapstructure:"tiers"`
	Retry             Retry         `mapstructure:"retry"`
	Budgets           Budgets       `mapstructure:"budgets"`
}

type Tiers struct {
	Premium  chain.ModelTier `mapstructure:"premium"`
	Standard chain.ModelTier `mapstructure:"standard"`
}

type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      bool          `mapstructure:"jitter"`
	Markers     []string      `mapstructure:"markers"`
}

// Budgets are context window token budgets per pipeline.
type Budgets struct {
	Blog     int `mapstructure:"blog"`
	PRD      int `mapstructure:"prd"`
	Research int `mapstructure:"research"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "https://api.anthropic.com/v1")
	v.SetDefault("request_timeout", 60*time.Second)
	v.SetDefault("requests_per_second", 0)
	v.SetDefault("log_level", "info")

	v.SetDefault("tiers.premium.name", "premium")
	v.SetDefault("tiers.premium.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("tiers.premium.input_price_per_1k", 0.003)
	v.SetDefault("tiers.premium.output_price_per_1k", 0.015)
	v.SetDefault("tiers.standard.name", "standard")
	v.SetDefault("tiers.standard.model", "claude-3-5-haiku-20241022")
	v.SetDefault("tiers.standard.input_price_per_1k", 0.00025)
	v.SetDefault("tiers.standard.output_price_per_1k", 0.00125)

	defaults := retry.DefaultConfig()
	v.SetDefault("retry.max_attempts", defaults.MaxAttempts)
	v.SetDefault("retry.base_delay", defaults.BaseDelay)
	v.SetDefault("retry.max_delay", defaults.MaxDelay)
	v.SetDefault("retry.multiplier", defaults.Multiplier)
	v.SetDefault("retry.jitter", defaults.Jitter)
	v.SetDefault("retry.markers", retry.DefaultMarkers)

	v.SetDefault("budgets.blog", 2500)
	v.SetDefault("budgets.prd", 3000)
	v.SetDefault("budgets.research", 2000)
}

// Load reads defaults, then the yaml file at path (or ./promptchain.yaml when
// path is empty and the file exists), then PROMPTCHAIN_* environment
// overrides. ANTHROPIC_API_KEY is honoured for the API key.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", EnvPrefix+"_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api key env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("promptchain")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if err := validateTier("tiers.premium", c.Tiers.Premium); err != nil {
		errs = append(errs, err)
	}
	if err := validateTier("tiers.standard", c.Tiers.Standard); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: request_timeout=%s must be > 0", ErrInvalid, c.RequestTimeout))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("%w: requests_per_second=%g must be >= 0", ErrInvalid, c.RequestsPerSecond))
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: retry: %w", ErrInvalid, err))
	}
	for name, budget := range map[string]int{"blog": c.Budgets.Blog, "prd": c.Budgets.PRD, "research": c.Budgets.Research} {
		if budget <= 0 {
			errs = append(errs, fmt.Errorf("%w: budgets.%s=%d must be > 0", ErrInvalid, name, budget))
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateTier(key string, tier chain.ModelTier) error {
	if strings.TrimSpace(tier.Name) == "" || strings.TrimSpace(tier.Model) == "" {
		return fmt.Errorf("%w: %s requires name and model", ErrInvalid, key)
	}
	if tier.InputPricePer1K < 0 || tier.OutputPricePer1K < 0 {
		return fmt.Errorf("%w: %s prices must be >= 0", ErrInvalid, key)
	}
	return nil
}

// RetryPolicy converts the retry section into a retry.Config.
func (c Config) RetryPolicy() retry.Config {
	return retry.Config{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Multiplier:  c.Retry.Multiplier,
		Jitter:      c.Retry.Jitter,
		Markers:     c.Retry.Markers,
	}
}

// Level returns the parsed log level, defaulting to info when unparsable.
func (c Config) Level() slog.Level {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func ParseLogLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf(
			"%w: unsupported log_level %q (allowed: %q, %q, %q, %q)",
			ErrInvalid,
			input,
			slog.LevelDebug.String(),
			slog.LevelInfo.String(),
			slog.LevelWarn.String(),
			slog.LevelError.String(),
		)
	}
}
