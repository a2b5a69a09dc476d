package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "DBCORE_"

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. YAML configuration files, in the order given
// 3. Default values (lowest priority)
//
// Missing files are an error; pass no paths to rely on defaults and env only.
func Load(paths ...string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, p := range paths {
		if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", p, err)
		}
	}

	if err := loadEnv(k); err != nil {
		return nil, err
	}

	return finish(k)
}

// LoadBytes loads configuration from an in-memory YAML document layered over
// the defaults. Environment variables still take precedence.
func LoadBytes(raw []byte) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(rawbytes.Provider(raw), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if err := loadEnv(k); err != nil {
		return nil, err
	}

	return finish(k)
}

func loadEnv(k *koanf.Koanf) error {
	provider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// DBCORE_DATABASE_QUERY_SLOW_THRESHOLD -> database.query.slow.threshold
			key = strings.TrimPrefix(key, EnvPrefix)
			return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
		},
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

func finish(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyGroupSwitches(k, &cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"database.transaction.strict":    true,
		"database.query.slow.enabled":    true,
		"database.query.slow.threshold":  defaultSlowQueryThreshold.String(),
		"database.query.log.maxlength":   defaultMaxQueryLength,
		"database.query.log.parameters":  false,
		"database.postgresql.driver":     PostgresDriverPgx,
		"database.sqlite.foreignkeys":    true,
		"database.sqlite.busytimeout":    "5s",
		"database.connecttimeout":        "10s",
		"database.idletimeout":           "0s",

		"manager.maxsize":         defaultManagerMaxSize,
		"manager.idlettl":         "15m",
		"manager.cleanupinterval": "5m",
		"manager.querylog":        0,

		"log.level":  "info",
		"log.pretty": false,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

// applyGroupSwitches turns on strict transactions for named groups unless the
// group sets it explicitly. Map entries do not receive confmap defaults.
func applyGroupSwitches(k *koanf.Koanf, cfg *Config) {
	for name, group := range cfg.Databases {
		base := "databases." + name + ".transaction."
		if !k.Exists(base + "strict") {
			group.Transaction.Strict = true
		}
		cfg.Databases[name] = group
	}
}

// DefaultDatabaseConfig returns a DatabaseConfig for driver carrying the
// defaults Load applies to the default group. It is meant for programmatic
// construction; the result is not validated.
func DefaultDatabaseConfig(driver string) DatabaseConfig {
	k := koanf.New(".")
	var cfg DatabaseConfig
	if err := loadDefaults(k); err == nil {
		_ = k.Unmarshal("database", &cfg)
	}
	cfg.Driver = driver
	return cfg
}
