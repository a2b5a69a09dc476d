package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	defaultSlowQueryThreshold = 200 * time.Millisecond
	defaultMaxQueryLength     = 1000
	defaultManagerMaxSize     = 16
)

// Database driver constants
const (
	MySQL      = "mysql"
	PostgreSQL = "postgresql"
	Oracle     = "oracle"
	SQLite     = "sqlite"
	SQLServer  = "sqlsrv"
)

// SupportedDrivers lists every driver accepted in DatabaseConfig.Driver.
var SupportedDrivers = []string{MySQL, PostgreSQL, Oracle, SQLite, SQLServer}

var validate = validator.New()

// Validate checks struct constraints and the cross-field rules of every
// database group, applying query defaults in place.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return toConfigError(err)
	}

	if IsDatabaseConfigured(&cfg.Database) {
		if err := validateDatabase("database", &cfg.Database); err != nil {
			return fmt.Errorf("database config: %w", err)
		}
	}

	names := make([]string, 0, len(cfg.Databases))
	for name := range cfg.Databases {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		group := cfg.Databases[name]
		if err := validateDatabase("databases."+name, &group); err != nil {
			return fmt.Errorf("database group %s: %w", name, err)
		}
		cfg.Databases[name] = group
	}

	return nil
}

// IsDatabaseConfigured determines if database is intentionally configured.
func IsDatabaseConfigured(cfg *DatabaseConfig) bool {
	return cfg.DSN != "" || cfg.Driver != "" || cfg.Host != ""
}

func validateDatabase(path string, cfg *DatabaseConfig) error {
	if cfg.Driver == "" {
		return NewMissingFieldError(path+".driver", envName(path+".driver"), path+".driver")
	}

	if err := validateDatabaseTarget(path, cfg); err != nil {
		return err
	}

	if cfg.Quote.Close != "" && cfg.Quote.Open == "" {
		return NewValidationError(path+".quote.close", "close quote requires an open quote")
	}

	for i := range cfg.Failover {
		candidate := cfg.FailoverCandidate(i)
		if err := validateDatabaseTarget(fmt.Sprintf("%s.failover[%d]", path, i), &candidate); err != nil {
			return err
		}
	}

	applyQueryDefaults(cfg)
	return nil
}

// validateDatabaseTarget requires enough information to reach a server: either
// a DSN, a host (network drivers) or a database file (sqlite).
func validateDatabaseTarget(path string, cfg *DatabaseConfig) error {
	if cfg.DSN != "" {
		return nil
	}

	switch cfg.Driver {
	case SQLite:
		if cfg.Database == "" {
			return NewMissingFieldError(path+".database", envName(path+".database"), path+".database")
		}
	case Oracle:
		if cfg.Host == "" {
			return NewMissingFieldError(path+".host", envName(path+".host"), path+".host")
		}
		if cfg.Oracle.Service.Name == "" && cfg.Oracle.Service.SID == "" && cfg.Database == "" {
			return &ConfigError{
				Category: "missing",
				Field:    path + ".oracle.service",
				Message:  "service name, sid or database is required",
				Action:   "set " + path + ".oracle.service.name or " + path + ".oracle.service.sid",
			}
		}
	case MySQL, PostgreSQL, SQLServer:
		if cfg.Host == "" {
			return NewMissingFieldError(path+".host", envName(path+".host"), path+".host")
		}
	default:
		return NewInvalidFieldError(path+".driver", fmt.Sprintf("unsupported driver %q", cfg.Driver), SupportedDrivers)
	}

	return nil
}

func applyQueryDefaults(cfg *DatabaseConfig) {
	if cfg.Query.Log.MaxLength == 0 {
		cfg.Query.Log.MaxLength = defaultMaxQueryLength
	}
	if cfg.Query.Slow.Threshold == 0 {
		cfg.Query.Slow.Threshold = defaultSlowQueryThreshold
	}
}

// toConfigError converts the first validator failure into a ConfigError.
func toConfigError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	field := koanfPath(fe.Namespace())

	switch fe.Tag() {
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %q", fmt.Sprint(fe.Value())), strings.Fields(fe.Param()))
	case "gte", "lte":
		return NewValidationError(field, fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param()))
	default:
		return NewValidationError(field, fmt.Sprintf("failed %q validation", fe.Tag()))
	}
}

// koanfPath turns "Config.Database.Query.Log.MaxLength" into "database.query.log.maxlength".
func koanfPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}

func envName(path string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "[", "_", "]", "").Replace(path))
}
