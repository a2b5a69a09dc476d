// Package logger provides filtering capabilities for sensitive data in log output.
package logger

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	// DefaultMaskValue replaces sensitive values in log output.
	DefaultMaskValue = "***"
	// DefaultMaxDepth is the default maximum recursion depth for filtering
	DefaultMaxDepth = 8
)

// driverDSNCredentials matches the "user:password@" head of go-sql-driver style DSNs.
var driverDSNCredentials = regexp.MustCompile(`^([^:@/\s]+):([^@]*)@`)

// keywordPassword matches password=... pairs in keyword/value connection strings.
var keywordPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|[^\s;]*)`)

// FilterConfig defines the configuration for sensitive data filtering
type FilterConfig struct {
	// SensitiveFields contains field names that should be masked in logs
	SensitiveFields []string
	// CredentialFields contain connection strings whose password part is masked
	CredentialFields []string
	// MaskValue is the value used to replace sensitive data (default: "***")
	MaskValue string
}

// DefaultFilterConfig returns a default configuration with common sensitive field names
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "passwd", "pwd",
			"secret", "api_key", "apikey",
			"token", "authorization", "credential",
		},
		CredentialFields: []string{"dsn", "url", "connection"},
		MaskValue:        DefaultMaskValue,
	}
}

// SensitiveDataFilter masks sensitive values as fields are added to log events.
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a new filter with the given configuration
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if config.MaskValue == "" {
		config.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: config}
}

// FilterString filters sensitive data from string values
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if value == "" {
		return value
	}
	if matches(key, f.config.SensitiveFields) {
		return f.config.MaskValue
	}
	if matches(key, f.config.CredentialFields) {
		return f.MaskCredentials(value)
	}
	return value
}

// FilterValue filters sensitive data from any values. Nested maps are
// filtered up to DefaultMaxDepth levels.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	return f.filterValue(key, value, DefaultMaxDepth)
}

func (f *SensitiveDataFilter) filterValue(key string, value any, depth int) any {
	if value == nil {
		return nil
	}
	if matches(key, f.config.SensitiveFields) {
		return f.config.MaskValue
	}

	switch v := value.(type) {
	case string:
		return f.FilterString(key, v)
	case map[string]any:
		if depth <= 0 {
			return v
		}
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = f.filterValue(k, inner, depth-1)
		}
		return out
	default:
		return value
	}
}

// FilterFields filters every entry of fields, returning a new map.
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	filtered := make(map[string]any, len(fields))
	for key, value := range fields {
		filtered[key] = f.FilterValue(key, value)
	}
	return filtered
}

// MaskCredentials masks the password portion of a connection string. URL,
// go-sql-driver and keyword/value forms are recognised; anything else is
// returned unchanged.
func (f *SensitiveDataFilter) MaskCredentials(dsn string) string {
	if strings.Contains(dsn, "://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return f.config.MaskValue
		}
		if parsed.User != nil {
			if _, ok := parsed.User.Password(); ok {
				parsed.User = url.UserPassword(parsed.User.Username(), f.config.MaskValue)
				out := parsed.String()
				// url.String escapes the mask characters
				return strings.Replace(out, url.QueryEscape(f.config.MaskValue), f.config.MaskValue, 1)
			}
		}
		return dsn
	}

	if keywordPassword.MatchString(dsn) {
		return keywordPassword.ReplaceAllString(dsn, "${1}"+f.config.MaskValue)
	}

	if driverDSNCredentials.MatchString(dsn) {
		return driverDSNCredentials.ReplaceAllString(dsn, "${1}:"+f.config.MaskValue+"@")
	}

	return dsn
}

func matches(key string, needles []string) bool {
	lower := strings.ToLower(key)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
