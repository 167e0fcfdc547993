package ldap

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

// Logging subsystems.
const (
	subsystemLDAP     = "ldap"
	subsystemPool     = "pool"
	subsystemKerberos = "kerberos"
)

// fieldArgs flattens a sanitized field map into hclog key/value pairs in a stable order.
func fieldArgs(fields map[string]any) []any {
	sanitized := SanitizeFields(fields)
	args := make([]any, 0, len(sanitized)*2)
	for _, k := range slices.Sorted(maps.Keys(sanitized)) {
		args = append(args, k, sanitized[k])
	}
	return args
}

// LogPerformance logs the duration of an operation, raising the level for slow ones.
func LogPerformance(logger hclog.Logger, operation string, duration time.Duration, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["operation"] = operation
	fields["duration_ms"] = duration.Milliseconds()

	switch {
	case duration > 2*time.Second:
		logger.Warn("Slow operation detected", fieldArgs(fields)...)
	case duration > 500*time.Millisecond:
		logger.Info("Operation performance", fieldArgs(fields)...)
	default:
		logger.Trace("Operation performance", fieldArgs(fields)...)
	}
}

// LogLDAPError logs directory-specific error information. Rejected credentials are an
// expected outcome and are logged at debug level.
func LogLDAPError(logger hclog.Logger, operation string, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["operation"] = operation
	fields["error"] = err.Error()

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		fields["ldap_result_code"] = resultErr.ResultCode
		if resultErr.MatchedDN != "" {
			fields["ldap_matched_dn"] = resultErr.MatchedDN
		}
	}
	if code := ADSubCode(err); code != "" {
		fields["ad_sub_code"] = code
	}

	if IsAuthenticationError(err) {
		logger.Debug("Directory rejected credentials", fieldArgs(fields)...)
		return
	}
	logger.Error("Directory operation failed", fieldArgs(fields)...)
}

// LogPoolEvent logs connection pool events.
func LogPoolEvent(logger hclog.Logger, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event

	switch event {
	case "pool_initialized", "connection_created", "connection_reused":
		logger.Debug("Pool event", fieldArgs(fields)...)
	case "connection_failed", "connection_discarded", "health_check_failed":
		logger.Warn("Pool event", fieldArgs(fields)...)
	case "all_connections_failed":
		logger.Error("Pool event", fieldArgs(fields)...)
	default:
		logger.Trace("Pool event", fieldArgs(fields)...)
	}
}

// LogKerberosEvent logs Kerberos-specific events.
func LogKerberosEvent(logger hclog.Logger, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event

	switch event {
	case "ticket_acquired", "ticket_acquisition_failed":
		logger.Debug("Kerberos event", fieldArgs(fields)...)
	case "config_load_failed":
		logger.Error("Kerberos event", fieldArgs(fields)...)
	default:
		logger.Trace("Kerberos event", fieldArgs(fields)...)
	}
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	sensitiveKeys := map[string]bool{
		"password":    true,
		"passwd":      true,
		"secret":      true,
		"token":       true,
		"key":         true,
		"private_key": true,
		"credential":  true,
		"credentials": true,
	}

	for k, v := range fields {
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"passwd=",
		"secret=",
		"token=",
		"key=",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
