// Package logging builds the service's hclog loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// SubsystemLevelEnvPrefix prefixes the environment variables that override the level
// of a single subsystem, e.g. ADAUTH_LOG_LDAP=TRACE.
const SubsystemLevelEnvPrefix = "ADAUTH_LOG_"

// Options configures New.
type Options struct {
	Level  string // TRACE, DEBUG, INFO, WARN or ERROR
	Format string // text or json
	Output io.Writer
}

// New creates the root logger. Sub-loggers created with Subsystem can carry their
// own level.
func New(name string, opts Options) (hclog.Logger, error) {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		return nil, fmt.Errorf("invalid log level %q", opts.Level)
	}

	var jsonFormat bool
	switch strings.ToLower(opts.Format) {
	case "", "text":
	case "json":
		jsonFormat = true
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:              name,
		Level:             level,
		JSONFormat:        jsonFormat,
		Output:            output,
		IndependentLevels: true,
	}), nil
}

// Subsystem returns a named sub-logger. Its level is taken from
// ADAUTH_LOG_<NAME> when that variable holds a valid level.
func Subsystem(logger hclog.Logger, name string) hclog.Logger {
	sub := logger.Named(name)

	env := SubsystemLevelEnvPrefix + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
	if v, ok := os.LookupEnv(env); ok {
		if level := hclog.LevelFromString(v); level != hclog.NoLevel {
			sub.SetLevel(level)
		}
	}
	return sub
}

// Mask hides all but the first and last character of a secret. Secrets of three
// characters or fewer are fully masked.
func Mask(s string) string {
	r := []rune(s)
	if len(r) <= 3 {
		return "***"
	}
	return string(r[0]) + strings.Repeat("*", min(8, len(r)-2)) + string(r[len(r)-1])
}
