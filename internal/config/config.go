// Package config loads the service configuration from a YAML file and ADAUTH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/isometry/adauth/internal/identity"
	"github.com/isometry/adauth/internal/ldap"
)

// EnvPrefix prefixes every environment variable, e.g. ADAUTH_IDENTITY_UPN_SUFFIX.
const EnvPrefix = "ADAUTH"

// Directory backends.
const (
	BackendLDAP     = "ldap"
	BackendKerberos = "kerberos"
)

// Config is the complete service configuration.
//
// Sources, highest precedence first:
//  1. Environment variables (ADAUTH_*)
//  2. Configuration file
//  3. Defaults
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `mapstructure:"listen" yaml:"listen" default:":4001" validate:"required"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" default:"10s" validate:"gt=0"`

	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Directory DirectoryConfig `mapstructure:"directory" yaml:"directory"`
	Identity  IdentityConfig  `mapstructure:"identity" yaml:"identity"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" default:"INFO" validate:"oneof=TRACE DEBUG INFO WARN ERROR trace debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" default:"text" validate:"oneof=text json"`
}

// DirectoryConfig describes how passwords are verified.
type DirectoryConfig struct {
	// Backend is "ldap" (simple bind) or "kerberos" (AS exchange).
	Backend string `mapstructure:"backend" yaml:"backend" default:"ldap" validate:"oneof=ldap kerberos"`

	// URLs lists ldap:// or ldaps:// servers. When empty, servers are discovered
	// from the DNS SRV records of Domain.
	URLs []string `mapstructure:"urls" yaml:"urls" validate:"omitempty,dive,url"`

	// Domain is the DNS name of the Active Directory domain.
	Domain string `mapstructure:"domain" yaml:"domain" validate:"required_without=URLs"`

	// BaseDN is searched for profile lookups; derived from Domain when empty.
	BaseDN string `mapstructure:"base_dn" yaml:"base_dn"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" default:"3s" validate:"gt=0"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" default:"5s" validate:"gt=0"`

	StartTLS      bool   `mapstructure:"start_tls" yaml:"start_tls" default:"true"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify" yaml:"skip_tls_verify"`
	CACertFile    string `mapstructure:"ca_cert_file" yaml:"ca_cert_file" validate:"omitempty,file"`

	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" default:"10" validate:"gt=0,lte=100"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time" yaml:"max_idle_time" default:"60s" validate:"gt=0"`
	HealthCheck    time.Duration `mapstructure:"health_check" yaml:"health_check" default:"30s" validate:"gte=0"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries" default:"1" validate:"gte=0,lte=10"`

	Kerberos KerberosConfig `mapstructure:"kerberos" yaml:"kerberos"`
}

// KerberosConfig configures the kerberos backend.
type KerberosConfig struct {
	// Realm defaults to the upper-cased Domain.
	Realm string `mapstructure:"realm" yaml:"realm"`

	// Config is a krb5.conf path. When empty, one is generated at runtime.
	Config string `mapstructure:"config" yaml:"config"`

	// KDCs lists host[:port] entries for the generated krb5.conf.
	KDCs []string `mapstructure:"kdcs" yaml:"kdcs"`

	// DNSLookupKDC lets the generated krb5.conf locate KDCs through DNS.
	DNSLookupKDC bool `mapstructure:"dns_lookup_kdc" yaml:"dns_lookup_kdc" default:"true"`
}

// IdentityConfig configures username resolution.
type IdentityConfig struct {
	UPNSuffix       string        `mapstructure:"upn_suffix" yaml:"upn_suffix" validate:"required"`
	NetBIOSDomain   string        `mapstructure:"netbios_domain" yaml:"netbios_domain" validate:"required"`
	FastPathTimeout time.Duration `mapstructure:"fast_path_timeout" yaml:"fast_path_timeout" default:"3s" validate:"gt=0"`
	RaceTimeout     time.Duration `mapstructure:"race_timeout" yaml:"race_timeout" default:"4s" validate:"gt=0"`
	CacheSize       int           `mapstructure:"cache_size" yaml:"cache_size" default:"200" validate:"gt=0"`

	// LookupProfile reads the authenticated account's entry after a successful bind.
	LookupProfile bool `mapstructure:"lookup_profile" yaml:"lookup_profile"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" default:"/metrics" validate:"startswith=/"`
}

// Load reads configuration from path (optional), the environment and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvs(v, reflect.TypeFor[Config](), ""); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("configuration file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set default values: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// bindEnvs registers every mapstructure key with viper so that environment variables
// are seen by Unmarshal even when the file does not mention the key.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) error {
	for i := range t.NumField() {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if field.Type.Kind() == reflect.Struct {
			if err := bindEnvs(v, field.Type, key); err != nil {
				return err
			}
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg and reports every invalid field.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s: failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.Join(errs...)
}

// LDAPConfig converts the directory section to a connection configuration.
func (c *Config) LDAPConfig() *ldap.ConnectionConfig {
	d := c.Directory
	cc := ldap.DefaultConfig()

	cc.Domain = d.Domain
	cc.LDAPURLs = d.URLs
	cc.BaseDN = d.BaseDN
	cc.ConnectTimeout = d.ConnectTimeout
	cc.Timeout = d.Timeout
	cc.UseTLS = d.StartTLS
	cc.SkipTLSVerify = d.SkipTLSVerify
	cc.TLSCACertFile = d.CACertFile
	cc.MaxConnections = d.MaxConnections
	cc.MaxIdleTime = d.MaxIdleTime
	cc.HealthCheck = d.HealthCheck
	cc.MaxRetries = d.MaxRetries
	cc.LookupProfile = c.Identity.LookupProfile

	cc.KerberosRealm = d.Kerberos.Realm
	cc.KerberosConfig = d.Kerberos.Config
	cc.KerberosKDCs = d.Kerberos.KDCs
	cc.KerberosDNSLookupKDC = d.Kerberos.DNSLookupKDC

	return cc
}

// ResolverConfig converts the identity section to a resolver configuration.
func (c *Config) ResolverConfig() identity.Config {
	return identity.Config{
		UPNSuffix:       c.Identity.UPNSuffix,
		NetBIOSDomain:   c.Identity.NetBIOSDomain,
		FastPathTimeout: c.Identity.FastPathTimeout,
		RaceTimeout:     c.Identity.RaceTimeout,
		CacheSize:       c.Identity.CacheSize,
	}
}
