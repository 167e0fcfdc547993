package ldap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"
)

// ConnectionConfig holds configuration for directory connections.
type ConnectionConfig struct {
	// Connection settings
	Domain         string        // Domain for SRV discovery
	LDAPURLs       []string      // Direct LDAP URLs (overrides domain)
	BaseDN         string        // Base DN for profile lookups
	Timeout        time.Duration // Per-operation timeout on an established connection
	ConnectTimeout time.Duration // Dial timeout

	// TLS settings
	TLSConfig     *tls.Config // Custom TLS configuration
	UseTLS        bool        // Upgrade plain ldap:// connections with StartTLS
	SkipTLSVerify bool        // Accept any server certificate (not recommended)
	TLSCACertFile string      // Path to CA certificate file
	TLSCACert     string      // CA certificate content

	// Pool settings
	MaxConnections int           // Maximum idle connections kept in the pool
	MaxIdleTime    time.Duration // Maximum idle time before connection cleanup
	HealthCheck    time.Duration // Health check interval, zero disables it

	// Retry settings for dialing; binds are never retried
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// Profile lookup after a successful bind
	LookupProfile bool

	// Kerberos settings
	KerberosRealm        string   // Realm for down-level names; defaults to the upper-cased domain
	KerberosConfig       string   // Path to krb5.conf; generated at runtime when empty
	KerberosKDCs         []string // Explicit KDC host[:port] list for the generated krb5.conf
	KerberosDNSLookupKDC bool     // Let the generated krb5.conf locate KDCs via DNS
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Timeout:              5 * time.Second,
		ConnectTimeout:       3 * time.Second,
		UseTLS:               true,
		MaxConnections:       10,
		MaxIdleTime:          60 * time.Second,
		HealthCheck:          30 * time.Second,
		MaxRetries:           1,
		InitialBackoff:       200 * time.Millisecond,
		MaxBackoff:           2 * time.Second,
		BackoffFactor:        2.0,
		KerberosDNSLookupKDC: true,
	}
}

// BuildTLSConfig returns the TLS configuration to dial with, loading CA material
// when configured.
func (c *ConnectionConfig) BuildTLSConfig() (*tls.Config, error) {
	var cfg *tls.Config
	if c.TLSConfig != nil {
		cfg = c.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if c.SkipTLSVerify {
		cfg.InsecureSkipVerify = true //nolint:gosec // operator opt-in
	}

	var pem []byte
	switch {
	case c.TLSCACert != "":
		pem = []byte(c.TLSCACert)
	case c.TLSCACertFile != "":
		data, err := os.ReadFile(c.TLSCACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file %s: %w", c.TLSCACertFile, err)
		}
		pem = data
	}

	if pem != nil {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no valid certificates found in CA certificate")
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// ServerInfo contains information about an LDAP server.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // "srv", "config", "fallback"
}

// ConnectionPool manages a pool of unbound LDAP connections.
type ConnectionPool interface {
	// Get retrieves a connection from the pool
	Get(ctx context.Context) (*PooledConnection, error)

	// Close closes all connections and shuts down the pool
	Close() error

	// Stats returns pool statistics
	Stats() PoolStats
}

// PoolStats provides statistics about the connection pool.
type PoolStats struct {
	Idle    int           // Idle connections
	Active  int64         // Active (in-use) connections
	Created int64         // Total connections created
	Errors  int64         // Total connection errors
	Uptime  time.Duration // Pool uptime
}

// RetryableError indicates an error that can be retried.
type RetryableError interface {
	error
	IsRetryable() bool
}

// ConnectionError represents connection-related errors.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) IsRetryable() bool {
	return e.retryable
}

func (e *ConnectionError) Unwrap() error {
	return e.cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}
