package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

// MaxConnectionPoolLimit is the maximum allowed idle connections in a pool.
const MaxConnectionPoolLimit = 100

// PooledConnection is an LDAP connection checked out of the pool.
//
// A connection handed to a bind carries that principal's identity until the next bind.
// Every connection obtained from Get must be released with Close exactly once.
type PooledConnection struct {
	conn         *ldap.Conn
	lastUsed     time.Time
	healthy      atomic.Bool
	serverInfo   *ServerInfo
	returnToPool func(*PooledConnection)
}

// connectionPool implements ConnectionPool.
type connectionPool struct {
	logger      hclog.Logger
	config      *ConnectionConfig
	tlsConfig   *tls.Config
	servers     []*ServerInfo
	connections chan *PooledConnection
	mu          sync.RWMutex
	closed      bool
	discovery   *SRVDiscovery

	// dial is replaced in tests
	dial func(server *ServerInfo) (*ldap.Conn, error)

	// Statistics
	activeConns  atomic.Int64
	totalCreated atomic.Int64
	totalErrors  atomic.Int64
	startTime    time.Time

	// Health checking
	healthTicker *time.Ticker
	healthStop   chan struct{}
	healthWg     sync.WaitGroup
}

// NewConnectionPool creates a new connection pool. Servers are taken from the configured
// URLs, or discovered through DNS SRV records for the configured domain.
func NewConnectionPool(ctx context.Context, config *ConnectionConfig, logger hclog.Logger) (ConnectionPool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := config.BuildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	pool := &connectionPool{
		logger:      logger.Named(subsystemPool),
		config:      config,
		tlsConfig:   tlsConfig,
		connections: make(chan *PooledConnection, config.MaxConnections),
		discovery:   NewSRVDiscovery(logger.Named(subsystemLDAP)),
		startTime:   time.Now(),
		healthStop:  make(chan struct{}),
	}
	pool.dial = pool.dialServer

	if err := pool.discoverServers(ctx); err != nil {
		return nil, fmt.Errorf("server discovery failed: %w", err)
	}

	if config.HealthCheck > 0 {
		pool.startHealthChecker()
	}

	LogPoolEvent(pool.logger, "pool_initialized", map[string]any{
		"server_count":    len(pool.servers),
		"max_connections": config.MaxConnections,
	})
	return pool, nil
}

// discoverServers resolves the server list once at startup.
func (p *connectionPool) discoverServers(ctx context.Context) error {
	var servers []*ServerInfo

	switch {
	case len(p.config.LDAPURLs) > 0:
		for _, u := range p.config.LDAPURLs {
			server, err := ParseLDAPURL(u)
			if err != nil {
				return fmt.Errorf("invalid LDAP URL %s: %w", u, err)
			}
			servers = append(servers, server)
		}
	case p.config.Domain != "":
		ctx, cancel := context.WithTimeout(ctx, p.config.ConnectTimeout)
		defer cancel()

		discovered, err := p.discovery.DiscoverServers(ctx, p.config.Domain)
		if err != nil {
			return fmt.Errorf("SRV discovery failed: %w", err)
		}
		servers = discovered
	default:
		return errors.New("either domain or LDAP URLs must be specified")
	}

	if len(servers) == 0 {
		return errors.New("no servers discovered")
	}

	p.mu.Lock()
	p.servers = servers
	p.mu.Unlock()
	return nil
}

// Get retrieves a connection from the pool, dialing a new one when none is idle.
func (p *connectionPool) Get(ctx context.Context) (*PooledConnection, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, errors.New("connection pool is closed")
	}

	for {
		select {
		case conn, ok := <-p.connections:
			if !ok {
				return nil, errors.New("connection pool is closed")
			}
			if !p.isConnectionHealthy(conn) {
				p.closeConnection(conn)
				continue
			}
			conn.lastUsed = time.Now()
			p.activeConns.Add(1)
			LogPoolEvent(p.logger, "connection_reused", map[string]any{"server": conn.serverInfo.Host})
			return conn, nil
		default:
			return p.createConnection(ctx)
		}
	}
}

// createConnection dials the servers in order, retrying with exponential backoff.
func (p *connectionPool) createConnection(ctx context.Context) (*PooledConnection, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		retryable := false
		for _, server := range p.servers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			conn, err := p.dial(server)
			if err != nil {
				lastErr = err
				p.totalErrors.Add(1)
				if IsRetryableError(err) {
					retryable = true
				}
				LogPoolEvent(p.logger, "connection_failed", map[string]any{
					"server":    ServerInfoToURL(server),
					"error":     err.Error(),
					"retryable": IsRetryableError(err),
				})
				continue
			}

			pooled := &PooledConnection{
				conn:         conn,
				lastUsed:     time.Now(),
				serverInfo:   server,
				returnToPool: p.returnConnection,
			}
			pooled.healthy.Store(true)

			p.totalCreated.Add(1)
			p.activeConns.Add(1)
			LogPoolEvent(p.logger, "connection_created", map[string]any{"server": ServerInfoToURL(server)})
			return pooled, nil
		}

		if !retryable {
			LogPoolEvent(p.logger, "all_connections_failed", map[string]any{"server_count": len(p.servers)})
			return nil, NewConnectionError("failed to connect to any directory server", false, lastErr)
		}

		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*p.config.BackoffFactor), p.config.MaxBackoff)
			}
		}
	}

	LogPoolEvent(p.logger, "all_connections_failed", map[string]any{"server_count": len(p.servers)})
	return nil, NewConnectionError("failed to connect to any directory server", true, lastErr)
}

// dialServer opens a connection to a single server, using LDAPS or StartTLS.
func (p *connectionPool) dialServer(server *ServerInfo) (*ldap.Conn, error) {
	u := ServerInfoToURL(server)
	dialer := &net.Dialer{Timeout: p.config.ConnectTimeout}

	var (
		conn *ldap.Conn
		err  error
	)
	if server.UseTLS {
		conn, err = ldap.DialURL(u, ldap.DialWithDialer(dialer), ldap.DialWithTLSConfig(p.tlsConfig))
	} else {
		conn, err = ldap.DialURL(u, ldap.DialWithDialer(dialer))
		if err == nil && p.config.UseTLS {
			if tlsErr := conn.StartTLS(p.tlsConfig); tlsErr != nil {
				conn.Close()
				err = fmt.Errorf("StartTLS failed: %w", tlsErr)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u, err)
	}

	conn.SetTimeout(p.config.Timeout)
	return conn, nil
}

// returnConnection returns a connection to the pool, closing it when unusable or surplus.
func (p *connectionPool) returnConnection(conn *PooledConnection) {
	if conn == nil {
		return
	}

	p.activeConns.Add(-1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || !p.isConnectionHealthy(conn) {
		p.closeConnection(conn)
		return
	}

	conn.lastUsed = time.Now()
	select {
	case p.connections <- conn:
	default:
		p.closeConnection(conn)
	}
}

// isConnectionHealthy checks if a connection may be reused.
func (p *connectionPool) isConnectionHealthy(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil || !conn.healthy.Load() {
		return false
	}
	if conn.conn.IsClosing() {
		return false
	}
	return time.Since(conn.lastUsed) <= p.config.MaxIdleTime
}

// closeConnection closes a pooled connection.
func (p *connectionPool) closeConnection(conn *PooledConnection) {
	if conn != nil && conn.conn != nil {
		conn.healthy.Store(false)
		conn.conn.Close()
	}
}

// Close closes all idle connections and shuts down the pool.
func (p *connectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	// The health checker returns connections under the read lock, so it is stopped
	// before the channel is closed.
	if p.healthTicker != nil {
		close(p.healthStop)
		p.healthWg.Wait()
		p.healthTicker.Stop()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	close(p.connections)
	for conn := range p.connections {
		p.closeConnection(conn)
	}

	return nil
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() PoolStats {
	return PoolStats{
		Idle:    len(p.connections),
		Active:  p.activeConns.Load(),
		Created: p.totalCreated.Load(),
		Errors:  p.totalErrors.Load(),
		Uptime:  time.Since(p.startTime),
	}
}

// startHealthChecker starts the periodic health checker.
func (p *connectionPool) startHealthChecker() {
	p.healthTicker = time.NewTicker(p.config.HealthCheck)

	p.healthWg.Go(func() {
		for {
			select {
			case <-p.healthTicker.C:
				p.performHealthCheck()
			case <-p.healthStop:
				return
			}
		}
	})
}

// performHealthCheck probes a few idle connections and drops the dead ones.
func (p *connectionPool) performHealthCheck() {
	var toCheck []*PooledConnection

healthCheckLoop:
	for range 3 {
		select {
		case conn, ok := <-p.connections:
			if !ok {
				break healthCheckLoop
			}
			toCheck = append(toCheck, conn)
		default:
			break healthCheckLoop
		}
	}

	for _, conn := range toCheck {
		// Checked-out connections are counted active by returnConnection.
		p.activeConns.Add(1)
		if p.testConnection(conn) {
			p.returnConnection(conn)
			continue
		}
		LogPoolEvent(p.logger, "health_check_failed", map[string]any{"server": conn.serverInfo.Host})
		conn.Discard()
		conn.Close()
	}
}

// testConnection reads the root DSE, which every domain controller serves to any client.
func (p *connectionPool) testConnection(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil {
		return false
	}

	searchReq := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		[]string{"defaultNamingContext"},
		nil,
	)

	_, err := conn.conn.Search(searchReq)
	return err == nil
}

// validateConfig validates the connection configuration.
func validateConfig(config *ConnectionConfig) error {
	if config.MaxConnections <= 0 {
		return errors.New("MaxConnections must be positive")
	}

	if config.MaxConnections > MaxConnectionPoolLimit {
		return fmt.Errorf("MaxConnections too high (max %d)", MaxConnectionPoolLimit)
	}

	if config.MaxIdleTime <= 0 {
		return errors.New("MaxIdleTime must be positive")
	}

	if config.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if config.ConnectTimeout <= 0 {
		return errors.New("connect timeout must be positive")
	}

	if config.MaxRetries < 0 {
		return errors.New("MaxRetries cannot be negative")
	}

	if config.BackoffFactor <= 1.0 {
		return errors.New("BackoffFactor must be greater than 1.0")
	}

	return nil
}

// Close returns the connection to its pool.
func (pc *PooledConnection) Close() {
	if pc.returnToPool != nil {
		pc.returnToPool(pc)
	}
}

// Discard marks the connection unusable and closes the underlying socket, failing any
// operation in flight. The holder must still call Close to release it.
func (pc *PooledConnection) Discard() {
	if pc.healthy.Swap(false) && pc.conn != nil {
		pc.conn.Close()
	}
}

// Conn returns the underlying LDAP connection.
func (pc *PooledConnection) Conn() *ldap.Conn {
	return pc.conn
}

// ServerInfo returns the server the connection is attached to.
func (pc *PooledConnection) ServerInfo() *ServerInfo {
	return pc.serverInfo
}

// IsHealthy reports whether the connection may be returned to the pool.
func (pc *PooledConnection) IsHealthy() bool {
	return pc.healthy.Load()
}
