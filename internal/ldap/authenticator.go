package ldap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"

	"github.com/isometry/adauth/internal/identity"
)

// profileAttributes are read from the bound account's own entry.
var profileAttributes = []string{
	"distinguishedName",
	"sAMAccountName",
	"userPrincipalName",
	"displayName",
	"mail",
	"objectSid",
	"objectGUID",
}

// Authenticator verifies passwords with an LDAP simple bind over pooled connections.
type Authenticator struct {
	pool   ConnectionPool
	config *ConnectionConfig
	baseDN string
	logger hclog.Logger
}

var _ identity.Directory = (*Authenticator)(nil)

// NewAuthenticator creates an Authenticator and its connection pool.
func NewAuthenticator(ctx context.Context, config *ConnectionConfig, logger hclog.Logger) (*Authenticator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	pool, err := NewConnectionPool(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	return newAuthenticatorWithPool(pool, config, logger), nil
}

func newAuthenticatorWithPool(pool ConnectionPool, config *ConnectionConfig, logger hclog.Logger) *Authenticator {
	baseDN := config.BaseDN
	if baseDN == "" {
		baseDN = DomainToBaseDN(config.Domain)
	}

	return &Authenticator{
		pool:   pool,
		config: config,
		baseDN: baseDN,
		logger: logger.Named(subsystemLDAP),
	}
}

// Authenticate binds as loginName. A nil error means the directory accepted the password.
//
// Cancelling ctx closes the connection in use, which aborts the bind.
func (a *Authenticator) Authenticate(ctx context.Context, loginName, password string) (*identity.Principal, error) {
	if password == "" {
		err := NewLDAPError("bind", ErrEmptyPassword)
		err.Principal = loginName
		return nil, err
	}

	conn, err := a.pool.Get(ctx)
	if err != nil {
		return nil, WrapError("connect", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, conn.Discard)
	defer stop()

	start := time.Now()
	if err := conn.Conn().Bind(loginName, password); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("bind as %s interrupted: %w", loginName, ctxErr)
		}

		bindErr := NewLDAPError("bind", err)
		bindErr.Principal = loginName
		if bindErr.Category == ErrorCategoryConnection {
			conn.Discard()
		}
		LogLDAPError(a.logger, "bind", bindErr, map[string]any{
			"principal": loginName,
			"server":    conn.ServerInfo().Host,
		})
		return nil, bindErr
	}
	LogPerformance(a.logger, "bind", time.Since(start), map[string]any{"principal": loginName})

	principal := &identity.Principal{LoginName: loginName}
	if a.config.LookupProfile && a.baseDN != "" {
		if err := a.lookupProfile(conn.Conn(), loginName, principal); err != nil {
			// The password was verified; a missing profile does not undo that.
			a.logger.Warn("Profile lookup failed", "principal", loginName, "error", err.Error())
		}
	}

	return principal, nil
}

// lookupProfile reads the bound account's own entry into principal.
func (a *Authenticator) lookupProfile(conn *ldap.Conn, loginName string, principal *identity.Principal) error {
	req := ldap.NewSearchRequest(
		a.baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2,
		int(a.config.Timeout.Seconds()),
		false,
		ProfileFilter(loginName),
		profileAttributes,
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return NewLDAPError("search", err)
	}

	switch len(result.Entries) {
	case 0:
		return errors.New("no entry found for principal")
	case 1:
	default:
		return fmt.Errorf("%d entries found for principal", len(result.Entries))
	}

	applyProfile(result.Entries[0], principal)
	return nil
}

// ProfileFilter returns the search filter selecting the account behind a login name.
func ProfileFilter(loginName string) string {
	var attr, value string
	switch {
	case strings.Contains(loginName, "@"):
		attr, value = "userPrincipalName", loginName
	case strings.Contains(loginName, identity.DomainSeparator):
		attr = "sAMAccountName"
		value = loginName[strings.LastIndex(loginName, identity.DomainSeparator)+1:]
	default:
		attr, value = "sAMAccountName", loginName
	}
	return fmt.Sprintf("(&(objectCategory=person)(objectClass=user)(%s=%s))", attr, ldap.EscapeFilter(value))
}

func applyProfile(entry *ldap.Entry, principal *identity.Principal) {
	principal.DN = entry.DN
	principal.SAMAccountName = entry.GetAttributeValue("sAMAccountName")
	principal.UserPrincipalName = entry.GetAttributeValue("userPrincipalName")
	principal.DisplayName = entry.GetAttributeValue("displayName")
	principal.Mail = entry.GetAttributeValue("mail")

	if raw := entry.GetRawAttributeValue("objectSid"); len(raw) > 0 {
		if sid, err := DecodeSID(raw); err == nil {
			principal.SID = sid
		}
	}
	if raw := entry.GetRawAttributeValue("objectGUID"); len(raw) > 0 {
		if guid, err := DecodeGUID(raw); err == nil {
			principal.GUID = guid
		}
	}
}

// DomainToBaseDN converts a DNS domain name to its naming context, e.g. example.com to
// DC=example,DC=com.
func DomainToBaseDN(domain string) string {
	domain = strings.Trim(domain, ".")
	if domain == "" {
		return ""
	}
	labels := strings.Split(domain, ".")
	for i, l := range labels {
		labels[i] = "DC=" + l
	}
	return strings.Join(labels, ",")
}

// Stats returns connection pool statistics.
func (a *Authenticator) Stats() PoolStats {
	return a.pool.Stats()
}

// Close shuts down the connection pool.
func (a *Authenticator) Close() error {
	return a.pool.Close()
}
