package ldap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"

	"github.com/isometry/adauth/internal/identity"
)

// KerberosAuthenticator verifies passwords with a Kerberos AS exchange against the
// domain's KDCs. No LDAP connection is involved.
type KerberosAuthenticator struct {
	krb5   *krb5config.Config
	realm  string
	logger hclog.Logger
}

var _ identity.Directory = (*KerberosAuthenticator)(nil)

// NewKerberosAuthenticator loads or generates the Kerberos configuration.
func NewKerberosAuthenticator(cfg *ConnectionConfig, logger hclog.Logger) (*KerberosAuthenticator, error) {
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named(subsystemKerberos)

	realm := strings.ToUpper(cfg.KerberosRealm)
	if realm == "" {
		realm = extractRealmFromDomain(cfg.Domain)
	}
	if realm == "" {
		return nil, errors.New("either kerberos realm or domain must be specified")
	}

	var (
		krb5 *krb5config.Config
		err  error
	)
	if cfg.KerberosConfig != "" {
		if !fileExists(cfg.KerberosConfig) {
			return nil, fmt.Errorf("Kerberos configuration file not found at %s. "+
				"Either create it or leave the path empty to generate one at runtime. "+
				"Example minimal configuration:\n%s",
				cfg.KerberosConfig, generateExampleKrb5Conf(realm))
		}
		krb5, err = krb5config.Load(cfg.KerberosConfig)
	} else {
		var text string
		text, err = generateRuntimeKrb5Conf(logger, cfg, realm)
		if err == nil {
			krb5, err = krb5config.NewFromString(text)
		}
	}
	if err != nil {
		LogKerberosEvent(logger, "config_load_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("failed to load Kerberos configuration: %w", err)
	}

	return &KerberosAuthenticator{
		krb5:   krb5,
		realm:  realm,
		logger: logger,
	}, nil
}

// Authenticate obtains a TGT for loginName. A nil error means the KDC accepted the
// password; the ticket is discarded immediately.
func (k *KerberosAuthenticator) Authenticate(ctx context.Context, loginName, password string) (*identity.Principal, error) {
	if password == "" {
		err := NewLDAPError("kerberos", ErrEmptyPassword)
		err.Principal = loginName
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, realm := k.SplitPrincipal(loginName)
	cl := krb5client.NewWithPassword(user, realm, password, k.krb5, krb5client.DisablePAFXFAST(true))
	defer cl.Destroy()

	start := time.Now()
	if err := cl.Login(); err != nil {
		loginErr := NewLDAPError("kerberos", err)
		loginErr.Principal = loginName
		LogKerberosEvent(k.logger, "ticket_acquisition_failed", map[string]any{
			"principal": user + "@" + realm,
			"error":     err.Error(),
		})
		return nil, loginErr
	}

	LogKerberosEvent(k.logger, "ticket_acquired", map[string]any{
		"principal":   user + "@" + realm,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return &identity.Principal{LoginName: loginName}, nil
}

// SplitPrincipal maps a login name to a Kerberos user and realm. A UPN suffix is looked up
// in the [domain_realm] section; unmapped suffixes (alternate UPN suffixes), down-level
// and bare names use the configured realm.
func (k *KerberosAuthenticator) SplitPrincipal(loginName string) (user, realm string) {
	if i := strings.LastIndex(loginName, "@"); i >= 0 {
		return loginName[:i], k.resolveRealm(loginName[i+1:])
	}
	if i := strings.LastIndex(loginName, identity.DomainSeparator); i >= 0 {
		return loginName[i+1:], k.realm
	}
	return loginName, k.realm
}

func (k *KerberosAuthenticator) resolveRealm(suffix string) string {
	if k.krb5 != nil {
		if realm := k.krb5.ResolveRealm(strings.ToLower(suffix)); realm != "" {
			return realm
		}
	}
	return k.realm
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

// generateExampleKrb5Conf generates example krb5.conf content for error messages.
func generateExampleKrb5Conf(realm string) string {
	if realm == "" {
		realm = "YOUR.REALM.COM"
	}
	domain := strings.ToLower(realm)

	return fmt.Sprintf(`[libdefaults]
    default_realm = %[1]s
    dns_lookup_kdc = false

[realms]
    %[1]s = {
        kdc = dc.%[2]s:88
    }

[domain_realm]
    .%[2]s = %[1]s
    %[2]s = %[1]s`, realm, domain)
}
