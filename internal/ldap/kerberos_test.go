package ldap

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKerberosAuthenticator(t *testing.T) {
	t.Run("realm derived from domain", func(t *testing.T) {
		k, err := NewKerberosAuthenticator(&ConnectionConfig{Domain: "example.com"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "EXAMPLE.COM", k.realm)
		assert.Equal(t, "EXAMPLE.COM", k.krb5.LibDefaults.DefaultRealm)
	})

	t.Run("explicit realm", func(t *testing.T) {
		k, err := NewKerberosAuthenticator(&ConnectionConfig{
			Domain:        "example.com",
			KerberosRealm: "corp.example.com",
			KerberosKDCs:  []string{"dc1.example.com"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "CORP.EXAMPLE.COM", k.realm)
	})

	t.Run("no realm or domain", func(t *testing.T) {
		_, err := NewKerberosAuthenticator(&ConnectionConfig{}, nil)
		assert.Error(t, err)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewKerberosAuthenticator(nil, nil)
		assert.Error(t, err)
	})

	t.Run("missing krb5.conf gives example", func(t *testing.T) {
		_, err := NewKerberosAuthenticator(&ConnectionConfig{
			KerberosRealm:  "EXAMPLE.COM",
			KerberosConfig: "/nonexistent/krb5.conf",
		}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Kerberos configuration file not found at /nonexistent/krb5.conf")
		assert.Contains(t, err.Error(), "default_realm = EXAMPLE.COM")
	})

	t.Run("krb5.conf from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "krb5.conf")
		require.NoError(t, os.WriteFile(path, []byte(generateExampleKrb5Conf("EXAMPLE.COM")), 0o600))

		k, err := NewKerberosAuthenticator(&ConnectionConfig{
			KerberosRealm:  "EXAMPLE.COM",
			KerberosConfig: path,
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "EXAMPLE.COM", k.krb5.LibDefaults.DefaultRealm)
	})
}

func TestKerberosAuthenticator_SplitPrincipal(t *testing.T) {
	t.Run("generated config", func(t *testing.T) {
		k, err := NewKerberosAuthenticator(&ConnectionConfig{Domain: "example.com"}, nil)
		require.NoError(t, err)

		tests := []struct {
			loginName string
			wantUser  string
			wantRealm string
		}{
			{"alice@example.com", "alice", "EXAMPLE.COM"},
			{"alice@EXAMPLE.COM", "alice", "EXAMPLE.COM"},
			{"carol@sub.example.com", "carol", "EXAMPLE.COM"},
			{"bob@partner.example.org", "bob", "EXAMPLE.COM"},
			{`EXAMPLE\alice`, "alice", "EXAMPLE.COM"},
			{"alice", "alice", "EXAMPLE.COM"},
		}

		for _, tt := range tests {
			t.Run(tt.loginName, func(t *testing.T) {
				user, realm := k.SplitPrincipal(tt.loginName)
				assert.Equal(t, tt.wantUser, user)
				assert.Equal(t, tt.wantRealm, realm)
			})
		}
	})

	t.Run("mapped suffix", func(t *testing.T) {
		conf := generateExampleKrb5Conf("EXAMPLE.COM") + `
    .partner.example.org = PARTNER.EXAMPLE.ORG
    partner.example.org = PARTNER.EXAMPLE.ORG
`
		path := filepath.Join(t.TempDir(), "krb5.conf")
		require.NoError(t, os.WriteFile(path, []byte(conf), 0o600))

		k, err := NewKerberosAuthenticator(&ConnectionConfig{
			KerberosRealm:  "EXAMPLE.COM",
			KerberosConfig: path,
		}, nil)
		require.NoError(t, err)

		user, realm := k.SplitPrincipal("bob@partner.example.org")
		assert.Equal(t, "bob", user)
		assert.Equal(t, "PARTNER.EXAMPLE.ORG", realm)

		_, realm = k.SplitPrincipal("dave@contoso.test")
		assert.Equal(t, "EXAMPLE.COM", realm)
	})
}

func TestKerberosAuthenticator_RefusesEmptyPassword(t *testing.T) {
	k, err := NewKerberosAuthenticator(&ConnectionConfig{Domain: "example.com"}, nil)
	require.NoError(t, err)

	_, err = k.Authenticate(t.Context(), "alice@example.com", "")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestKerberosAuthenticator_CancelledContext(t *testing.T) {
	k, err := NewKerberosAuthenticator(&ConnectionConfig{Domain: "example.com"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = k.Authenticate(ctx, "alice@example.com", "secret")
	assert.ErrorIs(t, err, context.Canceled)
}

// kdcEntry matches a kdc line inside a [realms] block, not dns_lookup_kdc.
var kdcEntry = regexp.MustCompile(`(?m)^\s+kdc = `)

func TestGenerateRuntimeKrb5Conf(t *testing.T) {
	t.Run("dns discovery", func(t *testing.T) {
		cfg := &ConnectionConfig{Domain: "example.com"}

		config, err := generateRuntimeKrb5Conf(nullLogger(), cfg, "example.com")
		require.NoError(t, err)

		assert.Contains(t, config, "default_realm = EXAMPLE.COM")
		assert.Contains(t, config, "dns_lookup_kdc = true")
		assert.Contains(t, config, "EXAMPLE.COM = {")
		assert.Contains(t, config, ".example.com = EXAMPLE.COM")
		assert.NotRegexp(t, kdcEntry, config)
		assert.NotContains(t, config, "[logging]")
	})

	t.Run("explicit kdcs", func(t *testing.T) {
		cfg := &ConnectionConfig{
			Domain:       "example.com",
			KerberosKDCs: []string{"dc1.example.com", "dc2.example.com:8888"},
		}

		config, err := generateRuntimeKrb5Conf(nullLogger(), cfg, "EXAMPLE.COM")
		require.NoError(t, err)

		assert.Contains(t, config, "dns_lookup_kdc = false")
		assert.Regexp(t, kdcEntry, config)
		assert.Contains(t, config, "kdc = dc1.example.com:88")
		assert.Contains(t, config, "kdc = dc2.example.com:8888")
	})

	t.Run("missing realm", func(t *testing.T) {
		_, err := generateRuntimeKrb5Conf(nullLogger(), &ConnectionConfig{}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kerberos realm is required")
	})
}

func TestExtractRealmFromDomain(t *testing.T) {
	assert.Equal(t, "EXAMPLE.COM", extractRealmFromDomain("example.com"))
	assert.Equal(t, "EXAMPLE.COM", extractRealmFromDomain("example.com."))
	assert.Equal(t, "", extractRealmFromDomain(""))
}

func TestFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "present")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	assert.True(t, fileExists(path))
	assert.False(t, fileExists(path+".missing"))
	assert.False(t, fileExists(""))
}
