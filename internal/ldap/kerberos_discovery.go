package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// generateRuntimeKrb5Conf generates a krb5.conf for realm. KDCs are listed explicitly when
// configured and otherwise located through DNS SRV records.
func generateRuntimeKrb5Conf(logger hclog.Logger, cfg *ConnectionConfig, realm string) (string, error) {
	if realm == "" {
		return "", errors.New("kerberos realm is required")
	}

	realm = strings.ToUpper(realm)
	domain := strings.ToLower(realm)
	if cfg.Domain != "" {
		domain = strings.ToLower(cfg.Domain)
	}

	dnsLookupKDC := cfg.KerberosDNSLookupKDC || len(cfg.KerberosKDCs) == 0

	var kdcs strings.Builder
	for _, kdc := range cfg.KerberosKDCs {
		if !strings.Contains(kdc, ":") {
			kdc += ":88"
		}
		fmt.Fprintf(&kdcs, "        kdc = %s\n", kdc)
	}

	logger.Debug("Generating runtime krb5.conf",
		"realm", realm,
		"domain", domain,
		"kdc_count", len(cfg.KerberosKDCs),
		"dns_lookup_kdc", dnsLookupKDC,
	)

	return fmt.Sprintf(`[libdefaults]
    default_realm = %s
    dns_lookup_kdc = %t
    dns_lookup_realm = false
    rdns = false
    udp_preference_limit = 1

[realms]
    %s = {
%s    }

[domain_realm]
    .%s = %s
    %s = %s
`,
		realm,
		dnsLookupKDC,
		realm,
		kdcs.String(),
		domain, realm,
		domain, realm,
	), nil
}

// extractRealmFromDomain derives a Kerberos realm from a domain name.
func extractRealmFromDomain(domain string) string {
	return strings.ToUpper(strings.Trim(domain, "."))
}
