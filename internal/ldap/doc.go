/*
Package ldap verifies Active Directory credentials.

Two backends implement identity.Directory:

  - Authenticator performs an LDAP simple bind as the user over a pooled connection and
    can read the account's own entry afterwards (distinguished name, names, mail,
    objectSid, objectGUID).
  - KerberosAuthenticator performs a Kerberos AS exchange against the domain's KDCs.

# Connection Management

The connection pool dials domain controllers from configured ldap:// or ldaps:// URLs,
or from DNS SRV records for the domain (_ldaps._tcp first, then _ldap._tcp). Plain
connections are upgraded with StartTLS unless disabled. Dial failures are retried across
all servers with exponential backoff.

Binds are never retried: a retried bad password counts twice toward the account lockout
threshold.

# Errors

Failures are returned as *LDAPError, which keeps the server's diagnostic message. For a
rejected Active Directory bind that message carries the sub-code ("data 52e") that
identifies the cause; ADSubCode extracts it.
*/
package ldap
