package identity

import (
	"strings"
)

// Reason is a user-facing explanation of an authentication failure.
type Reason string

const (
	ReasonUserNotFound         Reason = "User not found"
	ReasonInvalidPassword      Reason = "Invalid username or password"
	ReasonLogonTimeRestricted  Reason = "Not permitted to logon at this time"
	ReasonPasswordExpired      Reason = "Password expired"
	ReasonAccountDisabled      Reason = "Account disabled"
	ReasonAccountExpired       Reason = "Account expired"
	ReasonMustChangePassword   Reason = "User must change password at next logon"
	ReasonAccountLocked        Reason = "Account locked"
	ReasonInvalidCredentials   Reason = "Invalid credentials"
	ReasonAuthenticationFailed Reason = "Authentication failed"
)

// reasonTable maps directory status markers to reasons. Active Directory reports the
// cause of an LDAP result 49 as a hex sub-code ("data 52e") in the diagnostic message;
// a KDC reports it as a named Kerberos error code.
var reasonTable = []struct {
	marker string
	reason Reason
}{
	{"data 525", ReasonUserNotFound},
	{"data 52e", ReasonInvalidPassword},
	{"data 530", ReasonLogonTimeRestricted},
	{"data 532", ReasonPasswordExpired},
	{"data 533", ReasonAccountDisabled},
	{"data 701", ReasonAccountExpired},
	{"data 773", ReasonMustChangePassword},
	{"data 775", ReasonAccountLocked},
	{"kdc_err_c_principal_unknown", ReasonUserNotFound},
	{"kdc_err_preauth_failed", ReasonInvalidPassword},
	{"kdc_err_key_expired", ReasonPasswordExpired},
	{"kdc_err_client_revoked", ReasonAccountDisabled},
}

// Normalize maps a low-level directory failure detail to a Reason.
// Unrecognized or empty details map to ReasonInvalidCredentials.
func Normalize(detail string) Reason {
	d := strings.ToLower(detail)
	for _, entry := range reasonTable {
		if strings.Contains(d, entry.marker) {
			return entry.reason
		}
	}
	return ReasonInvalidCredentials
}

// NormalizeError is Normalize for error values.
func NormalizeError(err error) Reason {
	if err == nil {
		return ReasonInvalidCredentials
	}
	return Normalize(err.Error())
}
