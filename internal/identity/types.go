package identity

import (
	"context"
	"time"
)

// Directory verifies a login name and password against the directory service.
//
// A nil error means the directory accepted the credentials. Implementations must be safe
// for concurrent use. They should honour ctx where the underlying protocol allows it, but
// the Runner does not rely on that.
type Directory interface {
	Authenticate(ctx context.Context, loginName, password string) (*Principal, error)
}

// DirectoryFunc adapts an ordinary function to the Directory interface.
type DirectoryFunc func(ctx context.Context, loginName, password string) (*Principal, error)

func (f DirectoryFunc) Authenticate(ctx context.Context, loginName, password string) (*Principal, error) {
	return f(ctx, loginName, password)
}

// Principal describes the authenticated account. Only LoginName is guaranteed; the other
// fields are filled when the directory client looks up the account's own entry.
type Principal struct {
	LoginName         string `json:"login_name"`
	DN                string `json:"dn,omitempty"`
	SAMAccountName    string `json:"sam_account_name,omitempty"`
	UserPrincipalName string `json:"user_principal_name,omitempty"`
	DisplayName       string `json:"display_name,omitempty"`
	Mail              string `json:"mail,omitempty"`
	SID               string `json:"sid,omitempty"`
	GUID              string `json:"guid,omitempty"`
}

// Outcome is the result of one bounded attempt.
type Outcome struct {
	Candidate Candidate
	OK        bool
	Elapsed   time.Duration
	Err       error
	Principal *Principal
}

// TimedOut reports whether the attempt was abandoned at its deadline.
func (o Outcome) TimedOut() bool {
	return o.Err == ErrAttemptTimeout
}

// Resolution paths.
const (
	PathFastPath = "fast_path"
	PathRace     = "race"
)

// Result is the outcome of Resolve. It never carries the password.
type Result struct {
	OK         bool
	User       string     // Winning login name on success
	Cached     bool       // Success came from the fast path
	Path       string     // PathFastPath or PathRace
	Reason     Reason     // Set on failure
	Candidates []string   // Login names attempted by the full race, set on failure
	Principal  *Principal // Optional profile of the authenticated account
}

// Metrics receives resolver instrumentation. A nil Metrics disables collection.
type Metrics interface {
	ObserveAttempt(format Format, ok, timedOut bool, elapsed time.Duration)
	ObserveResolution(path string, ok bool, elapsed time.Duration)
	ObserveCacheLookup(hit bool)
	ObserveCacheEviction()
	SetCacheSize(n int)
}
