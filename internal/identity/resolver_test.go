package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) Authenticate(ctx context.Context, loginName, password string) (*Principal, error) {
	args := m.Called(ctx, loginName, password)
	p, _ := args.Get(0).(*Principal)
	return p, args.Error(1)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.UPNSuffix = "example.com"
	cfg.NetBIOSDomain = "EXAMPLE"
	cfg.FastPathTimeout = 200 * time.Millisecond
	cfg.RaceTimeout = 200 * time.Millisecond
	return cfg
}

func newTestResolver(t *testing.T, dir Directory, metrics Metrics) *Resolver {
	t.Helper()
	r, err := NewResolver(dir, testConfig(), nil, metrics)
	require.NoError(t, err)
	return r
}

func TestNewResolver_Validation(t *testing.T) {
	dir := newFakeDirectory(nil)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing upn suffix", func(c *Config) { c.UPNSuffix = "" }, "UPN suffix"},
		{"bare at sign", func(c *Config) { c.UPNSuffix = "@" }, "UPN suffix"},
		{"missing netbios domain", func(c *Config) { c.NetBIOSDomain = "" }, "NetBIOS domain"},
		{"zero fast path timeout", func(c *Config) { c.FastPathTimeout = 0 }, "fast path timeout"},
		{"negative race timeout", func(c *Config) { c.RaceTimeout = -time.Second }, "race timeout"},
		{"zero cache size", func(c *Config) { c.CacheSize = 0 }, "cache size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewResolver(dir, cfg, nil, nil)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := NewResolver(nil, testConfig(), nil, nil)
	assert.Error(t, err)
}

func TestResolver_FirstLoginRacesAndCaches(t *testing.T) {
	dir := newFakeDirectory(map[string]fakeReply{
		`EXAMPLE\alice`: {},
	})
	r := newTestResolver(t, dir, nil)

	res := r.Resolve(t.Context(), " Alice ", "secret")

	require.True(t, res.OK)
	assert.Equal(t, `EXAMPLE\Alice`, res.User)
	assert.False(t, res.Cached)
	assert.Equal(t, PathRace, res.Path)

	entry, ok := r.Cache().Peek("alice")
	require.True(t, ok)
	assert.Equal(t, FormatDownLevel, entry.Format)
}

func TestResolver_FastPathSkipsOtherCandidates(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("Authenticate", mock.Anything, "alice@example.com", "secret").
		Return(&Principal{LoginName: "alice@example.com"}, nil)

	r := newTestResolver(t, dir, nil)
	r.Cache().Put("alice", FormatUPN, 0)

	res := r.Resolve(t.Context(), "alice", "secret")

	require.True(t, res.OK)
	assert.True(t, res.Cached)
	assert.Equal(t, "alice@example.com", res.User)
	assert.Equal(t, PathFastPath, res.Path)
	dir.AssertNumberOfCalls(t, "Authenticate", 1)
	dir.AssertNotCalled(t, "Authenticate", mock.Anything, `EXAMPLE\alice`, mock.Anything)
}

func TestResolver_StaleEntryFallsBackAndUpdates(t *testing.T) {
	dir := newFakeDirectory(map[string]fakeReply{
		`EXAMPLE\alice`: {},
	})
	r := newTestResolver(t, dir, nil)
	r.Cache().Put("alice", FormatUPN, 0)

	res := r.Resolve(t.Context(), "alice", "secret")

	require.True(t, res.OK)
	assert.False(t, res.Cached)
	assert.Equal(t, `EXAMPLE\alice`, res.User)

	calls := dir.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "alice@example.com", calls[0])
	assert.ElementsMatch(t, []string{"alice@example.com", `EXAMPLE\alice`}, calls[1:])

	entry, ok := r.Cache().Peek("alice")
	require.True(t, ok)
	assert.Equal(t, FormatDownLevel, entry.Format)
}

func TestResolver_WinnerFollowsGeneratorOrder(t *testing.T) {
	dir := newFakeDirectory(map[string]fakeReply{
		"alice@example.com": {delay: 50 * time.Millisecond},
		`EXAMPLE\alice`:     {},
	})
	r := newTestResolver(t, dir, nil)

	res := r.Resolve(t.Context(), "alice", "secret")

	require.True(t, res.OK)
	assert.Equal(t, "alice@example.com", res.User)

	entry, ok := r.Cache().Peek("alice")
	require.True(t, ok)
	assert.Equal(t, FormatUPN, entry.Format)
}

func TestResolver_Failures(t *testing.T) {
	tests := []struct {
		name       string
		replies    map[string]fakeReply
		wantReason Reason
	}{
		{
			name: "account locked",
			replies: map[string]fakeReply{
				"alice@example.com": {err: errors.New("LDAP Result Code 49: AcceptSecurityContext error, data 775, v4563")},
				`EXAMPLE\alice`:     {err: errors.New("LDAP Result Code 49: AcceptSecurityContext error, data 775, v4563")},
			},
			wantReason: ReasonAccountLocked,
		},
		{
			name: "first error in generator order wins",
			replies: map[string]fakeReply{
				"alice@example.com": {delay: 30 * time.Millisecond, err: errors.New("data 532")},
				`EXAMPLE\alice`:     {err: errors.New("data 525")},
			},
			wantReason: ReasonPasswordExpired,
		},
		{
			name: "timeouts map to generic reason",
			replies: map[string]fakeReply{
				"alice@example.com": {delay: time.Second},
				`EXAMPLE\alice`:     {delay: time.Second},
			},
			wantReason: ReasonInvalidCredentials,
		},
		{
			name:       "unknown detail",
			replies:    map[string]fakeReply{"alice@example.com": {err: errors.New("connection reset by peer")}},
			wantReason: ReasonInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFakeDirectory(tt.replies)
			r := newTestResolver(t, dir, nil)

			res := r.Resolve(t.Context(), "alice", "hunter2")

			assert.False(t, res.OK)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, []string{"alice@example.com", `EXAMPLE\alice`}, res.Candidates)
			assert.NotContains(t, fmt.Sprintf("%+v", res), "hunter2")
			assert.Zero(t, r.Cache().Len())
		})
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []Outcome
		want     Reason
	}{
		{"no outcomes", nil, ReasonAuthenticationFailed},
		{"no error detail", []Outcome{{Candidate: Candidate{Name: "x"}}}, ReasonAuthenticationFailed},
		{"first error used", []Outcome{
			{Candidate: Candidate{Name: "x"}},
			{Candidate: Candidate{Name: "y"}, Err: errors.New("data 533")},
			{Candidate: Candidate{Name: "z"}, Err: errors.New("data 525")},
		}, ReasonAccountDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureReason(tt.outcomes))
		})
	}
}

func TestResolver_PreQualifiedNotCached(t *testing.T) {
	dir := newFakeDirectory(map[string]fakeReply{
		"bob@partner.org": {},
	})
	r := newTestResolver(t, dir, nil)

	res := r.Resolve(t.Context(), "bob@partner.org", "secret")

	require.True(t, res.OK)
	assert.Equal(t, "bob@partner.org", res.User)
	assert.Equal(t, []string{"bob@partner.org"}, dir.Calls())
	assert.Zero(t, r.Cache().Len())
}

func TestResolver_NeverRespondingDirectory(t *testing.T) {
	dir := newFakeDirectory(map[string]fakeReply{
		"alice@example.com": {hang: true},
		`EXAMPLE\alice`:     {hang: true},
	})
	t.Cleanup(dir.release)

	metrics := &fakeMetrics{}
	r := newTestResolver(t, dir, metrics)

	start := time.Now()
	res := r.Resolve(t.Context(), "alice", "secret")

	assert.False(t, res.OK)
	assert.Less(t, time.Since(start), testConfig().RaceTimeout+300*time.Millisecond)
	assert.Equal(t, 2, metrics.timeouts)
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 1, metrics.resolutions[PathRace])
}

func TestResolver_ConcurrentResolutions(t *testing.T) {
	dir := newFakeDirectory(map[string]fakeReply{})
	for i := range 20 {
		dir.replies[fmt.Sprintf("user%d@example.com", i)] = fakeReply{delay: time.Millisecond}
	}
	r := newTestResolver(t, dir, nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			res := r.Resolve(t.Context(), fmt.Sprintf("User%d", i), "secret")
			assert.True(t, res.OK)
			assert.True(t, strings.HasSuffix(res.User, "@example.com"))
		})
	}
	wg.Wait()

	assert.Equal(t, 20, r.Cache().Len())
}

func TestResolver_MetricsForFastPath(t *testing.T) {
	dir := newFakeDirectory(map[string]fakeReply{"alice@example.com": {}})
	metrics := &fakeMetrics{}
	r := newTestResolver(t, dir, metrics)

	r.Resolve(t.Context(), "alice", "secret")
	r.Resolve(t.Context(), "alice", "secret")

	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 1, metrics.resolutions[PathRace])
	assert.Equal(t, 1, metrics.resolutions[PathFastPath])
	assert.Equal(t, 1, metrics.size)
}
