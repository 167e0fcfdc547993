package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/adauth/internal/identity"
)

func TestRecorder_Attempts(t *testing.T) {
	r := New()

	r.ObserveAttempt(identity.FormatUPN, true, false, 20*time.Millisecond)
	r.ObserveAttempt(identity.FormatDownLevel, false, false, 30*time.Millisecond)
	r.ObserveAttempt(identity.FormatDownLevel, false, true, 4*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.attempts.WithLabelValues("UPN", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.attempts.WithLabelValues("DOWN_LEVEL", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.attempts.WithLabelValues("DOWN_LEVEL", "timeout")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.attemptDuration))
}

func TestRecorder_Resolutions(t *testing.T) {
	r := New()

	r.ObserveResolution(identity.PathFastPath, true, time.Millisecond)
	r.ObserveResolution(identity.PathRace, false, time.Second)
	r.ObserveResolution(identity.PathRace, false, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.resolutions.WithLabelValues("fast_path", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.resolutions.WithLabelValues("race", "false")))
}

func TestRecorder_Cache(t *testing.T) {
	r := New()

	r.ObserveCacheLookup(true)
	r.ObserveCacheLookup(false)
	r.ObserveCacheLookup(false)
	r.ObserveCacheEviction()
	r.SetCacheSize(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheEvictions))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.cacheSize))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.SetCacheSize(3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "adauth_format_cache_entries 3")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRecorder_FeedsResolver(t *testing.T) {
	r := New()
	dir := identity.DirectoryFunc(func(_ context.Context, loginName, _ string) (*identity.Principal, error) {
		return &identity.Principal{LoginName: loginName}, nil
	})

	cfg := identity.DefaultConfig()
	cfg.UPNSuffix = "example.com"
	cfg.NetBIOSDomain = "EXAMPLE"
	resolver, err := identity.NewResolver(dir, cfg, nil, r)
	require.NoError(t, err)

	result := resolver.Resolve(t.Context(), "alice", "secret")
	require.True(t, result.OK)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.resolutions.WithLabelValues("race", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheSize))
}
