package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Default timeouts for resolution attempts.
const (
	DefaultFastPathTimeout = 3 * time.Second
	DefaultRaceTimeout     = 4 * time.Second
)

// Config holds the settings of a Resolver.
type Config struct {
	UPNSuffix       string        // Appended to bare usernames as user@UPNSuffix
	NetBIOSDomain   string        // Prefixed to bare usernames as NetBIOSDomain\user
	FastPathTimeout time.Duration // Deadline of the single cached-format attempt
	RaceTimeout     time.Duration // Deadline of each attempt in the full race
	CacheSize       int           // Maximum number of remembered usernames
}

// DefaultConfig returns a Config with default timeouts and cache size. The domain names
// must still be supplied.
func DefaultConfig() Config {
	return Config{
		FastPathTimeout: DefaultFastPathTimeout,
		RaceTimeout:     DefaultRaceTimeout,
		CacheSize:       DefaultCacheSize,
	}
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimPrefix(c.UPNSuffix, "@") == "" {
		errs = append(errs, errors.New("UPN suffix is required"))
	}
	if strings.TrimSuffix(c.NetBIOSDomain, DomainSeparator) == "" {
		errs = append(errs, errors.New("NetBIOS domain is required"))
	}
	if c.FastPathTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fast path timeout must be positive, got %s", c.FastPathTimeout))
	}
	if c.RaceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("race timeout must be positive, got %s", c.RaceTimeout))
	}
	if c.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("cache size must be positive, got %d", c.CacheSize))
	}
	return errors.Join(errs...)
}

// Resolver authenticates usernames, learning which login name format each one needs.
type Resolver struct {
	config     Config
	generator  *Generator
	runner     *Runner
	cache      *FormatCache
	metrics    Metrics
	logger     hclog.Logger
	generation atomic.Uint64
}

// NewResolver creates a Resolver over the given directory. Logger and metrics may be nil.
func NewResolver(directory Directory, config Config, logger hclog.Logger, metrics Metrics) (*Resolver, error) {
	if directory == nil {
		return nil, errors.New("directory is required")
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid resolver configuration: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	var onEvict func(string, CacheEntry)
	if metrics != nil {
		onEvict = func(string, CacheEntry) { metrics.ObserveCacheEviction() }
	}

	cache, err := NewFormatCache(config.CacheSize, onEvict)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		config:    config,
		generator: NewGenerator(config.UPNSuffix, config.NetBIOSDomain),
		runner:    NewRunner(directory, metrics, logger.Named("attempt")),
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Cache exposes the format cache for diagnostics.
func (r *Resolver) Cache() *FormatCache {
	return r.cache
}

// Generator returns the candidate generator used by the resolver.
func (r *Resolver) Generator() *Generator {
	return r.generator
}

// Resolve authenticates username with password. The caller is expected to reject empty
// input beforehand. Resolve always returns a well-formed Result.
func (r *Resolver) Resolve(ctx context.Context, username, password string) (result Result) {
	start := time.Now()
	raw := strings.TrimSpace(username)
	key := strings.ToLower(raw)
	generation := r.generation.Add(1)

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("resolution panicked", "username", raw, "panic", fmt.Sprint(p))
			result = Result{
				Path:   PathRace,
				Reason: ReasonAuthenticationFailed,
			}
		}
		if r.metrics != nil {
			r.metrics.ObserveResolution(result.Path, result.OK, time.Since(start))
			r.metrics.SetCacheSize(r.cache.Len())
		}
	}()

	if res, ok := r.fastPath(ctx, key, raw, password); ok {
		return res
	}

	return r.race(ctx, key, raw, password, generation)
}

func (r *Resolver) fastPath(ctx context.Context, key, raw, password string) (Result, bool) {
	entry, hit := r.cache.Get(key)
	if r.metrics != nil {
		r.metrics.ObserveCacheLookup(hit)
	}
	if !hit {
		return Result{}, false
	}

	candidate := r.generator.Build(raw, entry.Format)
	outcome := r.runner.Attempt(ctx, candidate, password, r.config.FastPathTimeout)
	if !outcome.OK {
		r.logger.Debug("fast path failed, falling back to full race",
			"username", raw,
			"format", entry.Format.String(),
			"timeout", outcome.TimedOut(),
		)
		return Result{}, false
	}

	r.logger.Info("authenticated",
		"user", outcome.Candidate.Name,
		"path", PathFastPath,
		"duration_ms", outcome.Elapsed.Milliseconds(),
	)
	return Result{
		OK:        true,
		User:      outcome.Candidate.Name,
		Cached:    true,
		Path:      PathFastPath,
		Principal: outcome.Principal,
	}, true
}

func (r *Resolver) race(ctx context.Context, key, raw, password string, generation uint64) Result {
	candidates := r.generator.Generate(raw)
	outcomes := make([]Outcome, len(candidates))

	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Go(func() {
			outcomes[i] = r.runner.Attempt(ctx, c, password, r.config.RaceTimeout)
		})
	}
	wg.Wait()

	for _, o := range outcomes {
		if !o.OK {
			continue
		}
		if o.Candidate.Format != FormatUnclassified {
			if !r.cache.Put(key, o.Candidate.Format, generation) {
				r.logger.Debug("cache write superseded by a newer resolution", "username", raw)
			}
		}
		r.logger.Info("authenticated",
			"user", o.Candidate.Name,
			"path", PathRace,
			"format", o.Candidate.Format.String(),
		)
		return Result{
			OK:        true,
			User:      o.Candidate.Name,
			Path:      PathRace,
			Principal: o.Principal,
		}
	}

	reason := failureReason(outcomes)
	r.logger.Info("authentication failed",
		"username", raw,
		"reason", string(reason),
		"candidates", strings.Join(Names(candidates), ","),
	)
	return Result{
		Path:       PathRace,
		Reason:     reason,
		Candidates: Names(candidates),
	}
}

// failureReason normalizes the first error in candidate order.
func failureReason(outcomes []Outcome) Reason {
	for _, o := range outcomes {
		if o.Err != nil {
			return NormalizeError(o.Err)
		}
	}
	return ReasonAuthenticationFailed
}
