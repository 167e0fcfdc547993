package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ErrAttemptTimeout marks an attempt abandoned at its deadline.
var ErrAttemptTimeout = errors.New("timeout")

// Runner runs single directory attempts under a hard deadline.
type Runner struct {
	directory Directory
	metrics   Metrics
	logger    hclog.Logger
}

// NewRunner creates an attempt runner. Metrics may be nil.
func NewRunner(directory Directory, metrics Metrics, logger hclog.Logger) *Runner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Runner{
		directory: directory,
		metrics:   metrics,
		logger:    logger,
	}
}

type reply struct {
	principal *Principal
	err       error
}

// Attempt authenticates one candidate and always returns within timeout plus scheduling
// overhead, whatever the directory does.
func (r *Runner) Attempt(ctx context.Context, candidate Candidate, password string, timeout time.Duration) Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so an abandoned call can still deliver and exit.
	done := make(chan reply, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- reply{err: fmt.Errorf("directory client panic: %v", p)}
			}
		}()
		principal, err := r.directory.Authenticate(attemptCtx, candidate.Name, password)
		done <- reply{principal: principal, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var outcome Outcome
	select {
	case rep := <-done:
		outcome = Outcome{
			Candidate: candidate,
			OK:        rep.err == nil,
			Elapsed:   time.Since(start),
			Err:       rep.err,
			Principal: rep.principal,
		}
		// A client that honours the attempt context may return just ahead of the timer.
		if rep.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			outcome.Err = ErrAttemptTimeout
			outcome.Elapsed = timeout
		}
		if outcome.OK {
			outcome.Err = nil
		}
	case <-timer.C:
		outcome = Outcome{
			Candidate: candidate,
			Elapsed:   timeout,
			Err:       ErrAttemptTimeout,
		}
	case <-ctx.Done():
		outcome = Outcome{
			Candidate: candidate,
			Elapsed:   time.Since(start),
			Err:       ctx.Err(),
		}
	}

	if !outcome.OK {
		outcome.Principal = nil
	}

	fields := []any{
		"candidate", candidate.Name,
		"format", candidate.Format.String(),
		"ok", outcome.OK,
		"duration_ms", outcome.Elapsed.Milliseconds(),
	}
	if outcome.Err != nil {
		fields = append(fields, "error", outcome.Err.Error())
	}
	r.logger.Debug("directory attempt finished", fields...)

	if r.metrics != nil {
		r.metrics.ObserveAttempt(candidate.Format, outcome.OK, outcome.TimedOut(), outcome.Elapsed)
	}

	return outcome
}
