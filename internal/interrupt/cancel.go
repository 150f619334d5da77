package interrupt

import (
	"context"
	"log/slog"
	"time"

	"github.com/kairyou/jenkins-cli/internal/jenkins"
	"github.com/kairyou/jenkins-cli/internal/output"
)

// Cancellation timing defaults.
const (
	cancelMaxAttempts    = 10
	cancelMaxWait        = 30 * time.Second
	cancelRetryDelay     = time.Second
	cancelVerifyDelay    = 3 * time.Second
	cancelRequestTimeout = 5 * time.Second
	cancelStableChecks   = 3
)

// BuildControl is the slice of the build client the canceller needs.
type BuildControl interface {
	IsBuilding(ctx context.Context) (jenkins.BuildStatus, error)
	CancelBuild(ctx context.Context, number *int64) error
}

// Outcome is the result of a cancellation attempt. The three outcomes are
// reported distinctly: "already completed" is a success, not a failure.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeCancelled
	OutcomeAlreadyCompleted
)

// Canceller runs the best-effort remote cancel algorithm: query status,
// retry while queued, stop the running build, then verify it stopped.
type Canceller struct {
	Client BuildControl
	Out    *output.Writer
	Logger *slog.Logger

	MaxAttempts    int
	MaxWait        time.Duration
	RetryDelay     time.Duration
	VerifyDelay    time.Duration
	RequestTimeout time.Duration
	// StableChecks is how many consecutive idle snapshots of the same
	// build id confirm the build finished on its own.
	StableChecks int
}

// NewCanceller builds a Canceller with the default budget: 10 attempts
// within 30 seconds, 1s between retries, 3s between stop verifications, 5s
// per individual request.
func NewCanceller(client BuildControl, out *output.Writer, logger *slog.Logger) *Canceller {
	return &Canceller{
		Client:         client,
		Out:            out,
		Logger:         logger,
		MaxAttempts:    cancelMaxAttempts,
		MaxWait:        cancelMaxWait,
		RetryDelay:     cancelRetryDelay,
		VerifyDelay:    cancelVerifyDelay,
		RequestTimeout: cancelRequestTimeout,
		StableChecks:   cancelStableChecks,
	}
}

// Run executes the cancel algorithm and reports the outcome. Every request
// carries its own short timeout so a hung call cannot stall the flow past
// the overall budget.
func (c *Canceller) Run(ctx context.Context) Outcome {
	started := time.Now()
	attempts := 0
	var lastID *int64
	stable := 0

	for {
		if time.Since(started) >= c.MaxWait {
			c.Logger.Debug("cancel timed out waiting for build")
			return OutcomeFailed
		}
		c.Logger.Debug("checking build", "attempt", attempts+1, "max", c.MaxAttempts)

		status, err := c.isBuilding(ctx)
		if err != nil {
			if attempts >= c.MaxAttempts {
				return OutcomeFailed
			}
			attempts++
			if !c.wait(ctx, c.RetryDelay) {
				return OutcomeFailed
			}
			continue
		}

		if !status.Building {
			// Queued items cannot be stopped via the build-stop endpoint.
			if status.InQueue {
				attempts++
				if !c.wait(ctx, c.RetryDelay) {
					return OutcomeFailed
				}
				continue
			}
			// Repeated idle snapshots of the same build id confirm the
			// build really finished before we could stop it.
			if sameID(lastID, status.ID) {
				stable++
			} else {
				lastID = status.ID
				stable = 1
			}
			if stable >= c.StableChecks || attempts >= c.MaxAttempts {
				return OutcomeAlreadyCompleted
			}
			attempts++
			if !c.wait(ctx, c.RetryDelay) {
				return OutcomeFailed
			}
			continue
		}

		if status.ID != nil {
			c.Out.Info("Current build: #%d", *status.ID)
		}
		c.Logger.Debug("sending stop", "build", buildID(status.ID))

		if err := c.cancelBuild(ctx, status.ID); err != nil {
			c.Logger.Debug("stop request failed", "error", err)
			return OutcomeFailed
		}
		if c.verifyStopped(ctx) {
			return OutcomeCancelled
		}
		return OutcomeFailed
	}
}

// verifyStopped polls until the build reports not-building, re-issuing the
// stop when it stays up past the first verification.
func (c *Canceller) verifyStopped(ctx context.Context) bool {
	for attempt := 0; attempt < c.MaxAttempts; attempt++ {
		if !c.wait(ctx, c.VerifyDelay) {
			return false
		}
		status, err := c.isBuilding(ctx)
		if err != nil {
			c.Logger.Debug("verify failed, retrying", "error", err)
			continue
		}
		if !status.Building {
			return true
		}
		if attempt > 0 {
			c.Logger.Debug("still building, retrying stop")
			_ = c.cancelBuild(ctx, status.ID)
		}
	}
	return false
}

func (c *Canceller) isBuilding(ctx context.Context) (jenkins.BuildStatus, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	return c.Client.IsBuilding(reqCtx)
}

func (c *Canceller) cancelBuild(ctx context.Context, number *int64) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	return c.Client.CancelBuild(reqCtx, number)
}

func (c *Canceller) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func buildID(id *int64) int64 {
	if id == nil {
		return -1
	}
	return *id
}
