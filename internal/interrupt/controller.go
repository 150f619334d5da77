// Package interrupt coordinates Ctrl+C handling across the interactive
// flow: a phase machine deciding what an interrupt means right now, and the
// best-effort cancellation of a remote build.
package interrupt

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"

	"github.com/kairyou/jenkins-cli/internal/jenkins"
	"github.com/kairyou/jenkins-cli/internal/output"
	"github.com/kairyou/jenkins-cli/internal/prompt"
)

// Phase transitions:
//
//	Idle -> Polling      queue/build polling begins
//	Polling -> Cancelling user confirms cancel
//	Polling -> Idle      build/queue completes
//	Cancelling -> Idle   cancel flow ends or times out
//
// An interrupt during Cancelling, or a double-press anywhere, forces exit.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePolling
	PhaseCancelling
)

func (p Phase) String() string {
	switch p {
	case PhasePolling:
		return "polling"
	case PhaseCancelling:
		return "cancelling"
	}
	return "idle"
}

// exitWindow is how close together two interrupts must land to count as a
// deliberate double-press.
const exitWindow = 800 * time.Millisecond

// cancelCeiling bounds how long the operator waits on the cancel flow.
const cancelCeiling = 60 * time.Second

type pollContext struct {
	client BuildControl
	events chan<- jenkins.Event
	spin   jenkins.ProgressIndicator
}

// Controller owns the interrupt phase machine. Both interrupt sources (OS
// signal and raw-mode key listener) feed the same channel consumed by Run.
type Controller struct {
	out      *output.Writer
	prompter *prompt.Prompter
	logger   *slog.Logger

	phase         atomic.Int32
	appRunning    atomic.Bool
	lastInterrupt atomic.Int64 // unix milliseconds

	mu  sync.Mutex
	ctx *pollContext

	cancelOnce sync.Once
	cancelDone chan struct{}

	// Overridable in tests.
	window  time.Duration
	ceiling time.Duration
	exit    func(code int)
}

// NewController builds a Controller in the Idle phase.
func NewController(out *output.Writer, prompter *prompt.Prompter, logger *slog.Logger) *Controller {
	c := &Controller{
		out:        out,
		prompter:   prompter,
		logger:     logger,
		cancelDone: make(chan struct{}),
		window:     exitWindow,
		ceiling:    cancelCeiling,
		exit:       os.Exit,
	}
	c.appRunning.Store(true)
	return c
}

// SetPhase moves the machine to the given phase.
func (c *Controller) SetPhase(p Phase) {
	c.phase.Store(int32(p))
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// FinishPolling resets to Idle only when no cancel flow is active.
func (c *Controller) FinishPolling() {
	c.phase.CompareAndSwap(int32(PhasePolling), int32(PhaseIdle))
}

// SetContext installs the client and event channel the next polling
// interrupt should act on.
func (c *Controller) SetContext(client BuildControl, events chan<- jenkins.Event, spin jenkins.ProgressIndicator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = &pollContext{client: client, events: events, spin: spin}
}

func (c *Controller) pollContext() *pollContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// ShouldForceExit records an interrupt and reports whether it lands within
// window of the previous one.
func (c *Controller) ShouldForceExit(window time.Duration) bool {
	now := time.Now().UnixMilli()
	prev := c.lastInterrupt.Swap(now)
	return prev != 0 && now-prev <= window.Milliseconds()
}

// SetAppRunning flags whether the background key listener should keep
// running.
func (c *Controller) SetAppRunning(running bool) {
	c.appRunning.Store(running)
}

// AppRunning reports whether the application is still in its main flow.
func (c *Controller) AppRunning() bool {
	return c.appRunning.Load()
}

// WaitForCancel returns a channel closed when a cancel flow has finished.
func (c *Controller) WaitForCancel() <-chan struct{} {
	return c.cancelDone
}

func (c *Controller) notifyCancelWaiters() {
	c.cancelOnce.Do(func() { close(c.cancelDone) })
}

func (c *Controller) forceExit() {
	if ctx := c.pollContext(); ctx != nil && ctx.spin != nil {
		ctx.spin.Pause()
	}
	c.notifyCancelWaiters()
	c.out.Println()
	c.out.Println("Ctrl+C pressed again, exiting immediately.")
	c.exit(1)
}

// Run consumes interrupt events until the channel closes. During selection
// phases the active prompt handles its own interrupt; during polling an
// interrupt opens the cancel dialogue.
func (c *Controller) Run(interrupts <-chan struct{}) {
	for range interrupts {
		switch c.Phase() {
		case PhaseCancelling:
			c.forceExit()

		case PhaseIdle:
			if c.ShouldForceExit(c.window) {
				c.forceExit()
			}
			// A lone interrupt outside polling belongs to whatever prompt
			// is active; swallow it here.

		case PhasePolling:
			c.logger.Debug("interrupt received", "phase", c.Phase().String())
			c.handlePollingInterrupt(interrupts)
		}
	}
}

func (c *Controller) handlePollingInterrupt(interrupts <-chan struct{}) {
	pctx := c.pollContext()
	if pctx == nil {
		return
	}

	sendEvent(pctx.events, jenkins.StopSpinner)
	if pctx.spin != nil {
		pctx.spin.Pause()
	}
	c.out.Println()
	c.out.Println("Checking for running builds...")

	message := color.New(color.FgRed, color.Bold).Sprint("Cancel the build?")
	confirm, err := c.prompter.Confirm(message, false)
	if err != nil {
		// Interrupting the cancel prompt itself means quit.
		c.forceExit()
		return
	}

	if !confirm {
		sendEvent(pctx.events, jenkins.ResumeSpinner)
		if pctx.spin != nil {
			pctx.spin.Resume()
		}
		return
	}

	c.SetPhase(PhaseCancelling)
	sendEvent(pctx.events, jenkins.CancelPolling)
	c.out.Println(color.YellowString("Cancelling build..."))

	done := make(chan Outcome, 1)
	go func() {
		canceller := NewCanceller(pctx.client, c.out, c.logger)
		done <- canceller.Run(context.Background())
	}()

	timer := time.NewTimer(c.ceiling)
	defer timer.Stop()

	select {
	case <-interrupts:
		c.SetPhase(PhaseIdle)
		c.forceExit()
		return
	case <-timer.C:
		c.SetPhase(PhaseIdle)
		c.out.Failure("Failed to cancel the build")
		c.notifyCancelWaiters()
		c.exit(1)
		return
	case outcome := <-done:
		c.SetPhase(PhaseIdle)
		c.notifyCancelWaiters()
		switch outcome {
		case OutcomeCancelled:
			c.out.Success("Build cancelled")
			c.exit(0)
		case OutcomeAlreadyCompleted:
			c.out.Warning("Build already completed")
			c.exit(0)
		default:
			c.out.Failure("Failed to cancel the build")
			c.exit(1)
		}
	}
}

// sendEvent delivers without blocking: a poll loop that already returned
// no longer drains its channel.
func sendEvent(events chan<- jenkins.Event, ev jenkins.Event) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}
