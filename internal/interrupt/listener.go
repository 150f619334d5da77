//go:build !windows

package interrupt

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/kairyou/jenkins-cli/internal/prompt"
)

// ListenKeys reads the terminal in raw mode while the phase is Polling or
// Cancelling, feeding Ctrl+C presses into interrupts. Raw mode is dropped
// whenever a prompt owns the terminal, or outside polling phases. Intended
// to run on its own goroutine; returns when AppRunning turns false.
func (c *Controller) ListenKeys(interrupts chan<- struct{}) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}

	var rawState *term.State
	disableRaw := func() {
		if rawState != nil {
			_ = term.Restore(fd, rawState)
			rawState = nil
		}
	}
	defer disableRaw()

	for c.AppRunning() {
		phase := c.Phase()
		if phase != PhasePolling && phase != PhaseCancelling {
			disableRaw()
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if prompt.IsPrompting() {
			disableRaw()
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if rawState == nil {
			state, err := term.MakeRaw(fd)
			if err != nil {
				c.logger.Debug("key listener: raw mode unavailable", "error", err)
				return
			}
			rawState = state
			c.logger.Debug("key listener: raw enabled")
		}

		pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pollFds, 100)
		if err != nil || n == 0 {
			continue
		}

		buf := make([]byte, 1)
		read, err := os.Stdin.Read(buf)
		if err != nil || read == 0 {
			continue
		}
		if buf[0] != 0x03 {
			continue
		}

		c.logger.Debug("key listener: interrupt detected")
		if c.Phase() == PhaseCancelling {
			disableRaw()
			c.forceExit()
			return
		}
		select {
		case interrupts <- struct{}{}:
		default:
		}
	}
}
