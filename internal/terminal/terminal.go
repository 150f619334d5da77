// Package terminal detects what the surrounding terminal can do: whether
// stdout is a TTY, whether color and spinners are welcome, and the window
// size used to wrap selection lists.
package terminal

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Info holds terminal capability information.
type Info struct {
	IsTTY     bool
	NoColor   bool
	Width     int
	Height    int
	ForceFlag bool // Set when --no-color flag is used
}

// Detect returns terminal information for the current environment.
// NO_COLOR (https://no-color.org/), JENKINS_CLI_NO_COLOR and TERM=dumb all
// disable color.
func Detect() *Info {
	stdoutFD := int(os.Stdout.Fd())
	isTTY := term.IsTerminal(stdoutFD)

	width, height := 80, 24

	if isTTY {
		if w, h, err := term.GetSize(stdoutFD); err == nil {
			width, height = w, h
		}
	}

	_, noColor := os.LookupEnv("NO_COLOR")
	if _, set := os.LookupEnv("JENKINS_CLI_NO_COLOR"); set {
		noColor = true
	}
	if os.Getenv("TERM") == "dumb" {
		noColor = true
	}

	return &Info{
		IsTTY:   isTTY,
		NoColor: noColor,
		Width:   width,
		Height:  height,
	}
}

// ColorEnabled returns true if colored output should be used.
func (t *Info) ColorEnabled() bool {
	if t.ForceFlag {
		return false
	}

	return t.IsTTY && !t.NoColor
}

// InteractiveEnabled returns true if interactive prompts are allowed.
func (t *Info) InteractiveEnabled() bool {
	return t.IsTTY
}

// SpinnersEnabled returns true if spinners should be used. The spinner
// animates with escape sequences, so it needs both a TTY and color support.
func (t *Info) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor
}

// ShowCursor re-enables the cursor. The spinner hides it while animating;
// this is the recovery path when the process dies mid-spin.
func ShowCursor(w io.Writer) {
	io.WriteString(w, "\x1b[?25h")
}
