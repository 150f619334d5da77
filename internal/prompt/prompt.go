// Package prompt provides interactive prompts for the Jenkins CLI.
//
// Prompts read the terminal in raw mode so Ctrl+C is observed as a byte
// rather than a signal. A cancelled prompt returns ErrCancelled, which
// callers treat as back-navigation, not as an answer.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/term"

	"github.com/kairyou/jenkins-cli/internal/output"
)

// ErrCancelled is returned when the user interrupts a prompt with Ctrl+C.
var ErrCancelled = errors.New("prompt cancelled")

// prompting is set while any prompt owns the terminal, so the global
// interrupt listener stays out of the way.
var prompting atomic.Bool

// IsPrompting reports whether a prompt currently owns terminal input.
func IsPrompting() bool {
	return prompting.Load()
}

// Prompter handles interactive prompts.
type Prompter struct {
	out    *output.Writer
	in     io.Reader
	cooked *bufio.Reader
}

// New creates a Prompter reading from stdin.
func New(out *output.Writer) *Prompter {
	return &Prompter{out: out, in: os.Stdin}
}

// NewWithReader creates a Prompter reading from a custom reader. Raw-mode
// handling is skipped for non-terminal readers.
func NewWithReader(out *output.Writer, in io.Reader) *Prompter {
	return &Prompter{out: out, in: in}
}

// CanPrompt returns true if interactive prompts are available.
func (p *Prompter) CanPrompt() bool {
	return p.out.Terminal().InteractiveEnabled() && !p.out.NoInput
}

// readLine reads one line of input. On a terminal it switches to raw mode
// so Ctrl+C surfaces as ErrCancelled instead of killing the process. The
// echo parameter controls whether typed characters are shown.
func (p *Prompter) readLine(echo bool) (string, error) {
	prompting.Store(true)
	defer prompting.Store(false)

	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.readLineCooked()
	}

	fd := int(f.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return p.readLineCooked()
	}
	defer term.Restore(fd, oldState)

	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		if n == 0 {
			continue
		}
		switch buf[0] {
		case 0x03: // Ctrl+C
			p.out.Println()
			return "", ErrCancelled
		case 0x04: // Ctrl+D
			p.out.Println()
			return "", ErrCancelled
		case '\r', '\n':
			p.out.Println()
			return string(line), nil
		case 0x7f, 0x08: // backspace
			if len(line) > 0 {
				line = line[:len(line)-1]
				if echo {
					p.out.Print("\b \b")
				}
			}
		default:
			if buf[0] >= 0x20 {
				line = append(line, buf[0])
				if echo {
					p.out.Print("%c", buf[0])
				}
			}
		}
	}
}

func (p *Prompter) readLineCooked() (string, error) {
	if p.cooked == nil {
		p.cooked = bufio.NewReader(p.in)
	}
	line, err := p.cooked.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Confirm prompts for a yes/no confirmation.
func (p *Prompter) Confirm(message string, defaultValue bool) (bool, error) {
	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}

	p.out.Print("%s [%s]: ", message, defaultStr)

	input, err := p.readLine(true)
	if err != nil {
		return false, err
	}

	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultValue, nil
	}

	return input == "y" || input == "yes", nil
}

// Input prompts for a free-form value, returning the default when the user
// submits an empty line.
func (p *Prompter) Input(message, defaultValue string) (string, error) {
	if defaultValue != "" {
		p.out.Print("%s [%s]: ", message, defaultValue)
	} else {
		p.out.Print("%s: ", message)
	}

	input, err := p.readLine(true)
	if err != nil {
		return "", err
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

// Password prompts for a secret without echoing it.
func (p *Prompter) Password(message string) (string, error) {
	p.out.Print("%s: ", message)
	input, err := p.readLine(false)
	if err != nil {
		return "", err
	}
	return input, nil
}

// Select prompts the user to select from a list of options. Returns the
// selected index.
func (p *Prompter) Select(message string, options []string) (int, error) {
	return p.SelectWithDefault(message, options, 0)
}

// SelectWithDefault is Select with a preselected index used on empty input.
func (p *Prompter) SelectWithDefault(message string, options []string, defaultIndex int) (int, error) {
	if len(options) == 0 {
		return -1, errors.New("no options to select from")
	}
	if defaultIndex < 0 || defaultIndex >= len(options) {
		defaultIndex = 0
	}

	p.out.Println(message)
	for i, opt := range options {
		marker := " "
		if i == defaultIndex {
			marker = ">"
		}
		p.out.Print(" %s [%d] %s\n", marker, i+1, opt)
	}

	for {
		p.out.Print("Select [1-%d] (%d): ", len(options), defaultIndex+1)

		input, err := p.readLine(true)
		if err != nil {
			return -1, err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			return defaultIndex, nil
		}

		num, err := strconv.Atoi(input)
		if err != nil || num < 1 || num > len(options) {
			p.out.Warning("Invalid selection. Please enter a number between 1 and %d", len(options))
			continue
		}

		return num - 1, nil
	}
}
