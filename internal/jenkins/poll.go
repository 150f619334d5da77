package jenkins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ErrCancelled is returned by the polling loops when a CancelPolling event
// arrives (or the event channel closes). Callers treat it as a silent
// return, not a failure.
var ErrCancelled = errors.New("polling cancelled")

// BuildResultError reports a finished build whose result was not SUCCESS.
type BuildResultError struct {
	Result string
}

func (e *BuildResultError) Error() string {
	return fmt.Sprintf("build finished with result %s", e.Result)
}

// ProgressIndicator is the cosmetic spinner the polling loops drive. Pausing
// never stops the poll itself.
type ProgressIndicator interface {
	Pause()
	Resume()
	// Suspend runs fn with the indicator hidden so regular output (e.g.
	// log lines) stays readable.
	Suspend(fn func())
	// Finish stops the indicator, printing msg when non-empty.
	Finish(msg string)
}

// nopIndicator keeps the loops simple when no spinner is attached.
type nopIndicator struct{}

func (nopIndicator) Pause()            {}
func (nopIndicator) Resume()           {}
func (nopIndicator) Suspend(fn func()) { fn() }
func (nopIndicator) Finish(string)     {}

type queueItem struct {
	Executable *struct {
		Number int64 `json:"number"`
	} `json:"executable"`
	Cancelled bool   `json:"cancelled"`
	Why       string `json:"why"`
}

// PollQueueItem polls the queue item until the build leaves the queue, then
// returns the numbered build URL. Each iteration races the poll timer
// against the control channel; StopSpinner/ResumeSpinner only toggle the
// indicator, CancelPolling (or channel closure) aborts with ErrCancelled.
func (c *Client) PollQueueItem(ctx context.Context, queueURL string, events <-chan Event, spin ProgressIndicator) (string, error) {
	if spin == nil {
		spin = nopIndicator{}
	}
	apiURL := queueURL + "/api/json"

	ticker := time.NewTicker(c.opts.QueuePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			spin.Finish("")
			return "", ctx.Err()

		case ev, ok := <-events:
			if !ok || ev == CancelPolling {
				spin.Finish("")
				return "", ErrCancelled
			}
			switch ev {
			case StopSpinner:
				spin.Pause()
			case ResumeSpinner:
				spin.Resume()
			}

		case <-ticker.C:
			var item queueItem
			if err := c.getJSON(ctx, apiURL, &item); err != nil {
				spin.Finish("")
				return "", err
			}
			if item.Executable == nil {
				continue
			}
			buildURL := fmt.Sprintf("%s/%d", c.JobURL(), item.Executable.Number)
			spin.Finish("Build URL: " + buildURL)
			return buildURL, nil
		}
	}
}

// PollBuildStatus polls the build until it completes, streaming the console
// log incrementally. Log-fetch failures are shown inline and do not abort
// the poll. Returns nil iff the final result is SUCCESS; any other result
// comes back as a BuildResultError.
func (c *Client) PollBuildStatus(ctx context.Context, buildURL string, events <-chan Event, spin ProgressIndicator, logOut io.Writer) error {
	if spin == nil {
		spin = nopIndicator{}
	}
	apiURL := buildURL + "/api/json"
	lastLogLen := 0

	timer := time.NewTimer(c.opts.StatusPollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			spin.Finish("")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok || ev == CancelPolling {
				spin.Finish("")
				return ErrCancelled
			}
			switch ev {
			case StopSpinner:
				spin.Pause()
			case ResumeSpinner:
				spin.Resume()
			}

		case <-timer.C:
			var info buildInfo
			if err := c.getJSON(ctx, apiURL, &info); err != nil {
				spin.Finish("")
				return err
			}

			// Stream only the slice of console log we have not seen.
			log, newLen, err := c.ProgressiveText(ctx, buildURL, lastLogLen)
			if err != nil {
				spin.Suspend(func() {
					fmt.Fprintf(logOut, "failed to retrieve console log: %v\n", err)
				})
			} else {
				if log != "" {
					spin.Suspend(func() {
						fmt.Fprint(logOut, log)
					})
				}
				lastLogLen = newLen
			}

			if info.Building {
				timer.Reset(c.opts.StatusPollInterval + c.opts.BuildingPollDelay)
				continue
			}

			result := info.Result
			if result == "" {
				result = "UNKNOWN"
			}
			spin.Finish("Build result: " + result)
			if result == "SUCCESS" {
				return nil
			}
			return &BuildResultError{Result: result}
		}
	}
}

// ProgressiveText fetches the console log slice starting at the given byte
// offset. The returned offset (from the X-Text-Size header) feeds the next
// call so the log is never re-downloaded whole.
func (c *Client) ProgressiveText(ctx context.Context, buildURL string, start int) (string, int, error) {
	rawURL := fmt.Sprintf("%s/logText/progressiveText?start=%d", buildURL, start)

	resp, err := c.getWithRefresh(ctx, rawURL)
	if err != nil {
		return "", start, err
	}
	defer resp.Body.Close()

	newLen := start
	if size := resp.Header.Get("X-Text-Size"); size != "" {
		if parsed, err := strconv.Atoi(size); err == nil {
			newLen = parsed
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", start, fmt.Errorf("failed to read console log: %w", err)
	}

	return string(body), newLen, nil
}
