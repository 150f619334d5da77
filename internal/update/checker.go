// Package update checks GitHub Releases for a newer CLI version.
//
// The check runs in the background at most once per day and never blocks
// the build flow; a pending notification is printed when the run finishes.
package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/fatih/color"

	"github.com/kairyou/jenkins-cli/internal/output"
)

const (
	// ProjectURL is the project home page shown in the update notice.
	ProjectURL = "https://github.com/kairyou/jenkins-cli"

	releasesURL  = ProjectURL + "/releases/latest"
	checkTimeout = 5 * time.Second
)

// IsDisabled returns true if update checks are disabled via
// JENKINS_CLI_UPDATE_DISABLED.
func IsDisabled() bool {
	v := os.Getenv("JENKINS_CLI_UPDATE_DISABLED")
	return v == "1" || strings.EqualFold(v, "true")
}

// Checker performs the release check and remembers the outcome for the
// end-of-run notification.
type Checker struct {
	dataDir string
	current string
	client  *http.Client
	url     string

	mu        sync.Mutex
	available string // newer version, empty when up to date
	notified  bool
}

// NewChecker creates a Checker for the given data directory and running
// version.
func NewChecker(dataDir, currentVersion string) *Checker {
	return &Checker{
		dataDir: dataDir,
		current: currentVersion,
		url:     releasesURL,
		client: &http.Client{
			Timeout: checkTimeout,
			// The Location header carries the tag; don't follow it.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Precheck marks an update from the cached state, so the notice can appear
// even when the network check is skipped or still in flight.
func (c *Checker) Precheck() {
	state, err := LoadState(c.dataDir)
	if err != nil {
		return
	}

	if state.HasUpdate(c.current) {
		c.markAvailable(state.LatestVersion)
	}
}

// Check queries GitHub for the latest release when the daily interval has
// elapsed. Failures are silent; the check is best-effort.
func (c *Checker) Check(ctx context.Context) {
	state, err := LoadState(c.dataDir)
	if err != nil {
		return
	}

	if !state.ShouldCheck() {
		return
	}

	state.LastCheckedAt = time.Now()
	state.CurrentVersion = c.current

	if latest, fetchErr := c.fetchLatestVersion(ctx); fetchErr == nil && latest != "" {
		state.LatestVersion = latest
	}

	_ = SaveState(c.dataDir, state)

	if state.HasUpdate(c.current) {
		c.markAvailable(state.LatestVersion)
	}
}

// fetchLatestVersion resolves the latest release tag. GitHub answers the
// /releases/latest URL with a redirect whose Location ends in the tag.
func (c *Checker) fetchLatestVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "jenkins-cli")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var version string

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 256))
		if readErr != nil {
			return "", readErr
		}
		version = strings.TrimSpace(string(body))
	case resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusMovedPermanently:
		loc := resp.Header.Get("Location")
		if i := strings.LastIndex(loc, "/"); i >= 0 {
			version = strings.TrimPrefix(loc[i+1:], "v")
		}
	default:
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if _, parseErr := semver.NewVersion(version); parseErr != nil {
		return "", fmt.Errorf("invalid version %q: %w", version, parseErr)
	}

	return version, nil
}

func (c *Checker) markAvailable(version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = version
}

// NotifyIfAvailable prints the update notice once per run.
func (c *Checker) NotifyIfAvailable(out *output.Writer) {
	c.mu.Lock()
	version := c.available
	done := c.notified
	c.notified = true
	c.mu.Unlock()

	if version == "" || done {
		return
	}

	out.Println()
	out.Print("✨ New version available: %s (current: %s)\n",
		color.GreenString(version), c.current)
	out.Print("✨ See %s\n", color.CyanString(ProjectURL))
	out.Println()
}
