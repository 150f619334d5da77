package jenkins

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultTimeout bounds every individual HTTP request.
	DefaultTimeout = 30 * time.Second
	// DefaultTreeDepth is how deep the job tree query recurses into folders.
	DefaultTreeDepth = 5
)

// Options tunes client behavior. Zero values take the defaults.
type Options struct {
	// TreeDepth is the folder nesting depth of the job tree query.
	TreeDepth int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// QueuePollInterval is the delay between queue item polls.
	QueuePollInterval time.Duration

	// StatusPollInterval is the base delay between build status polls;
	// BuildingPollDelay is added while the build is still running.
	StatusPollInterval time.Duration
	BuildingPollDelay  time.Duration

	// RecentBuildsLimit caps the recent-builds scan of the status
	// fallback. Jenkins reports stale status right after a trigger; the
	// tiered fallback papers over that, and this limit is tunable rather
	// than a verified protocol guarantee.
	RecentBuildsLimit int
}

func (o Options) withDefaults() Options {
	if o.TreeDepth <= 0 {
		o.TreeDepth = DefaultTreeDepth
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.QueuePollInterval <= 0 {
		o.QueuePollInterval = 2 * time.Second
	}
	if o.StatusPollInterval <= 0 {
		o.StatusPollInterval = 200 * time.Millisecond
	}
	if o.BuildingPollDelay <= 0 {
		o.BuildingPollDelay = 500 * time.Millisecond
	}
	if o.RecentBuildsLimit <= 0 {
		o.RecentBuildsLimit = 5
	}
	return o
}

// Credentials identifies one Jenkins service. All fields except the cookie
// are immutable for the client's lifetime.
type Credentials struct {
	BaseURL  string
	Username string
	Token    string

	// Cookie seeds the cookie store (optional).
	Cookie string
	// CookieRefresh mints fresh session tokens when the server rejects
	// the current ones (optional).
	CookieRefresh *RefreshConfig
}

// Client is the Jenkins API client. One instance supervises one service per
// process run. Reads may run concurrently; SetJobURL takes the write lock.
type Client struct {
	baseURL    string
	username   string
	token      string
	httpClient *http.Client
	cookies    *CookieStore
	refresh    *RefreshConfig
	logger     *slog.Logger
	opts       Options

	// refreshAttempted gates the one eager cookie refresh before the
	// first API call.
	refreshAttempted atomic.Bool

	mu     sync.RWMutex
	jobURL string
}

// New creates a client for one Jenkins service. persist receives the
// to-be-persisted cookie subset whenever it changes (may be nil).
func New(creds Credentials, persist PersistFunc, logger *slog.Logger, opts Options) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	var persistKeys []string
	if creds.CookieRefresh != nil {
		for name := range creds.CookieRefresh.CookieUpdates {
			persistKeys = append(persistKeys, name)
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(creds.BaseURL, "/"),
		username:   creds.Username,
		token:      creds.Token,
		httpClient: &http.Client{Timeout: opts.Timeout},
		cookies:    NewCookieStore(creds.Cookie, persistKeys, persist),
		refresh:    creds.CookieRefresh,
		logger:     logger,
		opts:       opts,
	}
}

// BaseURL returns the configured server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Cookies exposes the cookie store, mainly for tests and the refresh
// protocol's out-of-band updates.
func (c *Client) Cookies() *CookieStore {
	return c.cookies
}

// SetJobURL records the job the remaining operations act on.
func (c *Client) SetJobURL(jobURL string) {
	c.mu.Lock()
	c.jobURL = strings.TrimRight(jobURL, "/")
	c.mu.Unlock()
}

// JobURL returns the active job URL, or "" when none is set.
func (c *Client) JobURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jobURL
}

// treeResponse is the root of the nested job tree query.
type treeResponse struct {
	Jobs []Job `json:"jobs"`
}

// GetProjects fetches the job tree and flattens it: folders recurse with
// accumulated path, buildable jobs are emitted with folder-qualified names,
// auto-build and unknown types are skipped.
func (c *Client) GetProjects(ctx context.Context) ([]Job, error) {
	tree := treeParam(c.opts.TreeDepth)
	rawURL := fmt.Sprintf("%s/api/json?tree=%s&pretty=false", c.baseURL, tree)

	var resp treeResponse
	if err := c.getJSON(ctx, rawURL, &resp); err != nil {
		return nil, err
	}

	return flattenJobs(resp.Jobs, ""), nil
}

func flattenJobs(jobs []Job, parentPath string) []Job {
	var result []Job
	for _, job := range jobs {
		switch {
		case buildableClasses[job.Class]:
			if parentPath != "" {
				job.Name = parentPath + "/" + job.Name
			}
			job.Jobs = nil
			result = append(result, job)
		case job.Class == folderClass:
			folderPath := job.Name
			if parentPath != "" {
				folderPath = parentPath + "/" + job.Name
			}
			result = append(result, flattenJobs(job.Jobs, folderPath)...)
		case autoBuildClasses[job.Class]:
			// Branch sources trigger their own builds; nothing to offer.
		default:
			// Unknown type, skip.
		}
	}
	return result
}

// treeParam builds the recursive tree query, e.g.
// jobs[name,displayName,url,_class,jobs[...]].
func treeParam(depth int) string {
	const fields = "name,displayName,url,_class"
	inner := "[" + fields + "]"
	for i := 0; i < depth; i++ {
		inner = "[" + fields + ",jobs" + inner + "]"
	}
	return "jobs" + inner
}

// TriggerBuild POSTs the build request and returns the queue item URL from
// the Location header. Parameters still carrying the unset-password sentinel
// are dropped so the server-side default applies.
func (c *Client) TriggerBuild(ctx context.Context, jobURL string, params map[string]ParamValue) (string, error) {
	form := url.Values{}
	for name, p := range params {
		if p.Value == UnsetPassword {
			continue
		}
		form.Set(name, p.Value)
	}

	endpoint := jobURL + "/build"
	if len(form) > 0 {
		endpoint = jobURL + "/buildWithParameters"
	}

	resp, err := c.postFormWithCrumb(ctx, endpoint, form)
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp)

	queueURL := resp.Header.Get("Location")
	if queueURL == "" {
		return "", fmt.Errorf("trigger accepted but response carried no Location header")
	}

	return strings.TrimRight(queueURL, "/"), nil
}

// jobStatusTree is the first status tier: a tree query over the job itself.
type jobStatusTree struct {
	InQueue   bool `json:"inQueue"`
	LastBuild *struct {
		Number   int64 `json:"number"`
		Building bool  `json:"building"`
	} `json:"lastBuild"`
	LastCompletedBuild *struct {
		Number int64 `json:"number"`
	} `json:"lastCompletedBuild"`
}

// buildInfo is the /lastBuild/api/json shape used by the second tier.
type buildInfo struct {
	Number   int64  `json:"number"`
	Building bool   `json:"building"`
	Result   string `json:"result"`
}

type recentBuilds struct {
	Builds []buildInfo `json:"builds"`
}

// IsBuilding resolves the job's build state through three tiers, because
// Jenkins's own status fields are eventually consistent right after a
// trigger:
//
//  1. tree query: lastBuild.number > lastCompletedBuild.number means a build
//     is running even when the build record itself still says otherwise
//  2. /lastBuild/api/json
//  3. a scan of the recent builds list, catching a build that is running but
//     not yet reflected as "last"
func (c *Client) IsBuilding(ctx context.Context) (BuildStatus, error) {
	jobURL := c.JobURL()
	if jobURL == "" {
		return BuildStatus{}, fmt.Errorf("no job selected")
	}

	var status BuildStatus

	var tier1 jobStatusTree
	treeURL := jobURL + "/api/json?tree=inQueue,lastBuild[number,building],lastCompletedBuild[number]"
	if err := c.getJSON(ctx, treeURL, &tier1); err == nil {
		status.InQueue = tier1.InQueue
		if tier1.LastBuild != nil {
			n := tier1.LastBuild.Number
			status.LastBuild = &n
			if tier1.LastCompletedBuild != nil {
				m := tier1.LastCompletedBuild.Number
				status.LastCompleted = &m
			}
			completed := int64(0)
			if status.LastCompleted != nil {
				completed = *status.LastCompleted
			}
			if tier1.LastBuild.Building || n > completed {
				status.Building = true
				status.ID = &n
				return status, nil
			}
		}
	}

	var last buildInfo
	if err := c.getJSON(ctx, jobURL+"/lastBuild/api/json", &last); err == nil {
		if last.Number > 0 {
			n := last.Number
			status.ID = &n
		}
		if last.Building {
			status.Building = true
			return status, nil
		}
	}

	var recent recentBuilds
	recentURL := fmt.Sprintf("%s/api/json?tree=builds[number,building]{0,%d}", jobURL, c.opts.RecentBuildsLimit)
	if err := c.getJSON(ctx, recentURL, &recent); err != nil {
		return status, err
	}
	for _, b := range recent.Builds {
		if b.Building {
			n := b.Number
			status.Building = true
			status.ID = &n
			return status, nil
		}
	}

	return status, nil
}

// CancelBuild issues the stop request for the numbered build, or lastBuild
// when the number is unknown. With no active job there is nothing to cancel
// and the call is a no-op success.
func (c *Client) CancelBuild(ctx context.Context, number *int64) error {
	jobURL := c.JobURL()
	if jobURL == "" {
		return nil
	}

	endpoint := jobURL + "/lastBuild/stop"
	if number != nil {
		endpoint = fmt.Sprintf("%s/%d/stop", jobURL, *number)
	}

	resp, err := c.postFormWithCrumb(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	drainAndClose(resp)
	return nil
}
