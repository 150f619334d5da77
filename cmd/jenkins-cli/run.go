package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kairyou/jenkins-cli/internal/ansi"
	"github.com/kairyou/jenkins-cli/internal/config"
	clierrors "github.com/kairyou/jenkins-cli/internal/errors"
	"github.com/kairyou/jenkins-cli/internal/flow"
	"github.com/kairyou/jenkins-cli/internal/history"
	"github.com/kairyou/jenkins-cli/internal/interrupt"
	"github.com/kairyou/jenkins-cli/internal/jenkins"
	"github.com/kairyou/jenkins-cli/internal/observability"
	"github.com/kairyou/jenkins-cli/internal/output"
	"github.com/kairyou/jenkins-cli/internal/prompt"
	"github.com/kairyou/jenkins-cli/internal/update"
)

// buildOptions are the direct-targeting flags. A URL skips service
// selection; user/token override the matching config entry.
type buildOptions struct {
	URL   string
	User  string
	Token string
}

func runBuild(cmd *cobra.Command, out *output.Writer, opts buildOptions) error {
	ctx := cmd.Context()
	logger := observability.FromContext(ctx)

	configPath, err := config.Path()
	if err != nil {
		return clierrors.ConfigFailed("locate config", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return clierrors.ConfigFailed("load config", err)
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return clierrors.ConfigFailed("create data directory", err)
	}

	out.Muted("Config file: '%s'", configPath)

	// Background release check; the notice prints on the way out.
	checker := update.NewChecker(dataDir, version)

	var updateWg sync.WaitGroup

	if cfg.Global.UpdateCheckEnabled() && !update.IsDisabled() {
		checker.Precheck()
		updateWg.Add(1)

		go func() {
			defer updateWg.Done()
			checker.Check(ctx)
		}()
	}

	defer func() {
		updateWg.Wait()
		checker.NotifyIfAvailable(out)
	}()

	prompter := prompt.New(out)

	// Every step of the flow is a prompt, so a non-terminal stdout cannot
	// get anywhere.
	if !prompter.CanPrompt() {
		return clierrors.CannotPrompt("jenkins-cli")
	}

	// Both interrupt sources (SIGINT and the raw-mode key listener) feed one
	// channel; the controller decides what each press means.
	ctrl := interrupt.NewController(out, prompter, logger)
	defer ctrl.SetAppRunning(false)

	interrupts := make(chan struct{}, 4)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	go func() {
		for range sigCh {
			select {
			case interrupts <- struct{}{}:
			default:
			}
		}
	}()
	go ctrl.Run(interrupts)
	go ctrl.ListenKeys(interrupts)

	serviceStep := false

	var svc config.Service

	switch {
	case opts.URL != "":
		svc = config.Service{URL: opts.URL, User: opts.User, Token: opts.Token}
		if match := cfg.FindService(opts.URL); match != nil {
			svc = *match
			if opts.User != "" {
				svc.User = opts.User
			}
			if opts.Token != "" {
				svc.Token = opts.Token
			}
		}
		if !svc.Complete() {
			return clierrors.ServiceNotFound(opts.URL)
		}

	default:
		if len(cfg.Services) == 0 {
			return clierrors.NoServices(configPath)
		}
		for _, s := range cfg.Services {
			if !s.Complete() {
				return clierrors.New(clierrors.ExitConfig, "Jenkins service entries are incomplete").
					WithHint("Fill url, user and token for each [[jenkins]] entry in " + configPath)
			}
		}

		serviceStep = len(cfg.Services) > 1
		if !serviceStep {
			svc = cfg.Services[0]
		}
	}

	tracker := flow.NewStepTracker(serviceStep, true)

	hist, err := history.Open(filepath.Join(dataDir, history.FileName))
	if err != nil {
		out.Warning("Build history unavailable: %v", err)
		hist = nil
	}

serviceLoop:
	for {
		if serviceStep {
			names := make([]string, len(cfg.Services))
			for i, s := range cfg.Services {
				names[i] = s.DisplayName()
			}

			idx, selErr := prompter.Select("Select Jenkins service", names)
			if errors.Is(selErr, prompt.ErrCancelled) {
				return nil
			}
			if selErr != nil {
				return clierrors.Wrap(clierrors.ExitGeneral, "Service selection failed", selErr)
			}

			svc = cfg.Services[idx]
		}

		histEnabled := cfg.Global.HistoryEnabled()
		if svc.EnableHistory != nil {
			histEnabled = *svc.EnableHistory
		}

		var persist jenkins.PersistFunc
		if svc.CookieRefresh != nil {
			persist = config.CookiePersister(configPath, svc.URL)
		}

		client := jenkins.New(jenkins.Credentials{
			BaseURL:       svc.URL,
			Username:      svc.User,
			Token:         svc.Token,
			Cookie:        svc.Cookie,
			CookieRefresh: svc.CookieRefresh,
		}, persist, logger, jenkins.Options{
			Timeout: time.Duration(cfg.Global.Timeout) * time.Second,
		})

		projects, projErr := client.GetProjects(ctx)
		if projErr != nil {
			return classifyRequestError(projErr)
		}

		projects = filterProjects(projects, svc.Includes, svc.Excludes)
		if len(projects) == 0 {
			return clierrors.NoProjects()
		}

		if histEnabled && hist != nil {
			if recent := hist.Recent(svc.URL, 1); len(recent) == 1 {
				moveJobFirst(projects, recent[0].Name)
			}

			names := make([]string, len(projects))
			for i, p := range projects {
				names[i] = p.Name
			}
			if _, pruneErr := hist.Prune(svc.URL, names); pruneErr != nil {
				logger.Warn("failed to prune build history", "error", pruneErr)
			}
		}

		tracker.EnterProject()

	projectLoop:
		for {
			names := make([]string, len(projects))
			for i, p := range projects {
				names[i] = p.DisplayName + " (" + p.Name + ")"
			}

			idx, selErr := prompter.Select("Select project", names)
			if errors.Is(selErr, prompt.ErrCancelled) {
				if tracker.Back() == flow.RouteService {
					continue serviceLoop
				}
				return nil
			}
			if selErr != nil {
				return clierrors.Wrap(clierrors.ExitGeneral, "Project selection failed", selErr)
			}

			job := projects[idx]
			jobURL := strings.TrimRight(job.URL, "/")

			tracker.EnterParams()

			var histEntry *history.Entry
			if histEnabled && hist != nil {
				histEntry = hist.Get(svc.URL, jobURL, job.Name)
			}

			params, paramErr := resolveParams(ctx, client, prompter, out, histEntry, job.Name, jobURL)
			if errors.Is(paramErr, prompt.ErrCancelled) {
				switch tracker.Back() {
				case flow.RouteProject:
					continue projectLoop
				case flow.RouteService:
					continue serviceLoop
				default:
					return nil
				}
			}
			if paramErr != nil {
				return paramErr
			}

			if histEnabled && hist != nil {
				if upErr := hist.Upsert(history.Entry{
					JobURL:      jobURL,
					Name:        job.Name,
					DisplayName: job.DisplayName,
					Params:      params,
				}); upErr != nil {
					out.Warning("Failed to update build history: %v", upErr)
				}
			}

			return executeBuild(ctx, ctrl, client, out, hist, histEnabled, job, jobURL, params)
		}
	}
}

// executeBuild triggers the job and follows the queue, log stream and final
// result. Polling hands interrupt handling to the controller.
func executeBuild(
	ctx context.Context,
	ctrl *interrupt.Controller,
	client *jenkins.Client,
	out *output.Writer,
	hist *history.Store,
	histEnabled bool,
	job jenkins.Job,
	jobURL string,
	params map[string]jenkins.ParamValue,
) error {
	link := color.New(color.FgBlue, color.Underline)
	out.Print("Job URL: %s\n", link.Sprint(jobURL))

	// The cancel path stops builds relative to this URL.
	client.SetJobURL(jobURL)

	queueURL, err := client.TriggerBuild(ctx, jobURL, params)
	if err != nil {
		return clierrors.TriggerFailed(err)
	}

	events := make(chan jenkins.Event, 16)
	spin := out.Spinner("Waiting for build to start")
	ctrl.SetContext(client, events, spin)
	ctrl.SetPhase(interrupt.PhasePolling)
	spin.Start()

	buildURL, err := client.PollQueueItem(ctx, queueURL, events, spin)
	if err != nil {
		ctrl.FinishPolling()
		if errors.Is(err, jenkins.ErrCancelled) {
			<-ctrl.WaitForCancel()
			return nil
		}
		return classifyRequestError(err)
	}

	spin.UpdateMessage("Build in progress")
	spin.Resume()

	// Console logs keep their colors on a terminal; everywhere else the
	// escape sequences are stripped.
	logOut := io.Writer(out)
	if !out.Terminal().IsTTY || out.Terminal().NoColor {
		logOut = ansi.NewStripWriter(out)
	}

	err = client.PollBuildStatus(ctx, buildURL, events, spin, logOut)
	ctrl.FinishPolling()
	ctrl.SetAppRunning(false)

	if err == nil {
		if histEnabled && hist != nil {
			if upErr := hist.UpdateCompleted(jobURL, job.Name); upErr != nil {
				out.Warning("Failed to update build history: %v", upErr)
			}
		}
		out.Success("Build completed")
		return nil
	}

	if errors.Is(err, jenkins.ErrCancelled) {
		<-ctrl.WaitForCancel()
		return nil
	}

	var resultErr *jenkins.BuildResultError
	if errors.As(err, &resultErr) {
		out.Print("Log URL: %s\n", link.Sprint(buildURL+"/consoleText"))
		return clierrors.BuildFailed(resultErr.Result)
	}

	return classifyRequestError(err)
}

// classifyRequestError maps transport failures to CLI errors, keeping the
// auth case distinct so its exit code and hint differ.
func classifyRequestError(err error) error {
	var statusErr *jenkins.StatusError
	if errors.As(err, &statusErr) &&
		(statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden) {
		return clierrors.AuthFailed(err)
	}

	return clierrors.RequestFailed(err)
}

// filterProjects applies the service's include/exclude regex lists against
// both job name and display name. An empty include list admits everything.
func filterProjects(projects []jenkins.Job, includes, excludes []string) []jenkins.Job {
	includeRes := compilePatterns(includes)
	excludeRes := compilePatterns(excludes)

	var filtered []jenkins.Job
	for _, p := range projects {
		included := len(includeRes) == 0 || matchesAny(includeRes, p.Name, p.DisplayName)
		excluded := matchesAny(excludeRes, p.Name, p.DisplayName)
		if included && !excluded {
			filtered = append(filtered, p)
		}
	}

	return filtered
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	var res []*regexp.Regexp
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		res = append(res, re)
	}

	return res
}

func matchesAny(res []*regexp.Regexp, values ...string) bool {
	for _, re := range res {
		for _, v := range values {
			if re.MatchString(v) {
				return true
			}
		}
	}

	return false
}

// moveJobFirst floats the most recently built job to the top of the list.
func moveJobFirst(projects []jenkins.Job, name string) {
	for i, p := range projects {
		if p.Name != name {
			continue
		}
		job := projects[i]
		copy(projects[1:i+1], projects[0:i])
		projects[0] = job
		return
	}
}
