package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	clierrors "github.com/kairyou/jenkins-cli/internal/errors"
	"github.com/kairyou/jenkins-cli/internal/gitutil"
	"github.com/kairyou/jenkins-cli/internal/history"
	"github.com/kairyou/jenkins-cli/internal/jenkins"
	"github.com/kairyou/jenkins-cli/internal/output"
	"github.com/kairyou/jenkins-cli/internal/prompt"
)

// manualInput is the git-branch list entry that falls through to free text.
const manualInput = "manual input"

// resolveParams produces the parameter set for one build. A matching history
// entry is offered first; declining it (or having none) prompts per the job's
// parameter schema.
func resolveParams(
	ctx context.Context,
	client *jenkins.Client,
	prompter *prompt.Prompter,
	out *output.Writer,
	histEntry *history.Entry,
	jobName, jobURL string,
) (map[string]jenkins.ParamValue, error) {
	schema, err := client.GetJobParameters(ctx, jobURL)
	if err != nil {
		// The job list is fetched once; a job removed or renamed since
		// then surfaces here as a 404.
		var statusErr *jenkins.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, clierrors.ProjectNotFound(jobName)
		}
		return nil, classifyRequestError(err)
	}

	if histEntry != nil {
		use, histErr := history.ShouldUseHistoryParams(prompter, out, histEntry, schema)
		if histErr != nil {
			return nil, histErr
		}
		if use {
			return history.MergeParameters(histEntry, schema), nil
		}
	}

	return promptParameters(prompter, schema)
}

// promptParameters collects one value per definition. Passwords go through a
// hidden prompt, booleans through confirm, choices through select; string-ish
// parameters whose name suggests a git branch get a branch picker seeded from
// the local repository.
func promptParameters(prompter *prompt.Prompter, schema []jenkins.JobParameter) (map[string]jenkins.ParamValue, error) {
	params := make(map[string]jenkins.ParamValue, len(schema))

	for _, def := range schema {
		value, err := promptOne(prompter, def)
		if err != nil {
			return nil, err
		}
		params[def.Name] = jenkins.ParamValue{Value: value, Type: def.Type}
	}

	return params, nil
}

func promptOne(prompter *prompt.Prompter, def jenkins.JobParameter) (string, error) {
	label := def.Name
	if def.Description != "" {
		label += " (" + def.Description + ")"
	}

	switch {
	case len(def.Choices) > 0:
		defaultIdx := indexOf(def.Choices, def.DefaultValue)
		if defaultIdx < 0 {
			defaultIdx = 0
		}
		idx, err := prompter.SelectWithDefault(label, def.Choices, defaultIdx)
		if err != nil {
			return "", err
		}
		return def.Choices[idx], nil

	case def.Type == jenkins.ParamBoolean:
		defaultOn, _ := strconv.ParseBool(def.DefaultValue)
		on, err := prompter.Confirm(label, defaultOn)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(on), nil

	case def.Type == jenkins.ParamPassword:
		value, err := prompter.Password(label)
		if err != nil {
			return "", err
		}
		if value == "" {
			return def.DefaultValue, nil
		}
		return value, nil

	case isBranchParam(def.Name):
		if value, ok, err := promptBranch(prompter, label, def.DefaultValue); err != nil || ok {
			return value, err
		}
	}

	value, err := prompter.Input(label, def.DefaultValue)
	if err != nil {
		return "", err
	}
	if def.Trim {
		value = strings.TrimSpace(value)
	}

	return value, nil
}

// promptBranch offers the local repository's remote branches. Returns
// ok=false when there are no branches or the user picks manual input, which
// both fall back to the plain text prompt.
func promptBranch(prompter *prompt.Prompter, label, defaultValue string) (string, bool, error) {
	branches := gitutil.RemoteBranches()
	if len(branches) == 0 {
		return "", false, nil
	}

	current := gitutil.CurrentBranch()
	options := branchOptions(branches, current, defaultValue)

	defaultIdx := 0
	if i := indexOf(options, defaultValue); i >= 0 {
		defaultIdx = i
	} else if i := indexOf(options, current); i >= 0 {
		defaultIdx = i
	}

	idx, err := prompter.SelectWithDefault(label, options, defaultIdx)
	if err != nil {
		return "", false, err
	}
	if options[idx] == manualInput {
		return "", false, nil
	}

	return options[idx], true, nil
}

// branchOptions orders the picker: manual input first, then the current
// branch, then the job default, then everything else as listed.
func branchOptions(branches []string, current, defaultValue string) []string {
	options := make([]string, 0, len(branches)+1)
	options = append(options, manualInput)

	if current != "" && indexOf(branches, current) >= 0 {
		options = append(options, current)
	}
	if defaultValue != "" && defaultValue != current && indexOf(branches, defaultValue) >= 0 {
		options = append(options, defaultValue)
	}

	for _, b := range branches {
		if indexOf(options, b) >= 0 {
			continue
		}
		options = append(options, b)
	}

	return options
}

func isBranchParam(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "git_branch") || strings.Contains(lower, "gitbranch")
}

func indexOf(items []string, target string) int {
	for i, item := range items {
		if item == target {
			return i
		}
	}
	return -1
}
