// Package gitutil surfaces local git state for branch-parameter suggestions.
//
// When a job parameter looks like a branch selector, the prompt offers the
// remote branches of the repository the CLI is run from. All helpers are
// best-effort: outside a git repository they return empty results.
package gitutil

import (
	"os/exec"
	"strings"
)

// RemoteBranches lists origin branches, without the origin/ prefix. The
// origin/HEAD pointer is skipped.
func RemoteBranches() []string {
	out, err := exec.Command("git", "branch", "-r").Output()
	if err != nil {
		return nil
	}

	return parseRemoteBranches(string(out))
}

// CurrentBranch returns the checked-out branch name, or "" when detached or
// not in a repository.
func CurrentBranch() string {
	out, err := exec.Command("git", "symbolic-ref", "--short", "HEAD").Output()
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(out))
}

func parseRemoteBranches(out string) []string {
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "origin/") {
			continue
		}
		if strings.Contains(trimmed, "/HEAD") {
			continue
		}
		branches = append(branches, strings.TrimPrefix(trimmed, "origin/"))
	}

	return branches
}
