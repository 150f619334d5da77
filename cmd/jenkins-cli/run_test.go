package main

import (
	"errors"
	"testing"

	clierrors "github.com/kairyou/jenkins-cli/internal/errors"
	"github.com/kairyou/jenkins-cli/internal/jenkins"
)

func jobs(names ...string) []jenkins.Job {
	out := make([]jenkins.Job, len(names))
	for i, n := range names {
		out[i] = jenkins.Job{Name: n, DisplayName: n}
	}
	return out
}

func jobNames(js []jenkins.Job) []string {
	out := make([]string, len(js))
	for i, j := range js {
		out[i] = j.Name
	}
	return out
}

func TestFilterProjects(t *testing.T) {
	tests := []struct {
		name     string
		projects []jenkins.Job
		includes []string
		excludes []string
		want     []string
	}{
		{
			name:     "no filters passes everything",
			projects: jobs("web-app", "api", "legacy"),
			want:     []string{"web-app", "api", "legacy"},
		},
		{
			name:     "includes narrow the list",
			projects: jobs("web-app", "api", "legacy"),
			includes: []string{"^web", "^api$"},
			want:     []string{"web-app", "api"},
		},
		{
			name:     "exclude wins over include",
			projects: jobs("web-app", "web-legacy"),
			includes: []string{"^web"},
			excludes: []string{"legacy"},
			want:     []string{"web-app"},
		},
		{
			name: "display name matches too",
			projects: []jenkins.Job{
				{Name: "job-1", DisplayName: "Deploy Frontend"},
				{Name: "job-2", DisplayName: "Deploy Backend"},
			},
			includes: []string{"Frontend"},
			want:     []string{"job-1"},
		},
		{
			name:     "invalid pattern is skipped",
			projects: jobs("web-app", "api"),
			includes: []string{"[invalid", "api"},
			want:     []string{"api"},
		},
		{
			name:     "everything excluded",
			projects: jobs("web-app"),
			excludes: []string{".*"},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterProjects(tt.projects, tt.includes, tt.excludes)

			names := jobNames(got)
			if len(names) != len(tt.want) {
				t.Fatalf("got %v, want %v", names, tt.want)
			}
			for i := range names {
				if names[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", names, tt.want)
				}
			}
		})
	}
}

func TestMoveJobFirst(t *testing.T) {
	projects := jobs("alpha", "beta", "gamma")

	moveJobFirst(projects, "gamma")

	want := []string{"gamma", "alpha", "beta"}
	for i, n := range jobNames(projects) {
		if n != want[i] {
			t.Fatalf("got %v, want %v", jobNames(projects), want)
		}
	}

	// Unknown name leaves the order alone.
	moveJobFirst(projects, "missing")

	if projects[0].Name != "gamma" {
		t.Errorf("order changed for unknown job: %v", jobNames(projects))
	}
}

func TestClassifyRequestError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "401 is an auth error",
			err:      &jenkins.StatusError{Code: 401, URL: "http://jenkins.local/api/json"},
			wantCode: clierrors.ExitAuth,
		},
		{
			name:     "403 is an auth error",
			err:      &jenkins.StatusError{Code: 403, URL: "http://jenkins.local/job/web/build"},
			wantCode: clierrors.ExitAuth,
		},
		{
			name:     "500 is a network error",
			err:      &jenkins.StatusError{Code: 500, URL: "http://jenkins.local/api/json"},
			wantCode: clierrors.ExitNetwork,
		},
		{
			name:     "timeouts map to the timeout code",
			err:      errors.New("request timed out after 30s"),
			wantCode: clierrors.ExitTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cliErr *clierrors.CLIError
			if !clierrors.As(classifyRequestError(tt.err), &cliErr) {
				t.Fatal("expected CLIError")
			}
			if cliErr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", cliErr.Code, tt.wantCode)
			}
		})
	}
}
