package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	clierrors "github.com/kairyou/jenkins-cli/internal/errors"
	"github.com/kairyou/jenkins-cli/internal/output"
	"github.com/kairyou/jenkins-cli/internal/terminal"
)

func testWriter() (*output.Writer, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer

	term := &terminal.Info{IsTTY: false, NoColor: true}

	return output.NewWriter(&stdout, &stderr, term), &stdout, &stderr
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
		wantHint string
	}{
		{
			name:     "cli error with hint",
			err:      clierrors.New(clierrors.ExitConfig, "No services configured").WithHint("Edit the config file"),
			wantCode: clierrors.ExitConfig,
			wantErr:  "No services configured",
			wantHint: "Edit the config file",
		},
		{
			name:     "auth failure",
			err:      clierrors.AuthFailed(errors.New("401")),
			wantCode: clierrors.ExitAuth,
			wantErr:  "Authentication failed",
		},
		{
			name:     "build failure",
			err:      clierrors.BuildFailed("FAILURE"),
			wantCode: clierrors.ExitBuild,
			wantErr:  "FAILURE",
		},
		{
			name:     "unknown flag safety net",
			err:      errors.New("unknown flag: --bogus"),
			wantCode: clierrors.ExitUsage,
			wantErr:  "unknown flag: --bogus",
		},
		{
			name:     "plain error",
			err:      errors.New("something broke"),
			wantCode: clierrors.ExitGeneral,
			wantErr:  "something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stdout, stderr := testWriter()

			code := handleError(out, tt.err)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}

			combined := stdout.String() + stderr.String()
			if !strings.Contains(combined, tt.wantErr) {
				t.Errorf("output %q missing %q", combined, tt.wantErr)
			}
			if tt.wantHint != "" && !strings.Contains(combined, tt.wantHint) {
				t.Errorf("output %q missing hint %q", combined, tt.wantHint)
			}
		})
	}
}

func TestRootCmd_RejectsPositionalArgs(t *testing.T) {
	out, _, _ := testWriter()

	cmd := newRootCmd(out)
	cmd.SetArgs([]string{"deploy"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for positional args")
	}
}

func TestRootCmd_UnknownFlagIsUsageError(t *testing.T) {
	out, _, _ := testWriter()

	cmd := newRootCmd(out)
	cmd.SetArgs([]string{"--bogus"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) {
		t.Fatalf("expected CLIError, got %T: %v", err, err)
	}
	if cliErr.Code != clierrors.ExitUsage {
		t.Errorf("code = %d, want %d", cliErr.Code, clierrors.ExitUsage)
	}
}

func TestPickFlagOrEnv(t *testing.T) {
	t.Setenv("JENKINS_CLI_TEST_PICK", "from-env")

	if got := pickFlagOrEnv("from-flag", "JENKINS_CLI_TEST_PICK", "fallback"); got != "from-flag" {
		t.Errorf("flag should win, got %q", got)
	}
	if got := pickFlagOrEnv("", "JENKINS_CLI_TEST_PICK", "fallback"); got != "from-env" {
		t.Errorf("env should win over fallback, got %q", got)
	}
	if got := pickFlagOrEnv("", "JENKINS_CLI_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("fallback expected, got %q", got)
	}
}

func TestPickBoolFlagOrEnv(t *testing.T) {
	t.Setenv("JENKINS_CLI_TEST_BOOL", "true")

	if !pickBoolFlagOrEnv(false, "JENKINS_CLI_TEST_BOOL") {
		t.Error("env true should enable")
	}

	t.Setenv("JENKINS_CLI_TEST_BOOL", "0")

	if pickBoolFlagOrEnv(false, "JENKINS_CLI_TEST_BOOL") {
		t.Error("env 0 should not enable")
	}
	if !pickBoolFlagOrEnv(true, "JENKINS_CLI_TEST_BOOL") {
		t.Error("flag should always win")
	}
}
