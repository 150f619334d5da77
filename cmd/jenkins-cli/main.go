// Package main is the entry point for the Jenkins CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	clierrors "github.com/kairyou/jenkins-cli/internal/errors"
	"github.com/kairyou/jenkins-cli/internal/observability"
	"github.com/kairyou/jenkins-cli/internal/output"
	"github.com/kairyou/jenkins-cli/internal/terminal"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	// Restore cursor visibility on panic to prevent hidden cursor if process
	// crashes during spinner
	defer func() {
		if r := recover(); r != nil {
			terminal.ShowCursor(os.Stderr)
			panic(r)
		}
	}()

	out := output.Default()

	rootCmd := newRootCmd(out)
	if err := rootCmd.Execute(); err != nil {
		return handleError(out, err)
	}

	return 0
}

// handleError formats and displays a CLI error, returning the appropriate
// exit code. CLIErrors carry their own message, hint and code; everything
// else exits as a general error.
func handleError(out *output.Writer, err error) int {
	var cliErr *clierrors.CLIError
	if clierrors.As(err, &cliErr) {
		out.Failure("%s", cliErr.Message)

		if cliErr.Hint != "" {
			out.Info("%s", cliErr.Hint)
		}

		return cliErr.Code
	}

	errStr := err.Error()

	// Cobra flag errors are normally wrapped as CLIError by
	// SetFlagErrorFunc; this is the safety net.
	if strings.HasPrefix(errStr, "unknown flag") ||
		strings.HasPrefix(errStr, "unknown shorthand flag") ||
		strings.Contains(errStr, "required flag") {
		out.Failure("%s", errStr)
		out.Info("Run 'jenkins-cli --help' for usage")

		return clierrors.ExitUsage
	}

	out.Failure("%s", errStr)

	return clierrors.ExitGeneral
}

func newRootCmd(out *output.Writer) *cobra.Command {
	var (
		opts     buildOptions
		quiet    bool
		noColor  bool
		logLevel string
		logFile  string
	)

	rootCmd := &cobra.Command{
		Use:   "jenkins-cli",
		Short: "Trigger and follow Jenkins builds from the terminal",
		Long: `jenkins-cli runs an interactive build flow against a Jenkins server:
pick a service, pick a job, fill its parameters (or reuse the previous
ones), then follow the queue, the console log and the final result live.

Ctrl+C during selection steps navigates back; during a running build it
offers to cancel the remote build.

Services are configured in ~/.jenkins.toml. Pass --url/--user/--token to
target a server directly.`,
		Args:          cobra.NoArgs,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			out.Quiet = pickBoolFlagOrEnv(quiet, "JENKINS_CLI_QUIET")

			if noColor {
				out.SetNoColor(true)

				color.NoColor = true
			}

			logCfg := observability.Config{
				Level:     pickFlagOrEnv(logLevel, "JENKINS_CLI_LOG_LEVEL", "info"),
				LogFile:   pickFlagOrEnv(logFile, "JENKINS_CLI_LOG_FILE", ""),
				SessionID: uuid.NewString(),
				Version:   version,
			}

			logger, cleanup, err := observability.NewLogger(&logCfg)
			if err != nil {
				return &clierrors.CLIError{
					Message: fmt.Sprintf("Invalid logging configuration: %v", err),
					Hint:    "Use --log-level (error|warn|info|debug) and/or --log-file",
					Code:    clierrors.ExitUsage,
				}
			}

			slog.SetDefault(logger)

			ctx := out.WithContext(cmd.Context())
			ctx = observability.WithLogger(ctx, logger)
			cmd.SetContext(ctx)

			if cleanup != nil {
				cmd.PostRunE = wrapPostRunCleanup(cmd.PostRunE, cleanup)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, out, opts)
		},
	}

	rootCmd.Flags().StringVarP(&opts.URL, "url", "U", "", "Jenkins server URL (skips service selection)")
	rootCmd.Flags().StringVarP(&opts.User, "user", "u", "", "Jenkins user ID")
	rootCmd.Flags().StringVarP(&opts.Token, "token", "t", "", "Jenkins API token")

	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Minimal output (for CI)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: error, warn, info, debug")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Optional structured log file path")

	// Wrap Cobra's raw flag errors in CLIError so they get styled output
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &clierrors.CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("Run '%s --help' for available flags", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	})

	return rootCmd
}

func wrapPostRunCleanup(postRun func(*cobra.Command, []string) error, cleanup func() error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if postRun != nil {
			if err := postRun(cmd, args); err != nil {
				_ = cleanup()
				return err
			}
		}

		if err := cleanup(); err != nil {
			return fmt.Errorf("cleanup logger resources: %w", err)
		}

		return nil
	}
}

func pickBoolFlagOrEnv(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}

	v := strings.ToLower(strings.TrimSpace(os.Getenv(envKey)))

	return v == "1" || v == "true" || v == "yes"
}

func pickFlagOrEnv(flagValue, envKey, fallback string) string {
	trimmed := strings.TrimSpace(flagValue)
	if trimmed != "" {
		return trimmed
	}

	if envValue := strings.TrimSpace(os.Getenv(envKey)); envValue != "" {
		return envValue
	}

	return fallback
}
