// Package cli implements the cobra-based command line for mkhosts.
//
// The root command generates and distributes the hosts file (run.go); the
// preview subcommand only prints the entries that would be generated
// (preview.go). This file defines the root command, global flags, logging
// setup and exit code handling.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mkhosts/internal/model"
)

// Global flag variables shared across all subcommands. They are bound to
// cobra persistent flags on the root command.
var (
	// debug lowers the log level to debug.
	debug bool

	// outputFormat selects the report format: text, json or yaml.
	outputFormat string

	// configPath is an explicit configuration file. Empty means search.
	configPath string
)

// Version, Commit and Date are set at build time via ldflags in main.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
func NewRootCommand() *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:   "mkhosts -f <env_file> [-i <keyfile>] [flags]",
		Short: "Generate a hosts file from an environment file and copy it to every host",
		Long: `mkhosts reads an environment file, collects the addresses on its "IP:" lines
and builds hosts entries named <nametype>0, <nametype>1, ... from the private
addresses. The entries are copied to every public address over SSH and
appended to /etc/hosts there.

With --make-local the public addresses are also appended to the local hosts
file; --make-local-only does only that. Both require root.

Examples:
  mkhosts -f docker-1.txt -i ~/.ssh/train.pem
  mkhosts -f docker-1.txt -i ~/.ssh/train.pem -u core --no-zero
  sudo mkhosts -f docker-1.txt --make-local-only
  mkhosts -f docker-1.txt -i key.pem --container-label mkhosts=yes -o json`,

		Args: cobra.NoArgs,

		// Errors are printed by Execute in the selected output format.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd.ErrOrStderr())
			return validateOutputFormat(outputFormat)
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, opts)
		},
	}

	// Persistent flags apply to the root command and to preview.
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "D", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatText, "Report format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: search for mkhosts.{yaml,json,jsonc})")

	bindRunFlags(rootCmd, opts)

	rootCmd.AddCommand(NewPreviewCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code carried by a
// returned CLIError, or 1 for any other error.
func Execute(rootCmd *cobra.Command) {
	os.Exit(run(rootCmd, os.Stderr))
}

// run executes the command and returns the process exit code.
func run(rootCmd *cobra.Command, stderr io.Writer) int {
	err := rootCmd.Execute()
	if err == nil {
		return int(model.ExitSuccess)
	}

	// Commands return CLIError to choose the exit code. Anything else,
	// including cobra's own flag parsing errors, exits with 1.
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(stderr, cliErr.Message, cliErr.Err)
		return int(cliErr.Code)
	}
	printError(stderr, err.Error(), nil)
	return int(model.ExitGeneralError)
}

// printError writes an error message to w, as JSON when -o json is set.
//
// JSON format:
//
//	{"error": {"message": "...", "detail": "..."}}
//
// "detail" carries the underlying error and is omitted when there is none.
func printError(w io.Writer, message string, underlying error) {
	if outputFormat == formatJSON {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// setupLogging configures the standard logrus logger: "level=info msg=..."
// lines on w, debug level with -D.
func setupLogging(w io.Writer) {
	// Logs share stderr with errors; stdout carries only the report.
	logrus.SetOutput(w)
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
