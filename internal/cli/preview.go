// preview.go implements the "mkhosts preview" command.
//
// preview runs the parse and generate half of the root command and stops
// there: no working file, no local append, no SSH or Docker connection.
// It accepts the same naming flags so its output matches what a real run
// would write.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mkhosts/internal/hostsfile"
	"github.com/shinji-kodama/mkhosts/internal/model"
)

// NewPreviewCommand creates the "preview" command, which prints the entries
// a run would generate without touching any file or host.
func NewPreviewCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "preview -f <env_file>",
		Short: "Print the hosts entries that would be generated",
		Long: `Parse the environment file and print the generated hosts entries.
Nothing is written and no host is contacted.

Examples:
  mkhosts preview -f docker-1.txt
  mkhosts preview -f docker-1.txt --no-zero --make-local -o yaml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.nameType, "nametype", "N", "", "Hostname prefix (default: environment file name up to the first '-')")
	f.StringVarP(&opts.envFile, "env-file", "f", "", "Environment file to read addresses from (required)")
	f.BoolVar(&opts.makeLocal, "make-local", false, "Also show the local hosts file entries")
	f.BoolVar(&opts.noZero, "no-zero", false, "Number hosts from 1 instead of 0")
	f.BoolVar(&opts.strict, "strict", false, "Reject addresses that are not valid IPv4 or IPv6 addresses")

	return cmd
}

// runPreview parses and generates like runRoot but only reports. No
// privilege is needed, even with --make-local, since nothing is written.
func runPreview(cmd *cobra.Command, opts *runOptions) error {
	if opts.envFile == "" {
		return model.NewCLIError(model.ExitGeneralError, "-f <env_file> is required")
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	list, name, err := parseEnvironment(opts, cfg)
	if err != nil {
		return err
	}

	// The report has no results: preview never contacts a target.
	report := &model.RunReport{
		NamePrefix: name,
		Addresses:  list,
		Entries:    hostsfile.Generate(name, list.Private, opts.startIndex()),
	}
	if opts.makeLocal {
		report.LocalEntries = hostsfile.Generate(name, list.Public, opts.startIndex())
	}
	return writeReport(cmd.OutOrStdout(), report, outputFormat)
}
