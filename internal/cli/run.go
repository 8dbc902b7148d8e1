// run.go implements the root command: the full mkhosts workflow.
//
// Orchestration steps:
//  1. Validate flag combinations and privileges
//  2. Load configuration and apply flag overrides
//  3. Parse the environment file and resolve the host name prefix
//  4. Generate the working file entries from the private addresses
//  5. Prepare SSH credentials and container targets
//  6. Write the working file
//  7. Append the public entries to the local hosts file (--make-local)
//  8. Distribute the working file to every target
//  9. Output the report and map failures to the exit code
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mkhosts/internal/config"
	"github.com/shinji-kodama/mkhosts/internal/docker"
	"github.com/shinji-kodama/mkhosts/internal/envfile"
	"github.com/shinji-kodama/mkhosts/internal/hostsfile"
	"github.com/shinji-kodama/mkhosts/internal/model"
	"github.com/shinji-kodama/mkhosts/internal/remote"
)

// runOptions holds the flag values for the root command. The preview
// command reuses it for the subset of flags it accepts.
type runOptions struct {
	// nameType is the host name prefix (-N). Empty derives it from envFile.
	nameType string

	// keyFile is the SSH private key (-i).
	keyFile string

	// envFile is the environment file to parse (-f).
	envFile string

	// user is the remote login (-u). It only overrides the configuration
	// when set explicitly.
	user string

	// makeLocal and makeLocalOnly select the local hosts file modes. They
	// are mutually exclusive.
	makeLocal     bool
	makeLocalOnly bool

	// noZero numbers hosts from 1.
	noZero bool

	knownHosts      string
	insecureHostKey bool
	strict          bool

	// containerLabel selects local containers as additional targets.
	containerLabel string

	timeout time.Duration
}

// localMode reports whether the local hosts file is to be modified.
func (o *runOptions) localMode() bool {
	return o.makeLocal || o.makeLocalOnly
}

// startIndex returns the first hostname suffix.
func (o *runOptions) startIndex() int {
	if o.noZero {
		return hostsfile.OneBased
	}
	return hostsfile.ZeroBased
}

// Hooks replaced in tests.
var (
	// privileged reports whether the process may modify the local hosts
	// file: root on Unix, an elevated token on Windows.
	privileged = isPrivileged

	newSSHDialer = defaultSSHDialer

	// openDocker connects to the local Docker daemon. The returned func
	// releases the connection.
	openDocker = defaultOpenDocker
)

// bindRunFlags registers the root command flags. -f and -i are not marked
// required with cobra: validateRunFlags checks them in a fixed order after
// the mode and privilege checks.
func bindRunFlags(cmd *cobra.Command, opts *runOptions) {
	f := cmd.Flags()
	f.StringVarP(&opts.nameType, "nametype", "N", "", "Hostname prefix (default: environment file name up to the first '-')")
	f.StringVarP(&opts.keyFile, "identity", "i", "", "SSH private key file (required unless --make-local-only)")
	f.StringVarP(&opts.envFile, "env-file", "f", "", "Environment file to read addresses from (required)")
	f.StringVarP(&opts.user, "user", "u", "ubuntu", "Remote login user")
	f.BoolVar(&opts.makeLocal, "make-local", false, "Also append the public addresses to the local hosts file (requires root)")
	f.BoolVar(&opts.makeLocalOnly, "make-local-only", false, "Only append the public addresses to the local hosts file (requires root)")
	f.BoolVar(&opts.noZero, "no-zero", false, "Number hosts from 1 instead of 0")

	f.StringVar(&opts.knownHosts, "known-hosts", "", "known_hosts file used to verify remote hosts (default: ~/.ssh/known_hosts)")
	f.BoolVar(&opts.insecureHostKey, "insecure-accept-host-key", false, "Accept any remote host key without verification")
	f.BoolVar(&opts.strict, "strict", false, "Reject addresses that are not valid IPv4 or IPv6 addresses")
	f.StringVar(&opts.containerLabel, "container-label", "", "Also update running local containers with this label (key or key=value)")
	f.DurationVar(&opts.timeout, "timeout", 0, "Per-host timeout (default from config: 30s, 0 disables)")
}

// validateRunFlags checks flag combinations before any work is done. The
// order of the checks is part of the interface: conflicting local modes,
// then privilege, then the credential, then the environment file.
func validateRunFlags(opts *runOptions) error {
	if opts.makeLocal && opts.makeLocalOnly {
		return model.NewCLIError(model.ExitGeneralError,
			"--make-local and --make-local-only are mutually exclusive")
	}
	if opts.localMode() && !privileged() {
		return model.NewCLIError(model.ExitGeneralError,
			"You must be root to use the make-local flag!")
	}
	if opts.keyFile == "" && !opts.makeLocalOnly {
		return model.NewCLIError(model.ExitGeneralError,
			"-i <keyfile> is required unless --make-local-only is given")
	}
	if opts.envFile == "" {
		return model.NewCLIError(model.ExitGeneralError, "-f <env_file> is required")
	}
	return nil
}

// loadConfig reads the configuration and applies the flags that were set
// explicitly on cmd.
func loadConfig(cmd *cobra.Command, opts *runOptions) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}
	if cfg.Source != "" {
		logrus.WithField("file", cfg.Source).Debug("configuration loaded")
	}

	// Only flags given on the command line override the configuration;
	// their defaults must not mask values from the file or environment.
	flags := cmd.Flags()
	if flags.Changed("user") {
		if strings.TrimSpace(opts.user) == "" {
			return nil, model.NewCLIError(model.ExitGeneralError, "--user must not be empty")
		}
		cfg.User = opts.user
	}
	if flags.Changed("timeout") {
		if opts.timeout < 0 {
			return nil, model.NewCLIError(model.ExitGeneralError, "--timeout must not be negative")
		}
		cfg.Timeout = opts.timeout
	}
	if flags.Changed("known-hosts") {
		cfg.KnownHosts = opts.knownHosts
	}
	return cfg, nil
}

// parseEnvironment reads the environment file and resolves the name prefix.
func parseEnvironment(opts *runOptions, cfg *config.Config) (model.AddressList, string, error) {
	list, err := envfile.ParseFile(opts.envFile, cfg.PrivatePrefix)
	if err != nil {
		return model.AddressList{}, "", model.WrapCLIError(model.ExitGeneralError, "failed to read environment file", err)
	}
	logrus.WithFields(logrus.Fields{
		"addresses": list.Len(),
		"private":   len(list.Private),
		"public":    len(list.Public),
	}).Debug("environment file parsed")
	if list.IsEmpty() {
		logrus.WithField("file", opts.envFile).Warn("no IP: markers found in environment file")
	}

	// Address text is used verbatim unless --strict asks for validation.
	if opts.strict {
		if err := envfile.ValidateAddresses(list); err != nil {
			return model.AddressList{}, "", model.WrapCLIError(model.ExitGeneralError, "invalid address in environment file", err)
		}
	}

	// -N wins; otherwise the prefix comes from the file name, e.g.
	// "docker-1.txt" gives "docker".
	name := opts.nameType
	if name == "" {
		name = envfile.DeriveName(opts.envFile)
	}
	if err := model.ValidatePrefix(name); err != nil {
		return model.AddressList{}, "", model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("cannot derive a host name from %q, use -N", opts.envFile), err)
	}
	return list, name, nil
}

// distribution is one prepared Distributor with its targets.
type distribution struct {
	dist *remote.Distributor

	// targets are public addresses for SSH, container names for Docker.
	targets []string
}

// runRoot is the main orchestration function for the root command. The
// run either completes every step or stops at the first step that fails;
// only the distribution step collects per-target failures and carries on.
func runRoot(cmd *cobra.Command, opts *runOptions) error {
	// Step 1: Validate flags. Nothing has been read or written yet, so a
	// usage error leaves no trace.
	if err := validateRunFlags(opts); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Step 2: Load configuration. Flags set explicitly on the command line
	// win over the file and the environment.
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	// Step 3: Parse the environment file and resolve the name prefix.
	list, name, err := parseEnvironment(opts, cfg)
	if err != nil {
		return err
	}
	logrus.Infof("Will use name: %s", name)

	report := &model.RunReport{
		NamePrefix: name,
		Addresses:  list,
	}

	// Step 4: Generate the working file entries. They map the private
	// addresses and are what every target receives.
	//
	// Step 5: Prepare the distributions. Credentials and container targets
	// are resolved before anything is written, so a bad key or an
	// unreachable daemon leaves no trace.
	var plan []distribution
	if !opts.makeLocalOnly {
		report.Entries = hostsfile.Generate(name, list.Private, opts.startIndex())

		plan, err = prepareDistributions(ctx, opts, cfg, list.Public)
		if err != nil {
			return err
		}
		for _, p := range plan {
			if closer, ok := p.dist.Dialer.(io.Closer); ok {
				defer closer.Close()
			}
		}
	}

	// Step 6: Write the working file. It is removed on every return path
	// from here on.
	var workingFile string
	if !opts.makeLocalOnly {
		workingFile, err = hostsfile.NewWorkingFile("")
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to create working file", err)
		}
		defer func() {
			logrus.Info("Cleaning up temporary files")
			if err := hostsfile.RemoveWorkingFile(workingFile); err != nil {
				logrus.WithError(err).Warn("failed to remove working file")
			}
		}()

		if err := hostsfile.WriteWorkingFile(workingFile, report.Entries); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to write working file", err)
		}
		logrus.WithField("path", workingFile).Debug("working file written")
	}

	// Step 7: Append to the local hosts file. Local entries map the public
	// addresses, numbered from the same start index as the working file.
	if opts.localMode() {
		report.LocalEntries = hostsfile.Generate(name, list.Public, opts.startIndex())
		if err := appendLocal(cfg.HostsFile, report.LocalEntries); err != nil {
			return err
		}
	}

	// Step 8: Distribute. SSH targets first, then containers; each target
	// yields one result whether it succeeds or not.
	if len(plan) > 0 {
		logrus.Info("Copying host files to remote hosts")
	}
	for _, p := range plan {
		report.Results = append(report.Results, p.dist.Distribute(ctx, p.targets, workingFile)...)
	}

	// Step 9: Output results. The report is written even when targets
	// failed; the exit code then tells scripts about it.
	if err := writeReport(cmd.OutOrStdout(), report, outputFormat); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to write report", err)
	}

	if failed := report.Failed(); len(failed) > 0 {
		return model.NewCLIError(model.ExitPartialFailure,
			fmt.Sprintf("%d of %d targets failed", len(failed), len(report.Results)))
	}
	logrus.Info("All tasks complete.")
	return nil
}

// appendLocal appends entries to the local hosts file.
func appendLocal(path string, entries []model.HostEntry) error {
	// Duplicates are still appended; the warning lets the user clean up.
	mapped, err := hostsfile.AlreadyMapped(path, entries)
	if err != nil {
		logrus.WithError(err).Debug("could not check the local hosts file for existing names")
	}
	for _, e := range mapped {
		logrus.WithField("hostname", e.Hostname).Warn("hostname is already mapped in the local hosts file")
	}

	logrus.WithField("path", path).Info("appending host entries to local hosts file")
	err = hostsfile.AppendEntries(path, entries)
	switch {
	case err == nil:
		return nil
	case os.IsPermission(err):
		return model.WrapCLIError(model.ExitGeneralError,
			"Permission denied. To use make-local you must have root!", err)
	default:
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to append to %s", path), err)
	}
}

// prepareDistributions builds the SSH distribution over the public
// addresses and, with --container-label, the container distribution.
func prepareDistributions(ctx context.Context, opts *runOptions, cfg *config.Config, public []string) ([]distribution, error) {
	var plan []distribution

	// SSH targets are the public addresses. Without any, the key is not
	// even loaded, so an environment with only private addresses needs no
	// usable credential.
	if len(public) > 0 {
		dialer, err := newSSHDialer(opts, cfg)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError, "failed to prepare SSH credentials", err)
		}
		plan = append(plan, distribution{
			dist: &remote.Distributor{
				Dialer:         dialer,
				Kind:           "ssh",
				StagingPath:    cfg.RemoteStagingPath(cfg.User),
				AppendCommand:  cfg.Remote.AppendCommand,
				CleanupCommand: cfg.Remote.CleanupCommand,
				Timeout:        cfg.Timeout,
				Log:            logrus.StandardLogger(),
			},
			targets: public,
		})
	}

	// Container targets are listed now, not at distribution time, so a
	// missing daemon fails the run before the working file exists.
	if opts.containerLabel != "" {
		sel, err := docker.ParseLabelSelector(opts.containerLabel)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError, "invalid --container-label", err)
		}
		engine, closeEngine, err := openDocker(ctx)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError, "failed to connect to Docker", err)
		}
		targets, err := docker.ListTargets(ctx, engine, sel)
		if err != nil {
			closeEngine()
			return nil, model.WrapCLIError(model.ExitGeneralError, "failed to list containers", err)
		}
		logrus.WithFields(logrus.Fields{
			"selector":   sel.String(),
			"containers": len(targets),
		}).Debug("container targets resolved")

		plan = append(plan, distribution{
			dist: &remote.Distributor{
				Dialer:         &closingDialer{Dialer: &docker.Dialer{Engine: engine}, close: closeEngine},
				Kind:           "docker",
				StagingPath:    cfg.Docker.StagingPath,
				AppendCommand:  cfg.Docker.AppendCommand,
				CleanupCommand: cfg.Docker.CleanupCommand,
				Timeout:        cfg.Timeout,
				Log:            logrus.StandardLogger(),
			},
			targets: targets,
		})
	}
	return plan, nil
}

// closingDialer attaches a release func to a Dialer so runRoot can close
// the Docker connection once distribution is over.
type closingDialer struct {
	remote.Dialer
	close func()
}

func (d *closingDialer) Close() error {
	d.close()
	return nil
}

// defaultSSHDialer loads the private key, prompting on the terminal for an
// encrypted one, and builds the host key policy.
func defaultSSHDialer(opts *runOptions, cfg *config.Config) (remote.Dialer, error) {
	signer, err := remote.LoadSigner(opts.keyFile, remote.TerminalPrompt)
	if err != nil {
		return nil, err
	}
	hostKeys, err := remote.HostKeyCallback([]string{cfg.KnownHosts}, opts.insecureHostKey)
	if err != nil {
		return nil, err
	}
	if opts.insecureHostKey {
		logrus.Warn("remote host keys are not verified")
	}
	return &remote.SSHDialer{
		User:            cfg.User,
		Port:            cfg.Port,
		Signer:          signer,
		HostKeyCallback: hostKeys,
		Timeout:         cfg.Timeout,
	}, nil
}

// defaultOpenDocker connects to the local daemon and checks that it
// answers before any target is listed.
func defaultOpenDocker(ctx context.Context) (docker.Engine, func(), error) {
	c, err := docker.NewClient()
	if err != nil {
		return nil, nil, err
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	return c.Engine(), func() { _ = c.Close() }, nil
}
