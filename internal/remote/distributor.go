// distributor.go implements the per-target distribution workflow shared by
// every transport.
//
// For each target, in order:
//  1. Dial a session
//  2. Transfer the working file to the staging path
//  3. Run the append command
//  4. Run the cleanup command (also after a failed append)
//
// Targets are processed one at a time and a failure never stops the
// remaining ones; every target yields exactly one HostResult.
package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shinji-kodama/mkhosts/internal/model"
)

// StagingPlaceholder is replaced by the staging path in append and cleanup
// command templates.
const StagingPlaceholder = "{staging}"

// AppendScript appends the staged file to /etc/hosts. A hosts file whose
// last line is not terminated gets a newline first, so the first new entry
// never joins an existing line.
const AppendScript = `[ -s /etc/hosts ] && [ -n "$(tail -c1 /etc/hosts)" ] && echo >> /etc/hosts; cat {staging} >> /etc/hosts`

// Default command templates run on each target after the transfer.
const (
	DefaultAppendCommand  = "sudo sh -c '" + AppendScript + "'"
	DefaultCleanupCommand = "rm -f {staging}"
)

// Dialer opens a session to a single target.
type Dialer interface {
	Dial(ctx context.Context, target string) (Session, error)
}

// Session is an open connection to one target.
type Session interface {
	// Transfer copies the local file to remotePath on the target.
	Transfer(ctx context.Context, localPath, remotePath string) error

	// Run executes command on the target and returns its exit status.
	// A non-zero status is not an error; err is reserved for failures to
	// run the command at all.
	Run(ctx context.Context, command string) (int, error)

	// Close releases the session.
	Close() error
}

// StagingPath returns the default staging location for user: the file
// "hosts" in the user's home directory.
func StagingPath(user string) string {
	if user == "root" {
		return "/root/hosts"
	}
	return "/home/" + user + "/hosts"
}

// ExpandCommand substitutes the staging path into a command template. The
// path is inserted as is; templates decide their own quoting.
func ExpandCommand(template, staging string) string {
	return strings.ReplaceAll(template, StagingPlaceholder, staging)
}

// Distributor copies a working file to a list of targets and appends it to
// each target's hosts file.
//
// Usage:
//
//	d := &remote.Distributor{
//		Dialer:      &remote.SSHDialer{User: "ubuntu", Signer: signer, HostKeyCallback: cb},
//		Kind:        "ssh",
//		StagingPath: remote.StagingPath("ubuntu"),
//		Timeout:     30 * time.Second,
//	}
//	for _, res := range d.Distribute(ctx, []string{"54.1.2.3"}, workingFile) {
//		if !res.OK() { /* res.Stage says where it failed */ }
//	}
type Distributor struct {
	// Dialer opens the per-target sessions.
	Dialer Dialer

	// Kind labels the results ("ssh", "docker").
	Kind string

	// StagingPath is where the working file is placed on the target.
	StagingPath string

	// AppendCommand and CleanupCommand are command templates; see
	// ExpandCommand. Empty values fall back to the defaults.
	AppendCommand  string
	CleanupCommand string

	// Timeout bounds the work for a single target. Zero means no limit.
	Timeout time.Duration

	// Log receives per-target progress. Nil uses the standard logger.
	Log logrus.FieldLogger
}

// Distribute processes targets in order and returns one result per target.
// A failing target does not stop the remaining ones.
func (d *Distributor) Distribute(ctx context.Context, targets []string, workingFile string) []model.HostResult {
	results := make([]model.HostResult, 0, len(targets))
	for _, target := range targets {
		// Once the run is cancelled the remaining targets are recorded as
		// failed without being dialed.
		if err := ctx.Err(); err != nil {
			results = append(results, d.result(target, model.StageConnect, -1, err))
			continue
		}
		res := d.distributeOne(ctx, target, workingFile)
		if res.OK() {
			d.logger().WithField("target", target).Info("hosts file updated")
		} else {
			d.logger().WithFields(logrus.Fields{
				"target": target,
				"stage":  res.Stage,
			}).WithError(res.Err).Error("failed to update hosts file")
		}
		results = append(results, res)
	}
	return results
}

// distributeOne runs the four steps for one target. The returned result
// names the step that failed, or StageDone.
func (d *Distributor) distributeOne(ctx context.Context, target, workingFile string) model.HostResult {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	log := d.logger().WithField("target", target)

	log.Debug("opening session")
	sess, err := d.Dialer.Dial(ctx, target)
	if err != nil {
		return d.result(target, model.StageConnect, -1, err)
	}
	defer func() { _ = sess.Close() }()

	log.WithField("path", d.StagingPath).Debug("transferring working file")
	if err := sess.Transfer(ctx, workingFile, d.StagingPath); err != nil {
		return d.result(target, model.StageTransfer, -1, err)
	}

	appendCmd := ExpandCommand(orDefault(d.AppendCommand, DefaultAppendCommand), d.StagingPath)
	log.WithField("command", appendCmd).Debug("appending to hosts file")
	status, err := sess.Run(ctx, appendCmd)
	if err == nil && status != 0 {
		err = fmt.Errorf("%q exited with status %d", appendCmd, status)
	}
	if err != nil {
		// Still try to remove the staged copy; the append failure is what
		// gets reported.
		d.cleanup(ctx, sess, log)
		return d.result(target, model.StageAppend, status, err)
	}

	status, err = d.cleanup(ctx, sess, log)
	if err != nil {
		return d.result(target, model.StageCleanup, status, err)
	}
	return d.result(target, model.StageDone, status, nil)
}

// cleanup removes the staged file. A non-zero exit status is an error.
func (d *Distributor) cleanup(ctx context.Context, sess Session, log logrus.FieldLogger) (int, error) {
	cmd := ExpandCommand(orDefault(d.CleanupCommand, DefaultCleanupCommand), d.StagingPath)
	log.WithField("command", cmd).Debug("removing staged file")
	status, err := sess.Run(ctx, cmd)
	if err == nil && status != 0 {
		err = fmt.Errorf("%q exited with status %d", cmd, status)
	}
	return status, err
}

func (d *Distributor) result(target string, stage model.Stage, status int, err error) model.HostResult {
	return model.HostResult{
		Target:     target,
		Kind:       d.Kind,
		Stage:      stage,
		ExitStatus: status,
		Err:        err,
	}
}

func (d *Distributor) logger() logrus.FieldLogger {
	if d.Log != nil {
		return d.Log
	}
	return logrus.StandardLogger()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
