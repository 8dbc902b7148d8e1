// container.go implements hosts distribution to running containers.
//
// A container session follows the same steps as an SSH one:
//   - the working file is copied in as a single-entry tar archive
//     (CopyToContainer), since that is the only upload the Engine API offers
//   - append and cleanup commands run through exec create/attach, with the
//     exit code read back from exec inspect
//
// Commands are split with shell quoting rules and run without a shell of
// their own, so templates that need redirection wrap themselves in sh -c.
package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/shlex"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/shinji-kodama/mkhosts/internal/remote"
)

// Defaults for container targets. Containers usually run as root without
// sudo, so the append command writes directly.
const (
	DefaultStagingPath    = "/tmp/mkhosts.hosts"
	DefaultAppendCommand  = "sh -c '" + remote.AppendScript + "'"
	DefaultCleanupCommand = "rm -f {staging}"
)

// inspectPollInterval is the delay between exec inspections while waiting
// for the daemon to record an exit code.
const inspectPollInterval = 50 * time.Millisecond

// Engine is the subset of the Docker Engine API used by this package.
// *client.Client satisfies it.
type Engine interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
}

// ListTargets returns the names of the running containers matching sel, in
// the order the daemon reports them. Containers without a name are
// identified by their short ID.
func ListTargets(ctx context.Context, engine Engine, sel LabelSelector) ([]string, error) {
	containers, err := engine.ContainerList(ctx, container.ListOptions{
		Filters: sel.filterArgs(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list Docker containers: %w", err)
	}
	// Names are used rather than IDs so that results and logs read like
	// "docker ps" output.
	return lo.Map(containers, func(c container.Summary, _ int) string {
		return targetName(c)
	}), nil
}

// targetName strips the leading "/" Docker puts on container names.
func targetName(c container.Summary) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

// Dialer implements remote.Dialer for containers. Sessions need no
// connection of their own; they share the Engine.
type Dialer struct {
	Engine Engine
}

// Dial returns a session bound to the container named target.
func (d *Dialer) Dial(ctx context.Context, target string) (remote.Session, error) {
	if d.Engine == nil {
		return nil, fmt.Errorf("docker: no engine configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session{engine: d.Engine, container: target}, nil
}

// session targets one container. It holds no daemon resources: every
// operation is a standalone Engine API call.
type session struct {
	engine    Engine
	container string
}

// Transfer copies localPath into the container at remotePath. The Engine
// API takes a tar stream extracted into a directory, so the file is packed
// as a single entry named after the base of remotePath.
func (s *session) Transfer(ctx context.Context, localPath, remotePath string) error {
	// The working file is small; it is read whole and packed in memory.
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("docker: failed to read local file: %w", err)
	}

	archive, err := tarFile(path.Base(remotePath), data, 0644)
	if err != nil {
		return err
	}

	err = s.engine.CopyToContainer(ctx, s.container, path.Dir(remotePath), archive, container.CopyToContainerOptions{})
	if err != nil {
		return fmt.Errorf("docker: copy to %s:%s failed: %w", s.container, remotePath, err)
	}
	return nil
}

// Run splits command into an argv and executes it in the container. The
// exit status of the exec is returned.
func (s *session) Run(ctx context.Context, command string) (int, error) {
	// No shell is involved: quotes group words, and redirections or pipes
	// need an explicit "sh -c".
	argv, err := shlex.Split(command)
	if err != nil {
		return -1, fmt.Errorf("docker: invalid command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return -1, fmt.Errorf("docker: empty command")
	}

	created, err := s.engine.ContainerExecCreate(ctx, s.container, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, fmt.Errorf("docker: exec create in %s failed: %w", s.container, err)
	}

	// Attaching starts the exec; the stream ends when the process exits.
	resp, err := s.engine.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return -1, fmt.Errorf("docker: exec attach in %s failed: %w", s.container, err)
	}
	defer resp.Close()

	// Without a TTY the daemon multiplexes stdout and stderr on one
	// stream; StdCopy splits them again.
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil {
		return -1, fmt.Errorf("docker: reading exec output from %s: %w", s.container, err)
	}

	// The output stream can close before the daemon has recorded the
	// exit code, so the code is read by polling the exec.
	status, err := s.waitExit(ctx, created.ID)
	if err != nil {
		return -1, err
	}
	if status != 0 {
		logrus.WithFields(logrus.Fields{
			"target": s.container,
			"status": status,
			"stderr": strings.TrimSpace(stderr.String()),
		}).Debug("container command failed")
	}
	return status, nil
}

// waitExit inspects the exec until the daemon reports it finished.
func (s *session) waitExit(ctx context.Context, execID string) (int, error) {
	for {
		inspect, err := s.engine.ContainerExecInspect(ctx, execID)
		if err != nil {
			return -1, fmt.Errorf("docker: exec inspect in %s failed: %w", s.container, err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(inspectPollInterval):
		}
	}
}

// Close is a no-op; the Engine connection is owned by the caller.
func (s *session) Close() error {
	return nil
}

// tarFile builds an in-memory tar archive holding one regular file.
func tarFile(name string, data []byte, mode int64) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:     name,
		Mode:     mode,
		Size:     int64(len(data)),
		ModTime:  time.Now(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("docker: tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return nil, fmt.Errorf("docker: tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("docker: tar close: %w", err)
	}
	return &buf, nil
}
