// ssh.go implements the Dialer and Session interfaces over SSH.
//
// One TCP connection is opened per target. The file transfer and each
// command run in their own SSH session on that connection, so they all
// share the host key check and authentication done in Dial.
package remote

import (
	"bytes"
	"context"
	"net"
	"os"
	"strconv"
	"time"

	scp "github.com/bramvdbogaerde/go-scp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// DefaultPort is the SSH port used when none is configured.
const DefaultPort = 22

// transferMode is the permission of the staged file on the target.
const transferMode = "0644"

// SSHDialer opens SSH sessions authenticated with a private key.
//
// Usage:
//
//	signer, err := remote.LoadSigner("key.pem", remote.TerminalPrompt)
//	cb, err := remote.HostKeyCallback([]string{remote.DefaultKnownHostsPath()}, false)
//	d := &remote.SSHDialer{User: "ubuntu", Signer: signer, HostKeyCallback: cb}
//	sess, err := d.Dial(ctx, "54.1.2.3")
//	defer sess.Close()
type SSHDialer struct {
	// User is the remote login name.
	User string

	// Port is the remote SSH port. Zero means DefaultPort.
	Port int

	// Signer is the private key credential.
	Signer ssh.Signer

	// HostKeyCallback decides whether a server host key is trusted.
	// See HostKeyCallback for the known_hosts and accept-any policies.
	HostKeyCallback ssh.HostKeyCallback

	// Timeout bounds the TCP connect and SSH handshake.
	Timeout time.Duration
}

// Dial connects to target and completes the SSH handshake.
func (d *SSHDialer) Dial(ctx context.Context, target string) (Session, error) {
	if d.Signer == nil {
		return nil, errors.New("ssh: no private key configured")
	}
	if d.HostKeyCallback == nil {
		return nil, errors.New("ssh: no host key policy configured")
	}

	// Targets are bare addresses; JoinHostPort brackets IPv6 literals.
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(target, strconv.Itoa(port))

	config := &ssh.ClientConfig{
		User:            d.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(d.Signer)},
		HostKeyCallback: d.HostKeyCallback,
		Timeout:         d.Timeout,
	}

	// Dial through net.Dialer so that ctx cancels the TCP connect as well.
	netDialer := net.Dialer{Timeout: d.Timeout}
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "ssh: failed to connect to %s", addr)
	}

	// The handshake does not take a context; bound it with the context
	// deadline instead.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ssh: handshake with %s as %q failed", addr, d.User)
	}
	// Clear the handshake deadline; later sessions are bounded by
	// closeOnDone instead.
	_ = conn.SetDeadline(time.Time{})

	return &sshSession{client: ssh.NewClient(c, chans, reqs), addr: addr}, nil
}

// sshSession is one authenticated connection to a target.
type sshSession struct {
	client *ssh.Client

	// addr is "host:port", used in error messages.
	addr string
}

// Transfer uploads localPath to remotePath over SCP on the existing
// connection, so the host key and credential checks of Dial apply.
func (s *sshSession) Transfer(ctx context.Context, localPath, remotePath string) error {
	// A missing working file fails here, before a remote scp is started.
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(err, "scp: failed to open local file")
	}
	defer f.Close()

	// The scp client shares s.client; closing it would close the
	// connection, so it is left to Close.
	client, err := scp.NewClientBySSH(s.client)
	if err != nil {
		return errors.Wrapf(err, "scp: failed to open session on %s", s.addr)
	}

	if err := client.CopyFile(ctx, f, remotePath, transferMode); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrapf(err, "scp: failed to copy to %s:%s", s.addr, remotePath)
	}
	return nil
}

// Run executes command and returns its exit status.
func (s *sshSession) Run(ctx context.Context, command string) (int, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return -1, errors.Wrapf(err, "ssh: failed to open session on %s", s.addr)
	}
	defer sess.Close()

	// stderr is kept for the debug log and error messages; stdout is
	// discarded.
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	stop := closeOnDone(ctx, sess)
	defer stop()

	err = sess.Run(command)
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}

	// A command that ran and exited non-zero is not an error of Run; the
	// caller decides what the status means.
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		logrus.WithFields(logrus.Fields{
			"target": s.addr,
			"status": exitErr.ExitStatus(),
			"stderr": stderr.String(),
		}).Debug("remote command failed")
		return exitErr.ExitStatus(), nil
	default:
		return -1, withStderr(errors.Wrapf(err, "ssh: %q", command), &stderr)
	}
}

// Close closes the connection and any session still open on it.
func (s *sshSession) Close() error {
	return s.client.Close()
}

// closeOnDone closes sess when ctx is done, unblocking any pending I/O.
// The returned func stops the watcher.
func closeOnDone(ctx context.Context, sess *ssh.Session) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Signal(ssh.SIGKILL)
			_ = sess.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// withStderr adds the remote stderr output, if any, to err.
func withStderr(err error, stderr *bytes.Buffer) error {
	msg := bytes.TrimSpace(stderr.Bytes())
	if len(msg) == 0 {
		return err
	}
	return errors.Wrapf(err, "remote said %q", msg)
}
