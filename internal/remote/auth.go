// auth.go loads SSH credentials and builds the host key policy.
//
// Host keys are verified against known_hosts by default. Accepting any key
// is available but must be requested explicitly.
package remote

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// PassphrasePrompt asks for the passphrase of an encrypted key file.
type PassphrasePrompt func(keyPath string) ([]byte, error)

// ErrNoTerminal is returned by TerminalPrompt when stdin is not a terminal.
var ErrNoTerminal = errors.New("stdin is not a terminal")

// LoadSigner reads a private key file (RSA, ECDSA or Ed25519, PEM or
// OpenSSH format). Encrypted keys are decrypted with the passphrase returned
// by prompt; a nil prompt makes encrypted keys an error.
func LoadSigner(keyPath string, prompt PassphrasePrompt) (ssh.Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read private key")
	}

	// Try without a passphrase first; only an encrypted key asks.
	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, errors.Wrapf(err, "unable to parse private key %s", keyPath)
	}
	if prompt == nil {
		return nil, fmt.Errorf("private key %s is encrypted and no passphrase prompt is available", keyPath)
	}

	passphrase, err := prompt(keyPath)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read passphrase for %s", keyPath)
	}
	signer, err = ssh.ParsePrivateKeyWithPassphrase(data, passphrase)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to decrypt private key %s", keyPath)
	}
	return signer, nil
}

// TerminalPrompt reads a passphrase from the controlling terminal without
// echo.
func TerminalPrompt(keyPath string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNoTerminal
	}
	fmt.Fprintf(os.Stderr, "Enter passphrase for %s: ", keyPath)
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return passphrase, err
}

// DefaultKnownHostsPath returns ~/.ssh/known_hosts, or an empty string if
// the home directory cannot be determined.
func DefaultKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

// HostKeyCallback builds the host key policy. By default server keys are
// verified against the given known_hosts files. With insecure set, any key
// is accepted.
func HostKeyCallback(knownHostsFiles []string, insecure bool) (ssh.HostKeyCallback, error) {
	if insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	// Empty entries come from unset configuration and are skipped. A
	// listed file that does not exist is an error from knownhosts.New.
	var files []string
	for _, f := range knownHostsFiles {
		if f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no known_hosts file configured; pass --known-hosts or --insecure-accept-host-key")
	}

	cb, err := knownhosts.New(files...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load known_hosts")
	}
	return cb, nil
}
