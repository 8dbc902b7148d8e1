// types.go defines the value types passed between the parser, the
// generator, the distributors and the report.
package model

import (
	"fmt"
	"strings"
	"unicode"
)

// AddressList holds the addresses extracted from an environment file,
// split into private and public addresses.
//
// Both slices preserve the order in which addresses were encountered.
// Every extracted address appears in exactly one of the two slices.
type AddressList struct {
	// Private holds addresses that matched the private prefix (default "10.0").
	Private []string `json:"private" yaml:"private"`

	// Public holds every other address.
	Public []string `json:"public" yaml:"public"`
}

// Len returns the total number of addresses across both lists.
func (l AddressList) Len() int {
	return len(l.Private) + len(l.Public)
}

// IsEmpty reports whether no address was extracted.
func (l AddressList) IsEmpty() bool {
	return l.Len() == 0
}

// HostEntry is a single "address hostname" mapping line.
//
// Entries are generated deterministically from an AddressList and are
// never modified after creation.
type HostEntry struct {
	// Address is the IP address text, used verbatim.
	Address string `json:"address" yaml:"address"`

	// Hostname is the name prefix followed by the sequence index
	// (e.g., "docker0", "docker1").
	Hostname string `json:"hostname" yaml:"hostname"`
}

// String renders the entry as a hosts file line without the trailing newline.
func (e HostEntry) String() string {
	return e.Address + " " + e.Hostname
}

// ValidatePrefix checks that a hostname prefix can be used to build host
// entries. The prefix is used verbatim, so the only requirements are that it
// is non-empty and contains no whitespace (which would corrupt the line format).
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("host name prefix must not be empty")
	}
	if strings.IndexFunc(prefix, unicode.IsSpace) >= 0 {
		return fmt.Errorf("invalid host name prefix %q: must not contain whitespace", prefix)
	}
	return nil
}

// Stage identifies the step of a distribution to a single target.
type Stage string

const (
	// StageConnect is the session setup (SSH dial or Docker lookup).
	StageConnect Stage = "connect"

	// StageTransfer is the copy of the working file to the staging path.
	StageTransfer Stage = "transfer"

	// StageAppend is the remote command that appends the staged file
	// to the target's hosts file.
	StageAppend Stage = "append"

	// StageCleanup is the removal of the staged copy.
	StageCleanup Stage = "cleanup"

	// StageDone marks a target that completed every step.
	StageDone Stage = "done"
)

// String returns the string representation of Stage.
func (s Stage) String() string {
	return string(s)
}

// HostResult records the outcome of distributing the working file to one
// target. Results are collected for every target so that a single failure
// does not hide the state of the others.
type HostResult struct {
	// Target is the remote address or container ID.
	Target string `json:"target" yaml:"target"`

	// Kind is the transport used for this target ("ssh" or "docker").
	Kind string `json:"kind" yaml:"kind"`

	// Stage is the last step attempted. StageDone on success.
	Stage Stage `json:"stage" yaml:"stage"`

	// ExitStatus is the exit status of the last remote command, or -1 if
	// no command ran.
	ExitStatus int `json:"exitStatus" yaml:"exitStatus"`

	// Err is the failure, nil on success.
	Err error `json:"-" yaml:"-"`
}

// OK reports whether the target completed every step.
func (r HostResult) OK() bool {
	return r.Err == nil && r.Stage == StageDone
}

// Error returns the failure message, or an empty string on success.
func (r HostResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RunReport summarises a single run of the tool for output.
type RunReport struct {
	// NamePrefix is the hostname prefix that was used.
	NamePrefix string `json:"namePrefix" yaml:"namePrefix"`

	// Addresses holds the parsed address lists.
	Addresses AddressList `json:"addresses" yaml:"addresses"`

	// Entries are the entries written to the working file (private list).
	Entries []HostEntry `json:"entries" yaml:"entries"`

	// LocalEntries are the entries appended to the local hosts file
	// (public list). Empty unless a local mode was requested.
	LocalEntries []HostEntry `json:"localEntries,omitempty" yaml:"localEntries,omitempty"`

	// Results holds one result per distribution target, in order.
	Results []HostResult `json:"results" yaml:"results"`
}

// Failed returns the results that did not complete.
func (r *RunReport) Failed() []HostResult {
	var failed []HostResult
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// ExitCode defines the CLI exit codes.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError covers usage errors, missing privilege, missing
	// credentials, unreadable environment files and local write failures.
	// All of these are detected before or instead of remote distribution.
	ExitGeneralError ExitCode = 1

	// ExitPartialFailure indicates that local work completed but one or
	// more distribution targets failed.
	ExitPartialFailure ExitCode = 2
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
