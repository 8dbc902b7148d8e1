package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddressList_Len verifies counting across both lists.
func TestAddressList_Len(t *testing.T) {
	assert.Equal(t, 0, AddressList{}.Len())
	assert.True(t, AddressList{}.IsEmpty())

	l := AddressList{
		Private: []string{"10.0.0.5", "10.0.0.6"},
		Public:  []string{"54.1.2.3"},
	}
	assert.Equal(t, 3, l.Len())
	assert.False(t, l.IsEmpty())
}

// TestHostEntry_String verifies the "<address> <hostname>" rendering.
func TestHostEntry_String(t *testing.T) {
	e := HostEntry{Address: "10.0.0.5", Hostname: "docker0"}
	assert.Equal(t, "10.0.0.5 docker0", e.String())
}

// TestValidatePrefix checks that only non-empty, whitespace-free prefixes pass.
func TestValidatePrefix(t *testing.T) {
	tests := []struct {
		prefix  string
		wantErr bool
	}{
		{"docker", false},
		{"ucp-node", false},
		{"a", false},
		{"", true},
		{"two words", true},
		{"tab\tbed", true},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			err := ValidatePrefix(tt.prefix)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestHostResult_OK verifies that only completed, error-free results are OK.
func TestHostResult_OK(t *testing.T) {
	assert.True(t, HostResult{Target: "a", Stage: StageDone}.OK())
	assert.False(t, HostResult{Target: "a", Stage: StageAppend}.OK())
	assert.False(t, HostResult{Target: "a", Stage: StageDone, Err: errors.New("x")}.OK())

	assert.Equal(t, "", HostResult{}.Error())
	assert.Equal(t, "boom", HostResult{Err: errors.New("boom")}.Error())
}

// TestRunReport_Failed verifies that Failed returns failures in target order.
func TestRunReport_Failed(t *testing.T) {
	r := &RunReport{
		Results: []HostResult{
			{Target: "a", Stage: StageDone},
			{Target: "b", Stage: StageConnect, Err: errors.New("refused")},
			{Target: "c", Stage: StageDone},
			{Target: "d", Stage: StageAppend, Err: errors.New("exit 1")},
		},
	}

	failed := r.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "b", failed[0].Target)
	assert.Equal(t, "d", failed[1].Target)
}

// TestCLIError_Error verifies the error message format with and without
// an underlying error.
func TestCLIError_Error(t *testing.T) {
	err := NewCLIError(ExitGeneralError, "something failed")
	assert.Equal(t, "something failed", err.Error())
	assert.Equal(t, ExitGeneralError, err.Code)

	underlying := errors.New("permission denied")
	wrapped := WrapCLIError(ExitGeneralError, "cannot append to /etc/hosts", underlying)
	assert.Equal(t, "cannot append to /etc/hosts: permission denied", wrapped.Error())
}

// TestCLIError_Unwrap verifies that errors.Is and errors.As work through CLIError.
func TestCLIError_Unwrap(t *testing.T) {
	underlying := errors.New("root cause")
	wrapped := WrapCLIError(ExitPartialFailure, "wrapper", underlying)

	assert.True(t, errors.Is(wrapped, underlying))

	var cliErr *CLIError
	require.True(t, errors.As(wrapped, &cliErr))
	assert.Equal(t, ExitPartialFailure, cliErr.Code)
}

// TestExitCodes verifies the numeric exit code values are stable.
func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitCode(0), ExitSuccess)
	assert.Equal(t, ExitCode(1), ExitGeneralError)
	assert.Equal(t, ExitCode(2), ExitPartialFailure)
}
