package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/mkhosts/internal/model"
)

// ubuntuAppend is the default append command for the "ubuntu" staging path.
var ubuntuAppend = ExpandCommand(DefaultAppendCommand, "/home/ubuntu/hosts")

// fakeDialer records every call made through it. Per-target behaviour is
// configured with the failing maps.
type fakeDialer struct {
	calls        []string
	open         int
	maxOpen      int
	dialErr      map[string]error
	transferErr  map[string]error
	statusFor    map[string]map[string]int
	runErr       map[string]error
	delayDialFor map[string]time.Duration
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		dialErr:      map[string]error{},
		transferErr:  map[string]error{},
		statusFor:    map[string]map[string]int{},
		runErr:       map[string]error{},
		delayDialFor: map[string]time.Duration{},
	}
}

func (d *fakeDialer) Dial(ctx context.Context, target string) (Session, error) {
	d.calls = append(d.calls, "dial "+target)
	if delay, ok := d.delayDialFor[target]; ok {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := d.dialErr[target]; err != nil {
		return nil, err
	}
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	return &fakeSession{d: d, target: target}, nil
}

type fakeSession struct {
	d      *fakeDialer
	target string
}

func (s *fakeSession) Transfer(_ context.Context, local, remote string) error {
	s.d.calls = append(s.d.calls, fmt.Sprintf("transfer %s %s->%s", s.target, local, remote))
	return s.d.transferErr[s.target]
}

func (s *fakeSession) Run(_ context.Context, command string) (int, error) {
	s.d.calls = append(s.d.calls, fmt.Sprintf("run %s %s", s.target, command))
	if err := s.d.runErr[s.target]; err != nil {
		return -1, err
	}
	return s.d.statusFor[s.target][command], nil
}

func (s *fakeSession) Close() error {
	s.d.calls = append(s.d.calls, "close "+s.target)
	s.d.open--
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestDistributor(d Dialer) *Distributor {
	return &Distributor{
		Dialer:      d,
		Kind:        "ssh",
		StagingPath: "/home/ubuntu/hosts",
		Log:         quietLogger(),
	}
}

// TestDistribute_Success verifies the per-target call sequence and ordering.
func TestDistribute_Success(t *testing.T) {
	d := newFakeDialer()
	dist := newTestDistributor(d)

	results := dist.Distribute(context.Background(), []string{"54.1.1.1", "54.1.1.2"}, "/tmp/work")

	require.Len(t, results, 2)
	for i, target := range []string{"54.1.1.1", "54.1.1.2"} {
		assert.Equal(t, target, results[i].Target)
		assert.Equal(t, "ssh", results[i].Kind)
		assert.Equal(t, model.StageDone, results[i].Stage)
		assert.True(t, results[i].OK())
	}

	assert.Equal(t, []string{
		"dial 54.1.1.1",
		"transfer 54.1.1.1 /tmp/work->/home/ubuntu/hosts",
		"run 54.1.1.1 " + ubuntuAppend,
		"run 54.1.1.1 rm -f /home/ubuntu/hosts",
		"close 54.1.1.1",
		"dial 54.1.1.2",
		"transfer 54.1.1.2 /tmp/work->/home/ubuntu/hosts",
		"run 54.1.1.2 " + ubuntuAppend,
		"run 54.1.1.2 rm -f /home/ubuntu/hosts",
		"close 54.1.1.2",
	}, d.calls)
	assert.Equal(t, 1, d.maxOpen, "at most one session may be open at a time")
}

// TestDistribute_ContinuesPastFailures verifies that a failing target is
// recorded and the remaining targets are still processed.
func TestDistribute_ContinuesPastFailures(t *testing.T) {
	d := newFakeDialer()
	d.dialErr["a"] = errors.New("connection refused")
	d.transferErr["b"] = errors.New("scp: remote error: permission denied")
	d.statusFor["c"] = map[string]int{ubuntuAppend: 1}

	dist := newTestDistributor(d)
	results := dist.Distribute(context.Background(), []string{"a", "b", "c", "d"}, "/tmp/work")

	require.Len(t, results, 4)

	assert.Equal(t, model.StageConnect, results[0].Stage)
	assert.EqualError(t, results[0].Err, "connection refused")
	assert.Equal(t, -1, results[0].ExitStatus)

	assert.Equal(t, model.StageTransfer, results[1].Stage)
	assert.Error(t, results[1].Err)

	assert.Equal(t, model.StageAppend, results[2].Stage)
	assert.Equal(t, 1, results[2].ExitStatus)
	assert.Contains(t, results[2].Err.Error(), "exited with status 1")

	assert.True(t, results[3].OK())

	// The staged copy on "c" is still removed after the failed append.
	assert.Contains(t, d.calls, "run c rm -f /home/ubuntu/hosts")
	assert.Equal(t, 0, d.open, "every opened session must be closed")
}

// TestDistribute_CleanupFailure verifies that a failed cleanup is reported.
func TestDistribute_CleanupFailure(t *testing.T) {
	d := newFakeDialer()
	d.statusFor["a"] = map[string]int{"rm -f /home/ubuntu/hosts": 2}

	results := newTestDistributor(d).Distribute(context.Background(), []string{"a"}, "/tmp/work")

	require.Len(t, results, 1)
	assert.Equal(t, model.StageCleanup, results[0].Stage)
	assert.Equal(t, 2, results[0].ExitStatus)
	assert.False(t, results[0].OK())
}

// TestDistribute_CustomCommands verifies command templates.
func TestDistribute_CustomCommands(t *testing.T) {
	d := newFakeDialer()
	dist := newTestDistributor(d)
	dist.StagingPath = "/tmp/staged"
	dist.AppendCommand = "cat {staging} | sudo tee -a /etc/hosts"
	dist.CleanupCommand = "shred -u {staging}"

	results := dist.Distribute(context.Background(), []string{"a"}, "/tmp/work")
	require.True(t, results[0].OK())

	assert.Contains(t, d.calls, "run a cat /tmp/staged | sudo tee -a /etc/hosts")
	assert.Contains(t, d.calls, "run a shred -u /tmp/staged")
}

// TestDistribute_Timeout verifies that a per-target timeout fails only the
// slow target.
func TestDistribute_Timeout(t *testing.T) {
	d := newFakeDialer()
	d.delayDialFor["slow"] = time.Second

	dist := newTestDistributor(d)
	dist.Timeout = 20 * time.Millisecond

	results := dist.Distribute(context.Background(), []string{"slow", "fast"}, "/tmp/work")

	require.Len(t, results, 2)
	assert.Equal(t, model.StageConnect, results[0].Stage)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
	assert.True(t, results[1].OK())
}

// TestDistribute_Cancelled verifies that a cancelled run records every
// remaining target without dialing it.
func TestDistribute_Cancelled(t *testing.T) {
	d := newFakeDialer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := newTestDistributor(d).Distribute(ctx, []string{"a", "b"}, "/tmp/work")

	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Empty(t, d.calls)
}

// TestDistribute_NoTargets verifies that nothing happens without targets.
func TestDistribute_NoTargets(t *testing.T) {
	d := newFakeDialer()
	results := newTestDistributor(d).Distribute(context.Background(), nil, "/tmp/work")
	assert.Empty(t, results)
	assert.Empty(t, d.calls)
}

// TestStagingPath verifies the per-user default staging path.
func TestStagingPath(t *testing.T) {
	assert.Equal(t, "/home/ubuntu/hosts", StagingPath("ubuntu"))
	assert.Equal(t, "/home/core/hosts", StagingPath("core"))
	assert.Equal(t, "/root/hosts", StagingPath("root"))
}

// TestExpandCommand verifies placeholder substitution.
func TestExpandCommand(t *testing.T) {
	assert.Equal(t,
		"sudo sh -c '[ -s /etc/hosts ] && [ -n \"$(tail -c1 /etc/hosts)\" ] && echo >> /etc/hosts; cat /home/u/hosts >> /etc/hosts'",
		ExpandCommand(DefaultAppendCommand, "/home/u/hosts"))
	assert.Equal(t, "rm -f /x", ExpandCommand(DefaultCleanupCommand, "/x"))
	assert.Equal(t, "true", ExpandCommand("true", "/x"))
}
