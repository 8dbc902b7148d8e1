package hostsfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/mkhosts/internal/model"
)

var testEntries = []model.HostEntry{
	{Address: "54.1.2.3", Hostname: "docker0"},
	{Address: "54.1.2.4", Hostname: "docker1"},
}

// TestSystemHostsPath verifies the platform default.
func TestSystemHostsPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		assert.Contains(t, SystemHostsPath(), `drivers\etc\hosts`)
		return
	}
	assert.Equal(t, "/etc/hosts", SystemHostsPath())
}

// TestWorkingFile_Lifecycle creates, writes, re-reads and removes a working file.
func TestWorkingFile_Lifecycle(t *testing.T) {
	path, err := NewWorkingFile("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(path) })

	require.NoError(t, WriteWorkingFile(path, testEntries))

	f, err := os.Open(path)
	require.NoError(t, err)
	parsed, err := ParseEntries(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, testEntries, parsed)

	require.NoError(t, RemoveWorkingFile(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing twice is fine.
	assert.NoError(t, RemoveWorkingFile(path))
}

// TestWriteWorkingFile_Replaces verifies that each write starts fresh rather
// than appending to leftovers from an earlier run.
func TestWriteWorkingFile_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmp_host_file")
	require.NoError(t, os.WriteFile(path, []byte("stale 1.1.1.1\n"), 0644))

	got, err := NewWorkingFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	require.NoError(t, WriteWorkingFile(path, testEntries[:1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "54.1.2.3 docker0\n", string(data))
}

// TestAppendEntries verifies that existing content is kept and entries are
// added at the end.
func TestAppendEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 localhost\n"), 0644))

	require.NoError(t, AppendEntries(path, testEntries))
	require.NoError(t, AppendEntries(path, testEntries[1:]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"127.0.0.1 localhost\n54.1.2.3 docker0\n54.1.2.4 docker1\n54.1.2.4 docker1\n",
		string(data))
}

// TestAppendEntries_NoTrailingNewline verifies that appended entries never
// join the last existing line.
func TestAppendEntries_NoTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 localhost"), 0644))

	require.NoError(t, AppendEntries(path, testEntries[:1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n54.1.2.3 docker0\n", string(data))
}

// TestAppendEntries_Empty verifies that nothing is written for no entries.
func TestAppendEntries_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, AppendEntries(path, nil))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no file should be created for zero entries")
}

// TestAppendEntries_PermissionDenied verifies that an unwritable hosts file
// surfaces a permission error.
func TestAppendEntries_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 localhost\n"), 0444))

	err := AppendEntries(path, testEntries)
	require.Error(t, err)
	assert.True(t, os.IsPermission(err))
}

// TestAlreadyMapped verifies the lookup of hostnames already present in a
// hosts file.
func TestAlreadyMapped(t *testing.T) {
	dir := t.TempDir()

	t.Run("some mapped", func(t *testing.T) {
		path := filepath.Join(dir, "hosts")
		content := "127.0.0.1 localhost\n54.9.9.9 docker1 # old\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		got, err := AlreadyMapped(path, testEntries)
		require.NoError(t, err)
		assert.Equal(t, []model.HostEntry{{Address: "54.1.2.4", Hostname: "docker1"}}, got)
	})

	t.Run("missing file", func(t *testing.T) {
		got, err := AlreadyMapped(filepath.Join(dir, "absent"), testEntries)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unparsable file", func(t *testing.T) {
		path := filepath.Join(dir, "broken")
		require.NoError(t, os.WriteFile(path, []byte("10.0.0.1\n"), 0644))

		_, err := AlreadyMapped(path, testEntries)
		assert.Error(t, err)
	})
}
