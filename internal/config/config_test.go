package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/mkhosts/internal/docker"
	"github.com/shinji-kodama/mkhosts/internal/remote"
)

// isolate points the search paths at an empty directory so a config file on
// the test machine cannot leak into the results.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig := searchPaths
	searchPaths = []string{dir}
	t.Cleanup(func() { searchPaths = orig })
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// TestLoadDefaults verifies the values used when no file or env is present.
func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ubuntu", cfg.User)
	assert.Equal(t, 22, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "10.0", cfg.PrivatePrefix)
	assert.NotEmpty(t, cfg.HostsFile)
	assert.Equal(t, remote.DefaultAppendCommand, cfg.Remote.AppendCommand)
	assert.Equal(t, remote.DefaultCleanupCommand, cfg.Remote.CleanupCommand)
	assert.Equal(t, docker.DefaultStagingPath, cfg.Docker.StagingPath)
	assert.Equal(t, docker.DefaultAppendCommand, cfg.Docker.AppendCommand)
	assert.Empty(t, cfg.Source)

	assert.Equal(t, "/home/ubuntu/hosts", cfg.RemoteStagingPath("ubuntu"))
	assert.Equal(t, "/root/hosts", cfg.RemoteStagingPath("root"))
}

// TestLoadFromFile covers the supported file formats.
func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "mkhosts.yaml",
			content: `user: core
port: 2222
timeout: 5s
private_prefix: "172.16."
remote:
  staging_path: /tmp/staged-hosts
`,
		},
		{
			name: "json",
			file: "mkhosts.json",
			content: `{"user": "core", "port": 2222, "timeout": "5s", "private_prefix": "172.16.",
 "remote": {"staging_path": "/tmp/staged-hosts"}}`,
		},
		{
			name: "jsonc",
			file: "mkhosts.jsonc",
			content: `{
  // login used on every host
  "user": "core",
  "port": 2222,
  "timeout": "5s",
  "private_prefix": "172.16.", /* VPC range */
  "remote": {
    "staging_path": "/tmp/staged-hosts",
  },
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := writeFile(t, dir, tt.file, tt.content)

			check := func(cfg *Config) {
				assert.Equal(t, "core", cfg.User)
				assert.Equal(t, 2222, cfg.Port)
				assert.Equal(t, 5*time.Second, cfg.Timeout)
				assert.Equal(t, "172.16.", cfg.PrivatePrefix)
				assert.Equal(t, "/tmp/staged-hosts", cfg.RemoteStagingPath("core"))
				// Untouched keys keep their defaults.
				assert.Equal(t, remote.DefaultCleanupCommand, cfg.Remote.CleanupCommand)
			}

			// Explicit path.
			cfg, err := Load(path)
			require.NoError(t, err)
			check(cfg)
			assert.Equal(t, path, cfg.Source)

			// Discovered in the search path.
			cfg, err = Load("")
			require.NoError(t, err)
			check(cfg)
			assert.Equal(t, tt.file, filepath.Base(cfg.Source))
		})
	}
}

// TestLoadEnvOverride verifies that MKHOSTS_ variables override the file.
func TestLoadEnvOverride(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, "mkhosts.yaml", "user: core\nport: 2222\n")

	t.Setenv("MKHOSTS_USER", "admin")
	t.Setenv("MKHOSTS_REMOTE_APPEND_COMMAND", "cat {staging} | sudo tee -a /etc/hosts")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.User)
	assert.Equal(t, 2222, cfg.Port)
	assert.Equal(t, "cat {staging} | sudo tee -a /etc/hosts", cfg.Remote.AppendCommand)
}

// TestLoadErrors covers unreadable files and invalid values.
func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		errMsg  string
	}{
		{name: "bad port", file: "c.yaml", content: "port: 70000\n", errMsg: "invalid port"},
		{name: "zero port", file: "c.yaml", content: "port: 0\n", errMsg: "invalid port"},
		{name: "empty user", file: "c.yaml", content: "user: \"\"\n", errMsg: "user is required"},
		{name: "negative timeout", file: "c.yaml", content: "timeout: -1s\n", errMsg: "invalid timeout"},
		{name: "empty prefix", file: "c.yaml", content: "private_prefix: \"\"\n", errMsg: "private_prefix"},
		{name: "prefix with space", file: "c.yaml", content: "private_prefix: \"10. 0\"\n", errMsg: "private_prefix"},
		{name: "malformed yaml", file: "c.yaml", content: "user: [unclosed\n", errMsg: "error reading config file"},
		{name: "malformed jsonc", file: "c.jsonc", content: "{\"user\": }", errMsg: "error parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := writeFile(t, dir, tt.file, tt.content)

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// TestLoadMissingExplicitFile verifies that a named file must exist.
func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "absent.jsonc"))
	assert.Error(t, err)
}
