// Package config loads mkhosts settings.
//
// Settings come from, in increasing priority:
//  1. Default values
//  2. A configuration file: the --config path, or mkhosts.{yaml,yml,json,jsonc}
//     found in ".", "$HOME/.config/mkhosts" or "/etc/mkhosts"
//  3. Environment variables with the MKHOSTS_ prefix, "." replaced by "_"
//     (MKHOSTS_USER, MKHOSTS_REMOTE_APPEND_COMMAND, ...)
//
// Command-line flags are applied on top by the cli package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/mkhosts/internal/docker"
	"github.com/shinji-kodama/mkhosts/internal/envfile"
	"github.com/shinji-kodama/mkhosts/internal/hostsfile"
	"github.com/shinji-kodama/mkhosts/internal/remote"
)

// configName is the base name searched for when no file is given.
const configName = "mkhosts"

// searchPaths are the directories searched for configName, in order.
var searchPaths = []string{".", "$HOME/.config/mkhosts", "/etc/mkhosts"}

// Config is the root configuration structure.
//
// Example mkhosts.yaml:
//
//	user: core
//	port: 22
//	timeout: 45s
//	private_prefix: "10.0"
//	known_hosts: /home/me/.ssh/known_hosts
//	remote:
//	  staging_path: /tmp/mkhosts.hosts
//	  append_command: "cat {staging} | sudo tee -a /etc/hosts"
//	docker:
//	  append_command: "sh -c 'cat {staging} >> /etc/hosts'"
//
// The same keys work in JSON and JSONC files, and as MKHOSTS_ environment
// variables with "." replaced by "_" (MKHOSTS_REMOTE_STAGING_PATH).
type Config struct {
	// User is the remote login name.
	User string `mapstructure:"user"`

	// Port is the remote SSH port.
	Port int `mapstructure:"port"`

	// Timeout bounds the work for a single target. Zero disables it.
	Timeout time.Duration `mapstructure:"timeout"`

	// PrivatePrefix classifies addresses: those starting with it are private.
	PrivatePrefix string `mapstructure:"private_prefix"`

	// HostsFile is the local hosts file appended by --make-local.
	HostsFile string `mapstructure:"hosts_file"`

	// KnownHosts is the known_hosts file used to verify SSH servers.
	KnownHosts string `mapstructure:"known_hosts"`

	// Remote configures SSH targets (the public addresses).
	Remote TargetConfig `mapstructure:"remote"`

	// Docker configures container targets selected with --container-label.
	Docker TargetConfig `mapstructure:"docker"`

	// Source is the file the settings were read from, empty if none.
	Source string `mapstructure:"-"`
}

// TargetConfig holds the per-kind staging location and command templates.
// Commands may reference the staging path as {staging}.
type TargetConfig struct {
	// StagingPath is where the working file is copied. For SSH targets an
	// empty value means the login user's home directory.
	StagingPath string `mapstructure:"staging_path"`

	// AppendCommand appends the staged file to the target's hosts file.
	// It must not be empty.
	AppendCommand string `mapstructure:"append_command"`

	// CleanupCommand removes the staged file after the append.
	CleanupCommand string `mapstructure:"cleanup_command"`
}

// Load reads the configuration. An explicit path must exist; without one the
// search paths are tried and a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	// A private viper instance keeps tests and repeated loads independent
	// of the global one.
	v := viper.New()
	setDefaults(v)

	source, err := readConfig(v, cfgFile)
	if err != nil {
		return nil, err
	}

	// Environment variables override the file: MKHOSTS_USER,
	// MKHOSTS_REMOTE_APPEND_COMMAND and so on.
	v.SetEnvPrefix("MKHOSTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal decodes duration strings such as "30s" into Timeout.
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Source = source

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// readConfig loads the configuration file into v and returns its path.
func readConfig(v *viper.Viper, cfgFile string) (string, error) {
	if cfgFile != "" {
		if strings.EqualFold(filepath.Ext(cfgFile), ".jsonc") {
			return cfgFile, readJSONC(v, cfgFile)
		}
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("error reading config file: %w", err)
		}
		return v.ConfigFileUsed(), nil
	}

	// No explicit file: search mkhosts.{yaml,yml,json,...} in order.
	v.SetConfigName(configName)
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	err := v.ReadInConfig()
	if err == nil {
		return v.ConfigFileUsed(), nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) {
		return "", fmt.Errorf("error reading config file: %w", err)
	}

	// viper does not know the .jsonc extension.
	if path := findJSONC(); path != "" {
		return path, readJSONC(v, path)
	}
	return "", nil
}

// readJSONC strips comments and trailing commas, then decodes as JSON.
func readJSONC(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(jsonc.ToJSON(data))); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return nil
}

// findJSONC returns the first mkhosts.jsonc in the search paths, or an
// empty string.
func findJSONC() string {
	for _, dir := range searchPaths {
		path := filepath.Join(os.ExpandEnv(dir), configName+".jsonc")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// setDefaults registers every key so that environment overrides work even
// when no file mentions them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("user", "ubuntu")
	v.SetDefault("port", remote.DefaultPort)
	v.SetDefault("timeout", "30s")
	v.SetDefault("private_prefix", envfile.DefaultPrivatePrefix)
	v.SetDefault("hosts_file", hostsfile.SystemHostsPath())
	v.SetDefault("known_hosts", remote.DefaultKnownHostsPath())

	// An empty SSH staging path resolves to the login user's home at run
	// time, after a --user override.
	v.SetDefault("remote.staging_path", "")
	v.SetDefault("remote.append_command", remote.DefaultAppendCommand)
	v.SetDefault("remote.cleanup_command", remote.DefaultCleanupCommand)

	v.SetDefault("docker.staging_path", docker.DefaultStagingPath)
	v.SetDefault("docker.append_command", docker.DefaultAppendCommand)
	v.SetDefault("docker.cleanup_command", docker.DefaultCleanupCommand)
}

// validate checks the decoded configuration. Values that are only known
// after flag overrides are checked again by the command.
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.User) == "" {
		return fmt.Errorf("user is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s", cfg.Timeout)
	}
	if cfg.PrivatePrefix == "" || strings.IndexFunc(cfg.PrivatePrefix, unicode.IsSpace) >= 0 {
		return fmt.Errorf("invalid private_prefix %q", cfg.PrivatePrefix)
	}
	if cfg.HostsFile == "" {
		return fmt.Errorf("hosts_file is required")
	}
	if cfg.Remote.AppendCommand == "" || cfg.Docker.AppendCommand == "" {
		return fmt.Errorf("append_command must not be empty")
	}
	return nil
}

// RemoteStagingPath returns the SSH staging path for user: the configured
// path if set, otherwise a file in the user's home directory.
func (c *Config) RemoteStagingPath(user string) string {
	if c.Remote.StagingPath != "" {
		return c.Remote.StagingPath
	}
	return remote.StagingPath(user)
}
