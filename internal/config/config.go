// Package config defines the adapter's configuration surface. Parsing the
// config file itself is a CLI-front-end concern (spec section 1 lists
// "config file parsing" as an external collaborator); the core only
// depends on the resulting Config struct.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables the core components need. Zero values are
// replaced by Defaults() before use.
type Config struct {
	// CursorBinary is the name or path of the cursor-agent executable.
	CursorBinary string `yaml:"cursor_binary"`

	// SessionDir is where session JSON files are persisted.
	SessionDir string `yaml:"session_dir"`

	// MaxSessions bounds the number of live sessions the manager will hold.
	MaxSessions int `yaml:"max_sessions"`

	// SessionTimeout is how long a session may sit idle before the expiry
	// sweep reclaims it.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// HeartbeatInterval is read from the config file but not passed to the
	// prompt handler, whose heartbeat period is a fixed 12s constant.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// Retries is the number of additional attempts executeCommand makes
	// after the first failure.
	Retries int `yaml:"retries"`

	// Timeout bounds a single cursor-agent invocation.
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// AllowedCommands is handed to the Cursor provider as its list of
	// path-restriction glob patterns: a tool call whose "path" argument
	// matches any of them is rejected. It does not limit which cursor
	// subcommands the provider invokes; empty means no path is restricted.
	AllowedCommands []string `yaml:"allowed_commands"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		CursorBinary:      "cursor-agent",
		SessionDir:        filepath.Join(home, ".cursor-agent-acp", "sessions"),
		MaxSessions:       100,
		SessionTimeout:    24 * time.Hour,
		HeartbeatInterval: 12 * time.Second,
		Retries:           2,
		Timeout:           2 * time.Minute,
		LogLevel:          "info",
	}
}

// Load reads the user-level config, then the project-level config (which
// takes precedence), merging onto Defaults(). A missing file at either tier
// is not an error.
func Load() (*Config, error) {
	cfg := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".cursor-agent-acp", "config.yaml")
		if err := mergeFromFile(userPath, cfg); err != nil {
			return nil, err
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	projectPath := filepath.Join(wd, ".cursor-agent-acp", "config.yaml")
	if err := mergeFromFile(projectPath, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func mergeFromFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
