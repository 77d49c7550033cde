// Package config loads comic-tool settings: built-in defaults, then a TOML
// file, then COMIC_TOOL_* environment variables. Command-line flags are
// applied on top by the caller.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// SampleConfig returns a commented config file with the default values.
func SampleConfig() string {
	return sampleConfig
}

// EnvConfigPath names the variable that points at a config file.
const EnvConfigPath = "COMIC_TOOL_CONFIG"

type Paths struct {
	StagingDir     string `toml:"staging_dir"`
	BackupsDir     string `toml:"backups_dir"`
	ProcessHistory string `toml:"process_history"`
}

type Archive struct {
	RarDecoder  string `toml:"rar_decoder"`
	UnrarPath   string `toml:"unrar_path"`
	RarPath     string `toml:"rar_path"`
	Compression string `toml:"compression"`
	Parallelism int    `toml:"parallelism"`
}

type Backup struct {
	Enabled  bool `toml:"enabled"`
	KeepLast int  `toml:"keep_last"`
}

type Server struct {
	Listen             string `toml:"listen"`
	SessionSecret      string `toml:"session_secret"`
	SessionIdleMinutes int    `toml:"session_idle_minutes"`
}

type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// S3 configures the optional offsite mirror for new backups. An empty
// bucket disables it.
type S3 struct {
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	ForcePathStyle  bool   `toml:"force_path_style"`
}

// Config holds every setting.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Archive Archive `toml:"archive"`
	Backup  Backup  `toml:"backup"`
	Server  Server  `toml:"server"`
	Logging Logging `toml:"logging"`
	S3      S3      `toml:"s3"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/comic-tool/config.toml")
}

// Load builds the effective configuration. path may be empty, in which case
// $COMIC_TOOL_CONFIG and then the default location are tried; a missing
// file is not an error. It returns the resolved path and whether it
// existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if explicit {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %s is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// Encode renders c as TOML, with secrets masked.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	if redacted.Server.SessionSecret != "" {
		redacted.Server.SessionSecret = "********"
	}
	if redacted.S3.SecretAccessKey != "" {
		redacted.S3.SecretAccessKey = "********"
	}
	return toml.Marshal(redacted)
}

// EnsureDirectories creates the directories the configuration names.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.BackupsDir, filepath.Dir(c.Paths.ProcessHistory)} {
		if strings.TrimSpace(dir) == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
