package config

import (
	"errors"
	"fmt"
	"strings"

	"comic-tool/internal/archive"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.BackupsDir, err = expandPath(c.Paths.BackupsDir); err != nil {
		return fmt.Errorf("paths.backups_dir: %w", err)
	}
	if c.Paths.ProcessHistory, err = expandPath(c.Paths.ProcessHistory); err != nil {
		return fmt.Errorf("paths.process_history: %w", err)
	}
	c.Archive.RarDecoder = strings.ToLower(strings.TrimSpace(c.Archive.RarDecoder))
	c.Archive.Compression = strings.ToLower(strings.TrimSpace(c.Archive.Compression))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if _, err := archive.ParseDecoderMode(c.Archive.RarDecoder); err != nil {
		return fmt.Errorf("archive.rar_decoder: %w", err)
	}
	if _, err := archive.ParseCompression(c.Archive.Compression); err != nil {
		return fmt.Errorf("archive.compression: %w", err)
	}
	if c.Archive.Parallelism < 0 {
		return errors.New("archive.parallelism must not be negative")
	}
	if c.Backup.KeepLast < 0 {
		return errors.New("backup.keep_last must not be negative")
	}
	if c.Server.SessionIdleMinutes < 0 {
		return errors.New("server.session_idle_minutes must not be negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return errors.New("s3.access_key_id and s3.secret_access_key must be set together")
	}
	return nil
}

// ToolOptions returns the archive tool discovery settings.
func (c *Config) ToolOptions() archive.ToolOptions {
	mode, _ := archive.ParseDecoderMode(c.Archive.RarDecoder)
	return archive.ToolOptions{
		Decoder:   mode,
		UnrarPath: c.Archive.UnrarPath,
		RarPath:   c.Archive.RarPath,
	}
}

// Compression returns the ZIP compression method.
func (c *Config) Compression() archive.Compression {
	comp, _ := archive.ParseCompression(c.Archive.Compression)
	return comp
}
