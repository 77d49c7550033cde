package config

import "comic-tool/internal/util"

// applyEnv overlays COMIC_TOOL_* variables onto c.
func (c *Config) applyEnv() {
	c.Paths.StagingDir = util.GetEnv("COMIC_TOOL_STAGING_DIR", c.Paths.StagingDir)
	c.Paths.BackupsDir = util.GetEnv("COMIC_TOOL_BACKUPS_DIR", c.Paths.BackupsDir)
	c.Paths.ProcessHistory = util.GetEnv("COMIC_TOOL_PROCESS_HISTORY", c.Paths.ProcessHistory)

	c.Archive.RarDecoder = util.GetEnv("COMIC_TOOL_RAR_DECODER", c.Archive.RarDecoder)
	c.Archive.UnrarPath = util.GetEnv("COMIC_TOOL_UNRAR_PATH", c.Archive.UnrarPath)
	c.Archive.RarPath = util.GetEnv("COMIC_TOOL_RAR_PATH", c.Archive.RarPath)
	c.Archive.Compression = util.GetEnv("COMIC_TOOL_COMPRESSION", c.Archive.Compression)
	c.Archive.Parallelism = util.GetEnvInt("COMIC_TOOL_PARALLELISM", c.Archive.Parallelism)

	c.Backup.Enabled = util.GetEnvBool("COMIC_TOOL_BACKUPS", c.Backup.Enabled)
	c.Backup.KeepLast = util.GetEnvInt("COMIC_TOOL_BACKUP_KEEP_LAST", c.Backup.KeepLast)

	c.Server.Listen = util.GetEnv("COMIC_TOOL_LISTEN", c.Server.Listen)
	c.Server.SessionSecret = util.GetEnv("COMIC_TOOL_SESSION_SECRET", c.Server.SessionSecret)
	c.Server.SessionIdleMinutes = util.GetEnvInt("COMIC_TOOL_SESSION_IDLE_MINUTES", c.Server.SessionIdleMinutes)

	c.Logging.Format = util.GetEnv("COMIC_TOOL_LOG_FORMAT", c.Logging.Format)
	c.Logging.Level = util.GetEnv("COMIC_TOOL_LOG_LEVEL", c.Logging.Level)

	c.S3.Bucket = util.GetEnv("COMIC_TOOL_S3_BUCKET", c.S3.Bucket)
	c.S3.Prefix = util.GetEnv("COMIC_TOOL_S3_PREFIX", c.S3.Prefix)
	c.S3.Region = util.GetEnv("COMIC_TOOL_S3_REGION", c.S3.Region)
	c.S3.Endpoint = util.GetEnv("COMIC_TOOL_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKeyID = util.GetEnv("COMIC_TOOL_S3_ACCESS_KEY_ID", c.S3.AccessKeyID)
	c.S3.SecretAccessKey = util.GetEnv("COMIC_TOOL_S3_SECRET_ACCESS_KEY", c.S3.SecretAccessKey)
	c.S3.ForcePathStyle = util.GetEnvBool("COMIC_TOOL_S3_FORCE_PATH_STYLE", c.S3.ForcePathStyle)
}
