package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultIdleMinutes = 30
)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Paths: Paths{
			ProcessHistory: filepath.Join(defaultDataDir(), "processes.json"),
		},
		Archive: Archive{
			RarDecoder:  "auto",
			Compression: "store",
			Parallelism: runtime.NumCPU(),
		},
		Backup: Backup{
			Enabled: true,
		},
		Server: Server{
			Listen:             defaultListen,
			SessionIdleMinutes: defaultIdleMinutes,
		},
		Logging: Logging{
			Format: "text",
			Level:  "info",
		},
		S3: S3{
			Prefix: "comic-tool",
		},
	}
}

func defaultDataDir() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "comic-tool")
	}
	return "~/.local/share/comic-tool"
}
