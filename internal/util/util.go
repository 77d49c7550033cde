package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ImageExtensions lists the page extensions recognised inside archives.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// Logger interface for handling logs
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

// SimpleLogger forwards every message to LogFunc, tagged with its level
// and prefixed with ProcessID when one is set.
type SimpleLogger struct {
	ProcessID string
	LogFunc   func(level, message string)
}

// NewSimpleLogger creates a new simple logger
func NewSimpleLogger(processID string, logFunc func(level, message string)) *SimpleLogger {
	return &SimpleLogger{
		ProcessID: processID,
		LogFunc:   logFunc,
	}
}

func (l *SimpleLogger) Debug(msg string)   { l.log("DEBUG", msg) }
func (l *SimpleLogger) Info(msg string)    { l.log("INFO", msg) }
func (l *SimpleLogger) Warning(msg string) { l.log("WARNING", msg) }
func (l *SimpleLogger) Error(msg string)   { l.log("ERROR", msg) }

func (l *SimpleLogger) log(level, msg string) {
	if l == nil || l.LogFunc == nil {
		return
	}
	if l.ProcessID != "" {
		msg = "[" + l.ProcessID + "] " + msg
	}
	l.LogFunc(level, msg)
}

// NoopLogger is a logger that does nothing
type NoopLogger struct{}

func (l *NoopLogger) Debug(msg string)   {}
func (l *NoopLogger) Info(msg string)    {}
func (l *NoopLogger) Warning(msg string) {}
func (l *NoopLogger) Error(msg string)   {}

// OrNoop returns logger, or a NoopLogger when logger is nil.
func OrNoop(logger Logger) Logger {
	if logger == nil {
		return &NoopLogger{}
	}
	return logger
}

// IsImageFile checks if a filename has an image extension
func IsImageFile(filename string) bool {
	return hasExt(filename, ImageExtensions)
}

// IsComicFile checks if a filename has a comic archive extension.
func IsComicFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".cbr" || ext == ".cbz"
}

func hasExt(filename string, exts []string) bool {
	lowerName := strings.ToLower(filename)
	for _, ext := range exts {
		if strings.HasSuffix(lowerName, ext) {
			return true
		}
	}
	return false
}

// NormalizeExt lower-cases ext and makes sure it starts with a dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ParseSelection parses a 1-based page selection such as "1 3 5" or
// "1-3,5,7-9" into a set of 0-based indices. Numbers outside 1..max are
// rejected, as are malformed tokens.
func ParseSelection(selection string, max int) (map[int]bool, error) {
	picked := map[int]bool{}

	parts := strings.ReplaceAll(strings.TrimSpace(selection), " ", ",")
	for _, part := range strings.Split(parts, ",") {
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid range %q", part)
			}

			start, err1 := strconv.Atoi(rangeParts[0])
			end, err2 := strconv.Atoi(rangeParts[1])
			if err1 != nil || err2 != nil || start > end {
				return nil, fmt.Errorf("invalid range %q", part)
			}
			if start < 1 || end > max {
				return nil, fmt.Errorf("range %q outside 1-%d", part, max)
			}

			for i := start; i <= end; i++ {
				picked[i-1] = true
			}
			continue
		}

		num, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		if num < 1 || num > max {
			return nil, fmt.Errorf("page %d outside 1-%d", num, max)
		}
		picked[num-1] = true
	}

	return picked, nil
}

// CopyFileAtomic copies src to dst through a temporary file in dst's
// directory, syncing it before renaming over dst. A failed copy leaves dst
// untouched and no temporary file behind.
func CopyFileAtomic(src, dst string) (err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, srcFile); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if info, statErr := srcFile.Stat(); statErr == nil {
		_ = os.Chmod(tmp.Name(), info.Mode().Perm())
	}
	return os.Rename(tmp.Name(), dst)
}

// DirExists checks if a directory exists
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// GetEnv retrieves an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvInt retrieves an environment variable as an integer or returns a default value
func GetEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvBool retrieves an environment variable as a boolean or returns a default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
