// Package errs defines the failure classes shared by the archive, backup and
// batch packages. Callers classify with errors.Is against the sentinels.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnreadablePath = errors.New("unreadable path")
	ErrCorruptArchive = errors.New("corrupt archive")
	ErrMissingTool    = errors.New("missing tool")
	ErrNoImagesFound  = errors.New("no images found")
	ErrEmptySelection = errors.New("empty selection")
	ErrIO             = errors.New("i/o failure")
	ErrNoBackupFound  = errors.New("no backup found")
	ErrPageNotFound   = errors.New("page not found")
)

// Wrap tags err with marker so that errors.Is(result, marker) holds, and
// records the operation and path that failed. Both marker and err stay
// reachable through errors.Is / errors.As.
func Wrap(marker error, operation, path string, err error) error {
	detail := buildDetail(operation, path)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Reason returns a short human-readable explanation suitable for per-file
// batch reporting.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnreadablePath):
		return "path unreadable"
	case errors.Is(err, ErrCorruptArchive):
		return "archive unreadable"
	case errors.Is(err, ErrMissingTool):
		return "extraction tool unavailable"
	case errors.Is(err, ErrNoImagesFound):
		return "no images found"
	case errors.Is(err, ErrEmptySelection):
		return "no pages selected"
	case errors.Is(err, ErrNoBackupFound):
		return "no backup found"
	case errors.Is(err, ErrPageNotFound):
		return "page not found"
	case errors.Is(err, ErrIO):
		return "disk/permission error"
	default:
		return err.Error()
	}
}

// Kind returns a stable machine-readable code for err, used in API
// responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnreadablePath):
		return "unreadable_path"
	case errors.Is(err, ErrCorruptArchive):
		return "corrupt_archive"
	case errors.Is(err, ErrMissingTool):
		return "missing_tool"
	case errors.Is(err, ErrNoImagesFound):
		return "no_images_found"
	case errors.Is(err, ErrEmptySelection):
		return "empty_selection"
	case errors.Is(err, ErrNoBackupFound):
		return "no_backup_found"
	case errors.Is(err, ErrPageNotFound):
		return "page_not_found"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "internal"
	}
}

func buildDetail(operation, path string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if path = strings.TrimSpace(path); path != "" {
		parts = append(parts, path)
	}
	if len(parts) == 0 {
		return "operation failed"
	}
	return strings.Join(parts, ": ")
}
