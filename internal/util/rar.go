package util

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ToolError is returned when an external archiver exits unsuccessfully.
// Output holds the last lines the tool wrote to stderr.
type ToolError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s failed: %v", filepath.Base(e.Tool), e.Err)
	}
	return fmt.Sprintf("%s failed: %v: %s", filepath.Base(e.Tool), e.Err, e.Output)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExtractRar runs the unrar binary at tool to extract archive into destDir.
//
// Flags:
//
//	x    extract with full paths
//	-y   yes to all queries
//	-o+  overwrite existing files
//	-idq quiet mode, errors only
func ExtractRar(ctx context.Context, tool, archive, destDir string, logger Logger) error {
	logger = OrNoop(logger)
	logger.Debug(fmt.Sprintf("Extracting %s with %s", filepath.Base(archive), tool))

	cmd := exec.CommandContext(ctx, tool, "x", "-y", "-o+", "-idq", archive, destDir+string(filepath.Separator))
	cmd.Dir = destDir
	return runTool(cmd, tool, logger)
}

// CreateRar runs the rar (or winrar) binary at tool to pack files, given
// relative to workDir, into archive. -ep1 strips the base directory so
// entries land at the archive root.
func CreateRar(ctx context.Context, tool, archive, workDir string, files []string, logger Logger) error {
	logger = OrNoop(logger)
	logger.Debug(fmt.Sprintf("Creating %s with %s (%d files)", filepath.Base(archive), tool, len(files)))

	args := []string{"a", "-ep1", "-y", "-idq", archive}
	for _, f := range files {
		args = append(args, filepath.Join(workDir, f))
	}
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Dir = workDir
	return runTool(cmd, tool, logger)
}

func runTool(cmd *exec.Cmd, tool string, logger Logger) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return &ToolError{Tool: tool, Err: err}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		tail []string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(io.Discard, stdout)
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			logger.Warning(fmt.Sprintf("%s: %s", filepath.Base(tool), line))
			mu.Lock()
			tail = append(tail, line)
			if len(tail) > 5 {
				tail = tail[1:]
			}
			mu.Unlock()
		}
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return &ToolError{Tool: tool, Output: strings.Join(tail, "; "), Err: err}
	}
	return nil
}
