// Package processors runs long operations as tracked processes.
package processors

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"comic-tool/internal"
	"comic-tool/internal/batch"
	"comic-tool/internal/errs"
	"comic-tool/internal/util"
)

// Runner starts operations under the process manager. Background work is
// derived from the runner's base context, so cancelling it stops every
// running batch.
type Runner struct {
	Processes *internal.ProcessManager
	LogFunc   func(level, message string)

	base context.Context
	wg   sync.WaitGroup
}

// NewRunner creates a runner whose background work lives until ctx is done.
func NewRunner(ctx context.Context, pm *internal.ProcessManager, logFunc func(level, message string)) *Runner {
	return &Runner{Processes: pm, LogFunc: logFunc, base: ctx}
}

func (r *Runner) logger(processID string) util.Logger {
	return util.NewSimpleLogger(processID, r.LogFunc)
}

// StartBatch converts every candidate under root in the background. The
// returned process is a snapshot taken at start.
func (r *Runner) StartBatch(p batch.Pipeline, root string, opts batch.Options) internal.Process {
	base := r.base
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	proc := r.Processes.NewProcess(internal.ProcessTypeBatch, root, cancel)
	logger := r.logger(proc.ID)
	logger.Info(fmt.Sprintf("Starting batch conversion of %s", root))

	p.Logger = logger
	p.Progress = func(done, total int, item batch.Item) {
		r.Processes.UpdateProcess(proc.ID, func(pr *internal.Process) {
			pr.Update(done, total, fmt.Sprintf("%s %s", item.Status, filepath.Base(item.Path)))
		})
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		result, err := p.Run(ctx, root, opts)
		if err != nil {
			logger.Error(fmt.Sprintf("Batch failed: %v", err))
			r.Processes.FailProcess(proc.ID, errs.Reason(err))
			return
		}
		r.Processes.AnnotateProcess(proc.ID, map[string]any{
			"converted": result.Converted,
			"skipped":   result.Skipped,
			"failed":    result.Failed,
			"items":     result.Items,
		})

		summary := fmt.Sprintf("%d converted, %d skipped, %d failed", result.Converted, result.Skipped, result.Failed)
		switch {
		case ctx.Err() != nil:
			r.Processes.CancelProcess(proc.ID)
		case !result.OK():
			r.Processes.FailProcess(proc.ID, summary)
		default:
			r.Processes.CompleteProcess(proc.ID, summary)
		}
		logger.Info("Batch finished: " + summary)
	}()

	return proc
}

// Track runs fn in the foreground as a process of the given type. The
// process completes with fn's message or fails with the error's reason.
func (r *Runner) Track(ctx context.Context, typ internal.ProcessType, title string, fn func(ctx context.Context, logger util.Logger) (string, error)) (internal.Process, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	proc := r.Processes.NewProcess(typ, title, cancel)
	message, err := fn(ctx, r.logger(proc.ID))
	switch {
	case errors.Is(err, context.Canceled):
		r.Processes.CancelProcess(proc.ID)
	case err != nil:
		r.Processes.FailProcess(proc.ID, errs.Reason(err))
	default:
		r.Processes.CompleteProcess(proc.ID, message)
	}

	final, _ := r.Processes.GetProcess(proc.ID)
	return final, err
}

// Wait blocks until every background batch has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
