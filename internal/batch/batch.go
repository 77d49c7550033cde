// Package batch converts every matching archive under a directory,
// recording a per-file outcome instead of stopping at the first failure.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"comic-tool/internal/archive"
	"comic-tool/internal/backup"
	"comic-tool/internal/errs"
	"comic-tool/internal/natsort"
	"comic-tool/internal/util"
)

// Status is the outcome of one candidate file.
type Status string

const (
	StatusConverted Status = "converted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Skip reasons.
const (
	ReasonExists    = "exists"
	ReasonCancelled = "cancelled"
)

// Item is the outcome for one source archive.
type Item struct {
	Path     string   `json:"path"`
	Dest     string   `json:"dest"`
	Status   Status   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
	Backups  []string `json:"backups,omitempty"`
	Pages    int      `json:"pages,omitempty"`
	FellBack bool     `json:"fell_back,omitempty"`
	Err      error    `json:"-"`
}

// Result collects the outcomes of a batch run in processing order.
type Result struct {
	Root      string `json:"root"`
	Items     []Item `json:"items"`
	Converted int    `json:"converted"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// OK reports whether no file failed.
func (r *Result) OK() bool {
	return r.Failed == 0
}

// AllConverted reports whether every candidate was converted. A skipped
// file, whether it already existed or the run was cancelled, counts against it.
func (r *Result) AllConverted() bool {
	return r.Converted == len(r.Items)
}

func (r *Result) add(item Item) {
	r.Items = append(r.Items, item)
	switch item.Status {
	case StatusConverted:
		r.Converted++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}

// Options controls a batch run.
type Options struct {
	Recursive     bool
	CreateBackups bool
	Overwrite     bool
	// SourceExt selects candidates by extension, case-insensitively.
	// Default ".cbr".
	SourceExt string
	// TargetExt replaces the source extension to form the destination.
	// Default ".cbz".
	TargetExt string
	// TargetKind is the container to write. KindUnknown derives it from
	// TargetExt.
	TargetKind archive.Kind
}

func (o Options) withDefaults() Options {
	o.SourceExt = util.NormalizeExt(o.SourceExt)
	if o.SourceExt == "" {
		o.SourceExt = ".cbr"
	}
	o.TargetExt = util.NormalizeExt(o.TargetExt)
	if o.TargetExt == "" {
		o.TargetExt = ".cbz"
	}
	if o.TargetKind == archive.KindUnknown {
		o.TargetKind = archive.KindForPath(o.TargetExt)
	}
	return o
}

// Pipeline runs extract, filter-all and build over many files.
type Pipeline struct {
	Extractor *archive.Extractor
	Builder   *archive.Builder
	Backups   *backup.Manager
	Logger    util.Logger
	// Progress, when set, is called after every candidate.
	Progress func(done, total int, item Item)
}

// Run converts every candidate under root in natural order. It only fails
// outright when root is not a readable directory; per-file problems are
// reported in the Result. Cancelling ctx stops before the next file and
// marks the rest skipped.
func (p *Pipeline) Run(ctx context.Context, root string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	logger := util.OrNoop(p.Logger)

	info, err := os.Stat(root)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnreadablePath, "batch", root, err)
	}
	if !info.IsDir() {
		return nil, errs.Wrap(errs.ErrUnreadablePath, "batch", root, errors.New("not a directory"))
	}

	candidates, err := p.Candidates(root, opts)
	if err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("Found %d %s files to convert in %s", len(candidates), opts.SourceExt, root))

	result := &Result{Root: root}
	for i, path := range candidates {
		var item Item
		if ctx.Err() != nil {
			item = Item{Path: path, Dest: destFor(path, opts), Status: StatusSkipped, Reason: ReasonCancelled}
		} else {
			item = p.convert(ctx, path, opts)
		}
		result.add(item)
		p.report(i+1, len(candidates), item)
	}
	return result, nil
}

// ConvertFile converts a single archive with the same rules Run applies to
// each candidate.
func (p *Pipeline) ConvertFile(ctx context.Context, path string, opts Options) Item {
	opts = opts.withDefaults()
	if strings.ToLower(filepath.Ext(path)) != opts.SourceExt {
		return Item{
			Path:   path,
			Dest:   destFor(path, opts),
			Status: StatusFailed,
			Reason: fmt.Sprintf("not a %s file", opts.SourceExt),
			Err:    errs.Wrap(errs.ErrUnreadablePath, "convert", path, nil),
		}
	}
	item := p.convert(ctx, path, opts)
	p.report(1, 1, item)
	return item
}

// Candidates lists the files Run would process under root, in natural
// order. Directories named "backups" are never entered.
func (p *Pipeline) Candidates(root string, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	logger := util.OrNoop(p.Logger)
	skipDir := ""
	if p.Backups != nil && p.Backups.Dir != "" {
		skipDir = filepath.Clean(p.Backups.Dir)
	}

	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warning(fmt.Sprintf("Skipping unreadable %s: %v", path, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !opts.Recursive || d.Name() == backup.DirName || filepath.Clean(path) == skipDir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && strings.ToLower(filepath.Ext(d.Name())) == opts.SourceExt {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnreadablePath, "batch", root, err)
	}
	natsort.Sort(found)
	return found, nil
}

func destFor(path string, opts Options) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + opts.TargetExt
}

func (p *Pipeline) report(done, total int, item Item) {
	logger := util.OrNoop(p.Logger)
	switch item.Status {
	case StatusConverted:
		logger.Info(fmt.Sprintf("Converted %s -> %s", item.Path, item.Dest))
	case StatusSkipped:
		logger.Info(fmt.Sprintf("Skipped %s (%s)", item.Path, item.Reason))
	case StatusFailed:
		logger.Error(fmt.Sprintf("Failed to convert %s: %s", item.Path, item.Reason))
	}
	if p.Progress != nil {
		p.Progress(done, total, item)
	}
}

func (p *Pipeline) convert(ctx context.Context, path string, opts Options) Item {
	item := Item{Path: path, Dest: destFor(path, opts)}
	fail := func(err error) Item {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			item.Status = StatusSkipped
			item.Reason = ReasonCancelled
			return item
		}
		item.Status = StatusFailed
		item.Reason = errs.Reason(err)
		item.Err = err
		return item
	}

	sameFile := filepath.Clean(item.Dest) == filepath.Clean(path)
	destExists := util.FileExists(item.Dest)
	if destExists && !opts.Overwrite {
		item.Status = StatusSkipped
		item.Reason = ReasonExists
		return item
	}

	if opts.CreateBackups && p.Backups != nil {
		rec, err := p.Backups.Backup(ctx, path)
		if err != nil {
			return fail(err)
		}
		item.Backups = append(item.Backups, rec.Path)
	}

	set, err := p.Extractor.ExtractPath(ctx, path)
	if err != nil {
		return fail(err)
	}
	defer set.Close()

	var buildOpts []archive.BuildOption
	if opts.CreateBackups && p.Backups != nil && destExists && !sameFile {
		buildOpts = append(buildOpts, archive.BeforeReplace(func() error {
			rec, err := p.Backups.Backup(ctx, item.Dest)
			if err != nil {
				return err
			}
			item.Backups = append(item.Backups, rec.Path)
			return nil
		}))
	}

	built, err := p.Builder.Build(ctx, set, item.Dest, opts.TargetKind, buildOpts...)
	if err != nil {
		return fail(err)
	}
	item.Status = StatusConverted
	item.Pages = built.Pages
	item.FellBack = built.FellBack
	return item
}
