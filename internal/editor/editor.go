// Package editor saves an edited page set back to disk, taking a backup
// before anything existing is replaced.
package editor

import (
	"context"
	"fmt"
	"path/filepath"

	"comic-tool/internal/archive"
	"comic-tool/internal/backup"
	"comic-tool/internal/pages"
	"comic-tool/internal/util"
)

// Saver writes page sets. A nil Backups disables backups.
type Saver struct {
	Builder *archive.Builder
	Backups *backup.Manager
	Logger  util.Logger
}

// Result describes a completed save.
type Result struct {
	Built  *archive.Built `json:"built"`
	Backup *backup.Record `json:"backup,omitempty"`
}

// SaveInPlace rewrites the archive the set was extracted from. The file
// keeps its name and its container kind: RAR content stays RAR when an
// encoder is available, ZIP content stays ZIP. The current bytes are backed
// up after the new archive is complete and before it replaces the original.
func (s *Saver) SaveInPlace(ctx context.Context, set *pages.Set) (*Result, error) {
	original := set.Source()
	kind := archive.KindForPath(original)
	if ref, err := archive.Identify(original); err == nil && ref.Kind != archive.KindUnknown {
		kind = ref.Kind
	}
	return s.save(ctx, set, original, kind)
}

// SaveAs writes the set to dest, choosing the container from dest's
// extension. An existing dest is backed up before being replaced.
func (s *Saver) SaveAs(ctx context.Context, set *pages.Set, dest string) (*Result, error) {
	if same(dest, set.Source()) {
		return s.SaveInPlace(ctx, set)
	}
	return s.save(ctx, set, dest, archive.KindForPath(dest))
}

func (s *Saver) save(ctx context.Context, set *pages.Set, dest string, kind archive.Kind) (*Result, error) {
	logger := util.OrNoop(s.Logger)
	res := &Result{}

	var opts []archive.BuildOption
	if s.Backups != nil && util.FileExists(dest) {
		opts = append(opts, archive.BeforeReplace(func() error {
			rec, err := s.Backups.Backup(ctx, dest)
			if err != nil {
				return err
			}
			res.Backup = rec
			return nil
		}))
	}

	built, err := s.Builder.Build(ctx, set, dest, kind, opts...)
	if err != nil {
		return nil, err
	}
	res.Built = built
	logger.Info(fmt.Sprintf("Saved %d of %d pages to %s", built.Pages, set.Len(), filepath.Base(dest)))
	return res, nil
}

func same(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
