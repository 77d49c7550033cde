// Package backup keeps timestamped copies of archives before they are
// overwritten and restores them on request.
//
// Backups of /a/b/book.cbr live in /a/b/backups as
// book_backup_20240131_235959.cbr, with a _<seq> suffix when several are
// taken within the same second. Timestamps are UTC. With a configured
// directory each source directory gets its own subdirectory there, named
// after the directory plus a hash of its path, e.g. <dir>/b-1f2e3d4c.
package backup

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"comic-tool/internal/errs"
	"comic-tool/internal/natsort"
	"comic-tool/internal/util"
)

// DirName is the default backups directory created next to an original.
const DirName = "backups"

const timestampLayout = "20060102_150405"

// Record is one backup copy of an original archive.
type Record struct {
	Original  string    `json:"original"`
	Path      string    `json:"path"`
	Stem      string    `json:"stem"`
	Ext       string    `json:"ext"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int       `json:"seq"`
	Size      int64     `json:"size"`
}

// Name returns the backup's file name.
func (r Record) Name() string {
	return filepath.Base(r.Path)
}

// Mirror receives a copy of every new backup, e.g. an offsite bucket.
type Mirror interface {
	Upload(ctx context.Context, rec Record) error
}

// Manager creates, lists, prunes and restores backups.
type Manager struct {
	// Dir overrides the backups directory. Empty means a "backups"
	// directory beside each original. Originals from different directories
	// never share a subdirectory of Dir.
	Dir string
	// Clock returns the current time; nil means time.Now.
	Clock  func() time.Time
	Logger util.Logger
	Mirror Mirror
	// KeepLast, when positive, prunes each archive's backups to that many
	// after every new backup.
	KeepLast int

	locks keyedMutex
}

// NewManager returns a Manager storing backups in dir (empty for the
// per-directory default).
func NewManager(dir string, logger util.Logger) *Manager {
	return &Manager{Dir: dir, Logger: logger}
}

// DirFor returns the directory backups of original are kept in.
func (m *Manager) DirFor(original string) string {
	if abs, err := filepath.Abs(original); err == nil {
		original = abs
	}
	parent := filepath.Dir(original)
	if m.Dir == "" {
		return filepath.Join(parent, DirName)
	}
	return filepath.Join(m.Dir, scopeName(parent))
}

// scopeName names the subdirectory of an override directory holding the
// backups of originals in parent.
func scopeName(parent string) string {
	sum := blake3.Sum256([]byte(parent))
	base := filepath.Base(parent)
	if base == string(filepath.Separator) || base == "." {
		base = "root"
	}
	return base + "-" + hex.EncodeToString(sum[:4])
}

func (m *Manager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func splitName(original string) (stem, ext string) {
	base := filepath.Base(original)
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

// Backup copies original into the backups directory under a fresh
// timestamped name. The copy is written to a temporary file, synced and
// renamed, so a failed backup leaves no partial file. With KeepLast set,
// older backups beyond that count are pruned afterwards.
func (m *Manager) Backup(ctx context.Context, original string) (*Record, error) {
	rec, err := m.backup(ctx, original)
	if err != nil || m.KeepLast <= 0 {
		return rec, err
	}
	if _, err := m.Prune(rec.Original, m.KeepLast); err != nil {
		util.OrNoop(m.Logger).Warning(fmt.Sprintf("Pruning backups of %s failed: %v", filepath.Base(rec.Original), err))
	}
	return rec, nil
}

func (m *Manager) backup(ctx context.Context, original string) (*Record, error) {
	logger := util.OrNoop(m.Logger)
	original, err := filepath.Abs(original)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "backup", original, err)
	}

	unlock := m.locks.Lock(original)
	defer unlock()

	dir := m.DirFor(original)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrIO, "create backups dir", dir, err)
	}
	stem, ext := splitName(original)
	release, err := lockFile(ctx, dir, stem+ext)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "lock backups", dir, err)
	}
	defer release()

	ts := m.now().UTC().Truncate(time.Second)
	rec := Record{Original: original, Stem: stem, Ext: ext, Timestamp: ts}
	for seq := 0; ; seq++ {
		rec.Seq = seq
		rec.Path = filepath.Join(dir, backupName(stem, ext, ts, seq))
		if _, err := os.Lstat(rec.Path); os.IsNotExist(err) {
			break
		} else if err != nil {
			return nil, errs.Wrap(errs.ErrIO, "backup", rec.Path, err)
		}
	}

	size, err := copyNew(original, rec.Path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "backup", original, err)
	}
	rec.Size = size
	logger.Info(fmt.Sprintf("Backed up %s to %s", filepath.Base(original), rec.Path))

	if m.Mirror != nil {
		if err := m.Mirror.Upload(ctx, rec); err != nil {
			logger.Warning(fmt.Sprintf("Mirroring backup %s failed: %v", rec.Name(), err))
		}
	}
	return &rec, nil
}

func backupName(stem, ext string, ts time.Time, seq int) string {
	name := stem + "_backup_" + ts.Format(timestampLayout)
	if seq > 0 {
		name += "_" + strconv.Itoa(seq)
	}
	return name + ext
}

// copyNew copies src to a not-yet-existing dst via a temporary file in
// dst's directory.
func copyNew(src, dst string) (n int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if n, err = io.Copy(tmp, in); err != nil {
		return 0, err
	}
	if err = tmp.Sync(); err != nil {
		return 0, err
	}
	if err = tmp.Close(); err != nil {
		return 0, err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return 0, err
	}
	return n, os.Rename(tmp.Name(), dst)
}

// List returns the backups of original, newest first. A missing backups
// directory is an empty list.
func (m *Manager) List(original string) ([]Record, error) {
	original, err := filepath.Abs(original)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "list backups", original, err)
	}
	dir := m.DirFor(original)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "list backups", dir, err)
	}

	stem, ext := splitName(original)
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(stem) + `_backup_(\d{8}_\d{6})(?:_(\d+))?` + regexp.QuoteMeta(ext) + `$`)

	var records []Record
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		match := pattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		ts, err := time.ParseInLocation(timestampLayout, match[1], time.UTC)
		if err != nil {
			continue
		}
		seq := 0
		if match[2] != "" {
			seq, _ = strconv.Atoi(match[2])
		}
		rec := Record{
			Original:  original,
			Path:      filepath.Join(dir, e.Name()),
			Stem:      stem,
			Ext:       ext,
			Timestamp: ts,
			Seq:       seq,
		}
		if info, err := e.Info(); err == nil {
			rec.Size = info.Size()
		}
		records = append(records, rec)
	}

	slices.SortFunc(records, func(a, b Record) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		if b.Seq != a.Seq {
			return b.Seq - a.Seq
		}
		return natsort.Compare(b.Name(), a.Name())
	})
	return records, nil
}

// Latest returns the newest backup of original.
func (m *Manager) Latest(original string) (*Record, error) {
	records, err := m.List(original)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errs.Wrap(errs.ErrNoBackupFound, "latest backup", original, nil)
	}
	return &records[0], nil
}

// Revert replaces original with the bytes of its newest backup. Whatever
// original held before is discarded. The backup itself is kept.
func (m *Manager) Revert(ctx context.Context, original string) (*Record, error) {
	abs, err := filepath.Abs(original)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "revert", original, err)
	}
	unlock := m.locks.Lock(abs)
	defer unlock()

	rec, err := m.Latest(abs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := util.CopyFileAtomic(rec.Path, abs); err != nil {
		return nil, errs.Wrap(errs.ErrIO, "revert", abs, err)
	}
	util.OrNoop(m.Logger).Info(fmt.Sprintf("Restored %s from %s", filepath.Base(abs), rec.Name()))
	return rec, nil
}

// Prune deletes all but the newest keepLast backups of original and
// returns the deleted records. keepLast <= 0 keeps everything.
func (m *Manager) Prune(original string, keepLast int) ([]Record, error) {
	if keepLast <= 0 {
		return nil, nil
	}
	abs, err := filepath.Abs(original)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "prune", original, err)
	}
	unlock := m.locks.Lock(abs)
	defer unlock()

	records, err := m.List(abs)
	if err != nil {
		return nil, err
	}
	if len(records) <= keepLast {
		return nil, nil
	}

	logger := util.OrNoop(m.Logger)
	var deleted []Record
	for _, rec := range records[keepLast:] {
		if err := os.Remove(rec.Path); err != nil {
			logger.Warning(fmt.Sprintf("Failed to delete old backup %s: %v", rec.Name(), err))
			continue
		}
		deleted = append(deleted, rec)
	}
	return deleted, nil
}
