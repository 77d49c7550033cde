package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/nwaples/rardecode"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"comic-tool/internal/errs"
	"comic-tool/internal/natsort"
	"comic-tool/internal/pages"
	"comic-tool/internal/util"
)

// Extractor unpacks the page images of an archive into a private staging
// directory.
type Extractor struct {
	// StagingRoot is the parent of per-extraction staging directories.
	// Empty means os.TempDir().
	StagingRoot string
	Tools       Tools
	// Parallelism bounds concurrent ZIP entry decoding. Zero means
	// GOMAXPROCS.
	Parallelism int
	Logger      util.Logger
}

// ExtractPath identifies path and extracts it.
func (e *Extractor) ExtractPath(ctx context.Context, path string) (*pages.Set, error) {
	ref, err := Identify(path)
	if err != nil {
		return nil, err
	}
	return e.Extract(ctx, ref)
}

// Extract stages every image entry of ref and returns them as a Set in
// natural order of their in-archive names. On success the caller owns the
// Set and must Close it; on failure nothing is left on disk.
func (e *Extractor) Extract(ctx context.Context, ref Ref) (set *pages.Set, err error) {
	logger := util.OrNoop(e.Logger)

	if e.StagingRoot != "" {
		if err := os.MkdirAll(e.StagingRoot, 0o755); err != nil {
			return nil, errs.Wrap(errs.ErrIO, "create staging root", e.StagingRoot, err)
		}
	}
	stage, err := os.MkdirTemp(e.StagingRoot, "extract-*")
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "create staging dir", e.StagingRoot, err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(stage)
		}
	}()

	var entries []pages.Page
	switch ref.Kind {
	case KindZip:
		entries, err = e.extractZip(ctx, ref.Path, stage)
	case KindRar:
		entries, err = e.extractRar(ctx, ref.Path, stage)
	case KindUnknown:
		err = errs.Wrap(errs.ErrCorruptArchive, "extract", ref.Path, errors.New("unrecognized container"))
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errs.Wrap(errs.ErrNoImagesFound, "extract", ref.Path, nil)
	}

	slices.SortStableFunc(entries, func(a, b pages.Page) int {
		return natsort.Compare(a.Name, b.Name)
	})
	logger.Debug(fmt.Sprintf("Extracted %d pages from %s (%s)", len(entries), filepath.Base(ref.Path), ref.Kind))
	return pages.New(ref.Path, stage, entries), nil
}

// WithPages extracts path, runs fn with the resulting Set and always
// releases the staging directory afterwards.
func WithPages(ctx context.Context, e *Extractor, path string, fn func(*pages.Set) error) error {
	set, err := e.ExtractPath(ctx, path)
	if err != nil {
		return err
	}
	defer set.Close()
	return fn(set)
}

func (e *Extractor) parallelism() int {
	if e.Parallelism > 0 {
		return e.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

// wantEntry reports whether an in-archive name is a page image.
func wantEntry(name string) bool {
	name = filepath.ToSlash(name)
	if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._") {
		return false
	}
	return util.IsImageFile(name)
}

func (e *Extractor) extractZip(ctx context.Context, archivePath, stage string) ([]pages.Page, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, classifyOpen("open zip", archivePath, err)
	}
	defer zr.Close()

	var files []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !wantEntry(f.Name) {
			continue
		}
		files = append(files, f)
	}

	entries := make([]pages.Page, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism())
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rc, err := f.Open()
			if err != nil {
				return errs.Wrap(errs.ErrCorruptArchive, "open entry "+f.Name, archivePath, err)
			}
			defer rc.Close()

			dst := filepath.Join(stage, stagedName(i, f.Name))
			size, sum, err := stageEntry(rc, dst)
			if err != nil {
				return classifyCopy("extract entry "+f.Name, archivePath, err)
			}
			if size != int64(f.UncompressedSize64) {
				return errs.Wrap(errs.ErrCorruptArchive, "extract entry "+f.Name, archivePath,
					fmt.Errorf("size %d does not match header %d", size, f.UncompressedSize64))
			}
			entries[i] = pages.Page{Name: f.Name, Path: dst, Size: size, Checksum: sum}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (e *Extractor) extractRar(ctx context.Context, archivePath, stage string) ([]pages.Page, error) {
	switch e.Tools.rarReader() {
	case rarReaderUnrar:
		return e.extractRarTool(ctx, archivePath, stage)
	case rarReaderBuiltin:
		return e.extractRarBuiltin(ctx, archivePath, stage)
	default:
		return nil, errs.Wrap(errs.ErrMissingTool, "extract rar", archivePath,
			fmt.Errorf("no rar decoder available (mode %q)", e.Tools.Decoder))
	}
}

func (e *Extractor) extractRarBuiltin(ctx context.Context, archivePath, stage string) ([]pages.Page, error) {
	rr, err := rardecode.OpenReader(archivePath, "")
	if err != nil {
		return nil, classifyOpen("open rar", archivePath, err)
	}
	defer rr.Close()

	var entries []pages.Page
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.ErrCorruptArchive, "read rar", archivePath, err)
		}
		if header.IsDir || !wantEntry(header.Name) {
			continue
		}

		dst := filepath.Join(stage, stagedName(len(entries), header.Name))
		size, sum, err := stageEntry(rr, dst)
		if err != nil {
			return nil, classifyCopy("extract entry "+header.Name, archivePath, err)
		}
		if !header.UnKnownSize && size != header.UnPackedSize {
			return nil, errs.Wrap(errs.ErrCorruptArchive, "extract entry "+header.Name, archivePath,
				fmt.Errorf("size %d does not match header %d", size, header.UnPackedSize))
		}
		entries = append(entries, pages.Page{Name: filepath.ToSlash(header.Name), Path: dst, Size: size, Checksum: sum})
	}
	return entries, nil
}

func (e *Extractor) extractRarTool(ctx context.Context, archivePath, stage string) ([]pages.Page, error) {
	raw := filepath.Join(stage, "raw")
	if err := os.Mkdir(raw, 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrIO, "create staging dir", raw, err)
	}
	defer os.RemoveAll(raw)

	if err := util.ExtractRar(ctx, e.Tools.Unrar, archivePath, raw, e.Logger); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var toolErr *util.ToolError
		if errors.As(err, &toolErr) && errors.As(toolErr.Err, new(*exec.ExitError)) {
			return nil, errs.Wrap(errs.ErrCorruptArchive, "unrar", archivePath, err)
		}
		return nil, errs.Wrap(errs.ErrMissingTool, "unrar", archivePath, err)
	}

	var entries []pages.Page
	err := filepath.WalkDir(raw, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(raw, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !wantEntry(name) {
			return nil
		}

		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		dst := filepath.Join(stage, stagedName(len(entries), name))
		size, sum, err := stageEntry(src, dst)
		if err != nil {
			return err
		}
		entries = append(entries, pages.Page{Name: name, Path: dst, Size: size, Checksum: sum})
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "collect unrar output", archivePath, err)
	}
	return entries, nil
}

// stagedName is the on-disk name of entry i. Entry names are never used as
// paths, so traversal sequences in them are harmless.
func stagedName(i int, entryName string) string {
	return strconv.Itoa(i) + strings.ToLower(path.Ext(filepath.ToSlash(entryName)))
}

type writeError struct{ err error }

func (w writeError) Error() string { return w.err.Error() }
func (w writeError) Unwrap() error { return w.err }

type trackedWriter struct{ w io.Writer }

func (t trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		err = writeError{err}
	}
	return n, err
}

// stageEntry copies r into a new file at dst, returning the byte count and
// hex BLAKE3-256 of what was written. Write failures are wrapped in
// writeError so callers can tell them from decode failures.
func stageEntry(r io.Reader, dst string) (int64, string, error) {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, "", writeError{err}
	}
	h := blake3.New()
	n, err := io.Copy(io.MultiWriter(trackedWriter{out}, h), r)
	if err != nil {
		out.Close()
		return n, "", err
	}
	if err := out.Close(); err != nil {
		return n, "", writeError{err}
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func classifyOpen(op, archivePath string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return errs.Wrap(errs.ErrUnreadablePath, op, archivePath, err)
	}
	return errs.Wrap(errs.ErrCorruptArchive, op, archivePath, err)
}

func classifyCopy(op, archivePath string, err error) error {
	var we writeError
	if errors.As(err, &we) {
		return errs.Wrap(errs.ErrIO, op, archivePath, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errs.Wrap(errs.ErrCorruptArchive, op, archivePath, err)
}
