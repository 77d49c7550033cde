package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"

	"comic-tool/internal/errs"
	"comic-tool/internal/pages"
	"comic-tool/internal/util"
)

// Compression selects the ZIP entry method.
type Compression string

const (
	// CompressionStore writes entries uncompressed. Page images are already
	// compressed, so this is the default.
	CompressionStore Compression = "store"
	// CompressionDeflate deflates every entry.
	CompressionDeflate Compression = "deflate"
)

// ParseCompression validates a compression name. Empty means store.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case "":
		return CompressionStore, nil
	case CompressionStore, CompressionDeflate:
		return c, nil
	}
	return "", fmt.Errorf("unknown compression %q (want store or deflate)", s)
}

// Builder writes the kept pages of a Set to a new archive.
type Builder struct {
	Tools       Tools
	Compression Compression
	Logger      util.Logger
}

// Built describes a finished archive.
type Built struct {
	Path  string `json:"path"`
	Kind  Kind   `json:"kind"`
	Pages int    `json:"pages"`
	Bytes int64  `json:"bytes"`
	// FellBack is set when RAR output was requested but ZIP bytes were
	// written instead.
	FellBack bool `json:"fell_back"`
}

// BuildOption customises a single Build call.
type BuildOption func(*buildOptions)

type buildOptions struct {
	beforeReplace func() error
}

// BeforeReplace registers fn to run once the new archive is complete and
// just before it replaces the destination. An error from fn aborts the build
// and leaves the destination untouched.
func BeforeReplace(fn func() error) BuildOption {
	return func(o *buildOptions) { o.beforeReplace = fn }
}

// Build writes the included pages of set to dest, renumbered page_001,
// page_002, ... in reading order. preferred chooses the container; RAR
// output needs an external encoder and silently degrades to ZIP content
// under the same file name when it is missing or fails.
//
// dest is replaced atomically: it either keeps its previous contents or
// holds the complete new archive.
func (b *Builder) Build(ctx context.Context, set *pages.Set, dest string, preferred Kind, opts ...BuildOption) (*Built, error) {
	logger := util.OrNoop(b.Logger)
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	included := slices.Collect(set.Included())
	if len(included) == 0 {
		return nil, errs.Wrap(errs.ErrEmptySelection, "build", dest, nil)
	}
	names := entryNames(included)

	if preferred == KindRar {
		if b.Tools.CanEncodeRar() {
			built, err := b.buildRar(ctx, included, names, dest, o)
			if err == nil {
				return built, nil
			}
			if !isToolFailure(err) {
				return nil, err
			}
			logger.Warning(fmt.Sprintf("RAR encoder failed for %s, writing ZIP content instead: %v", filepath.Base(dest), err))
		} else {
			logger.Warning(fmt.Sprintf("No RAR encoder available, writing ZIP content to %s", filepath.Base(dest)))
		}
		built, err := b.buildZip(ctx, included, names, dest, o)
		if err != nil {
			return nil, err
		}
		built.FellBack = true
		return built, nil
	}

	return b.buildZip(ctx, included, names, dest, o)
}

// entryNames returns page_<n><ext> with n zero-padded to at least three
// digits, wider when the page count needs it.
func entryNames(included []pages.Page) []string {
	width := max(3, len(strconv.Itoa(len(included))))
	names := make([]string, len(included))
	for i, p := range included {
		names[i] = fmt.Sprintf("page_%0*d%s", width, i+1, p.Ext())
	}
	return names
}

func (b *Builder) buildZip(ctx context.Context, included []pages.Page, names []string, dest string, o buildOptions) (built *Built, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "create temp archive", dest, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	method := zip.Store
	zw := zip.NewWriter(tmp)
	if b.Compression == CompressionDeflate {
		method = zip.Deflate
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, flate.DefaultCompression)
		})
	}

	modified := time.Now()
	for i, p := range included {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: names[i], Method: method, Modified: modified})
		if err != nil {
			return nil, errs.Wrap(errs.ErrIO, "write entry "+names[i], dest, err)
		}
		if err := copyVerified(w, p); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errs.Wrap(errs.ErrIO, "finish archive", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, errs.Wrap(errs.ErrIO, "sync archive", dest, err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "stat archive", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, errs.Wrap(errs.ErrIO, "close archive", dest, err)
	}

	if err := replace(tmpName, dest, o); err != nil {
		return nil, err
	}
	return &Built{Path: dest, Kind: KindZip, Pages: len(included), Bytes: info.Size()}, nil
}

func (b *Builder) buildRar(ctx context.Context, included []pages.Page, names []string, dest string, o buildOptions) (*Built, error) {
	work, err := os.MkdirTemp(filepath.Dir(dest), ".build-*")
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "create build dir", dest, err)
	}
	defer os.RemoveAll(work)

	for i, p := range included {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stageVerified(filepath.Join(work, names[i]), p); err != nil {
			return nil, err
		}
	}

	out := filepath.Join(work, "archive.rar")
	if err := util.CreateRar(ctx, b.Tools.Rar, out, work, names, b.Logger); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &toolFailure{err}
	}
	info, err := os.Stat(out)
	if err != nil {
		return nil, &toolFailure{err}
	}

	if err := replace(out, dest, o); err != nil {
		return nil, err
	}
	return &Built{Path: dest, Kind: KindRar, Pages: len(included), Bytes: info.Size()}, nil
}

type toolFailure struct{ err error }

func (t *toolFailure) Error() string { return t.err.Error() }
func (t *toolFailure) Unwrap() error { return t.err }

func isToolFailure(err error) bool {
	var tf *toolFailure
	return errors.As(err, &tf)
}

func replace(tmpName, dest string, o buildOptions) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(dest); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return errs.Wrap(errs.ErrIO, "chmod archive", dest, err)
	}
	if o.beforeReplace != nil {
		if err := o.beforeReplace(); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return errs.Wrap(errs.ErrIO, "replace archive", dest, err)
	}
	return nil
}

// copyVerified streams the staged bytes of p to w, failing if they no
// longer match the checksum recorded at extraction.
func copyVerified(w io.Writer, p pages.Page) error {
	src, err := os.Open(p.Path)
	if err != nil {
		return errs.Wrap(errs.ErrIO, "read page "+p.ID, p.Path, err)
	}
	defer src.Close()

	h := blake3.New()
	if _, err := io.Copy(io.MultiWriter(w, h), src); err != nil {
		return errs.Wrap(errs.ErrIO, "copy page "+p.ID, p.Path, err)
	}
	if p.Checksum != "" && hex.EncodeToString(h.Sum(nil)) != p.Checksum {
		return errs.Wrap(errs.ErrCorruptArchive, "verify page "+p.ID, p.Path, errors.New("checksum mismatch"))
	}
	return nil
}

func stageVerified(dst string, p pages.Page) error {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errs.Wrap(errs.ErrIO, "stage page "+p.ID, dst, err)
	}
	if err := copyVerified(out, p); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return errs.Wrap(errs.ErrIO, "stage page "+p.ID, dst, err)
	}
	return nil
}
