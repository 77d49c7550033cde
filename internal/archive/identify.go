package archive

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zip"

	"comic-tool/internal/errs"
)

var (
	zipLocalHeader = []byte("PK\x03\x04")
	zipEmpty       = []byte("PK\x05\x06")
	zipSpanned     = []byte("PK\x07\x08")
	rarV4          = []byte("Rar!\x1a\x07\x00")
	rarV5          = []byte("Rar!\x1a\x07\x01\x00")
)

// Ref is an archive on disk together with its detected container kind.
// The file extension plays no part in Kind.
type Ref struct {
	Path    string    `json:"path"`
	Kind    Kind      `json:"kind"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Stale reports whether the file at r.Path is gone or has changed size or
// modification time since it was identified.
func (r Ref) Stale() bool {
	info, err := os.Stat(r.Path)
	if err != nil {
		return true
	}
	return info.Size() != r.Size || !info.ModTime().Equal(r.ModTime)
}

// Identify inspects the leading bytes of path to decide its container kind.
// A file with no known signature that still opens as a ZIP (data prepended
// before a valid central directory) is reported as ZIP. Anything else is
// KindUnknown with a nil error; only a missing, non-regular or unreadable
// path is an error.
func Identify(path string) (Ref, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Ref{}, errs.Wrap(errs.ErrUnreadablePath, "identify", path, err)
	}
	if !info.Mode().IsRegular() {
		return Ref{}, errs.Wrap(errs.ErrUnreadablePath, "identify", path, nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return Ref{}, errs.Wrap(errs.ErrUnreadablePath, "identify", path, err)
	}
	defer f.Close()

	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Ref{}, errs.Wrap(errs.ErrUnreadablePath, "identify", path, err)
	}

	ref := Ref{Path: path, Size: info.Size(), ModTime: info.ModTime()}
	ref.Kind = sniff(head[:n])
	if ref.Kind == KindUnknown && opensAsZip(path) {
		ref.Kind = KindZip
	}
	return ref, nil
}

func sniff(head []byte) Kind {
	switch {
	case bytes.HasPrefix(head, zipLocalHeader),
		bytes.HasPrefix(head, zipEmpty),
		bytes.HasPrefix(head, zipSpanned):
		return KindZip
	case bytes.HasPrefix(head, rarV5), bytes.HasPrefix(head, rarV4):
		return KindRar
	}
	return KindUnknown
}

func opensAsZip(path string) bool {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	zr.Close()
	return true
}
