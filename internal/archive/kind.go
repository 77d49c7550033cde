package archive

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the container format of an archive, decided by content.
type Kind int

const (
	KindUnknown Kind = iota
	KindZip
	KindRar
)

func (k Kind) String() string {
	switch k {
	case KindZip:
		return "zip"
	case KindRar:
		return "rar"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind as its lower-case name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind accepts "zip"/"cbz" and "rar"/"cbr" in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "zip", "cbz":
		return KindZip, nil
	case "rar", "cbr":
		return KindRar, nil
	}
	return KindUnknown, fmt.Errorf("unknown archive kind %q", s)
}

// KindForPath returns the container a file with this name is expected to
// hold: RAR for .cbr and .rar, ZIP for everything else.
func KindForPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cbr", ".rar":
		return KindRar
	default:
		return KindZip
	}
}
