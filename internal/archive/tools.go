package archive

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// DecoderMode selects how RAR containers are read.
type DecoderMode string

const (
	// DecoderAuto uses unrar when installed and the builtin decoder otherwise.
	DecoderAuto DecoderMode = "auto"
	// DecoderBuiltin always uses the in-process decoder.
	DecoderBuiltin DecoderMode = "builtin"
	// DecoderUnrar requires the external unrar tool.
	DecoderUnrar DecoderMode = "unrar"
	// DecoderNone disables RAR reading entirely.
	DecoderNone DecoderMode = "none"
)

// ParseDecoderMode validates a decoder mode name. Empty means auto.
func ParseDecoderMode(s string) (DecoderMode, error) {
	switch m := DecoderMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DecoderAuto, nil
	case DecoderAuto, DecoderBuiltin, DecoderUnrar, DecoderNone:
		return m, nil
	}
	return "", fmt.Errorf("unknown rar decoder %q (want auto, builtin, unrar or none)", s)
}

var (
	unrarToolNames = []string{"unrar"}
	rarToolNames   = []string{"rar", "winrar", "WinRAR"}
)

// ToolOptions overrides tool discovery. Empty paths fall back to a PATH
// search.
type ToolOptions struct {
	Decoder   DecoderMode
	UnrarPath string
	RarPath   string
}

// Tools records which RAR facilities are available. The zero value decodes
// with the builtin reader and cannot encode RAR.
type Tools struct {
	Decoder DecoderMode `json:"decoder"`
	Unrar   string      `json:"unrar,omitempty"`
	Rar     string      `json:"rar,omitempty"`
}

var (
	probeOnce  sync.Once
	probeUnrar string
	probeRar   string
)

// DetectTools resolves the external archivers. PATH lookups happen once per
// process; explicit paths in opts are checked every call.
func DetectTools(opts ToolOptions) Tools {
	probeOnce.Do(func() {
		probeUnrar, _ = findToolByName(unrarToolNames...)
		probeRar, _ = findToolByName(rarToolNames...)
	})

	mode := opts.Decoder
	if mode == "" {
		mode = DecoderAuto
	}
	t := Tools{Decoder: mode, Unrar: probeUnrar, Rar: probeRar}
	if opts.UnrarPath != "" {
		t.Unrar, _ = findToolByName(opts.UnrarPath)
	}
	if opts.RarPath != "" {
		t.Rar, _ = findToolByName(opts.RarPath)
	}
	return t
}

func findToolByName(names ...string) (string, error) {
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

// rarReader names the decoder Tools will use for RAR input.
type rarReader int

const (
	rarReaderNone rarReader = iota
	rarReaderBuiltin
	rarReaderUnrar
)

func (t Tools) rarReader() rarReader {
	switch t.Decoder {
	case DecoderNone:
		return rarReaderNone
	case DecoderBuiltin:
		return rarReaderBuiltin
	case DecoderUnrar:
		if t.Unrar == "" {
			return rarReaderNone
		}
		return rarReaderUnrar
	default:
		if t.Unrar != "" {
			return rarReaderUnrar
		}
		return rarReaderBuiltin
	}
}

// CanDecodeRar reports whether RAR input can be read.
func (t Tools) CanDecodeRar() bool {
	return t.rarReader() != rarReaderNone
}

// RarDecoder describes the decoder that will read RAR input.
func (t Tools) RarDecoder() string {
	switch t.rarReader() {
	case rarReaderUnrar:
		return "unrar (" + t.Unrar + ")"
	case rarReaderBuiltin:
		return "builtin"
	default:
		return "unavailable"
	}
}

// CanEncodeRar reports whether RAR output can be written.
func (t Tools) CanEncodeRar() bool {
	return t.Rar != ""
}
