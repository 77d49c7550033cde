package archive

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

type entry struct {
	name string
	body string
}

// writeZip writes a ZIP container holding entries to path, regardless of
// path's extension.
func writeZip(t *testing.T, path string, entries ...entry) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

type zipContent struct {
	name string
	body string
}

func readZip(t *testing.T, path string) []zipContent {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer zr.Close()
	var out []zipContent
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		var b bytes.Buffer
		if _, err := b.ReadFrom(rc); err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		rc.Close()
		out = append(out, zipContent{name: f.Name, body: b.String()})
	}
	return out
}

func testExtractor(t *testing.T) *Extractor {
	t.Helper()
	return &Extractor{StagingRoot: filepath.Join(t.TempDir(), "staging"), Parallelism: 2}
}

func stagingEntries(t *testing.T, ex *Extractor) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(ex.StagingRoot)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	return entries
}
