package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"comic-tool/internal/archive"
	"comic-tool/internal/backup"
	"comic-tool/internal/errs"
)

func writeZip(t *testing.T, path string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte("img:" + n))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func entryNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return &Pipeline{
		Extractor: &archive.Extractor{StagingRoot: filepath.Join(t.TempDir(), "staging")},
		Builder:   &archive.Builder{},
		Backups:   &backup.Manager{Clock: func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }},
	}
}

func TestRunConvertsZipContentCbr(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "book.cbr"), "1.jpg", "2.jpg", "10.jpg")

	res, err := newPipeline(t).Run(context.Background(), root, Options{CreateBackups: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Converted != 1 || res.Failed != 0 || !res.OK() {
		t.Fatalf("Result = %+v", res)
	}
	got := entryNames(t, filepath.Join(root, "book.cbz"))
	want := []string{"page_001.jpg", "page_002.jpg", "page_003.jpg"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries = %v, want %v", got, want)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "book.cbr")); err != nil {
		t.Fatalf("source removed: %v", err)
	}
	backupPath := filepath.Join(root, "backups", "book_backup_20240101_120000.cbr")
	if _, err := os.Stat(backupPath); err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if len(res.Items[0].Backups) != 1 || res.Items[0].Backups[0] != backupPath {
		t.Fatalf("item backups = %v", res.Items[0].Backups)
	}
}

func TestRunRecordsFailuresAndContinues(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "a.cbr"), "1.png")
	if err := os.WriteFile(filepath.Join(root, "b.cbr"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeZip(t, filepath.Join(root, "c.cbr"), "notes.txt")
	writeZip(t, filepath.Join(root, "d.cbr"), "1.png")
	if err := os.WriteFile(filepath.Join(root, "e.cbr"), []byte("Rar!\x1a\x07\x01\x00junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newPipeline(t)
	p.Extractor.Tools = archive.Tools{Decoder: archive.DecoderNone}
	res, err := p.Run(context.Background(), root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Converted != 2 || res.Failed != 3 || res.OK() {
		t.Fatalf("Result = %+v", res)
	}
	reasons := map[string]string{}
	for _, item := range res.Items {
		reasons[filepath.Base(item.Path)] = item.Reason
	}
	if reasons["b.cbr"] != "archive unreadable" {
		t.Fatalf("b.cbr reason %q", reasons["b.cbr"])
	}
	if reasons["c.cbr"] != "no images found" {
		t.Fatalf("c.cbr reason %q", reasons["c.cbr"])
	}
	if reasons["e.cbr"] != "extraction tool unavailable" {
		t.Fatalf("e.cbr reason %q", reasons["e.cbr"])
	}
	if _, err := os.Stat(filepath.Join(root, "b.cbz")); !os.IsNotExist(err) {
		t.Fatal("failed conversion left a destination")
	}
}

func TestRunSkipsExistingUnlessOverwrite(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "book.cbr"), "1.png", "2.png")
	dest := filepath.Join(root, "book.cbz")
	if err := os.WriteFile(dest, []byte("old cbz"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newPipeline(t)
	res, err := p.Run(context.Background(), root, Options{CreateBackups: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Items[0].Reason != ReasonExists || !res.OK() || res.AllConverted() {
		t.Fatalf("Result = %+v", res)
	}
	if got, _ := os.ReadFile(dest); string(got) != "old cbz" {
		t.Fatal("skipped destination was modified")
	}
	if _, err := os.Stat(filepath.Join(root, "backups")); !os.IsNotExist(err) {
		t.Fatal("skipped file was backed up")
	}

	res, err = p.Run(context.Background(), root, Options{CreateBackups: true, Overwrite: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Converted != 1 || !res.AllConverted() {
		t.Fatalf("Result = %+v", res)
	}
	if len(res.Items[0].Backups) != 2 {
		t.Fatalf("expected source and destination backups, got %v", res.Items[0].Backups)
	}
	destBackup := filepath.Join(root, "backups", "book_backup_20240101_120000.cbz")
	if got, _ := os.ReadFile(destBackup); string(got) != "old cbz" {
		t.Fatalf("overwritten destination not backed up, got %q", got)
	}
}

func TestRunRecursiveSkipsBackupsDirs(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "vol10.cbr"), "1.png")
	writeZip(t, filepath.Join(root, "vol2.cbr"), "1.png")
	writeZip(t, filepath.Join(root, "series", "ch1.CBR"), "1.png")
	writeZip(t, filepath.Join(root, "backups", "vol2_backup_20230101_000000.cbr"), "1.png")
	writeZip(t, filepath.Join(root, "series", "backups", "x.cbr"), "1.png")

	p := newPipeline(t)
	flat, err := p.Candidates(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 2 || filepath.Base(flat[0]) != "vol2.cbr" || filepath.Base(flat[1]) != "vol10.cbr" {
		t.Fatalf("non-recursive candidates = %v", flat)
	}

	res, err := p.Run(context.Background(), root, Options{Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 3 || res.Converted != 3 {
		t.Fatalf("Result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "series", "ch1.cbz")); err != nil {
		t.Fatalf("nested conversion missing: %v", err)
	}
}

func TestRunCancelledMarksRemainingSkipped(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "a.cbr"), "1.png")
	writeZip(t, filepath.Join(root, "b.cbr"), "1.png")
	writeZip(t, filepath.Join(root, "c.cbr"), "1.png")

	ctx, cancel := context.WithCancel(context.Background())
	p := newPipeline(t)
	p.Progress = func(done, total int, item Item) {
		if done == 1 {
			cancel()
		}
	}
	res, err := p.Run(ctx, root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Converted != 1 || res.Skipped != 2 || res.AllConverted() {
		t.Fatalf("Result = %+v", res)
	}
	for _, item := range res.Items[1:] {
		if item.Reason != ReasonCancelled {
			t.Fatalf("item %s reason %q", item.Path, item.Reason)
		}
	}
}

func TestRunRejectsNonDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "book.cbr")
	writeZip(t, file, "1.png")
	p := newPipeline(t)

	if _, err := p.Run(context.Background(), file, Options{}); !errors.Is(err, errs.ErrUnreadablePath) {
		t.Fatalf("file root: got %v", err)
	}
	if _, err := p.Run(context.Background(), filepath.Join(root, "missing"), Options{}); !errors.Is(err, errs.ErrUnreadablePath) {
		t.Fatalf("missing root: got %v", err)
	}
}

func TestConvertFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "one.cbr")
	writeZip(t, src, "b.png", "a.png")
	p := newPipeline(t)

	item := p.ConvertFile(context.Background(), src, Options{})
	if item.Status != StatusConverted || item.Pages != 2 {
		t.Fatalf("item = %+v", item)
	}
	if item.Dest != filepath.Join(root, "one.cbz") {
		t.Fatalf("Dest = %s", item.Dest)
	}

	other := filepath.Join(root, "one.cbz")
	item = p.ConvertFile(context.Background(), other, Options{})
	if item.Status != StatusFailed || item.Reason != "not a .cbr file" {
		t.Fatalf("item = %+v", item)
	}
}

func TestConvertToCbrFallsBack(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "one.cbz")
	writeZip(t, src, "a.png")
	p := newPipeline(t)

	item := p.ConvertFile(context.Background(), src, Options{SourceExt: "cbz", TargetExt: "cbr"})
	if item.Status != StatusConverted || !item.FellBack {
		t.Fatalf("item = %+v", item)
	}
	ref, err := archive.Identify(filepath.Join(root, "one.cbr"))
	if err != nil || ref.Kind != archive.KindZip {
		t.Fatalf("Identify = %+v, %v", ref, err)
	}
}
