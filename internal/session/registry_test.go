package session

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"comic-tool/internal/archive"
)

func writeZip(t *testing.T, path string, names ...string) {
	t.Helper()
	if len(names) == 0 {
		names = []string{"1.png"}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, name := range names {
		w, _ := zw.Create(name)
		w.Write([]byte("png:" + name))
	}
	zw.Close()
	f.Close()
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	ex := &archive.Extractor{StagingRoot: filepath.Join(t.TempDir(), "staging")}
	r := NewRegistry(ex, time.Minute, nil)
	t.Cleanup(r.CloseAll)
	return r
}

func TestOpenGetClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.cbz")
	writeZip(t, path)
	r := newRegistry(t)

	s, err := r.Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}

	again, err := r.Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != s.ID {
		t.Fatal("second Open of the same file created a new session")
	}

	dir := s.Set.Dir()
	if err := r.Close(s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("staging not removed on Close")
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.Close(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweepClosesIdleSessions(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.cbz")
	b := filepath.Join(dir, "b.cbz")
	writeZip(t, a)
	writeZip(t, b)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newRegistry(t)
	r.Now = func() time.Time { return now }

	sa, err := r.Open(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(50 * time.Second)
	sb, err := r.Open(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(20 * time.Second)

	if closed := r.Sweep(); closed != 1 {
		t.Fatalf("Sweep closed %d, want 1", closed)
	}
	if _, err := r.Get(sa.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("idle session survived sweep")
	}
	if _, err := r.Get(sb.ID); err != nil {
		t.Fatalf("active session closed: %v", err)
	}
	if len(r.List()) != 1 {
		t.Fatalf("List = %d sessions", len(r.List()))
	}
}

func TestOpenFailureRegistersNothing(t *testing.T) {
	r := newRegistry(t)
	if _, err := r.Open(context.Background(), filepath.Join(t.TempDir(), "missing.cbz")); err == nil {
		t.Fatal("expected error")
	}
	if len(r.List()) != 0 {
		t.Fatal("failed open registered a session")
	}
}

func TestOpenReextractsChangedArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.cbz")
	writeZip(t, path, "1.png", "2.png", "3.png")
	r := newRegistry(t)

	first, err := r.Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if first.Set.Len() != 3 {
		t.Fatalf("pages = %d", first.Set.Len())
	}
	if first.Stale() {
		t.Fatal("fresh session reported stale")
	}

	writeZip(t, path, "1.png")
	if !first.Stale() {
		t.Fatal("rewritten archive not detected")
	}
	if _, err := r.Get(first.ID); !errors.Is(err, ErrChanged) {
		t.Fatalf("Get after rewrite: %v", err)
	}
	if _, err := r.Get(first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("changed session still registered: %v", err)
	}

	second, err := r.Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID || second.Set.Len() != 1 {
		t.Fatalf("reopened session %s has %d pages", second.ID, second.Set.Len())
	}
	if !first.Set.Closed() {
		t.Fatal("stale page set left open")
	}
}

func TestOpenReplacesChangedSessionDirectly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.cbz")
	writeZip(t, path, "1.png", "2.png")
	r := newRegistry(t)

	first, err := r.Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	writeZip(t, path, "1.png", "2.png", "3.png", "4.png")

	second, err := r.Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID || second.Set.Len() != 4 {
		t.Fatalf("Open returned %s with %d pages", second.ID, second.Set.Len())
	}
	if len(r.List()) != 1 {
		t.Fatalf("List = %d sessions", len(r.List()))
	}
}

func TestResyncAcceptsOwnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.cbz")
	writeZip(t, path, "1.png", "2.png")
	r := newRegistry(t)

	s, err := r.Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	writeZip(t, path, "1.png")
	if err := r.Resync(s.ID); err != nil {
		t.Fatal(err)
	}
	if got, err := r.Get(s.ID); err != nil || got != s {
		t.Fatalf("Get after Resync = %v, %v", got, err)
	}
	if err := r.Resync("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resync of unknown id: %v", err)
	}
}
