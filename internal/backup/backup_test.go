package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"comic-tool/internal/errs"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func writeOriginal(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBackupNamesAndLocation(t *testing.T) {
	dir := t.TempDir()
	original := writeOriginal(t, dir, "book.cbr", "v1")
	ts := time.Date(2024, 1, 31, 23, 59, 58, 500, time.UTC)
	m := &Manager{Clock: fixedClock(ts)}

	rec, err := m.Backup(context.Background(), original)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	want := filepath.Join(dir, "backups", "book_backup_20240131_235958.cbr")
	if rec.Path != want {
		t.Fatalf("Path = %s, want %s", rec.Path, want)
	}
	got, err := os.ReadFile(rec.Path)
	if err != nil || string(got) != "v1" {
		t.Fatalf("backup contents %q, %v", got, err)
	}
	if rec.Size != 2 || rec.Seq != 0 || rec.Stem != "book" || rec.Ext != ".cbr" {
		t.Fatalf("Record = %+v", rec)
	}
}

func TestBackupSameSecondGetsSequence(t *testing.T) {
	dir := t.TempDir()
	original := writeOriginal(t, dir, "book.cbz", "v1")
	m := &Manager{Clock: fixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))}

	first, err := m.Backup(context.Background(), original)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(original, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := m.Backup(context.Background(), original)
	if err != nil {
		t.Fatal(err)
	}
	if first.Path == second.Path {
		t.Fatal("same-second backups collided")
	}
	if filepath.Base(second.Path) != "book_backup_20240501_100000_1.cbz" {
		t.Fatalf("second = %s", second.Path)
	}

	latest, err := m.Latest(original)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Path != second.Path {
		t.Fatalf("Latest = %s, want %s", latest.Path, second.Path)
	}
}

func TestBackupConcurrentCallsStayUnique(t *testing.T) {
	dir := t.TempDir()
	original := writeOriginal(t, dir, "book.cbr", "data")
	m := &Manager{Clock: fixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))}

	const n = 8
	var wg sync.WaitGroup
	paths := make([]string, n)
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := m.Backup(context.Background(), original)
			if err != nil {
				errCh <- err
				return
			}
			paths[i] = rec.Path
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for _, p := range paths {
		if seen[p] {
			t.Fatalf("duplicate backup path %s", p)
		}
		seen[p] = true
	}
	records, err := m.List(original)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != n {
		t.Fatalf("List = %d records, want %d", len(records), n)
	}
}

func TestListOrderingAndFiltering(t *testing.T) {
	dir := t.TempDir()
	original := writeOriginal(t, dir, "a+b (1).cbr", "x")
	backups := filepath.Join(dir, "backups")
	if err := os.MkdirAll(backups, 0o755); err != nil {
		t.Fatal(err)
	}
	names := []string{
		"a+b (1)_backup_20240101_000000.cbr",
		"a+b (1)_backup_20240102_000000.cbr",
		"a+b (1)_backup_20240102_000000_2.cbr",
		"a+b (1)_backup_20240102_000000_10.cbr",
		"a+b (1)_backup_20240103_000000.cbz",
		"other_backup_20250101_000000.cbr",
		"a+b (1).cbr",
		"notes.txt",
	}
	for _, n := range names {
		writeOriginal(t, backups, n, "b")
	}

	m := &Manager{}
	records, err := m.List(original)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"a+b (1)_backup_20240102_000000_10.cbr",
		"a+b (1)_backup_20240102_000000_2.cbr",
		"a+b (1)_backup_20240102_000000.cbr",
		"a+b (1)_backup_20240101_000000.cbr",
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i, rec := range records {
		if rec.Name() != want[i] {
			t.Fatalf("record %d = %s, want %s", i, rec.Name(), want[i])
		}
	}
}

func TestListMissingDirectory(t *testing.T) {
	m := &Manager{}
	records, err := m.List(filepath.Join(t.TempDir(), "book.cbr"))
	if err != nil || len(records) != 0 {
		t.Fatalf("List = %v, %v", records, err)
	}
	if _, err := m.Latest(filepath.Join(t.TempDir(), "book.cbr")); !errors.Is(err, errs.ErrNoBackupFound) {
		t.Fatalf("expected ErrNoBackupFound, got %v", err)
	}
}

func TestRevertRestoresNewestBackup(t *testing.T) {
	dir := t.TempDir()
	original := writeOriginal(t, dir, "book.cbr", "v1")
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Manager{Clock: func() time.Time { return clock }}

	if _, err := m.Backup(context.Background(), original); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(original, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(time.Hour)
	if _, err := m.Backup(context.Background(), original); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(original, []byte("v3 edited"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := m.Revert(context.Background(), original)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	got, _ := os.ReadFile(original)
	if string(got) != "v2" {
		t.Fatalf("reverted contents %q, want v2", got)
	}
	if _, err := os.Stat(rec.Path); err != nil {
		t.Fatalf("backup removed by revert: %v", err)
	}
}

func TestRevertWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	original := writeOriginal(t, dir, "book.cbr", "v1")
	_, err := (&Manager{}).Revert(context.Background(), original)
	if !errors.Is(err, errs.ErrNoBackupFound) {
		t.Fatalf("expected ErrNoBackupFound, got %v", err)
	}
	got, _ := os.ReadFile(original)
	if string(got) != "v1" {
		t.Fatalf("original changed: %q", got)
	}
}

func TestBackupMissingOriginal(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{}
	_, err := m.Backup(context.Background(), filepath.Join(dir, "gone.cbr"))
	if !errors.Is(err, errs.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "backups"))
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".lock" {
			t.Fatalf("unexpected file left behind: %s", e.Name())
		}
	}
}

func TestBackupCustomDirectory(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(t.TempDir(), "vault")
	original := writeOriginal(t, dir, "book.cbz", "x")
	m := NewManager(custom, nil)

	rec, err := m.Backup(context.Background(), original)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(filepath.Dir(rec.Path)) != custom {
		t.Fatalf("backup in %s, want a subdirectory of %s", filepath.Dir(rec.Path), custom)
	}
	if got := m.DirFor(original); got != filepath.Dir(rec.Path) {
		t.Fatalf("DirFor = %s, backup in %s", got, filepath.Dir(rec.Path))
	}
	if _, err := os.Stat(filepath.Join(dir, "backups")); !os.IsNotExist(err) {
		t.Fatal("default backups dir created despite override")
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	original := writeOriginal(t, dir, "book.cbr", "x")
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Manager{Clock: func() time.Time { return clock }}
	for i := 0; i < 4; i++ {
		if _, err := m.Backup(context.Background(), original); err != nil {
			t.Fatal(err)
		}
		clock = clock.Add(time.Minute)
	}

	deleted, err := m.Prune(original, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 2 {
		t.Fatalf("deleted %d, want 2", len(deleted))
	}
	records, _ := m.List(original)
	if len(records) != 2 {
		t.Fatalf("%d records left", len(records))
	}
	if records[0].Name() != "book_backup_20240101_000300.cbr" {
		t.Fatalf("newest kept = %s", records[0].Name())
	}

	if deleted, _ := m.Prune(original, 0); len(deleted) != 0 {
		t.Fatal("Prune(0) deleted backups")
	}
}

func TestBackupAutoPrunesWithKeepLast(t *testing.T) {
	dir := t.TempDir()
	original := writeOriginal(t, dir, "book.cbz", "x")
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Manager{Clock: func() time.Time { return clock }, KeepLast: 2}
	for i := 0; i < 3; i++ {
		if _, err := m.Backup(context.Background(), original); err != nil {
			t.Fatal(err)
		}
		clock = clock.Add(time.Second)
	}

	records, err := m.List(original)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("%d backups kept, want 2", len(records))
	}
	if records[1].Name() != "book_backup_20240101_000001.cbz" {
		t.Fatalf("oldest kept = %s", records[1].Name())
	}
}

type failingMirror struct{ calls int }

func (f *failingMirror) Upload(context.Context, Record) error {
	f.calls++
	return errors.New("bucket unreachable")
}

func TestMirrorFailureDoesNotFailBackup(t *testing.T) {
	dir := t.TempDir()
	original := writeOriginal(t, dir, "book.cbr", "x")
	mirror := &failingMirror{}
	m := &Manager{Mirror: mirror}

	if _, err := m.Backup(context.Background(), original); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if mirror.calls != 1 {
		t.Fatalf("mirror called %d times", mirror.calls)
	}
}

func TestCustomDirectoryKeepsSameNamedOriginalsApart(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "vault")
	a := writeOriginal(t, t.TempDir(), "X.cbz", "a-v1")
	b := writeOriginal(t, t.TempDir(), "X.cbz", "b-v1")

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Manager{Dir: custom, Clock: func() time.Time { return clock }}

	if _, err := m.Backup(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(time.Minute)
	if _, err := m.Backup(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if m.DirFor(a) == m.DirFor(b) {
		t.Fatalf("both originals back up into %s", m.DirFor(a))
	}

	for _, path := range []string{a, b} {
		records, err := m.List(path)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 1 || records[0].Original != path {
			t.Fatalf("List(%s) = %+v", path, records)
		}
	}

	if err := os.WriteFile(a, []byte("a-v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Revert(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if got, _ := os.ReadFile(a); string(got) != "a-v1" {
		t.Fatalf("reverted %s to %q", a, got)
	}

	clock = clock.Add(time.Minute)
	if _, err := m.Backup(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	deleted, err := m.Prune(a, 1)
	if err != nil || len(deleted) != 1 {
		t.Fatalf("Prune(a) = %v, %v", deleted, err)
	}
	if records, _ := m.List(b); len(records) != 1 {
		t.Fatalf("pruning a touched b's backups: %+v", records)
	}
}

func TestBackupOrderSurvivesRepeatedWallClock(t *testing.T) {
	dir := t.TempDir()
	original := writeOriginal(t, dir, "book.cbz", "v1")

	// 01:30 twice on a fall-back night: daylight time first, then standard.
	first := time.Date(2024, 11, 3, 1, 30, 0, 0, time.FixedZone("EDT", -4*3600))
	second := time.Date(2024, 11, 3, 1, 30, 0, 0, time.FixedZone("EST", -5*3600))
	clock := first
	m := &Manager{Clock: func() time.Time { return clock }}

	if _, err := m.Backup(context.Background(), original); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(original, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	clock = second
	rec, err := m.Backup(context.Background(), original)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Seq != 0 || filepath.Base(rec.Path) != "book_backup_20241103_063000.cbz" {
		t.Fatalf("second backup %+v", rec)
	}

	latest, err := m.Latest(original)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Path != rec.Path || !latest.Timestamp.Equal(second) {
		t.Fatalf("Latest = %+v, want %s", latest, rec.Path)
	}
}
