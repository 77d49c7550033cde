package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		max     int
		want    []int
		wantErr bool
	}{
		{name: "empty", in: "", max: 5, want: nil},
		{name: "spaces", in: "1 3 5", max: 5, want: []int{0, 2, 4}},
		{name: "ranges", in: "1-3,5", max: 5, want: []int{0, 1, 2, 4}},
		{name: "mixed", in: "2, 4-5", max: 5, want: []int{1, 3, 4}},
		{name: "out of range", in: "6", max: 5, wantErr: true},
		{name: "zero", in: "0", max: 5, wantErr: true},
		{name: "reversed range", in: "4-2", max: 5, wantErr: true},
		{name: "garbage", in: "a", max: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSelection(tt.in, tt.max)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSelection(%q): %v", tt.in, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for _, idx := range tt.want {
				if !got[idx] {
					t.Fatalf("index %d missing from %v", idx, got)
				}
			}
		})
	}
}

func TestExtensionHelpers(t *testing.T) {
	if !IsImageFile("PAGE.JPG") || IsImageFile("ComicInfo.xml") {
		t.Fatal("IsImageFile mismatch")
	}
	if !IsComicFile("a.CBR") || !IsComicFile("b.cbz") || IsComicFile("c.zip") {
		t.Fatal("IsComicFile mismatch")
	}
	if NormalizeExt("CBZ") != ".cbz" || NormalizeExt(".Cbr") != ".cbr" || NormalizeExt("") != "" {
		t.Fatal("NormalizeExt mismatch")
	}
}

func TestCopyFileAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, []byte("new contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFileAtomic(src, dst); err != nil {
		t.Fatalf("CopyFileAtomic: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new contents" {
		t.Fatalf("dst = %q", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("expected no temp files left, found %d entries", len(entries))
	}
}

func TestCopyFileAtomicMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(dst, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFileAtomic(filepath.Join(dir, "missing"), dst); err == nil {
		t.Fatal("expected error")
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "keep" {
		t.Fatalf("dst changed to %q", got)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("COMIC_TEST_STR", "value")
	t.Setenv("COMIC_TEST_INT", "7")
	t.Setenv("COMIC_TEST_BAD_INT", "seven")
	t.Setenv("COMIC_TEST_BOOL", "true")

	if GetEnv("COMIC_TEST_STR", "x") != "value" || GetEnv("COMIC_TEST_UNSET", "x") != "x" {
		t.Fatal("GetEnv mismatch")
	}
	if GetEnvInt("COMIC_TEST_INT", 1) != 7 || GetEnvInt("COMIC_TEST_BAD_INT", 1) != 1 {
		t.Fatal("GetEnvInt mismatch")
	}
	if !GetEnvBool("COMIC_TEST_BOOL", false) || GetEnvBool("COMIC_TEST_UNSET", false) {
		t.Fatal("GetEnvBool mismatch")
	}
}
