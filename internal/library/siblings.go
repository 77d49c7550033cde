// Package library answers questions about the comic archives sitting next
// to each other in a directory.
package library

import (
	"os"
	"path/filepath"

	"comic-tool/internal/errs"
	"comic-tool/internal/natsort"
	"comic-tool/internal/util"
)

// Neighbors locates one archive among the comic files of its directory.
type Neighbors struct {
	Path     string   `json:"path"`
	Index    int      `json:"index"`
	Files    []string `json:"files"`
	Previous string   `json:"previous,omitempty"`
	Next     string   `json:"next,omitempty"`
}

// List returns the .cbr and .cbz files directly inside dir, in natural
// order of their names.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnreadablePath, "list comics", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && util.IsComicFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	natsort.Sort(names)

	files := make([]string, len(names))
	for i, n := range names {
		files[i] = filepath.Join(dir, n)
	}
	return files, nil
}

// Siblings reports the previous and next comic archives around path.
func Siblings(path string) (*Neighbors, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnreadablePath, "siblings", path, err)
	}
	if !util.FileExists(abs) {
		return nil, errs.Wrap(errs.ErrUnreadablePath, "siblings", path, nil)
	}
	files, err := List(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}

	n := &Neighbors{Path: abs, Index: -1, Files: files}
	for i, f := range files {
		if f == abs {
			n.Index = i
			break
		}
	}
	if n.Index > 0 {
		n.Previous = files[n.Index-1]
	}
	if n.Index >= 0 && n.Index < len(files)-1 {
		n.Next = files[n.Index+1]
	}
	return n, nil
}
