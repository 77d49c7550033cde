// Package pages holds the ordered, filterable collection of page images
// extracted from one archive.
//
// A Set is created by the archive extractor with its pages already in
// reading order. That order never changes afterwards: keep/remove only flips
// flags. The Set owns the staging directory its page files live in and
// deletes it on Close.
package pages

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"comic-tool/internal/errs"
)

// Page is one image extracted from an archive.
type Page struct {
	// ID is unique within its Set. It is the in-archive entry name, with a
	// "#N" suffix when several entries share a name.
	ID string `json:"id"`
	// Name is the entry name as stored in the archive.
	Name string `json:"name"`
	// Index is the zero-based reading-order position.
	Index int `json:"index"`
	// Path is the staged file holding the page bytes.
	Path string `json:"-"`
	Size int64  `json:"size"`
	// Checksum is the hex BLAKE3-256 digest of the staged bytes.
	Checksum string `json:"checksum"`
	Keep     bool   `json:"keep"`
}

// Ext returns the page's original file extension, as stored.
func (p Page) Ext() string {
	return filepath.Ext(p.Name)
}

// Set is an ordered collection of pages with per-page keep flags.
// It is safe for concurrent use.
type Set struct {
	mu     sync.RWMutex
	source string
	dir    string
	pages  []Page
	byID   map[string]int
	closed bool
}

// New builds a Set over pages, which must already be in reading order.
// Every page starts kept. dir is the staging directory the Set takes
// ownership of; it may be empty when nothing needs removing.
func New(source, dir string, pages []Page) *Set {
	s := &Set{
		source: source,
		dir:    dir,
		pages:  make([]Page, len(pages)),
		byID:   make(map[string]int, len(pages)),
	}
	seen := make(map[string]int, len(pages))
	for i, p := range pages {
		id := p.Name
		for n := seen[p.Name]; ; n++ {
			if n > 0 {
				id = p.Name + "#" + strconv.Itoa(n+1)
			}
			if _, taken := s.byID[id]; !taken {
				break
			}
		}
		seen[p.Name]++

		p.ID = id
		p.Index = i
		p.Keep = true
		s.pages[i] = p
		s.byID[id] = i
	}
	return s
}

// Source returns the path of the archive the pages came from.
func (s *Set) Source() string {
	return s.source
}

// Dir returns the staging directory holding the page files.
func (s *Set) Dir() string {
	return s.dir
}

// Len returns the number of pages, kept or not.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Pages returns a copy of all pages in reading order.
func (s *Set) Pages() []Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Page, len(s.pages))
	copy(out, s.pages)
	return out
}

// Get returns the page with the given id.
func (s *Set) Get(id string) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Page{}, notFound(id)
	}
	return s.pages[i], nil
}

// At returns the page at a reading-order index.
func (s *Set) At(index int) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.pages) {
		return Page{}, notFound(strconv.Itoa(index))
	}
	return s.pages[index], nil
}

// Toggle flips the keep flag of page id and returns the new value.
func (s *Set) Toggle(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return false, notFound(id)
	}
	s.pages[i].Keep = !s.pages[i].Keep
	return s.pages[i].Keep, nil
}

// SetKeep sets the keep flag of page id.
func (s *Set) SetKeep(id string, keep bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return notFound(id)
	}
	s.pages[i].Keep = keep
	return nil
}

// SelectAll marks every page kept.
func (s *Set) SelectAll() { s.setAll(true) }

// SelectNone marks every page removed.
func (s *Set) SelectNone() { s.setAll(false) }

func (s *Set) setAll(keep bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pages {
		s.pages[i].Keep = keep
	}
}

// ApplyMask sets every keep flag at once. mask must have one entry per page.
func (s *Set) ApplyMask(mask []bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(mask) != len(s.pages) {
		return fmt.Errorf("mask has %d entries for %d pages", len(mask), len(s.pages))
	}
	for i := range s.pages {
		s.pages[i].Keep = mask[i]
	}
	return nil
}

// ApplyRemovals keeps every page except those at the given zero-based
// indices. Nothing changes if any index is out of range.
func (s *Set) ApplyRemovals(indices []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.pages) {
			return notFound(strconv.Itoa(idx))
		}
	}
	for i := range s.pages {
		s.pages[i].Keep = true
	}
	for _, idx := range indices {
		s.pages[idx].Keep = false
	}
	return nil
}

// Included yields the kept pages in reading order. The view reflects the
// flags at the moment iteration starts.
func (s *Set) Included() iter.Seq[Page] {
	return func(yield func(Page) bool) {
		for _, p := range s.Pages() {
			if !p.Keep {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// KeptCount returns the number of kept pages.
func (s *Set) KeptCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keptLocked()
}

// RemovedCount returns the number of pages marked for removal.
func (s *Set) RemovedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages) - s.keptLocked()
}

func (s *Set) keptLocked() int {
	n := 0
	for _, p := range s.pages {
		if p.Keep {
			n++
		}
	}
	return n
}

// Closed reports whether Close has been called.
func (s *Set) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close removes the staging directory. It is safe to call more than once.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return errs.Wrap(errs.ErrIO, "remove staging", s.dir, err)
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", errs.ErrPageNotFound, strings.TrimSpace(id))
}
