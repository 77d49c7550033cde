// Package session keeps extracted page sets open between requests of an
// interactive editor, one per archive.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"comic-tool/internal/archive"
	"comic-tool/internal/pages"
	"comic-tool/internal/util"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// ErrChanged is returned by Get when the archive behind a session changed on
// disk. The session is closed; opening the path again extracts it afresh.
var ErrChanged = errors.New("archive changed since the session was opened")

// DefaultIdleTimeout closes sessions nobody touched for this long.
const DefaultIdleTimeout = 30 * time.Minute

// Session is one open archive.
type Session struct {
	ID     string     `json:"id"`
	Path   string     `json:"path"`
	Opened time.Time  `json:"opened"`
	Set    *pages.Set `json:"-"`

	mu       sync.Mutex
	lastUsed time.Time
	ref      archive.Ref
}

// Ref returns the archive reference the staged pages were extracted from.
func (s *Session) Ref() archive.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref
}

// Stale reports whether the archive no longer matches the staged pages.
func (s *Session) Stale() bool {
	return s.Ref().Stale()
}

// LastUsed returns when the session was last fetched.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

// Registry owns open sessions.
type Registry struct {
	Extractor   *archive.Extractor
	IdleTimeout time.Duration
	Logger      util.Logger
	// Now returns the current time; nil means time.Now.
	Now func() time.Time

	mu     sync.Mutex
	byID   map[string]*Session
	byPath map[string]string
}

// NewRegistry creates a registry extracting with ex.
func NewRegistry(ex *archive.Extractor, idle time.Duration, logger util.Logger) *Registry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Registry{Extractor: ex, IdleTimeout: idle, Logger: logger}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Registry) init() {
	if r.byID == nil {
		r.byID = make(map[string]*Session)
		r.byPath = make(map[string]string)
	}
}

// Open extracts path and registers a session for it. An archive that is
// already open returns its existing session, unless the file changed since
// it was extracted; that session is closed and replaced.
func (r *Registry) Open(ctx context.Context, path string) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if s := r.lookupPath(abs); s != nil {
		if !s.Stale() {
			return s, nil
		}
		util.OrNoop(r.Logger).Info(fmt.Sprintf("%s changed on disk, reopening session %s", abs, s.ID))
		_ = r.Close(s.ID)
	}

	ref, err := archive.Identify(abs)
	if err != nil {
		return nil, err
	}
	set, err := r.Extractor.Extract(ctx, ref)
	if err != nil {
		return nil, err
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	if id, ok := r.byPath[abs]; ok {
		// lost a race with another Open of the same file
		set.Close()
		s := r.byID[id]
		s.touch(now)
		return s, nil
	}
	s := &Session{ID: uuid.NewString(), Path: abs, Opened: now, Set: set, lastUsed: now, ref: ref}
	r.byID[s.ID] = s
	r.byPath[abs] = s.ID
	util.OrNoop(r.Logger).Debug(fmt.Sprintf("Opened session %s for %s (%d pages)", s.ID, abs, set.Len()))
	return s, nil
}

func (r *Registry) lookupPath(abs string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPath[abs]
	if !ok {
		return nil
	}
	s := r.byID[id]
	s.touch(r.now())
	return s
}

// Get returns the session with id and marks it used. A session whose
// archive changed on disk is closed and reported as ErrChanged.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.byID[strings.TrimSpace(id)]
	if ok {
		s.touch(r.now())
	}
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.Stale() {
		_ = r.Close(s.ID)
		return nil, fmt.Errorf("%w: %s", ErrChanged, s.Path)
	}
	return s, nil
}

// Resync records the archive's current state as the one the session
// matches. Call it after the session's own pages were written back over
// its archive.
func (r *Registry) Resync(id string) error {
	r.mu.Lock()
	s, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ref, err := archive.Identify(s.Path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ref = ref
	s.mu.Unlock()
	return nil
}

// Close releases a session and its staging directory.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.byPath, s.Path)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Set.Close()
}

// List returns the open sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b *Session) int { return a.Opened.Compare(b.Opened) })
	return out
}

// Sweep closes sessions idle for longer than IdleTimeout and returns how
// many it closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle())
	var expired []string
	r.mu.Lock()
	for id, s := range r.byID {
		if s.LastUsed().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	closed := 0
	for _, id := range expired {
		if err := r.Close(id); !errors.Is(err, ErrNotFound) {
			closed++
		}
	}
	if closed > 0 {
		util.OrNoop(r.Logger).Info(fmt.Sprintf("Closed %d idle editing sessions", closed))
	}
	return closed
}

func (r *Registry) idle() time.Duration {
	if r.IdleTimeout > 0 {
		return r.IdleTimeout
	}
	return DefaultIdleTimeout
}

// Run sweeps idle sessions every interval until ctx is done, then closes
// everything.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll releases every session.
func (r *Registry) CloseAll() {
	for _, s := range r.List() {
		_ = r.Close(s.ID)
	}
}
