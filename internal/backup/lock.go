package backup

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// keyedMutex hands out one mutex per key, dropping it once nobody holds it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

const lockRetry = 25 * time.Millisecond

// lockFile takes an exclusive advisory lock next to the backups of one
// original, so that separate processes serialize too.
func lockFile(ctx context.Context, dir, base string) (func(), error) {
	fl := flock.New(filepath.Join(dir, "."+base+".lock"))
	ok, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, context.Cause(ctx)
	}
	return func() { _ = fl.Unlock() }, nil
}
