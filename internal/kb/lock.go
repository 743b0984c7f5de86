package kb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Locker serializes writes to one namespace. Within a process it is a keyed
// mutex; when dir is set a flock file also excludes other processes.
type Locker struct {
	dir string

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates a locker. Lock files go to {dir}/{owner}/.{name}.lock
// when dir is not empty.
func NewLocker(dir string) *Locker {
	return &Locker{dir: dir, locks: make(map[string]*keyLock)}
}

// Lock blocks until the namespace is free and returns its release func.
func (l *Locker) Lock(owner, name string) (func(), error) {
	key := owner + "-" + name

	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()

	var fl *flock.Flock
	if l.dir != "" {
		path := filepath.Join(l.dir, owner, "."+name+".lock")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			l.release(key, kl)
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
		fl = flock.New(path)
		if err := fl.Lock(); err != nil {
			l.release(key, kl)
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if fl != nil {
				_ = fl.Unlock()
			}
			l.release(key, kl)
		})
	}, nil
}

func (l *Locker) release(key string, kl *keyLock) {
	kl.mu.Unlock()
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
