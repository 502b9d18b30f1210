package ledger

import (
	"sort"
	"sync"
)

// keyedMutex hands out one mutex per key and drops it once nobody holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyLock{}}
}

// lock acquires every key in sorted order and returns the matching unlock.
func (k *keyedMutex) lock(keys ...string) func() {
	sorted := dedupe(keys)
	held := make([]*keyLock, 0, len(sorted))
	for _, key := range sorted {
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &keyLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()
		l.mu.Lock()
		held = append(held, l)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				k.mu.Lock()
				held[i].refs--
				if held[i].refs == 0 {
					delete(k.locks, sorted[i])
				}
				k.mu.Unlock()
			}
		})
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
