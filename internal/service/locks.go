package service

import "sync"

// keyedMutex provides single-writer semantics per identifier without any
// cross-identifier contention. Mutexes are kept for the process lifetime;
// identifiers are small integers so the map stays bounded by the working set.
type keyedMutex struct {
	mu sync.Map // int64 -> *sync.Mutex
}

func (k *keyedMutex) lock(id int64) func() {
	v, _ := k.mu.LoadOrStore(id, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
