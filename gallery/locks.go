package gallery

import "sync"

// idLock serializes content operations per screenshot while letting
// different screenshots proceed in parallel.
type idLock struct {
	locks sync.Map // map[int64]*sync.Mutex
}

func (l *idLock) acquire(id int64) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m
}

// forget drops the mutex of a removed screenshot
func (l *idLock) forget(id int64) {
	l.locks.Delete(id)
}
