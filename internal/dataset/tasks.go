package dataset

import "sync"

// tasks tracks background goroutines. Go and Wait are serialized so a
// goroutine is never added while Wait is draining.
type tasks struct {
	mu sync.Mutex
	wg sync.WaitGroup
}

// Go runs fn in a new goroutine. It blocks while Wait is in progress.
func (t *tasks) Go(fn func()) {
	t.mu.Lock()
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		fn()
	}()
}

// Wait blocks until every goroutine started by Go has returned. fn must
// not call Go on the same tasks.
func (t *tasks) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wg.Wait()
}
