package dataset

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTasks_WaitDrainsConcurrentGo(t *testing.T) {
	var ts tasks
	var ran atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ts.Go(func() { ran.Add(1) })
		}()
		go func() {
			defer wg.Done()
			ts.Wait()
		}()
	}
	wg.Wait()
	ts.Wait()

	assert.Equal(t, int32(100), ran.Load())
}
