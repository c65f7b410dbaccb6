package ledger

import (
	"sync"
	"testing"
	"time"
)

func TestRiderLocks(t *testing.T) {
	t.Run("serializes the same rider", func(t *testing.T) {
		locks := NewRiderLocks()
		unlock := locks.Lock(1, 2)

		acquired := make(chan struct{})
		go func() {
			defer close(acquired)
			release := locks.Lock(2, 3)
			release()
		}()

		select {
		case <-acquired:
			t.Fatal("second Lock acquired rider 2 while it was held")
		case <-time.After(50 * time.Millisecond):
		}

		unlock()
		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("second Lock never acquired rider 2")
		}
	})

	t.Run("duplicate and unordered ids do not deadlock", func(t *testing.T) {
		locks := NewRiderLocks()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				locks.Lock(5, 7, 5)()
			}()
			go func() {
				defer wg.Done()
				locks.Lock(7, 5)()
			}()
		}
		wg.Wait()

		if n := locks.size(); n != 0 {
			t.Errorf("size() = %d, want 0 after all releases", n)
		}
	})
}
