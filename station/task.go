package station

import (
	"sync"
	"time"
)

// task is a periodic background job with a guaranteed cancellation path. Every
// timer in the station is owned by the state transition that ends its
// validity: disconnect cancels heartbeat and meter reporting, a transaction
// stop cancels accrual, a terminal firmware state cancels progress ticking.
type task struct {
	stop chan struct{}
	once sync.Once
}

func startTask(interval time.Duration, tick func()) *task {
	t := &task{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tick()
			case <-t.stop:
				return
			}
		}
	}()
	return t
}

func (t *task) cancel() {
	t.once.Do(func() {
		close(t.stop)
	})
}
