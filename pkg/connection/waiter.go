package connection

import "sync"

// Waiter is a one-shot notification for the next entry into StateConnected.
type Waiter struct {
	id   uint64
	conn *Connection
	ch   chan string
	once sync.Once
}

// C delivers the connection ID once, then is closed. It is closed without a
// value if the waiter is stopped or the connection is closed.
func (w *Waiter) C() <-chan string {
	return w.ch
}

// Stop detaches the waiter. It reports whether the waiter was detached
// before firing.
func (w *Waiter) Stop() bool {
	if !w.conn.detachWaiter(w.id) {
		return false
	}
	w.once.Do(func() { close(w.ch) })
	return true
}

func (w *Waiter) fire(connID string) {
	w.once.Do(func() {
		w.ch <- connID
		close(w.ch)
	})
}

func (w *Waiter) cancel() {
	w.once.Do(func() { close(w.ch) })
}
