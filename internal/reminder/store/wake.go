package store

// WakeSignal is a best-effort broadcast with exactly one consumer: the
// dispatch loop. The store fires it whenever a newly written entry could
// shorten the loop's current sleep.
//
// A missed signal is not an error. The loop bounds its own maximum idle
// sleep, so correctness never depends on the signal being observed, only
// latency does.
type WakeSignal struct {
	ch chan struct{}
}

func NewWakeSignal() *WakeSignal {
	// Capacity 1: one pending signal is enough, the consumer re-reads the
	// store's state after every wake anyway.
	return &WakeSignal{ch: make(chan struct{}, 1)}
}

// Fire signals the consumer without blocking. A signal already pending
// coalesces with this one.
func (w *WakeSignal) Fire() {
	if w == nil {
		return
	}
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the consumer selects on.
func (w *WakeSignal) C() <-chan struct{} { return w.ch }
