package pipeline

import "sync"

// Signal is a one-way termination flag shared by the pipeline workers.
// Set is idempotent; once set it never resets. Both workers poll it
// cooperatively, so shutdown latency is bounded by one loop iteration.
type Signal struct {
	once sync.Once
	done chan struct{}
}

// NewSignal creates an unset signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set raises the signal. Safe to call any number of times from any goroutine.
func (s *Signal) Set() {
	s.once.Do(func() { close(s.done) })
}

// IsSet reports whether the signal has been raised.
func (s *Signal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the signal is raised, for use in select.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
