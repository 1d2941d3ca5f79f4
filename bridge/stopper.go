package bridge

import "sync"

// outcome is how one direction of a bridge finished.
type outcome struct {
	direction string
	err       error
}

// stopper records the first outcome reported by a set of goroutines.  It is
// basically a protected boolean with functionality to set and wait,
// plus the value carried by whichever call set it.
type stopper struct {
	cond    sync.Cond
	stopped bool
	first   outcome
}

func newStopper() *stopper {
	return &stopper{
		cond: sync.Cond{L: &sync.Mutex{}},
	}
}

// stop sets this stopper with the given outcome.  This can be called multiple
// times, and only the first call will have any effect; it reports whether
// this call was the first.
func (s *stopper) stop(o outcome) bool {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	if s.stopped {
		return false
	}
	s.stopped = true
	s.first = o
	s.cond.Broadcast()
	return true
}

// wait for this stopper to stop, returning the first outcome
func (s *stopper) wait() outcome {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	for !s.stopped {
		s.cond.Wait()
	}
	return s.first
}
