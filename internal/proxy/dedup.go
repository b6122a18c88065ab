package proxy

import "github.com/bkochergin/snmpproxy/internal/cache"

// inflight deduplicates concurrent cache misses on the same key so that N
// simultaneous requests for an unresolved key result in one backend
// query, not N. It is a small local stand-in for golang.org/x/sync's
// singleflight, scoped to exactly the one operation the proxy needs.
type inflight struct {
	calls map[cache.Key]chan struct{}
}

func newInflight() *inflight {
	return &inflight{calls: make(map[cache.Key]chan struct{})}
}

// join returns (true, done) if the caller is the first to touch key and
// must perform the backend query itself (and later pass done to leave), or
// (false, done) if another goroutine is already doing so; done closes once
// that query completes.
func (s *Server) join(key cache.Key) (leader bool, done chan struct{}) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	if ch, ok := s.inFlight.calls[key]; ok {
		return false, ch
	}
	ch := make(chan struct{})
	s.inFlight.calls[key] = ch
	return true, ch
}

// leave signals waiters that the leader's query has finished and removes
// the bookkeeping entry.
func (s *Server) leave(key cache.Key, done chan struct{}) {
	s.inflightMu.Lock()
	delete(s.inFlight.calls, key)
	s.inflightMu.Unlock()
	close(done)
}
