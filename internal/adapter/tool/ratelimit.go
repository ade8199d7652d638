package tool

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterSet holds one token-bucket limiter per remote tool. Each tool
// gets the full per-minute allowance independently.
type limiterSet struct {
	mu       sync.Mutex
	perMin   int
	limiters map[string]*rate.Limiter
}

func newLimiterSet(perMin int) *limiterSet {
	if perMin <= 0 {
		return nil
	}
	return &limiterSet{
		perMin:   perMin,
		limiters: make(map[string]*rate.Limiter),
	}
}

// allow reports whether a call to the named tool fits under its limit,
// consuming one token if it does.
func (s *limiterSet) allow(name string) bool {
	s.mu.Lock()
	l, ok := s.limiters[name]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.perMin)
		s.limiters[name] = l
	}
	s.mu.Unlock()
	return l.Allow()
}
