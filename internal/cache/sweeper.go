package cache

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Sweeper drives a Cache's periodic eviction on a robfig/cron schedule,
// the same scheduling library the teacher lineage uses for periodic
// trap-emission jobs, applied here to periodic cache maintenance instead.
type Sweeper struct {
	cache *Cache
	cron  *cron.Cron
}

// NewSweeper builds a Sweeper that runs c.Sweep() once per cache TTL. After
// each sweep, onSweep is called with the post-sweep entry count so a caller
// can keep an external gauge (e.g. the cache-entries metric) in step with
// evictions rather than only with inserts. onSweep may be nil. The sweeper
// is not started until Start is called.
func NewSweeper(c *Cache, onSweep func(size int)) (*Sweeper, error) {
	sched := cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %ds", int(c.TTL().Seconds()))
	if _, err := sched.AddFunc(spec, func() {
		if n := c.Sweep(); n > 0 {
			log.Printf("cache sweeper: evicted %d stale entries", n)
		}
		if onSweep != nil {
			onSweep(c.Len())
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule cache sweep: %w", err)
	}
	return &Sweeper{cache: c, cron: sched}, nil
}

// Start launches the sweeper's own thread of control. It returns
// immediately; the schedule runs until Stop is called.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the sweeper, waiting for any in-progress sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
