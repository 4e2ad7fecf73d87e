package annotation

import (
	"strconv"
	"sync"
	"time"
)

// Clock issues millisecond timestamps as ids. Ids are strictly increasing
// even when several are requested within the same millisecond.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewClock creates a clock reading now, or time.Now when nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns a fresh id and the instant it encodes.
func (c *Clock) Next() (int64, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.now().UnixMilli()
	if id <= c.last {
		id = c.last + 1
	}
	c.last = id
	return id, time.UnixMilli(id).UTC()
}

// Observe moves the clock past an id loaded from persistence.
func (c *Clock) Observe(id int64) {
	c.mu.Lock()
	if id > c.last {
		c.last = id
	}
	c.mu.Unlock()
}

// JobID returns a default job id in the job-<unix ms> form.
func (c *Clock) JobID() string {
	id, _ := c.Next()
	return "job-" + strconv.FormatInt(id, 10)
}
