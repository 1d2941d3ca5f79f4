package server

import (
	"fmt"
	"sync/atomic"
)

// connStats keeps track of both currently open and total connection counts
type connStats struct {
	count atomic.Int32
	open  atomic.Int32
}

// New adds one to the total connection count
func (c *connStats) New() {
	c.count.Add(1)
}

// Open adds one to the current open connection count
func (c *connStats) Open() {
	c.open.Add(1)
}

// Close subtracts one from the current open connection count
func (c *connStats) Close() {
	c.open.Add(-1)
}

// Total is the number of connections ever accepted
func (c *connStats) Total() int32 {
	return c.count.Load()
}

func (c *connStats) String() string {
	return fmt.Sprintf("[%d/%d]", c.open.Load(), c.count.Load())
}
