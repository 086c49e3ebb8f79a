package matching

// Clock issues strictly increasing sequence numbers. Order ids and FIFO
// priority keys are drawn from the same clock. It is not safe for concurrent
// use; the engine lock guards it.
type Clock struct {
	last uint64
}

// NewClock creates a clock whose first Next returns start+1.
func NewClock(start uint64) *Clock {
	return &Clock{last: start}
}

func (c *Clock) Next() uint64 {
	c.last++
	return c.last
}

// Current returns the last issued sequence number.
func (c *Clock) Current() uint64 {
	return c.last
}
