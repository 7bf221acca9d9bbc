package component

// InputCache is a per-port FIFO for components that pair inputs arriving
// in different firings.
type InputCache struct {
	queues map[string][]any
}

// NewInputCache creates an empty cache.
func NewInputCache() *InputCache {
	return &InputCache{queues: make(map[string][]any)}
}

// Add queues a value on port.
func (c *InputCache) Add(port string, v any) {
	c.queues[port] = append(c.queues[port], v)
}

// Peek returns the oldest value on port without removing it.
func (c *InputCache) Peek(port string) (any, bool) {
	q := c.queues[port]
	if len(q) == 0 {
		return nil, false
	}
	return q[0], true
}

// Pop removes and returns the oldest value on port.
func (c *InputCache) Pop(port string) (any, bool) {
	q := c.queues[port]
	if len(q) == 0 {
		return nil, false
	}
	v := q[0]
	q[0] = nil
	c.queues[port] = q[1:]
	return v, true
}

// Len returns the number of values queued on port.
func (c *InputCache) Len(port string) int {
	return len(c.queues[port])
}

// Empty reports whether nothing is queued on port.
func (c *InputCache) Empty(port string) bool {
	return c.Len(port) == 0
}

// Clear drops every queued value.
func (c *InputCache) Clear() {
	clear(c.queues)
}
