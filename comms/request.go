package comms

// RequestID identifies one in-flight point-to-point operation. Identifiers
// are unique among currently in-flight requests and become eligible for
// reuse once Waitall observes their completion.
type RequestID uint32

// allocateRequestID returns a released identifier when one is available,
// otherwise the next value of the monotonic counter. Reuse order is
// unspecified: the free set is a map and the pick is whichever member map
// iteration yields first.
func (c *Communicator) allocateRequestID() RequestID {
	for id := range c.freeRequests {
		delete(c.freeRequests, id)
		return id
	}
	id := c.nextRequestID
	c.nextRequestID++
	return id
}
