package mqtt

import "log"

// outboundMsg is a serialized message held until the broker is reachable.
type outboundMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the most recent messages published while disconnected.
// Callers synchronize.
type ringBuffer struct {
	buf     []outboundMsg
	head    int // next write position
	count   int
	dropped int // total messages overwritten since creation
	warned  bool
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]outboundMsg, capacity)}
}

func (r *ringBuffer) push(msg outboundMsg) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return
	}
	// Full: the slot just written held the oldest message.
	r.dropped++
	if !r.warned {
		log.Printf("mqtt: offline buffer full (%d messages), dropping oldest", len(r.buf))
		r.warned = true
	}
}

// drain returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []outboundMsg {
	if r.count == 0 {
		return nil
	}
	out := make([]outboundMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.count = 0
	r.head = 0
	r.warned = false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
