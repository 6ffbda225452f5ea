package console

import "github.com/eapache/queue"

// DefaultCapacity is the number of messages kept when no capacity is given.
const DefaultCapacity = 1000

// Buffer is a fixed-capacity FIFO of console messages. Once full, the oldest
// message is dropped and the expired count grows by one.
type Buffer struct {
	q        *queue.Queue
	capacity int
	expired  int
	group    int
}

// NewBuffer creates a buffer. A capacity below 1 selects DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{q: queue.New(), capacity: capacity}
}

// Add appends m, or bumps the repeat count of the last message when m equals
// it. It returns the buffered message and whether m was coalesced.
func (b *Buffer) Add(m Message) (*Message, bool) {
	if m.Kind == KindEndGroup && b.group > 0 {
		b.group--
	}
	m.GroupLevel = b.group
	if m.Kind == KindStartGroup {
		b.group++
	}

	if b.q.Length() > 0 {
		last := b.q.Get(-1).(*Message)
		if last.IsEqual(&m) {
			last.RepeatCount++
			return last, true
		}
	}

	if m.RepeatCount < 1 {
		m.RepeatCount = 1
	}
	msg := &m
	if b.q.Length() >= b.capacity {
		b.q.Remove()
		b.expired++
	}
	b.q.Add(msg)
	return msg, false
}

// Messages returns the live messages, oldest first.
func (b *Buffer) Messages() []*Message {
	out := make([]*Message, b.q.Length())
	for i := range out {
		out[i] = b.q.Get(i).(*Message)
	}
	return out
}

// Len returns the number of live messages.
func (b *Buffer) Len() int { return b.q.Length() }

// Capacity returns the maximum number of live messages.
func (b *Buffer) Capacity() int { return b.capacity }

// Expired returns how many messages were dropped since the last Clear.
func (b *Buffer) Expired() int { return b.expired }

// GroupLevel returns the current group nesting depth.
func (b *Buffer) GroupLevel() int { return b.group }

// Clear drops every message and resets the expired count and group depth.
func (b *Buffer) Clear() {
	b.q = queue.New()
	b.expired = 0
	b.group = 0
}
