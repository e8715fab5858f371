// Package queue implements the bounded hand-off queue between ingestion
// lanes and the consumer.
package queue

import (
	"fmt"

	"go.uber.org/atomic"
	"golang.org/x/sys/cpu"

	"firestige.xyz/sourcewatch/internal/core"
)

const (
	// DefaultName is the logical name shared by producers and the consumer.
	DefaultName = "SOURCE_ADDR_QUEUE"
	// DefaultCapacity is the slot count used when none is configured.
	DefaultCapacity = 1024
)

// slot holds one record. seq encodes the slot state relative to the ring
// position: seq == 2*pos means free for the producer at pos, seq == 2*pos+1
// means filled and ready for the consumer at pos. The doubled encoding keeps
// the two states distinct even for a single-slot queue.
type slot struct {
	seq atomic.Uint64
	rec core.SourceAddr
}

// Queue is a fixed-capacity FIFO of SourceAddr records.
//
// Push is lock-free and safe for any number of concurrent producers; it
// never blocks and never allocates. Pop must only be called from a single
// consumer goroutine. Records from one producer come out in the order that
// producer pushed them; no order is defined across producers.
type Queue struct {
	name  string
	slots []slot
	size  uint64

	_    cpu.CacheLinePad
	head atomic.Uint64 // next position to push
	_    cpu.CacheLinePad
	tail atomic.Uint64 // next position to pop
	_    cpu.CacheLinePad

	drops atomic.Uint64
}

// New creates a queue holding up to capacity records.
func New(name string, capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: queue capacity must be positive, got %d", core.ErrConfigInvalid, capacity)
	}
	if name == "" {
		name = DefaultName
	}

	q := &Queue{
		name:  name,
		slots: make([]slot, capacity),
		size:  uint64(capacity),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(2 * uint64(i))
	}
	return q, nil
}

// Push appends rec. On a full queue it returns core.ErrQueueFull right away
// and rec is lost.
func (q *Queue) Push(rec core.SourceAddr) error {
	pos := q.head.Load()
	for {
		s := &q.slots[pos%q.size]
		seq := s.seq.Load()

		switch diff := int64(seq - 2*pos); {
		case diff == 0:
			// Slot is free at our position; claim it.
			if q.head.CompareAndSwap(pos, pos+1) {
				s.rec = rec
				s.seq.Store(2*pos + 1)
				return nil
			}
			pos = q.head.Load()
		case diff < 0:
			// The consumer has not released this slot yet: one full lap behind.
			q.drops.Inc()
			return core.ErrQueueFull
		default:
			// Another producer claimed pos first.
			pos = q.head.Load()
		}
	}
}

// Pop removes and returns the oldest record. ok is false when the queue is
// empty.
func (q *Queue) Pop() (rec core.SourceAddr, ok bool) {
	pos := q.tail.Load()
	s := &q.slots[pos%q.size]
	if s.seq.Load() != 2*pos+1 {
		// Empty, or the producer at pos has claimed but not yet filled it.
		return core.SourceAddr{}, false
	}

	rec = s.rec
	s.seq.Store(2 * (pos + q.size))
	q.tail.Store(pos + 1)
	return rec, true
}

// Len returns an approximate number of queued records.
func (q *Queue) Len() int {
	head, tail := q.head.Load(), q.tail.Load()
	if head <= tail {
		return 0
	}
	n := head - tail
	if n > q.size {
		n = q.size
	}
	return int(n)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return int(q.size) }

// Name returns the logical queue name.
func (q *Queue) Name() string { return q.name }

// Drops returns how many pushes were rejected with ErrQueueFull.
func (q *Queue) Drops() uint64 { return q.drops.Load() }
