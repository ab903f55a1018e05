package scheduler

import (
	"container/heap"
	"time"
)

// entry is a ScheduleEntry: the instant a game's current ply closes.
type entry struct {
	deadline time.Time
	id       int64
	// Position in the heap, maintained by the heap.Interface methods.
	index int
}

// queue is a min-heap of entries ordered by deadline, then by game ID.
type queue []*entry

var _ heap.Interface = (*queue)(nil)

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].id < q[j].id
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

func (q queue) peek() *entry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
