package transport

import (
	"container/heap"

	"github.com/regenmon/regentheme"
)

type event struct {
	id       ID
	tick     regentheme.Ticks
	interval regentheme.Ticks // 0 = fire once
	cb       Callback
}

// eventQueue is a min-heap ordered by tick; ties go to the callback that was
// scheduled first.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].tick != q[j].tick {
		return q[i].tick < q[j].tick
	}
	return q[i].id < q[j].id
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

func (q *eventQueue) push(e *event) { heap.Push(q, e) }

func (q *eventQueue) pop() *event { return heap.Pop(q).(*event) }

func (q *eventQueue) remove(id ID) {
	for i, e := range *q {
		if e.id == id {
			heap.Remove(q, i)
			return
		}
	}
}
