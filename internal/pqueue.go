// Priority queue over tasks: a min-heap keyed by Task.ExecutionTime with
// FIFO tie-break. The heap is its own type so the Scheduler can own one
// without also exposing heap.Interface on itself.

package wdinternal

import "container/heap"

// taskHeap implements heap.Interface over *Task, ordered soonest-first with
// insertion-sequence tie-break.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	c := h[i].Compare(h[j])
	if c != 0 {
		return c > 0 // Compare > 0 means h[i] fires sooner.
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*Task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}

// PQueue is a multiset of tasks ordered by earliest next-fire time first,
// ties broken by insertion order.
type PQueue struct {
	heap    taskHeap
	nextSeq uint64
}

// NewPQueue returns an empty priority queue.
func NewPQueue() *PQueue {
	pq := &PQueue{heap: make(taskHeap, 0)}
	heap.Init(&pq.heap)
	return pq
}

// Enqueue inserts task in order; among tasks with equal fire time, the one
// enqueued first is dequeued first.
func (q *PQueue) Enqueue(task *Task) {
	q.nextSeq++
	task.seq = q.nextSeq
	heap.Push(&q.heap, task)
}

// Dequeue removes and returns the soonest-firing task. Calling Dequeue on an
// empty queue is the caller's error; it returns nil.
func (q *PQueue) Dequeue() *Task {
	if len(q.heap) == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*Task)
}

// Peek returns the soonest-firing task without removing it, or nil if the
// queue is empty.
func (q *PQueue) Peek() *Task {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

// EraseIf scans earliest-enqueued-first and removes the first task for
// which predicate returns true, returning it (or nil if none matched). The
// caller is responsible for the task's Destroy; EraseIf only detaches it
// from the queue.
func (q *PQueue) EraseIf(predicate func(*Task) bool) *Task {
	order := q.heap.byInsertionOrder()
	for _, idx := range order {
		task := q.heap[idx]
		if predicate(task) {
			heap.Remove(&q.heap, idx)
			return task
		}
	}
	return nil
}

// byInsertionOrder returns the current heap slice indices ordered by the
// tasks' insertion sequence, so EraseIf honors "scan from earliest-enqueued
// side" regardless of the heap's internal array layout.
func (h taskHeap) byInsertionOrder() []int {
	order := make([]int, len(h))
	for i := range order {
		order[i] = i
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && h[order[j-1]].seq > h[order[j]].seq; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
	return order
}

// Size returns the number of queued tasks.
func (q *PQueue) Size() int {
	return len(q.heap)
}

// IsEmpty reports whether the queue holds no tasks.
func (q *PQueue) IsEmpty() bool {
	return len(q.heap) == 0
}

// Clear removes every task from the queue, invoking Destroy on each.
func (q *PQueue) Clear() {
	for _, task := range q.heap {
		task.Destroy()
	}
	q.heap = q.heap[:0]
}
