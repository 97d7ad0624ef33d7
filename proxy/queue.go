package proxy

import (
	"container/heap"
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("queue is full")
var ErrQueueClosed = errors.New("queue is closed")

type queueItem struct {
	task *Task
	seq  uint64
}

// taskHeap orders by (priority desc, seq asc): higher priority first, FIFO
// within a priority level.
type taskHeap []queueItem

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(queueItem)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is a bounded priority queue for one provider. Pop blocks until a
// task arrives or the queue is closed.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   taskHeap
	cap    int
	seq    uint64
	closed bool
}

// NewQueue creates a queue holding at most cap tasks; cap <= 0 means
// unbounded.
func NewQueue(cap int) *Queue {
	q := &Queue{cap: cap}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.cap > 0 && len(q.heap) >= q.cap {
		return ErrQueueFull
	}
	q.seq++
	heap.Push(&q.heap, queueItem{task: task, seq: q.seq})
	q.cond.Signal()
	return nil
}

// Pop returns the next task, blocking while the queue is empty. It returns
// ErrQueueClosed once the queue is closed and drained.
func (q *Queue) Pop() (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) == 0 {
		if q.closed {
			return nil, ErrQueueClosed
		}
		q.cond.Wait()
	}
	item := heap.Pop(&q.heap).(queueItem)
	return item.task, nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Close wakes all blocked Pop calls. Queued tasks still drain.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
