package proxy

import (
	"sync/atomic"
	"time"

	"cortex/llm"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
)

// Priority orders tasks within a provider queue. Higher values dispatch
// first; equal priorities dispatch in arrival order.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

type taskResult struct {
	response *llm.ChatResponse
	err      error
}

// Task is one queued dispatch. Completion is delivered through exactly one
// of two channels chosen at creation: a blocking caller waits on done, an
// async caller registers a callback. The worker resolves without caring
// which was chosen.
type Task struct {
	Id        string
	Priority  Priority
	Request   llm.ChatRequest
	CreatedAt time.Time

	status atomic.Value // TaskStatus

	// abandoned is set when a blocking caller times out; the worker skips
	// the task instead of dispatching into the void.
	abandoned atomic.Bool

	done     chan taskResult
	callback func(*llm.ChatResponse, error)
}

func newBlockingTask(req llm.ChatRequest, priority Priority) *Task {
	t := &Task{
		Id:        uuid.New().String(),
		Priority:  priority,
		Request:   req,
		CreatedAt: time.Now().UTC(),
		done:      make(chan taskResult, 1),
	}
	t.status.Store(TaskStatusQueued)
	return t
}

func newAsyncTask(req llm.ChatRequest, priority Priority, callback func(*llm.ChatResponse, error)) *Task {
	t := &Task{
		Id:        uuid.New().String(),
		Priority:  priority,
		Request:   req,
		CreatedAt: time.Now().UTC(),
		callback:  callback,
	}
	t.status.Store(TaskStatusQueued)
	return t
}

func (t *Task) Status() TaskStatus {
	return t.status.Load().(TaskStatus)
}

func (t *Task) setStatus(status TaskStatus) {
	t.status.Store(status)
}

func (t *Task) abandon() {
	t.abandoned.Store(true)
}

func (t *Task) isAbandoned() bool {
	return t.abandoned.Load()
}

// resolve delivers the outcome through whichever completion channel the
// task was created with.
func (t *Task) resolve(response *llm.ChatResponse, err error) {
	if err != nil {
		t.setStatus(TaskStatusFailed)
	} else {
		t.setStatus(TaskStatusDone)
	}
	if t.callback != nil {
		t.callback(response, err)
		return
	}
	// an async task registered without a callback has nowhere to deliver;
	// the status update above is its whole outcome
	if t.done != nil {
		t.done <- taskResult{response: response, err: err}
	}
}

// TaskInfo is the observable snapshot returned by the status API.
type TaskInfo struct {
	Id        string     `json:"id"`
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
	Priority  Priority   `json:"priority"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (t *Task) Info() TaskInfo {
	return TaskInfo{
		Id:        t.Id,
		Provider:  string(t.Request.ResolveProvider()),
		Model:     t.Request.Model,
		Priority:  t.Priority,
		Status:    t.Status(),
		CreatedAt: t.CreatedAt,
	}
}
