package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cortex/common"
	"cortex/llm"
)

var ErrTaskTimeout = errors.New("task timed out waiting for dispatch")

const DefaultWorkersPerProvider = 2

type Options struct {
	// QueueCap bounds each provider queue; <= 0 means unbounded.
	QueueCap int
	// WorkersPerProvider sets dispatch concurrency per provider.
	WorkersPerProvider int
	// RequestTimeout caps a single provider call made by a worker.
	RequestTimeout time.Duration
}

// Service is the LLM proxy: it owns one bounded priority queue and a fixed
// worker pool per provider, so a burst of low-priority background work can
// never starve an interactive turn.
type Service struct {
	dispatcher llm.Dispatcher
	queues     map[common.ChatProvider]*Queue
	options    Options

	mu    sync.Mutex
	tasks map[string]*Task

	wg      sync.WaitGroup
	stopped sync.Once
}

func NewService(dispatcher llm.Dispatcher, options Options) *Service {
	if options.WorkersPerProvider <= 0 {
		options.WorkersPerProvider = DefaultWorkersPerProvider
	}
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = 5 * time.Minute
	}

	s := &Service{
		dispatcher: dispatcher,
		queues:     make(map[common.ChatProvider]*Queue, len(common.AllChatProviders)),
		options:    options,
		tasks:      make(map[string]*Task),
	}
	for _, provider := range common.AllChatProviders {
		s.queues[provider] = NewQueue(options.QueueCap)
	}
	return s
}

// Start launches the worker pools. Workers run until Stop.
func (s *Service) Start(ctx context.Context) {
	for provider, queue := range s.queues {
		for i := 0; i < s.options.WorkersPerProvider; i++ {
			s.wg.Add(1)
			go s.worker(ctx, provider, queue)
		}
	}
}

// Stop closes the queues and waits for in-flight dispatches to finish.
func (s *Service) Stop() {
	s.stopped.Do(func() {
		for _, queue := range s.queues {
			queue.Close()
		}
	})
	s.wg.Wait()
}

func (s *Service) queueFor(req llm.ChatRequest) (*Queue, error) {
	provider := req.ResolveProvider()
	queue, ok := s.queues[provider]
	if !ok {
		return nil, llm.ErrUnknownProvider{Provider: provider}
	}
	return queue, nil
}

func (s *Service) track(task *Task) {
	s.mu.Lock()
	s.tasks[task.Id] = task
	s.mu.Unlock()
}

func (s *Service) untrack(taskId string) {
	s.mu.Lock()
	delete(s.tasks, taskId)
	s.mu.Unlock()
}

// Enqueue queues the request and blocks until a worker resolves it or the
// timeout elapses. On timeout the task is abandoned: it is removed from
// tracking and a worker that later pops it skips dispatch entirely.
func (s *Service) Enqueue(ctx context.Context, req llm.ChatRequest, priority Priority, timeout time.Duration) (*llm.ChatResponse, error) {
	queue, err := s.queueFor(req)
	if err != nil {
		return nil, err
	}

	task := newBlockingTask(req, priority)
	s.track(task)
	if err := queue.Push(task); err != nil {
		s.untrack(task.Id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-task.done:
		s.untrack(task.Id)
		return result.response, result.err
	case <-timer.C:
		task.abandon()
		s.untrack(task.Id)
		return nil, fmt.Errorf("%w after %s", ErrTaskTimeout, timeout)
	case <-ctx.Done():
		task.abandon()
		s.untrack(task.Id)
		return nil, ctx.Err()
	}
}

// EnqueueAsync queues the request and returns immediately with the task id.
// The callback runs on the worker goroutine when the dispatch resolves.
func (s *Service) EnqueueAsync(req llm.ChatRequest, priority Priority, callback func(*llm.ChatResponse, error)) (string, error) {
	queue, err := s.queueFor(req)
	if err != nil {
		return "", err
	}

	task := newAsyncTask(req, priority, callback)
	s.track(task)
	if err := queue.Push(task); err != nil {
		s.untrack(task.Id)
		return "", err
	}
	return task.Id, nil
}

// QueueStatus reports one provider queue's depth and how many of its
// tracked tasks are currently dispatching.
type QueueStatus struct {
	Depth   int `json:"depth"`
	Running int `json:"running"`
	Workers int `json:"workers"`
}

func (s *Service) Status() map[string]QueueStatus {
	status := make(map[string]QueueStatus, len(s.queues))
	for provider, queue := range s.queues {
		status[string(provider)] = QueueStatus{
			Depth:   queue.Len(),
			Workers: s.options.WorkersPerProvider,
		}
	}

	s.mu.Lock()
	for _, task := range s.tasks {
		if task.Status() == TaskStatusRunning {
			provider := string(task.Request.ResolveProvider())
			entry := status[provider]
			entry.Running++
			status[provider] = entry
		}
	}
	s.mu.Unlock()
	return status
}

// Task returns the snapshot of a tracked (queued or running) task.
func (s *Service) Task(id string) (TaskInfo, bool) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return TaskInfo{}, false
	}
	return task.Info(), true
}
