package proxy

import (
	"context"
	"errors"
	"time"

	"cortex/common"

	"github.com/rs/zerolog/log"
)

func (s *Service) worker(ctx context.Context, provider common.ChatProvider, queue *Queue) {
	defer s.wg.Done()
	for {
		task, err := queue.Pop()
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) {
				log.Error().Err(err).Str("provider", string(provider)).Msg("Proxy worker failed to pop task")
			}
			return
		}
		s.dispatch(ctx, task)
	}
}

func (s *Service) dispatch(ctx context.Context, task *Task) {
	defer s.untrack(task.Id)

	if task.isAbandoned() {
		log.Debug().Str("taskId", task.Id).Msg("Skipping abandoned task")
		return
	}

	task.setStatus(TaskStatusRunning)
	start := time.Now()

	dispatchCtx, cancel := context.WithTimeout(ctx, s.options.RequestTimeout)
	response, err := s.dispatcher.Dispatch(dispatchCtx, task.Request)
	cancel()

	if err != nil {
		log.Error().Err(err).
			Str("taskId", task.Id).
			Str("model", task.Request.Model).
			Dur("elapsed", time.Since(start)).
			Msg("Dispatch failed")
	} else {
		log.Debug().
			Str("taskId", task.Id).
			Str("model", task.Request.Model).
			Int("promptTokens", response.PromptTokens).
			Int("completionTokens", response.CompletionTokens).
			Dur("elapsed", time.Since(start)).
			Msg("Dispatch completed")
	}

	if task.isAbandoned() {
		// the blocking caller already gave up; don't block on the done chan
		return
	}
	task.resolve(response, err)
}
