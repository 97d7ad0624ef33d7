package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cortex/domain"

	"github.com/nats-io/nats.go/jetstream"
)

// Streamer is a JetStream-based turn-event streamer
var _ domain.TurnEventStreamer = (*Streamer)(nil)

func (s *Streamer) AddTurnEvent(ctx context.Context, event domain.TurnEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal turn event: %w", err)
	}

	subject := fmt.Sprintf("turns.%s", event.UserId)
	_, err = s.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish turn event: %w", err)
	}

	return nil
}

func (s *Streamer) GetTurnEvents(ctx context.Context, userId, streamMessageStartId string, maxCount int64, blockDuration time.Duration) ([]domain.TurnEvent, string, error) {
	if maxCount == 0 {
		maxCount = 100
	}

	// default to starting from the end of the stream for turn events
	if streamMessageStartId == "" {
		streamMessageStartId = "$"
	}

	subject := fmt.Sprintf("turns.%s", userId)

	consumer, err := s.createConsumer(ctx, subject, streamMessageStartId)
	if err != nil {
		return nil, "", err
	}

	var msgs jetstream.MessageBatch
	if blockDuration == 0 {
		msgs, err = consumer.FetchNoWait(int(maxCount))
	} else {
		msgs, err = consumer.Fetch(int(maxCount), jetstream.FetchMaxWait(blockDuration))
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch messages: %w", err)
	}

	var events []domain.TurnEvent
	var lastSequence uint64

	for msg := range msgs.Messages() {
		var event domain.TurnEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal turn event: %w", err)
		}
		events = append(events, event)
		msg.Ack()

		meta, err := msg.Metadata()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get message metadata: %w", err)
		}
		lastSequence = meta.Sequence.Stream
	}

	if len(events) == 0 {
		return events, streamMessageStartId, nil
	}
	return events, fmt.Sprintf("%d", lastSequence+1), nil
}

func (s *Streamer) StreamTurnEvents(ctx context.Context, userId, streamMessageStartId string) (<-chan domain.TurnEvent, <-chan error) {
	eventCh := make(chan domain.TurnEvent)
	errCh := make(chan error, 1)

	subject := fmt.Sprintf("turns.%s", userId)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		consumer, err := s.createConsumer(ctx, subject, streamMessageStartId)
		if err != nil {
			errCh <- err
			return
		}

		var consContext jetstream.ConsumeContext
		consContext, err = consumer.Consume(func(msg jetstream.Msg) {
			var event domain.TurnEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				errCh <- fmt.Errorf("failed to unmarshal turn event: %w", err)
				return
			}

			select {
			case eventCh <- event:
				msg.Ack()
			case <-ctx.Done():
			}
		})
		if err != nil {
			errCh <- fmt.Errorf("failed to consume messages: %w", err)
			return
		}
		defer consContext.Stop()

		select {
		case <-consContext.Closed():
		case <-ctx.Done():
		}
	}()

	return eventCh, errCh
}

func (s *Streamer) createConsumer(ctx context.Context, subject, streamMessageStartId string) (jetstream.Consumer, error) {
	var deliveryPolicy jetstream.DeliverPolicy
	var startSeq uint64

	if streamMessageStartId == "" || streamMessageStartId == "0" {
		deliveryPolicy = jetstream.DeliverAllPolicy
	} else if streamMessageStartId == "$" {
		deliveryPolicy = jetstream.DeliverNewPolicy
	} else {
		deliveryPolicy = jetstream.DeliverByStartSequencePolicy
		var err error
		startSeq, err = strconv.ParseUint(streamMessageStartId, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stream message start id: %w", err)
		}
	}

	consumer, err := s.js.OrderedConsumer(ctx, PersistentStreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects:    []string{subject},
		InactiveThreshold: 5 * time.Minute,
		DeliverPolicy:     deliveryPolicy,
		OptStartSeq:       startSeq,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return consumer, nil
}
