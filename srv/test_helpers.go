package srv

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"cortex/domain"
	"cortex/srv/sqlite"

	_ "modernc.org/sqlite"
)

// MemoryStreamer implements Streamer with in-memory storage for testing
type MemoryStreamer struct {
	mu        sync.RWMutex
	events    map[string][]domain.TurnEvent // keyed by userId
	listeners map[string][]chan domain.TurnEvent
}

func NewMemoryStreamer() *MemoryStreamer {
	return &MemoryStreamer{
		events:    make(map[string][]domain.TurnEvent),
		listeners: make(map[string][]chan domain.TurnEvent),
	}
}

var _ Streamer = (*MemoryStreamer)(nil)

func (m *MemoryStreamer) AddTurnEvent(ctx context.Context, event domain.TurnEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.UserId] = append(m.events[event.UserId], event)
	for _, listener := range m.listeners[event.UserId] {
		select {
		case listener <- event:
		default:
		}
	}
	return nil
}

func (m *MemoryStreamer) GetTurnEvents(ctx context.Context, userId, streamMessageStartId string, maxCount int64, blockDuration time.Duration) ([]domain.TurnEvent, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if streamMessageStartId != "" && streamMessageStartId != "0" && streamMessageStartId != "$" {
		parsed, err := strconv.Atoi(streamMessageStartId)
		if err != nil {
			return nil, "", fmt.Errorf("invalid stream message start id: %w", err)
		}
		start = parsed
	}
	all := m.events[userId]
	if streamMessageStartId == "$" {
		start = len(all)
	}
	if start > len(all) {
		start = len(all)
	}
	events := all[start:]
	if maxCount > 0 && int64(len(events)) > maxCount {
		events = events[:maxCount]
	}
	return events, strconv.Itoa(start + len(events)), nil
}

func (m *MemoryStreamer) StreamTurnEvents(ctx context.Context, userId, streamMessageStartId string) (<-chan domain.TurnEvent, <-chan error) {
	eventCh := make(chan domain.TurnEvent, 100)
	errCh := make(chan error, 1)

	m.mu.Lock()
	for _, event := range m.events[userId] {
		eventCh <- event
	}
	m.listeners[userId] = append(m.listeners[userId], eventCh)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		listeners := m.listeners[userId]
		for i, listener := range listeners {
			if listener == eventCh {
				m.listeners[userId] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(eventCh)
		close(errCh)
	}()

	return eventCh, errCh
}

// NewTestService returns a Delegator backed by in-memory sqlite storage and
// an in-memory streamer.
func NewTestService(t *testing.T) *Delegator {
	return NewDelegator(sqlite.NewTestStorage(t), NewMemoryStreamer())
}
