package domain

import (
	"context"
	"fmt"
	"time"
)

// TurnState tracks one inbound message through the orchestrator pipeline.
type TurnState string

const (
	TurnStateReceived   TurnState = "received"
	TurnStateResolved   TurnState = "resolved"
	TurnStatePreIntent  TurnState = "pre_intent"
	TurnStateEnriched   TurnState = "enriched"
	TurnStateDispatched TurnState = "dispatched"
	TurnStatePostIntent TurnState = "post_intent"
	TurnStatePersisted  TurnState = "persisted"
	TurnStateDone       TurnState = "done"
	TurnStateFailed     TurnState = "failed"
)

var AllTurnStates = []TurnState{
	TurnStateReceived,
	TurnStateResolved,
	TurnStatePreIntent,
	TurnStateEnriched,
	TurnStateDispatched,
	TurnStatePostIntent,
	TurnStatePersisted,
	TurnStateDone,
	TurnStateFailed,
}

// IsTerminal reports whether a turn in this state is finished.
func (s TurnState) IsTerminal() bool {
	return s == TurnStateDone || s == TurnStateFailed
}

func StringToTurnState(s string) (TurnState, error) {
	for _, state := range AllTurnStates {
		if s == string(state) {
			return state, nil
		}
	}
	return "", fmt.Errorf("invalid TurnState: \"%s\"", s)
}

// TurnEvent is one state transition of one turn, published to the turn
// event stream as it happens.
type TurnEvent struct {
	TurnId    string    `json:"turnId"`
	UserId    string    `json:"userId"`
	Platform  Platform  `json:"platform"`
	State     TurnState `json:"state"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnEventStreamer defines the interface for turn-event stream operations.
type TurnEventStreamer interface {
	AddTurnEvent(ctx context.Context, event TurnEvent) error
	// GetTurnEvents reads events for a user starting after the given stream
	// position, blocking up to blockDuration when none are pending. It
	// returns the events plus the continuation position.
	GetTurnEvents(ctx context.Context, userId, streamMessageStartId string, maxCount int64, blockDuration time.Duration) ([]TurnEvent, string, error)
	// StreamTurnEvents continuously delivers a user's turn events until ctx
	// is done.
	StreamTurnEvents(ctx context.Context, userId, streamMessageStartId string) (<-chan TurnEvent, <-chan error)
}
