package jetstream

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type Streamer struct {
	js jetstream.JetStream
}

// PersistentStreamName holds the turn-event history. Turn events are kept on
// disk so a reconnecting client can replay a turn's lifecycle.
const PersistentStreamName = "CORTEX_TURNS"

func NewStreamer(nc *nats.Conn) (*Streamer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Ensure the turns stream exists (this is idempotent)
	_, err = js.CreateOrUpdateStream(context.Background(), jetstream.StreamConfig{
		Name:     PersistentStreamName,
		Subjects: []string{"turns.*"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil && err != jetstream.ErrStreamNameAlreadyInUse {
		return nil, fmt.Errorf("failed to create turns stream: %w", err)
	}

	return &Streamer{js: js}, nil
}
