package srv

import (
	"context"
	"testing"
	"time"

	"cortex/common"
	"cortex/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelegatorStorageDelegation(t *testing.T) {
	service := NewTestService(t)
	ctx := context.Background()

	message := domain.Message{
		Id:       "msg-1",
		UserId:   "user-1",
		Platform: domain.PlatformApi,
		Role:     common.ChatMessageRoleUser,
		Content:  "hello",
		Created:  time.Now().UTC(),
	}
	require.NoError(t, service.PersistMessage(ctx, message))

	retrieved, err := service.GetMessage(ctx, "user-1", "msg-1")
	assert.NoError(t, err)
	assert.Equal(t, message, retrieved)

	assert.NoError(t, service.CheckConnection(ctx))
}

func TestDelegatorStreamerDelegation(t *testing.T) {
	service := NewTestService(t)
	ctx := context.Background()

	event := domain.TurnEvent{
		TurnId:    "turn-1",
		UserId:    "user-1",
		Platform:  domain.PlatformApi,
		State:     domain.TurnStateReceived,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, service.AddTurnEvent(ctx, event))

	events, _, err := service.GetTurnEvents(ctx, "user-1", "0", 10, 0)
	assert.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event, events[0])
}
