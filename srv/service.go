package srv

import (
	"context"

	"cortex/common"
	"cortex/domain"
)

type Service interface {
	Storage
	Streamer
}

type Storage interface {
	domain.MessageStorage
	domain.TopicStorage
	domain.SummaryStorage
	domain.MemoryStorage
	domain.ContactStorage
	domain.LastSeenStorage
	common.KeyValueStorage

	CheckConnection(ctx context.Context) error
}

type Streamer interface {
	domain.TurnEventStreamer
}
