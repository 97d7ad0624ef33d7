package srv

import (
	"context"
	"time"

	"cortex/domain"
)

/* Delegates calls to the storage and streamer halves behind one Service, so
 * callers hold a single handle regardless of which backends are wired in */
type Delegator struct {
	storage  Storage
	streamer Streamer
}

func NewDelegator(storage Storage, streamer Streamer) *Delegator {
	return &Delegator{
		storage:  storage,
		streamer: streamer,
	}
}

var _ Service = (*Delegator)(nil)

/* implements Storage interface */
func (d Delegator) CheckConnection(ctx context.Context) error {
	return d.storage.CheckConnection(ctx)
}

/* implements KeyValueStorage interface */
func (d Delegator) MGet(ctx context.Context, userId string, keys []string) ([][]byte, error) {
	return d.storage.MGet(ctx, userId, keys)
}

/* implements KeyValueStorage interface */
func (d Delegator) MSet(ctx context.Context, userId string, values map[string]interface{}) error {
	return d.storage.MSet(ctx, userId, values)
}

/* implements KeyValueStorage interface */
func (d Delegator) MSetRaw(ctx context.Context, userId string, values map[string][]byte) error {
	return d.storage.MSetRaw(ctx, userId, values)
}

/* implements KeyValueStorage interface */
func (d Delegator) DeletePrefix(ctx context.Context, userId string, prefix string) error {
	return d.storage.DeletePrefix(ctx, userId, prefix)
}

/* implements KeyValueStorage interface */
func (d Delegator) GetKeysWithPrefix(ctx context.Context, userId string, prefix string) ([]string, error) {
	return d.storage.GetKeysWithPrefix(ctx, userId, prefix)
}

/* implements MessageStorage interface */
func (d Delegator) PersistMessage(ctx context.Context, message domain.Message) error {
	return d.storage.PersistMessage(ctx, message)
}

/* implements MessageStorage interface */
func (d Delegator) GetMessage(ctx context.Context, userId, messageId string) (domain.Message, error) {
	return d.storage.GetMessage(ctx, userId, messageId)
}

/* implements MessageStorage interface */
func (d Delegator) GetMessageByPlatformMsgId(ctx context.Context, userId string, platform domain.Platform, platformMsgId string) (domain.Message, error) {
	return d.storage.GetMessageByPlatformMsgId(ctx, userId, platform, platformMsgId)
}

/* implements MessageStorage interface */
func (d Delegator) GetMessages(ctx context.Context, userId string, query domain.MessageQuery) ([]domain.Message, error) {
	return d.storage.GetMessages(ctx, userId, query)
}

/* implements MessageStorage interface */
func (d Delegator) GetRecentMessages(ctx context.Context, userId string, limit int) ([]domain.Message, error) {
	return d.storage.GetRecentMessages(ctx, userId, limit)
}

/* implements MessageStorage interface */
func (d Delegator) GetUntaggedMessages(ctx context.Context, userId string, limit int) ([]domain.Message, error) {
	return d.storage.GetUntaggedMessages(ctx, userId, limit)
}

/* implements MessageStorage interface */
func (d Delegator) AssignTopic(ctx context.Context, userId, topicId string, start, end time.Time) (int64, error) {
	return d.storage.AssignTopic(ctx, userId, topicId, start, end)
}

/* implements MessageStorage interface */
func (d Delegator) GetActiveUserIds(ctx context.Context, since time.Time) ([]string, error) {
	return d.storage.GetActiveUserIds(ctx, since)
}

/* implements TopicStorage interface */
func (d Delegator) PersistTopic(ctx context.Context, topic domain.Topic) error {
	return d.storage.PersistTopic(ctx, topic)
}

/* implements TopicStorage interface */
func (d Delegator) GetTopic(ctx context.Context, userId, topicId string) (domain.Topic, error) {
	return d.storage.GetTopic(ctx, userId, topicId)
}

/* implements TopicStorage interface */
func (d Delegator) GetTopics(ctx context.Context, userId string) ([]domain.Topic, error) {
	return d.storage.GetTopics(ctx, userId)
}

/* implements TopicStorage interface */
func (d Delegator) GetRecentTopics(ctx context.Context, userId string, limit int) ([]domain.Topic, error) {
	return d.storage.GetRecentTopics(ctx, userId, limit)
}

/* implements TopicStorage interface */
func (d Delegator) DeleteTopic(ctx context.Context, userId, topicId string) error {
	return d.storage.DeleteTopic(ctx, userId, topicId)
}

/* implements TopicStorage interface */
func (d Delegator) DeleteEmptyTopics(ctx context.Context, userId string) (int64, error) {
	return d.storage.DeleteEmptyTopics(ctx, userId)
}

/* implements TopicStorage interface */
func (d Delegator) MergeTopics(ctx context.Context, userId, primaryId, finalName string, secondaryIds []string) error {
	return d.storage.MergeTopics(ctx, userId, primaryId, finalName, secondaryIds)
}

/* implements SummaryStorage interface */
func (d Delegator) PersistSummary(ctx context.Context, summary domain.Summary) error {
	return d.storage.PersistSummary(ctx, summary)
}

/* implements SummaryStorage interface */
func (d Delegator) GetSummary(ctx context.Context, userId, summaryId string) (domain.Summary, error) {
	return d.storage.GetSummary(ctx, userId, summaryId)
}

/* implements SummaryStorage interface */
func (d Delegator) GetSummaries(ctx context.Context, userId string, query domain.SummaryQuery) ([]domain.Summary, error) {
	return d.storage.GetSummaries(ctx, userId, query)
}

/* implements SummaryStorage interface */
func (d Delegator) GetRecentSummaries(ctx context.Context, userId string, limit int) ([]domain.Summary, error) {
	return d.storage.GetRecentSummaries(ctx, userId, limit)
}

/* implements SummaryStorage interface */
func (d Delegator) GetSummaryByWindow(ctx context.Context, userId string, summaryType domain.SummaryType, begin, end time.Time) (domain.Summary, error) {
	return d.storage.GetSummaryByWindow(ctx, userId, summaryType, begin, end)
}

/* implements SummaryStorage interface */
func (d Delegator) DeleteSummariesInWindow(ctx context.Context, userId string, summaryTypes []domain.SummaryType, begin, end time.Time) (int64, error) {
	return d.storage.DeleteSummariesInWindow(ctx, userId, summaryTypes, begin, end)
}

/* implements MemoryStorage interface */
func (d Delegator) PersistMemory(ctx context.Context, memory domain.Memory) error {
	return d.storage.PersistMemory(ctx, memory)
}

/* implements MemoryStorage interface */
func (d Delegator) GetMemory(ctx context.Context, userId, memoryId string) (domain.Memory, error) {
	return d.storage.GetMemory(ctx, userId, memoryId)
}

/* implements MemoryStorage interface */
func (d Delegator) GetMemories(ctx context.Context, userId string, query domain.MemoryQuery) ([]domain.Memory, error) {
	return d.storage.GetMemories(ctx, userId, query)
}

/* implements MemoryStorage interface */
func (d Delegator) DeleteMemory(ctx context.Context, userId, memoryId string) error {
	return d.storage.DeleteMemory(ctx, userId, memoryId)
}

/* implements MemoryStorage interface */
func (d Delegator) AttachMemoryTopic(ctx context.Context, userId, memoryId, topicId string) error {
	return d.storage.AttachMemoryTopic(ctx, userId, memoryId, topicId)
}

/* implements MemoryStorage interface */
func (d Delegator) GetTopicMemoryCounts(ctx context.Context, userId string, minCount int) (map[string]int, error) {
	return d.storage.GetTopicMemoryCounts(ctx, userId, minCount)
}

/* implements MemoryStorage interface */
func (d Delegator) DeleteOrphanAssociations(ctx context.Context) (int64, error) {
	return d.storage.DeleteOrphanAssociations(ctx)
}

/* implements ContactStorage interface */
func (d Delegator) PersistContact(ctx context.Context, contact domain.Contact) error {
	return d.storage.PersistContact(ctx, contact)
}

/* implements ContactStorage interface */
func (d Delegator) GetContact(ctx context.Context, contactId string) (domain.Contact, error) {
	return d.storage.GetContact(ctx, contactId)
}

/* implements ContactStorage interface */
func (d Delegator) GetContactByEndpoint(ctx context.Context, platform domain.Platform, externalId string) (domain.Contact, error) {
	return d.storage.GetContactByEndpoint(ctx, platform, externalId)
}

/* implements ContactStorage interface */
func (d Delegator) GetContacts(ctx context.Context) ([]domain.Contact, error) {
	return d.storage.GetContacts(ctx)
}

/* implements ContactStorage interface */
func (d Delegator) DeleteContact(ctx context.Context, contactId string) error {
	return d.storage.DeleteContact(ctx, contactId)
}

/* implements LastSeenStorage interface */
func (d Delegator) UpdateLastSeen(ctx context.Context, lastSeen domain.LastSeen) error {
	return d.storage.UpdateLastSeen(ctx, lastSeen)
}

/* implements LastSeenStorage interface */
func (d Delegator) GetLastSeen(ctx context.Context, userId string, platform domain.Platform) (domain.LastSeen, error) {
	return d.storage.GetLastSeen(ctx, userId, platform)
}

/* implements TurnEventStreamer interface */
func (d Delegator) AddTurnEvent(ctx context.Context, event domain.TurnEvent) error {
	return d.streamer.AddTurnEvent(ctx, event)
}

/* implements TurnEventStreamer interface */
func (d Delegator) GetTurnEvents(ctx context.Context, userId, streamMessageStartId string, maxCount int64, blockDuration time.Duration) ([]domain.TurnEvent, string, error) {
	return d.streamer.GetTurnEvents(ctx, userId, streamMessageStartId, maxCount, blockDuration)
}

/* implements TurnEventStreamer interface */
func (d Delegator) StreamTurnEvents(ctx context.Context, userId, streamMessageStartId string) (<-chan domain.TurnEvent, <-chan error) {
	return d.streamer.StreamTurnEvents(ctx, userId, streamMessageStartId)
}
