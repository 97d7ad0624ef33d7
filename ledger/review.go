package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cortex/domain"
	"cortex/llm"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

const reviewPromptTemplate = `Below is a conversation log between a user and their assistant. Each line is prefixed with its timestamp.

Identify the major topic shifts in the log and any durable facts about the user worth remembering.

Respond with JSON only, in this shape:
{
  "topics": [
    {
      "topic": "short topic name",
      "start": "timestamp of the first message of the topic",
      "end": "timestamp of the last message of the topic",
      "memories": [
        {"text": "a durable fact about the user", "keywords": ["lowercase", "keywords"], "category": "one of: %s"}
      ]
    }
  ]
}

Use the timestamps exactly as they appear in the log. A topic may have zero memories.

LOG:
%s`

const reviewUntaggedLimit = 200
const reviewTopicTailLimit = 20

type reviewMemory struct {
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
	Category string   `json:"category"`
}

type reviewTopic struct {
	Topic    string         `json:"topic"`
	Start    string         `json:"start"`
	End      string         `json:"end"`
	Memories []reviewMemory `json:"memories"`
}

type reviewResponse struct {
	Topics []reviewTopic `json:"topics"`
}

// ReviewLog runs the topic-and-memory distillation pass for every recently
// active user: untagged messages are grouped into topics and durable facts
// are extracted as memories attached to those topics.
func (s *Service) ReviewLog(ctx context.Context) error {
	userIds, err := s.storage.GetActiveUserIds(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil {
		return fmt.Errorf("failed to list active users: %w", err)
	}

	for _, userId := range userIds {
		if err := s.ReviewUserLog(ctx, userId); err != nil {
			// one user's failure doesn't block the rest
			log.Error().Err(err).Str("userId", userId).Msg("Log review failed for user")
		}
	}
	return nil
}

// ReviewUserLog reviews a single user's untagged messages. The tail of the
// most recent topic is included as context so the model can tell whether the
// conversation continued an existing thread or started a new one.
func (s *Service) ReviewUserLog(ctx context.Context, userId string) error {
	untagged, err := s.storage.GetUntaggedMessages(ctx, userId, reviewUntaggedLimit)
	if err != nil {
		return fmt.Errorf("failed to load untagged messages: %w", err)
	}
	if len(untagged) == 0 {
		return nil
	}

	transcript := s.reviewTranscript(ctx, userId, untagged)
	categories := make([]string, len(domain.AllMemoryCategories))
	for i, category := range domain.AllMemoryCategories {
		categories[i] = string(category)
	}

	answer, err := s.complete(ctx, fmt.Sprintf(reviewPromptTemplate, strings.Join(categories, ", "), transcript))
	if err != nil {
		return fmt.Errorf("review LLM call failed: %w", err)
	}

	var parsed reviewResponse
	if err := json.Unmarshal([]byte(llm.RepairJson(answer)), &parsed); err != nil {
		// malformed answer: skip this pass, never retry in place
		log.Warn().Err(err).Str("userId", userId).Msg("Review answer was not valid JSON, skipping")
		return nil
	}

	for _, shift := range parsed.Topics {
		if err := s.applyTopicShift(ctx, userId, shift); err != nil {
			log.Warn().Err(err).Str("userId", userId).Str("topic", shift.Topic).Msg("Failed to apply topic shift")
		}
	}
	return nil
}

func (s *Service) reviewTranscript(ctx context.Context, userId string, untagged []domain.Message) string {
	var builder strings.Builder

	recentTopics, err := s.storage.GetRecentTopics(ctx, userId, 1)
	if err != nil {
		log.Warn().Err(err).Str("userId", userId).Msg("Failed to load recent topic for review context")
	} else if len(recentTopics) > 0 {
		tail, err := s.storage.GetMessages(ctx, userId, domain.MessageQuery{TopicId: recentTopics[0].Id, Limit: reviewTopicTailLimit})
		if err == nil && len(tail) > 0 {
			builder.WriteString(fmt.Sprintf("(earlier, already filed under %q:)\n", recentTopics[0].Name))
			writeTranscriptLines(&builder, tail)
			builder.WriteString("\n(new, unfiled:)\n")
		}
	}

	writeTranscriptLines(&builder, untagged)
	return builder.String()
}

func writeTranscriptLines(builder *strings.Builder, messages []domain.Message) {
	for _, message := range messages {
		fmt.Fprintf(builder, "[%s] %s: %s\n", message.Created.UTC().Format(time.RFC3339), message.Role, message.Content)
	}
}

func (s *Service) applyTopicShift(ctx context.Context, userId string, shift reviewTopic) error {
	if strings.TrimSpace(shift.Topic) == "" {
		return fmt.Errorf("topic shift with empty name")
	}
	start, err := time.Parse(time.RFC3339, shift.Start)
	if err != nil {
		return fmt.Errorf("invalid topic start %q: %w", shift.Start, err)
	}
	end, err := time.Parse(time.RFC3339, shift.End)
	if err != nil {
		return fmt.Errorf("invalid topic end %q: %w", shift.End, err)
	}

	topic, err := s.CreateTopic(ctx, userId, strings.TrimSpace(shift.Topic))
	if err != nil {
		return err
	}
	tagged, err := s.storage.AssignTopic(ctx, userId, topic.Id, start, end)
	if err != nil {
		return fmt.Errorf("failed to assign messages to topic: %w", err)
	}
	log.Info().Str("userId", userId).Str("topic", topic.Name).Int64("tagged", tagged).Msg("Created topic from review")

	for _, payload := range shift.Memories {
		if strings.TrimSpace(payload.Text) == "" {
			continue
		}
		category, err := domain.StringToMemoryCategory(payload.Category)
		if err != nil {
			category = domain.MemoryCategoryPersonal
		}
		memory := domain.Memory{
			Id:       "mem_" + ksuid.New().String(),
			UserId:   userId,
			Content:  strings.TrimSpace(payload.Text),
			Keywords: payload.Keywords,
			Category: category,
			Priority: 0.5,
			Created:  time.Now().UTC(),
		}
		memory.Normalize()
		if err := s.storage.PersistMemory(ctx, memory); err != nil {
			log.Warn().Err(err).Str("userId", userId).Msg("Failed to persist reviewed memory")
			continue
		}
		if err := s.storage.AttachMemoryTopic(ctx, userId, memory.Id, topic.Id); err != nil {
			log.Warn().Err(err).Str("memoryId", memory.Id).Msg("Failed to attach memory to topic")
		}
	}
	return nil
}
