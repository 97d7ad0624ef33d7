package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Sweep removes rows that lost their parent: memory-topic and keyword rows
// whose memory or topic is gone, and topics left without messages or
// memories. Foreign keys prevent most orphans at write time; the sweep
// catches what slips through partial failures.
func (s *Service) Sweep(ctx context.Context) error {
	orphans, err := s.storage.DeleteOrphanAssociations(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete orphan associations: %w", err)
	}

	contacts, err := s.storage.GetContacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list contacts for sweep: %w", err)
	}
	var emptyTopics int64
	for _, contact := range contacts {
		deleted, err := s.storage.DeleteEmptyTopics(ctx, contact.Id)
		if err != nil {
			return fmt.Errorf("failed to delete empty topics for %s: %w", contact.Id, err)
		}
		emptyTopics += deleted
	}

	if orphans > 0 || emptyTopics > 0 {
		log.Info().Int64("orphanRows", orphans).Int64("emptyTopics", emptyTopics).Msg("Ledger sweep removed rows")
	}
	return nil
}
