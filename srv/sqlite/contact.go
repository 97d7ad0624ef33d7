package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"cortex/common"
	"cortex/domain"
)

var _ domain.ContactStorage = (*Storage)(nil)
var _ domain.LastSeenStorage = (*Storage)(nil)

// PersistContact inserts or updates a Contact and its endpoint rows.
func (s *Storage) PersistContact(ctx context.Context, contact domain.Contact) error {
	aliasesJSON, err := json.Marshal(contact.Aliases)
	if err != nil {
		return fmt.Errorf("failed to marshal aliases: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO contacts (id, aliases, created) VALUES (?, ?, ?)`,
		contact.Id, aliasesJSON, formatTime(contact.Created))
	if err != nil {
		return fmt.Errorf("failed to persist contact: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM contact_endpoints WHERE contact_id = ?`, contact.Id)
	if err != nil {
		return fmt.Errorf("failed to clear contact endpoints: %w", err)
	}
	for _, endpoint := range contact.Endpoints {
		// (platform, external_id) is the primary key, so claiming a pair
		// already owned by another contact fails here.
		_, err = tx.ExecContext(ctx, `INSERT INTO contact_endpoints (platform, external_id, contact_id) VALUES (?, ?, ?)`,
			endpoint.Platform, endpoint.ExternalId, contact.Id)
		if err != nil {
			return fmt.Errorf("failed to persist endpoint (%s, %s): %w", endpoint.Platform, endpoint.ExternalId, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contact: %w", err)
	}
	return nil
}

func (s *Storage) loadContactEndpoints(ctx context.Context, contact *domain.Contact) error {
	rows, err := s.db.QueryContext(ctx, `SELECT platform, external_id FROM contact_endpoints WHERE contact_id = ? ORDER BY platform, external_id`, contact.Id)
	if err != nil {
		return fmt.Errorf("failed to query contact endpoints: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var endpoint domain.ContactEndpoint
		if err := rows.Scan(&endpoint.Platform, &endpoint.ExternalId); err != nil {
			return fmt.Errorf("failed to scan endpoint: %w", err)
		}
		contact.Endpoints = append(contact.Endpoints, endpoint)
	}
	return rows.Err()
}

func (s *Storage) getContactRow(ctx context.Context, query string, args ...interface{}) (domain.Contact, error) {
	var contact domain.Contact
	var aliasesJSON []byte
	var createdStr string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&contact.Id, &aliasesJSON, &createdStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Contact{}, common.ErrNotFound
		}
		return domain.Contact{}, fmt.Errorf("failed to get contact: %w", err)
	}
	if err := json.Unmarshal(aliasesJSON, &contact.Aliases); err != nil {
		return domain.Contact{}, fmt.Errorf("failed to unmarshal aliases: %w", err)
	}
	if contact.Created, err = parseTime(createdStr); err != nil {
		return domain.Contact{}, fmt.Errorf("failed to parse created time: %w", err)
	}
	if err := s.loadContactEndpoints(ctx, &contact); err != nil {
		return domain.Contact{}, err
	}
	return contact, nil
}

// GetContact retrieves a single Contact from the SQLite database
func (s *Storage) GetContact(ctx context.Context, contactId string) (domain.Contact, error) {
	return s.getContactRow(ctx, `SELECT id, aliases, created FROM contacts WHERE id = ?`, contactId)
}

// GetContactByEndpoint resolves a (platform, external id) pair.
func (s *Storage) GetContactByEndpoint(ctx context.Context, platform domain.Platform, externalId string) (domain.Contact, error) {
	return s.getContactRow(ctx, `
		SELECT c.id, c.aliases, c.created FROM contacts c
		JOIN contact_endpoints e ON e.contact_id = c.id
		WHERE e.platform = ? AND e.external_id = ?
	`, platform, externalId)
}

func (s *Storage) GetContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, aliases, created FROM contacts ORDER BY created ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	contacts := []domain.Contact{}
	for rows.Next() {
		var contact domain.Contact
		var aliasesJSON []byte
		var createdStr string
		if err := rows.Scan(&contact.Id, &aliasesJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		if err := json.Unmarshal(aliasesJSON, &contact.Aliases); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aliases: %w", err)
		}
		if contact.Created, err = parseTime(createdStr); err != nil {
			return nil, fmt.Errorf("failed to parse created time: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	for i := range contacts {
		if err := s.loadContactEndpoints(ctx, &contacts[i]); err != nil {
			return nil, err
		}
	}
	return contacts, nil
}

// DeleteContact removes a Contact; endpoint rows cascade.
func (s *Storage) DeleteContact(ctx context.Context, contactId string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, contactId)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// UpdateLastSeen upserts the newest activity timestamp per (user, platform).
func (s *Storage) UpdateLastSeen(ctx context.Context, lastSeen domain.LastSeen) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO last_seen (user_id, platform, seen) VALUES (?, ?, ?)`,
		lastSeen.UserId, lastSeen.Platform, formatTime(lastSeen.Seen))
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

func (s *Storage) GetLastSeen(ctx context.Context, userId string, platform domain.Platform) (domain.LastSeen, error) {
	var lastSeen domain.LastSeen
	var seenStr string
	err := s.db.QueryRowContext(ctx, `SELECT user_id, platform, seen FROM last_seen WHERE user_id = ? AND platform = ?`, userId, platform).
		Scan(&lastSeen.UserId, &lastSeen.Platform, &seenStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.LastSeen{}, common.ErrNotFound
		}
		return domain.LastSeen{}, fmt.Errorf("failed to get last seen: %w", err)
	}
	if lastSeen.Seen, err = parseTime(seenStr); err != nil {
		return domain.LastSeen{}, fmt.Errorf("failed to parse seen time: %w", err)
	}
	return lastSeen, nil
}
