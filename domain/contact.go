package domain

import (
	"context"
	"time"
)

// ContactEndpoint is one (platform, external id) pair a contact can be
// reached through. Each pair maps to at most one contact.
type ContactEndpoint struct {
	Platform   Platform `json:"platform"`
	ExternalId string   `json:"externalId"`
}

// Contact resolves platform identities onto one canonical user.
type Contact struct {
	Id        string            `json:"id"`
	Aliases   []string          `json:"aliases"`
	Endpoints []ContactEndpoint `json:"endpoints,omitempty"`
	Created   time.Time         `json:"created"`
}

// DisplayName returns the first alias, falling back to the contact id.
func (c Contact) DisplayName() string {
	if len(c.Aliases) > 0 {
		return c.Aliases[0]
	}
	return c.Id
}

// ContactStorage defines the interface for contact-related database operations.
type ContactStorage interface {
	PersistContact(ctx context.Context, contact Contact) error
	GetContact(ctx context.Context, contactId string) (Contact, error)
	// GetContactByEndpoint resolves a (platform, external id) pair. Returns
	// common.ErrNotFound for unknown senders.
	GetContactByEndpoint(ctx context.Context, platform Platform, externalId string) (Contact, error)
	GetContacts(ctx context.Context) ([]Contact, error)
	DeleteContact(ctx context.Context, contactId string) error
}

// LastSeen records the newest activity timestamp per (user, platform).
type LastSeen struct {
	UserId   string    `json:"userId"`
	Platform Platform  `json:"platform"`
	Seen     time.Time `json:"seen"`
}

// LastSeenStorage defines the interface for last-seen bookkeeping.
type LastSeenStorage interface {
	UpdateLastSeen(ctx context.Context, lastSeen LastSeen) error
	GetLastSeen(ctx context.Context, userId string, platform Platform) (LastSeen, error)
}
