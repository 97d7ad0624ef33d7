package contacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cortex/common"
	"cortex/domain"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

// Contacts resolves platform identities onto canonical users. Both the
// in-process Service and the HTTP Client satisfy it.
type Contacts interface {
	// Resolve maps a (platform, external id) pair to its contact. Returns
	// common.ErrNotFound for unknown senders.
	Resolve(ctx context.Context, platform domain.Platform, externalId string) (domain.Contact, error)
	// ResolveOrCreate resolves the pair, creating a placeholder contact when
	// no contact claims it yet.
	ResolveOrCreate(ctx context.Context, platform domain.Platform, externalId string) (domain.Contact, error)
}

// Service is the contacts leaf service backed by contact storage.
type Service struct {
	storage domain.ContactStorage
}

var _ Contacts = (*Service)(nil)

func NewService(storage domain.ContactStorage) *Service {
	return &Service{storage: storage}
}

func (s *Service) Resolve(ctx context.Context, platform domain.Platform, externalId string) (domain.Contact, error) {
	return s.storage.GetContactByEndpoint(ctx, platform, externalId)
}

func (s *Service) ResolveOrCreate(ctx context.Context, platform domain.Platform, externalId string) (domain.Contact, error) {
	contact, err := s.storage.GetContactByEndpoint(ctx, platform, externalId)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return domain.Contact{}, fmt.Errorf("failed to resolve contact: %w", err)
	}

	contact = domain.Contact{
		Id:      "user_" + ksuid.New().String(),
		Aliases: []string{externalId},
		Endpoints: []domain.ContactEndpoint{
			{Platform: platform, ExternalId: externalId},
		},
		Created: time.Now().UTC(),
	}
	if err := s.storage.PersistContact(ctx, contact); err != nil {
		return domain.Contact{}, fmt.Errorf("failed to create placeholder contact: %w", err)
	}
	log.Info().Str("contactId", contact.Id).Str("platform", string(platform)).Msg("Created placeholder contact")
	return contact, nil
}

// Get returns the contact by canonical id.
func (s *Service) Get(ctx context.Context, contactId string) (domain.Contact, error) {
	return s.storage.GetContact(ctx, contactId)
}

// List returns every known contact.
func (s *Service) List(ctx context.Context) ([]domain.Contact, error) {
	return s.storage.GetContacts(ctx)
}

// Upsert persists a contact, generating an id for new ones. The first alias
// is the display name; each endpoint pair may belong to only one contact.
func (s *Service) Upsert(ctx context.Context, contact domain.Contact) (domain.Contact, error) {
	if len(contact.Aliases) == 0 {
		return domain.Contact{}, errors.New("contact needs at least one alias")
	}
	if contact.Id == "" {
		contact.Id = "user_" + ksuid.New().String()
		contact.Created = time.Now().UTC()
	}
	if err := s.storage.PersistContact(ctx, contact); err != nil {
		return domain.Contact{}, fmt.Errorf("failed to persist contact: %w", err)
	}
	return contact, nil
}

// Delete removes a contact and its endpoints.
func (s *Service) Delete(ctx context.Context, contactId string) error {
	return s.storage.DeleteContact(ctx, contactId)
}
