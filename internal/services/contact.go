package services

import (
	"context"

	"github.com/contactbook/apiserver/types"
)

// ContactRepository defines persistence operations for contacts. All reads
// and writes are scoped by owner.
type ContactRepository interface {
	List(ctx context.Context, ownerID, offset, limit int) ([]types.Contact, error)
	Search(ctx context.Context, ownerID int, term string) ([]types.Contact, error)
	Get(ctx context.Context, id, ownerID int) (types.Contact, error)
	Create(ctx context.Context, contact types.Contact) (types.Contact, error)
	Update(ctx context.Context, contact types.Contact) (types.Contact, error)
	Delete(ctx context.Context, id, ownerID int) error
}

// ContactService encapsulates contact use-cases.
type ContactService struct {
	repo ContactRepository
}

func NewContactService(repo ContactRepository) *ContactService {
	return &ContactService{repo: repo}
}

func (s *ContactService) List(ctx context.Context, ownerID, offset, limit int) ([]types.Contact, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, ownerID, offset, limit)
}

func (s *ContactService) Search(ctx context.Context, ownerID int, term string) ([]types.Contact, error) {
	return s.repo.Search(ctx, ownerID, term)
}

func (s *ContactService) Get(ctx context.Context, id, ownerID int) (types.Contact, error) {
	return s.repo.Get(ctx, id, ownerID)
}

func (s *ContactService) Create(ctx context.Context, contact types.Contact) (types.Contact, error) {
	return s.repo.Create(ctx, contact)
}

func (s *ContactService) Update(ctx context.Context, contact types.Contact) (types.Contact, error) {
	return s.repo.Update(ctx, contact)
}

func (s *ContactService) Delete(ctx context.Context, id, ownerID int) error {
	return s.repo.Delete(ctx, id, ownerID)
}
