package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-support-bot/internal/domain"
)

// Store bundles the package-level persistence functions behind a value
// the service layer can hold as its storage contract.
type Store struct{}

func (Store) UpsertUser(ctx context.Context, db *gorm.DB, userID int64, firstName, lastName, phone string) error {
	return UpsertUser(ctx, db, userID, firstName, lastName, phone)
}

func (Store) IsRegistered(ctx context.Context, db *gorm.DB, userID int64) (bool, error) {
	return IsRegistered(ctx, db, userID)
}

func (Store) GetUser(ctx context.Context, db *gorm.DB, userID int64) (*domain.User, error) {
	return GetUser(ctx, db, userID)
}

func (Store) CreateTicket(ctx context.Context, db *gorm.DB, ownerID int64, text string) (*domain.Ticket, error) {
	return CreateTicket(ctx, db, ownerID, text)
}

func (Store) ListTickets(ctx context.Context, db *gorm.DB, ownerID int64, includeCancelled bool) ([]domain.Ticket, error) {
	return ListTickets(ctx, db, ownerID, includeCancelled)
}

func (Store) ListAllTickets(ctx context.Context, db *gorm.DB, includeCancelled bool) ([]domain.Ticket, error) {
	return ListAllTickets(ctx, db, includeCancelled)
}

func (Store) SetStatus(ctx context.Context, db *gorm.DB, id int64, status domain.Status) (bool, error) {
	return SetStatus(ctx, db, id, status)
}

func (Store) DeleteTicket(ctx context.Context, db *gorm.DB, id int64) (bool, error) {
	return DeleteTicket(ctx, db, id)
}
