// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Ticket model.
//
// Error semantics:
//   - Functions that target a single ticket by id report "no row matched"
//     through their boolean return rather than an error, mirroring the
//     affected-rows contract of the underlying store.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Each function is a single statement and therefore atomic with respect to
// every other store call; no multi-statement transactions are needed here.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-support-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateTicket inserts a new ticket owned by ownerID with status "new" and
// returns the persisted row. The id is assigned by the store's
// auto-increment sequence and is never reused.
//
// Text validation (non-empty after trimming) is the caller's
// responsibility; see services.TicketService.
func CreateTicket(ctx context.Context, db *gorm.DB, ownerID int64, text string) (*domain.Ticket, error) {
	tk := &domain.Ticket{
		OwnerID:   ownerID,
		Text:      text,
		Status:    domain.StatusNew,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(tk).Error; err != nil {
		return nil, err
	}
	return tk, nil
}

// ListTickets returns the tickets owned by ownerID, newest first. When
// includeCancelled is false, rows an operator marked cancelled are
// excluded. Owner-deleted tickets never appear: their rows are gone.
func ListTickets(ctx context.Context, db *gorm.DB, ownerID int64, includeCancelled bool) ([]domain.Ticket, error) {
	q := db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if !includeCancelled {
		q = q.Where("status <> ?", domain.StatusCancelled)
	}
	var out []domain.Ticket
	err := q.Order("created_at desc, id desc").Find(&out).Error
	return out, err
}

// ListAllTickets returns tickets across all owners, newest first. This is
// the operator view; includeCancelled behaves as in ListTickets.
func ListAllTickets(ctx context.Context, db *gorm.DB, includeCancelled bool) ([]domain.Ticket, error) {
	q := db.WithContext(ctx).Model(&domain.Ticket{})
	if !includeCancelled {
		q = q.Where("status <> ?", domain.StatusCancelled)
	}
	var out []domain.Ticket
	err := q.Order("created_at desc, id desc").Find(&out).Error
	return out, err
}

// SetStatus updates the status of the ticket identified by id and reports
// whether a row changed. The store layer accepts any status string; enum
// validation belongs to the caller.
func SetStatus(ctx context.Context, db *gorm.DB, id int64, status domain.Status) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteTicket physically removes the ticket row and reports whether a row
// was deleted. This is the owner-cancellation path; operator cancellation
// goes through SetStatus instead.
func DeleteTicket(ctx context.Context, db *gorm.DB, id int64) (bool, error) {
	res := db.WithContext(ctx).Delete(&domain.Ticket{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
