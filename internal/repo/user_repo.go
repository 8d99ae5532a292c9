// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-support-bot/internal/domain"
)

// UpsertUser inserts or replaces the registration record for userID.
// Re-registering is idempotent: an existing row is overwritten with the
// new contact attributes. Users are never deleted.
func UpsertUser(ctx context.Context, db *gorm.DB, userID int64, firstName, lastName, phone string) error {
	u := &domain.User{
		ID:        userID,
		FirstName: firstName,
		LastName:  lastName,
		Phone:     phone,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "phone", "updated_at"}),
		}).
		Create(u).Error
}

// IsRegistered reports whether a registration record exists for userID.
func IsRegistered(ctx context.Context, db *gorm.DB, userID int64) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Count(&n).Error
	return n > 0, err
}

// GetUser fetches a registration record by id, or ErrNotFound if absent.
func GetUser(ctx context.Context, db *gorm.DB, userID int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
