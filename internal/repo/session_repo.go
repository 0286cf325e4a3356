// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// WorkSession model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateSession(ctx, db, userID, title, stage, prescriptionID) -> *domain.WorkSession, error
//   - CountSessions(ctx, db, userID) -> (int64, error)
//   - ListSessionsPage(ctx, db, userID, offset, limit) -> []domain.WorkSession, error
//     Most recently active first (updated_at desc).
//   - GetSession(ctx, db, id, userID) -> *domain.WorkSession, error
//   - UpdateSessionTitle(ctx, db, id, userID, title) -> error
//   - TouchSession(ctx, db, id, role) -> error
//     Records the role of the latest message and bumps updated_at.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-ttm-coach/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSession inserts a new work session owned by userID. prescriptionID
// may be nil when the session is not tied to a stored prescription.
func CreateSession(ctx context.Context, db *gorm.DB, userID, title, stage string, prescriptionID *string) (*domain.WorkSession, error) {
	now := time.Now().UTC()
	s := &domain.WorkSession{
		ID:             uuid.NewString(),
		UserID:         userID,
		Title:          title,
		Stage:          stage,
		PrescriptionID: prescriptionID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// CountSessions returns the total number of sessions owned by userID.
func CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.WorkSession{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListSessionsPage returns a page of sessions for userID, most recently
// active first. The caller computes offset and limit.
func ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.WorkSession, error) {
	var out []domain.WorkSession
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetSession fetches a single session by its ID and owner. If the record
// does not exist, it returns ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.WorkSession, error) {
	var s domain.WorkSession
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSessionTitle updates the title of a session owned by userID.
// If no rows are affected it returns ErrNotFound.
func UpdateSessionTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error {
	res := db.WithContext(ctx).
		Model(&domain.WorkSession{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("title", title)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchSession records the role of the newest message and bumps updated_at
// so the session sorts first in listings.
func TouchSession(ctx context.Context, db *gorm.DB, id, role string) error {
	res := db.WithContext(ctx).
		Model(&domain.WorkSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_message_role": role,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
