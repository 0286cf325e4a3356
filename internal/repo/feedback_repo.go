// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Feedback model.
//
// Error semantics:
//   - Duplicate feedback (same message_id,user_id) relies on the database
//     unique constraint and is reported as ErrDuplicate.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-ttm-coach/internal/domain"
)

// CreateFeedback inserts a feedback row for the given message and user.
// Value must be -1 or 1; the schema carries a CHECK constraint and the
// service validates first.
func CreateFeedback(ctx context.Context, db *gorm.DB, messageID, userID string, value int) (*domain.Feedback, error) {
	now := time.Now().UTC()
	fb := &domain.Feedback{
		ID:        uuid.NewString(),
		MessageID: messageID,
		UserID:    userID,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(fb).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return fb, nil
}

// isUniqueViolation detects unique-index failures across drivers.
// glebarez/sqlite often returns plain-text errors; Postgres reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") ||
		strings.Contains(low, "sqlstate 23505")
}
