// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-ttm-coach/internal/domain"
)

// PrescriptionsStats returns the number of prescriptions owned by userID and
// the newest CreatedAt among them. Prescriptions are append-only, so the
// creation time is their only version marker.
func PrescriptionsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	q := db.WithContext(ctx).Model(&domain.Prescription{}).Where("user_id = ?", userID)
	return countAndLatest(q, "created_at")
}

// SessionsStats returns the number of sessions owned by userID and the
// newest UpdatedAt among them (nil when there are none).
func SessionsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	q := db.WithContext(ctx).Model(&domain.WorkSession{}).Where("user_id = ?", userID)
	return countAndLatest(q, "updated_at")
}

// MessagesStats returns the number of messages in a session and the newest
// UpdatedAt among them (nil when there are none).
func MessagesStats(ctx context.Context, db *gorm.DB, sessionID string) (int64, *time.Time, error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("session_id = ?", sessionID)
	return countAndLatest(q, "updated_at")
}

func countAndLatest(q *gorm.DB, column string) (count int64, latest *time.Time, err error) {
	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Order+Limit instead of MAX(): SQLite returns MAX() of a datetime as TEXT.
	var row struct {
		Latest time.Time
	}
	if err = q.Session(&gorm.Session{}).Select(column + " AS latest").Order(column + " DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.Latest, nil
}
