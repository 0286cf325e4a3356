// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// append-only Prescription model: rows are inserted and read, never
// updated or deleted.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-ttm-coach/internal/domain"
)

// CreatePrescription inserts p, assigning its ID and CreatedAt when unset.
func CreatePrescription(ctx context.Context, db *gorm.DB, p *domain.Prescription) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(p).Error
}

// GetPrescription fetches a prescription by ID and owner, or ErrNotFound.
func GetPrescription(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Prescription, error) {
	var p domain.Prescription
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LatestPrescription returns the newest prescription of userID, or ErrNotFound.
func LatestPrescription(ctx context.Context, db *gorm.DB, userID string) (*domain.Prescription, error) {
	var p domain.Prescription
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CountPrescriptions returns the number of prescriptions owned by userID.
func CountPrescriptions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Prescription{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListPrescriptionsPage returns a page of prescriptions for userID, newest first.
func ListPrescriptionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Prescription, error) {
	var out []domain.Prescription
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
