package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-ttm-coach/internal/domain"
)

func TestSessionsStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := SessionsStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error due to missing table")
	}
}

func TestSessionsStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.WorkSession{})
	count, maxAt, err := SessionsStats(context.Background(), db, "u1")
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", count, maxAt, err)
	}
}

func TestSessionsStats_FilterAndMax(t *testing.T) {
	db := newTestDB(t, &domain.WorkSession{})

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max for u1
	t3 := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)   // other user, later
	rows := []domain.WorkSession{
		{ID: "s1", UserID: "u1", Title: "a", Stage: "PC", CreatedAt: t1, UpdatedAt: t1},
		{ID: "s2", UserID: "u1", Title: "b", Stage: "PC", CreatedAt: t2, UpdatedAt: t2},
		{ID: "s3", UserID: "u2", Title: "x", Stage: "PC", CreatedAt: t3, UpdatedAt: t3},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed %s: %v", rows[i].ID, err)
		}
	}

	count, maxAt, err := SessionsStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("SessionsStats error: %v", err)
	}
	if count != 2 || maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected (2, %v), got (%d, %v)", t2, count, maxAt)
	}
}

func TestPrescriptionsStats_UsesCreatedAt(t *testing.T) {
	db := newTestDB(t, &domain.Prescription{})
	t1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	seedPrescription(t, db, "p1", "u1", t1)
	seedPrescription(t, db, "p2", "u1", t1.Add(time.Hour))

	count, maxAt, err := PrescriptionsStats(context.Background(), db, "u1")
	if err != nil || count != 2 || maxAt == nil || !maxAt.Equal(t1.Add(time.Hour)) {
		t.Fatalf("unexpected stats: %d %v %v", count, maxAt, err)
	}
}

func TestMessagesStats_FilterBySession(t *testing.T) {
	db := newTestDB(t, &domain.Message{})
	t1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []domain.Message{
		{ID: "m1", SessionID: "s1", Role: domain.RoleUser, Content: "a", CreatedAt: t1, UpdatedAt: t1},
		{ID: "m2", SessionID: "s1", Role: domain.RoleAssistant, Content: "b", CreatedAt: t1, UpdatedAt: t1.Add(time.Minute)},
		{ID: "m3", SessionID: "s2", Role: domain.RoleUser, Content: "c", CreatedAt: t1, UpdatedAt: t1.Add(time.Hour)},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed %s: %v", rows[i].ID, err)
		}
	}

	count, maxAt, err := MessagesStats(context.Background(), db, "s1")
	if err != nil || count != 2 || maxAt == nil || !maxAt.Equal(t1.Add(time.Minute)) {
		t.Fatalf("unexpected stats: %d %v %v", count, maxAt, err)
	}
}
