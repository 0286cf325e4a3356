package domain

import "time"

// Idempotency scopes.
const (
	ScopePrescriptions = "prescriptions"
	ScopeSessionPrefix = "session:"
)

// Idempotency records the outcome of a processed write, keyed by
// (user_id, scope, key). Scope names the collection the write targeted, such
// as "prescriptions" or "session:<id>"; ResourceID is the created record that
// a retry with the same key replays.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:3"`
	ResourceID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// SessionScope returns the idempotency scope of messages posted to a session.
func SessionScope(sessionID string) string { return ScopeSessionPrefix + sessionID }
