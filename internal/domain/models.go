// Package domain defines the persistence models: prescriptions, work-chat
// sessions with their messages, and message feedback. These types are mapped
// with GORM and are shared across the repository and service layers.
package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Reply sources recorded on assistant messages.
const (
	SourceLLM       = "llm"
	SourceKnowledge = "knowledge"
)

// Prescription is the append-only record of one questionnaire submission.
// Scores, bands and rendered messages are stored as JSON documents so the
// record reproduces exactly what the user saw, even after catalog changes.
//
// Rows are never updated; there is no UpdatedAt or soft delete.
type Prescription struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID         string         `json:"user_id"         gorm:"type:varchar(64);not null;index:idx_user_prescriptions,priority:1"`
	Stage          string         `json:"stage"           gorm:"type:varchar(4);not null"`
	CatalogVersion string         `json:"catalog_version" gorm:"type:varchar(32);not null"`
	Tone           string         `json:"tone,omitempty"  gorm:"type:varchar(16)"`
	Note           string         `json:"note,omitempty"  gorm:"type:varchar(255)"`
	Scores         datatypes.JSON `json:"scores"          gorm:"not null"`
	Bands          datatypes.JSON `json:"bands"           gorm:"not null"`
	Messages       datatypes.JSON `json:"messages"        gorm:"not null"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_user_prescriptions,priority:2"`
}

// TableName returns the database table name for Prescription.
func (Prescription) TableName() string { return "prescriptions" }

// WorkSession is a work-chat conversation owned by a user. The stage and the
// optional prescription ground the coach's replies.
type WorkSession struct {
	ID              string         `json:"id"                        gorm:"type:char(36);primaryKey"`
	UserID          string         `json:"user_id"                   gorm:"type:varchar(64);not null;index:idx_user_sessions"`
	Title           string         `json:"title"                     gorm:"type:varchar(255);not null;default:'New session'"`
	Stage           string         `json:"stage"                     gorm:"type:varchar(4);not null;default:'PC'"`
	PrescriptionID  *string        `json:"prescription_id,omitempty" gorm:"type:char(36);index"`
	LastMessageRole string         `json:"last_message_role,omitempty" gorm:"type:varchar(16)"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                         gorm:"index"`
}

// TableName returns the database table name for WorkSession.
func (WorkSession) TableName() string { return "work_sessions" }

// Message is a single turn within a work session. Assistant messages record
// where the reply came from and, for knowledge-base replies, the match score.
type Message struct {
	ID        string         `json:"id"               gorm:"type:char(36);primaryKey"`
	SessionID string         `json:"session_id"       gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	Role      string         `json:"role"             gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content   string         `json:"content"          gorm:"type:text;not null"`
	Source    string         `json:"source,omitempty" gorm:"type:varchar(16)"`
	Score     *float64       `json:"score,omitempty"`
	CreatedAt time.Time      `json:"created_at"       gorm:"index:idx_session_msgs,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"                gorm:"index"`

	// Session is the parent conversation. Messages are cascade-deleted
	// if their session is removed.
	Session WorkSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Feedback is a user's rating of an assistant message. One per user and
// message, enforced by a unique index.
type Feedback struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string         `json:"message_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_feedback_message_user"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index;uniqueIndex:ux_feedback_message_user"`
	Value     int            `json:"value"      gorm:"not null;check:value IN (-1,1)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }

// All lists every model for AutoMigrate, parents first.
func All() []any {
	return []any{&Prescription{}, &WorkSession{}, &Message{}, &Feedback{}, &Idempotency{}}
}
