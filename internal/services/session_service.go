// Package services – SessionService
//
// This file implements the SessionService, which manages work-chat sessions:
// creation (with an optional stage and prescription), paginated listing,
// renaming and the paginated message history. Automatic titles are produced
// by WorkChatService on the first user message; the helpers shared by both
// live at the bottom of this file.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/domain"
	"github.com/tbourn/go-ttm-coach/internal/repo"
	"github.com/tbourn/go-ttm-coach/internal/scoring"
	"github.com/tbourn/go-ttm-coach/internal/utils"
)

const (
	// placeholder titles eligible for auto-generation
	defaultSessionTitle  = "New session"
	defaultTitleUntitled = "Untitled"

	defaultTitleMaxLen = 60
	maxTitleWords      = 8
)

// SessionRepo defines the repository contract required by SessionService.
type SessionRepo interface {
	CreateSession(ctx context.Context, db *gorm.DB, userID, title, stage string, prescriptionID *string) (*domain.WorkSession, error)
	GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.WorkSession, error)
	UpdateSessionTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error
	CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error)
	ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.WorkSession, error)
	CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error)
	ListMessagesPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error)
	GetPrescription(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Prescription, error)
	SessionsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error)
}

// GormSessionRepo implements SessionRepo with the repo package functions.
type GormSessionRepo struct{}

func (GormSessionRepo) CreateSession(ctx context.Context, db *gorm.DB, userID, title, stage string, prescriptionID *string) (*domain.WorkSession, error) {
	return repo.CreateSession(ctx, db, userID, title, stage, prescriptionID)
}

func (GormSessionRepo) GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.WorkSession, error) {
	return repo.GetSession(ctx, db, id, userID)
}

func (GormSessionRepo) UpdateSessionTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error {
	return repo.UpdateSessionTitle(ctx, db, id, userID, title)
}

func (GormSessionRepo) CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountSessions(ctx, db, userID)
}

func (GormSessionRepo) ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.WorkSession, error) {
	return repo.ListSessionsPage(ctx, db, userID, offset, limit)
}

func (GormSessionRepo) CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	return repo.CountMessages(ctx, db, sessionID)
}

func (GormSessionRepo) ListMessagesPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error) {
	return repo.ListMessagesPage(ctx, db, sessionID, offset, limit)
}

func (GormSessionRepo) GetPrescription(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Prescription, error) {
	return repo.GetPrescription(ctx, db, id, userID)
}

func (GormSessionRepo) SessionsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return repo.SessionsStats(ctx, db, userID)
}

// SessionService provides session-level operations and enforces ownership.
type SessionService struct {
	DB   *gorm.DB
	Repo SessionRepo

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewSessionService constructs a SessionService backed by GORM.
func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{DB: db, Repo: GormSessionRepo{}, TitleMaxLen: defaultTitleMaxLen}
}

// CreateSessionInput is the user-provided part of a new session.
type CreateSessionInput struct {
	Title          string
	Stage          string
	PrescriptionID string
}

// Create opens a session for userID. When a prescription id is given it must
// belong to the user; an empty stage then defaults to the prescription's
// stage, otherwise to precontemplation.
func (s *SessionService) Create(ctx context.Context, userID string, in CreateSessionInput) (*domain.WorkSession, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	var (
		stage  catalog.Stage
		prescr *string
	)
	if strings.TrimSpace(in.Stage) != "" {
		st, err := scoring.ParseStage(in.Stage)
		if err != nil {
			return nil, ErrInvalidStage
		}
		stage = st
	}
	if id := strings.TrimSpace(in.PrescriptionID); id != "" {
		p, err := s.Repo.GetPrescription(ctx, s.DB, id, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrPrescriptionNotFound
			}
			return nil, err
		}
		prescr = &p.ID
		if stage == "" {
			stage = catalog.Stage(p.Stage)
		}
	}
	if stage == "" {
		stage = catalog.DefaultStage
	}

	title := normalizeTitle(in.Title)
	if title == "" {
		title = defaultSessionTitle
	}
	return s.Repo.CreateSession(ctx, s.DB, userID, clipTitle(title, s.TitleMaxLen), string(stage), prescr)
}

// Get returns a session owned by userID.
func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (*domain.WorkSession, error) {
	sess, err := s.Repo.GetSession(ctx, s.DB, sessionID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// ListPage returns a page of sessions for a user, most recently active first.
func (s *SessionService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.WorkSession, int64, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := utils.Window(page, pageSize)

	total, err := s.Repo.CountSessions(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.WorkSession{}, 0, nil
	}
	items, err := s.Repo.ListSessionsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Stats returns the session count and the latest update time for ETags.
func (s *SessionService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return s.Repo.SessionsStats(ctx, s.DB, userID)
}

// UpdateTitle renames a session owned by userID. A blank title falls back
// to "Untitled".
func (s *SessionService) UpdateTitle(ctx context.Context, userID, sessionID, title string) error {
	title = normalizeTitle(title)
	if title == "" {
		title = defaultTitleUntitled
	}
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.Repo.UpdateSessionTitle(ctx, s.DB, sessionID, userID, clipTitle(title, s.TitleMaxLen))
}

// MessagesPage returns the messages of a session oldest first, after
// checking ownership.
func (s *SessionService) MessagesPage(ctx context.Context, userID, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "MessagesPage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return nil, 0, err
	}
	_, pageSize, offset := utils.Window(page, pageSize)

	total, err := s.Repo.CountMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := s.Repo.ListMessagesPage(ctx, s.DB, sessionID, offset, pageSize)
	return items, total, err
}

// --- Title helpers ---

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// titleWordRE extracts Unicode letters with optional trailing digits.
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"i": {}, "my": {}, "me": {}, "how": {}, "can": {}, "do": {}, "what": {},
}

func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

func clipTitle(title string, limit int) string {
	if limit <= 0 {
		limit = defaultTitleMaxLen
	}
	if utf8.RuneCountInString(title) > limit {
		return strings.TrimSpace(string([]rune(title)[:limit]))
	}
	return title
}

// isPlaceholderTitle reports whether a title is eligible for auto-generation.
func isPlaceholderTitle(current string) bool {
	t := strings.ToLower(strings.TrimSpace(current))
	return t == "" || t == strings.ToLower(defaultSessionTitle) || t == strings.ToLower(defaultTitleUntitled)
}

// titleFromPrompt derives a short title-cased title from a user prompt.
func titleFromPrompt(prompt string, locale language.Tag) string {
	toks := titleWordRE.FindAllString(strings.ToLower(strings.TrimSpace(prompt)), -1)
	if len(toks) == 0 {
		return ""
	}
	if locale == language.Und {
		locale = language.English
	}
	caser := cases.Title(locale)
	out := make([]string, 0, maxTitleWords)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, caser.String(w))
		if len(out) >= maxTitleWords {
			break
		}
	}
	return strings.Join(out, " ")
}
