package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/domain"
	"github.com/tbourn/go-ttm-coach/internal/llm"
	"github.com/tbourn/go-ttm-coach/internal/scoring"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(domain.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	return cat
}

// sampleScores is a valid preparation-stage submission with weak planning.
func sampleScores() scoring.Scores {
	return scoring.Scores{
		Stage: catalog.StagePreparation,
		PSSM:  scoring.PSSMScores{SelfEfficacy: 14},
		PDSM:  scoring.PDSMScores{Pros: 10, Cons: 8},
		PPSM:  scoring.PPSMScores{Experiential: 15, Behavioral: 12},
		RISCI: scoring.RISCIScores{Stress: 11, Coping: 9},
		SMA:   scoring.SMAScores{Planning: 4, Reframing: 6, HealthyActivity: 7},
	}
}

// stubLLM records requests and answers through fn.
type stubLLM struct {
	mu   sync.Mutex
	reqs []llm.Request
	fn   func(req llm.Request) (string, error)
}

func (s *stubLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	return s.fn(req)
}

func (s *stubLLM) calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.reqs...)
}

func replyWith(text string) *stubLLM {
	return &stubLLM{fn: func(llm.Request) (string, error) { return text, nil }}
}

func failWith(err error) *stubLLM {
	return &stubLLM{fn: func(llm.Request) (string, error) { return "", err }}
}

func seedSession(t *testing.T, db *gorm.DB, id, userID, stage string) *domain.WorkSession {
	t.Helper()
	s := &domain.WorkSession{ID: id, UserID: userID, Title: defaultSessionTitle, Stage: stage}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}

func seedMessage(t *testing.T, db *gorm.DB, id, sessionID, role, content string) *domain.Message {
	t.Helper()
	m := &domain.Message{ID: id, SessionID: sessionID, Role: role, Content: content}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}
