// Package services – WorkChatService
//
// This file implements the work chat: a stage-aware coaching conversation
// grounded in the user's weekly work skeleton. Replies come from the language
// model; when it is not configured or fails, the coach answers from the
// built-in knowledge base instead so the conversation never dead-ends.
//
// It also serves the stateless chat variant, the stage guide shown before a
// conversation starts, and the evaluation of suggested conversation openers.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/domain"
	"github.com/tbourn/go-ttm-coach/internal/knowledge"
	"github.com/tbourn/go-ttm-coach/internal/llm"
	"github.com/tbourn/go-ttm-coach/internal/observability"
	"github.com/tbourn/go-ttm-coach/internal/repo"
	"github.com/tbourn/go-ttm-coach/internal/scoring"
	"github.com/tbourn/go-ttm-coach/internal/skeleton"
)

const (
	defaultMaxPromptRunes  = 8000
	defaultHistoryLimit    = 20
	maxExampleRunes        = 4000
	knowledgeCandidates    = 3
	stageGuideCallToAction = "To begin, pick one of the options below that you would like to work on."

	noKnowledgeReply = "I could not find anything on that in my coaching notes. " +
		"Could you tell me a little more about what is stressing you right now?"
)

const coachPersona = `You are a supportive stress-management coach who works with the Transtheoretical Model (TTM) of behaviour change.
- Keep replies short (under 200 words), warm and practical.
- Ask at most one question per reply.
- Build on the user's work plan below; do not invent a different plan.
- Do not diagnose or give medical advice. If the user mentions a crisis or self-harm, encourage them to contact a professional or local emergency services.`

// StageGuide is the stage metadata shown before a conversation.
type StageGuide struct {
	Stage            catalog.Stage `json:"stage"             example:"PR"`
	Label            string        `json:"label"             example:"Preparation stage"`
	Name             string        `json:"name"              example:"Preparation"`
	Description      string        `json:"description"`
	CoachingStrategy string        `json:"coaching_strategy"`
	Choices          []string      `json:"choices"`
}

// ChatTurn is one message of a stateless conversation.
type ChatTurn struct {
	Role    string `json:"role"    example:"user"`
	Content string `json:"content" example:"How do I start?"`
}

// ChatReply is the answer to a stateless conversation.
type ChatReply struct {
	Reply  string `json:"reply"`
	Source string `json:"source" example:"llm"`
}

// Verdict is one judged criterion.
type Verdict struct {
	Value  bool   `json:"value"`
	Reason string `json:"reason"`
}

// Evaluation judges a suggested conversation opener.
type Evaluation struct {
	UserFriendly            bool              `json:"user_friendly"`
	TTMAligned              bool              `json:"ttm_aligned"`
	StressManagementRelated bool              `json:"stress_management_related"`
	Reasons                 map[string]string `json:"reasons"`
}

// WorkChatService answers chat messages.
type WorkChatService struct {
	DB        *gorm.DB
	Catalog   *catalog.Catalog
	Planner   *skeleton.Planner
	LLM       llm.Client
	Knowledge *knowledge.Index

	// HistoryLimit caps the earlier messages sent to the model.
	HistoryLimit   int
	MaxPromptRunes int

	TitleLocale language.Tag
	TitleMaxLen int

	IdempotencyTTL time.Duration
}

// StageGuide returns the metadata of code. Unknown or blank codes fall back
// to precontemplation.
func (s *WorkChatService) StageGuide(code string) StageGuide {
	st, err := scoring.ParseStage(code)
	if err != nil {
		st = catalog.DefaultStage
	}
	info, err := s.Catalog.Stage(st)
	if err != nil {
		st = catalog.DefaultStage
		info, _ = s.Catalog.Stage(st)
	}
	return StageGuide{
		Stage:            st,
		Label:            info.Label,
		Name:             info.Name,
		Description:      strings.TrimSpace(info.Description) + "\n\n" + stageGuideCallToAction,
		CoachingStrategy: info.CoachingStrategy,
		Choices:          append([]string(nil), info.Choices...),
	}
}

// Reply stores content as the user's next message in sessionID, produces the
// coach's answer and stores it too. Both messages are written in one
// transaction; the stored assistant message is returned.
//
// A non-empty idemKey makes the call idempotent per (user, session, key): a
// retry returns the assistant message of the first call and reports true.
func (s *WorkChatService) Reply(ctx context.Context, userID, sessionID, idemKey, content string) (*domain.Message, bool, error) {
	ctx, span := otel.Tracer("services/WorkChatService").Start(ctx, "Reply",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.id", userID),
			attribute.Bool("idempotent", idemKey != ""),
		),
	)
	defer span.End()

	content, err := s.cleanPrompt(content)
	if err != nil {
		return nil, false, err
	}

	sess, err := repo.GetSession(ctx, s.DB, sessionID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, ErrSessionNotFound
		}
		return nil, false, err
	}

	if idemKey != "" {
		if m, err := s.replay(ctx, userID, sessionID, idemKey); err == nil {
			return m, true, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, false, err
		}
	}
	stage, err := scoring.ParseStage(sess.Stage)
	if err != nil {
		stage = catalog.DefaultStage
	}

	planCtx, err := s.planContext(ctx, userID, sess.PrescriptionID)
	if err != nil {
		return nil, false, err
	}
	past, err := repo.RecentMessages(ctx, s.DB, sessionID, s.historyLimit())
	if err != nil {
		return nil, false, err
	}
	history := make([]llm.Message, 0, len(past)+1)
	for _, m := range past {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Content: content})

	answer, source, score := s.answer(ctx, stage, planCtx, history)
	span.SetAttributes(attribute.String("reply.source", source))

	var out *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateMessage(ctx, tx, sessionID, domain.RoleUser, content, "", nil); err != nil {
			return err
		}
		m, err := repo.CreateMessage(ctx, tx, sessionID, domain.RoleAssistant, answer, source, score)
		if err != nil {
			return err
		}
		out = m
		if err := repo.TouchSession(ctx, tx, sessionID, domain.RoleAssistant); err != nil {
			return err
		}
		if isPlaceholderTitle(sess.Title) {
			if title := titleFromPrompt(content, s.TitleLocale); title != "" {
				if err := repo.UpdateSessionTitle(ctx, tx, sessionID, userID, clipTitle(title, s.TitleMaxLen)); err != nil {
					return err
				}
			}
		}
		if idemKey == "" {
			return nil
		}
		_, err = repo.CreateIdempotency(ctx, tx, userID, domain.SessionScope(sessionID), idemKey, m.ID, http.StatusOK, s.idempotencyTTL())
		return err
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) && idemKey != "" {
			if m, rerr := s.replay(ctx, userID, sessionID, idemKey); rerr == nil {
				return m, true, nil
			}
		}
		span.RecordError(err)
		return nil, false, err
	}
	return out, false, nil
}

func (s *WorkChatService) replay(ctx context.Context, userID, sessionID, key string) (*domain.Message, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, domain.SessionScope(sessionID), key, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return repo.GetMessage(ctx, s.DB, rec.ResourceID)
}

func (s *WorkChatService) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return defaultIdempotencyTTL
	}
	return s.IdempotencyTTL
}

// Chat answers a client-held conversation. The last turn must come from the
// user; stage defaults to precontemplation. When userID has a stored
// prescription its work plan grounds the reply.
func (s *WorkChatService) Chat(ctx context.Context, userID string, turns []ChatTurn, stageCode string) (*ChatReply, error) {
	ctx, span := otel.Tracer("services/WorkChatService").Start(ctx, "Chat",
		trace.WithAttributes(attribute.Int("turns", len(turns))),
	)
	defer span.End()

	if len(turns) == 0 || turns[len(turns)-1].Role != domain.RoleUser {
		return nil, ErrInvalidHistory
	}
	history := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		if t.Role != domain.RoleUser && t.Role != domain.RoleAssistant {
			return nil, ErrInvalidHistory
		}
		c, err := s.cleanPrompt(t.Content)
		if err != nil {
			return nil, err
		}
		history = append(history, llm.Message{Role: t.Role, Content: c})
	}

	stage := catalog.DefaultStage
	if strings.TrimSpace(stageCode) != "" {
		st, err := scoring.ParseStage(stageCode)
		if err != nil {
			return nil, ErrInvalidStage
		}
		stage = st
	}

	var planCtx []byte
	if userID != "" {
		var err error
		if planCtx, err = s.planContext(ctx, userID, nil); err != nil {
			return nil, err
		}
	}
	answer, source, _ := s.answer(ctx, stage, planCtx, history)
	return &ChatReply{Reply: answer, Source: source}, nil
}

// EvaluateExample asks the model whether a suggested opener is user
// friendly, aligned with the stage and about stress management.
func (s *WorkChatService) EvaluateExample(ctx context.Context, stageCode, text string) (*Evaluation, error) {
	ctx, span := otel.Tracer("services/WorkChatService").Start(ctx, "EvaluateExample")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyPrompt
	}
	if utf8.RuneCountInString(text) > maxExampleRunes {
		return nil, ErrTooLong
	}
	stageLine := "Stage: not specified"
	if strings.TrimSpace(stageCode) != "" {
		st, err := scoring.ParseStage(stageCode)
		if err != nil {
			return nil, ErrInvalidStage
		}
		info, _ := s.Catalog.Stage(st)
		stageLine = "Stage: " + info.Label + " (" + string(st) + ")"
	}

	prompt := `You review a mental-health support service. You are an expert in the Transtheoretical Model (TTM) and in stress management.
Judge the button label below on three criteria. Answer each with true or false and a short reason.
Return only this JSON:
{"user_friendly":{"value":true,"reason":"..."},"ttm_aligned":{"value":true,"reason":"..."},"stress_management_related":{"value":true,"reason":"..."}}

` + stageLine + `
Label:
"""` + text + `"""`

	reply, err := s.client().Generate(ctx, llm.Request{
		Op:          "evaluate",
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		JSON:        true,
		Temperature: structuredTemperature(),
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, llm.ErrDisabled) {
			return nil, ErrLLMUnavailable
		}
		return nil, fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
	}
	return parseEvaluation(reply)
}

func parseEvaluation(reply string) (*Evaluation, error) {
	doc, err := llm.ExtractJSON(reply)
	if err != nil {
		return nil, ErrUnparseable
	}
	var raw struct {
		UserFriendly            *Verdict `json:"user_friendly"`
		TTMAligned              *Verdict `json:"ttm_aligned"`
		StressManagementRelated *Verdict `json:"stress_management_related"`
	}
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, ErrUnparseable
	}
	for _, v := range []*Verdict{raw.UserFriendly, raw.TTMAligned, raw.StressManagementRelated} {
		if v == nil || strings.TrimSpace(v.Reason) == "" {
			return nil, ErrUnparseable
		}
	}
	return &Evaluation{
		UserFriendly:            raw.UserFriendly.Value,
		TTMAligned:              raw.TTMAligned.Value,
		StressManagementRelated: raw.StressManagementRelated.Value,
		Reasons: map[string]string{
			"user_friendly":             raw.UserFriendly.Reason,
			"ttm_aligned":               raw.TTMAligned.Reason,
			"stress_management_related": raw.StressManagementRelated.Reason,
		},
	}, nil
}

// answer asks the model and falls back to the knowledge base. It returns the
// text, its source and, for knowledge answers, the match score.
func (s *WorkChatService) answer(ctx context.Context, stage catalog.Stage, planCtx []byte, history []llm.Message) (string, string, *float64) {
	reply, err := s.client().Generate(ctx, llm.Request{
		Op:       "chat",
		System:   s.systemPrompt(stage, planCtx),
		Messages: history,
	})
	if err == nil {
		return reply, domain.SourceLLM, nil
	}
	observability.ChatFallbacks.Inc()

	info, _ := s.Catalog.Stage(stage)
	text, score := s.fromKnowledge(history[len(history)-1].Content, info.Name)
	return text, domain.SourceKnowledge, score
}

// fromKnowledge answers with the best guide paragraph, plus the runner-up
// when it comes from the same section.
func (s *WorkChatService) fromKnowledge(query, stageName string) (string, *float64) {
	if s.Knowledge == nil {
		return noKnowledgeReply, nil
	}
	res := s.Knowledge.Search(query, stageName, knowledgeCandidates)
	if len(res) == 0 {
		return noKnowledgeReply, nil
	}
	top := res[0]
	text := top.Snippet
	if len(res) > 1 && res[1].Section != "" && res[1].Section == top.Section {
		text += "\n\n" + res[1].Snippet
	}
	score := top.Score
	return text, &score
}

func (s *WorkChatService) systemPrompt(stage catalog.Stage, planCtx []byte) string {
	info, _ := s.Catalog.Stage(stage)
	var b strings.Builder
	b.WriteString(coachPersona)
	b.WriteString("\n\nUser stage: ")
	b.WriteString(info.Label)
	b.WriteString(" (")
	b.WriteString(string(stage))
	b.WriteString(")\n")
	b.WriteString(strings.TrimSpace(info.Description))
	b.WriteString("\nCoaching strategy: ")
	b.WriteString(info.CoachingStrategy)
	if len(planCtx) > 0 {
		b.WriteString("\n\nWork plan (JSON):\n")
		b.Write(planCtx)
	}
	return b.String()
}

// planContext rebuilds the work skeleton of prescriptionID, or of the user's
// latest prescription when nil. A user without prescriptions gets no context.
func (s *WorkChatService) planContext(ctx context.Context, userID string, prescriptionID *string) ([]byte, error) {
	var (
		p   *domain.Prescription
		err error
	)
	if prescriptionID != nil && *prescriptionID != "" {
		p, err = repo.GetPrescription(ctx, s.DB, *prescriptionID, userID)
	} else {
		p, err = repo.LatestPrescription(ctx, s.DB, userID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var scores scoring.Scores
	if err := json.Unmarshal(p.Scores, &scores); err != nil {
		return nil, fmt.Errorf("decode scores of %s: %w", p.ID, err)
	}
	plan, err := s.Planner.Build(scores)
	if err != nil {
		return nil, err
	}
	return plan.ContextJSON()
}

// cleanPrompt drops control characters other than newlines and tabs, trims
// the result and enforces the length limit.
func (s *WorkChatService) cleanPrompt(in string) (string, error) {
	out := strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, in))
	if out == "" {
		return "", ErrEmptyPrompt
	}
	limit := s.MaxPromptRunes
	if limit <= 0 {
		limit = defaultMaxPromptRunes
	}
	if utf8.RuneCountInString(out) > limit {
		return "", ErrTooLong
	}
	return out, nil
}

func (s *WorkChatService) client() llm.Client {
	if s.LLM == nil {
		return llm.Disabled{}
	}
	return s.LLM
}

func (s *WorkChatService) historyLimit() int {
	if s.HistoryLimit <= 0 {
		return defaultHistoryLimit
	}
	return s.HistoryLimit
}
