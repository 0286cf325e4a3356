// Package services – PrescriptionService
//
// This file implements the PrescriptionService, the use-case layer over the
// scoring, selection and skeleton packages. A submission is aggregated (when
// raw answers are sent), validated, turned into stage-matched messages,
// optionally rewritten in a tone and stored append-only. Stored records can be
// listed, fetched and turned into a weekly work skeleton.
//
// Idempotency: a submission carrying an Idempotency-Key is stored together
// with a key record in one transaction; a retry with the same key returns the
// stored prescription instead of creating a second one.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/domain"
	"github.com/tbourn/go-ttm-coach/internal/engine"
	"github.com/tbourn/go-ttm-coach/internal/observability"
	"github.com/tbourn/go-ttm-coach/internal/repo"
	"github.com/tbourn/go-ttm-coach/internal/scoring"
	"github.com/tbourn/go-ttm-coach/internal/skeleton"
	"github.com/tbourn/go-ttm-coach/internal/utils"
)

// SubmitInput carries exactly one of Scores or Answers.
type SubmitInput struct {
	Scores  *scoring.Scores     `json:"scores,omitempty"`
	Answers *scoring.RawAnswers `json:"answers,omitempty"`
	Tone    string              `json:"tone,omitempty" example:"mi"`
}

// Prescription is the decoded view of a stored record.
type Prescription struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	CreatedAt      time.Time         `json:"created_at"`
	Stage          catalog.Stage     `json:"stage"`
	Scores         scoring.Scores    `json:"scores"`
	Bands          scoring.Bands     `json:"bands"`
	Messages       []engine.Rendered `json:"messages"`
	CatalogVersion string            `json:"catalog_version"`
	Tone           string            `json:"tone,omitempty"`
	Note           string            `json:"note,omitempty"`
	Degraded       []string          `json:"degraded,omitempty"`
}

const defaultIdempotencyTTL = 24 * time.Hour

// PrescriptionService coordinates evaluation and persistence.
type PrescriptionService struct {
	DB       *gorm.DB
	Catalog  *catalog.Catalog
	Selector *engine.Selector
	Planner  *skeleton.Planner
	// Style is optional; without it a requested tone is ignored.
	Style *StyleService

	IdempotencyTTL time.Duration
}

// NewPrescriptionService wires the engine components around cat.
func NewPrescriptionService(db *gorm.DB, cat *catalog.Catalog, policy engine.SelfEfficacyPolicy, style *StyleService, idemTTL time.Duration) *PrescriptionService {
	return &PrescriptionService{
		DB:             db,
		Catalog:        cat,
		Selector:       engine.NewSelector(cat, policy),
		Planner:        skeleton.NewPlanner(cat),
		Style:          style,
		IdempotencyTTL: idemTTL,
	}
}

// Resolve turns a submission into validated totals.
func (s *PrescriptionService) Resolve(in SubmitInput) (scoring.Scores, error) {
	var (
		scores scoring.Scores
		err    error
	)
	switch {
	case in.Scores != nil && in.Answers != nil, in.Scores == nil && in.Answers == nil:
		return scoring.Scores{}, fmt.Errorf("%w: %w", scoring.ErrInvalidInputShape, ErrAmbiguousInput)
	case in.Answers != nil:
		raw := *in.Answers
		raw.Stage = normalizeStage(raw.Stage)
		if scores, err = scoring.Aggregate(s.Catalog, raw); err != nil {
			return scoring.Scores{}, err
		}
	default:
		scores = *in.Scores
		scores.Stage = normalizeStage(scores.Stage)
	}
	if err := scores.Validate(s.Catalog); err != nil {
		return scoring.Scores{}, err
	}
	return scores, nil
}

// Evaluate selects the messages for a submission without storing anything.
func (s *PrescriptionService) Evaluate(ctx context.Context, in SubmitInput) (engine.Result, error) {
	_, span := otel.Tracer("services/PrescriptionService").Start(ctx, "Evaluate")
	defer span.End()

	scores, err := s.Resolve(in)
	if err != nil {
		return engine.Result{}, err
	}
	return s.Selector.Select(scores)
}

// Submit evaluates and stores a submission. The boolean reports whether the
// result is a replay of an earlier request with the same idempotency key.
func (s *PrescriptionService) Submit(ctx context.Context, userID, idemKey string, in SubmitInput) (*Prescription, bool, error) {
	ctx, span := otel.Tracer("services/PrescriptionService").Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Bool("idempotent", idemKey != ""),
		),
	)
	defer span.End()

	if idemKey != "" {
		if p, err := s.replay(ctx, userID, idemKey); err == nil {
			return p, true, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, false, err
		}
	}

	scores, err := s.Resolve(in)
	if err != nil {
		return nil, false, err
	}
	var tone Tone
	if strings.TrimSpace(in.Tone) != "" {
		if tone, err = ParseTone(in.Tone); err != nil {
			return nil, false, err
		}
	}
	res, err := s.Selector.Select(scores)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	span.SetAttributes(
		attribute.String("stage", string(scores.Stage)),
		attribute.Int("degraded", len(res.Degraded)),
	)

	items, note := res.Items, ""
	if s.Style == nil {
		tone = ""
	}
	if tone != "" {
		items, note, err = s.restyle(ctx, items, tone)
		if err != nil {
			return nil, false, err
		}
	}

	rec := &domain.Prescription{
		UserID:         userID,
		Stage:          string(scores.Stage),
		CatalogVersion: s.Catalog.Version,
		Tone:           string(tone),
		Note:           note,
	}
	if rec.Scores, err = toJSON(scores); err != nil {
		return nil, false, err
	}
	if rec.Bands, err = toJSON(res.Bands); err != nil {
		return nil, false, err
	}
	if rec.Messages, err = toJSON(items); err != nil {
		return nil, false, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreatePrescription(ctx, tx, rec); err != nil {
			return err
		}
		if idemKey == "" {
			return nil
		}
		_, err := repo.CreateIdempotency(ctx, tx, userID, domain.ScopePrescriptions, idemKey, rec.ID, http.StatusCreated, s.idempotencyTTL())
		return err
	})
	if err != nil {
		// A concurrent request with the same key won the race.
		if errors.Is(err, repo.ErrDuplicate) && idemKey != "" {
			if p, rerr := s.replay(ctx, userID, idemKey); rerr == nil {
				return p, true, nil
			}
		}
		span.RecordError(err)
		return nil, false, err
	}
	observability.PrescriptionsTotal.WithLabelValues(string(scores.Stage)).Inc()

	out, err := decodePrescription(rec)
	if err != nil {
		return nil, false, err
	}
	out.Degraded = res.Degraded
	return out, false, nil
}

func (s *PrescriptionService) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return defaultIdempotencyTTL
	}
	return s.IdempotencyTTL
}

func (s *PrescriptionService) replay(ctx context.Context, userID, key string) (*Prescription, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, domain.ScopePrescriptions, key, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	p, err := repo.GetPrescription(ctx, s.DB, rec.ResourceID, userID)
	if err != nil {
		return nil, err
	}
	return decodePrescription(p)
}

// restyle rewrites titles and bodies in tone, keeping ids, slots and actions.
func (s *PrescriptionService) restyle(ctx context.Context, items []engine.Rendered, tone Tone) ([]engine.Rendered, string, error) {
	in := make([]StyleItem, len(items))
	for i, it := range items {
		in[i] = StyleItem{ID: it.ID, Title: it.Title, Body: it.Body}
	}
	res, err := s.Style.Rewrite(ctx, in, tone)
	if err != nil {
		return nil, "", err
	}
	out := make([]engine.Rendered, len(items))
	copy(out, items)
	for i := range out {
		if i < len(res.Items) && res.Items[i].ID == out[i].ID {
			out[i].Title = res.Items[i].Title
			out[i].Body = res.Items[i].Body
		}
	}
	return out, res.Note, nil
}

// Get returns a prescription owned by userID.
func (s *PrescriptionService) Get(ctx context.Context, userID, id string) (*Prescription, error) {
	p, err := repo.GetPrescription(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}
	return decodePrescription(p)
}

// Latest returns the newest prescription of userID.
func (s *PrescriptionService) Latest(ctx context.Context, userID string) (*Prescription, error) {
	p, err := repo.LatestPrescription(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}
	return decodePrescription(p)
}

// ListPage returns a page of the user's prescriptions, newest first.
func (s *PrescriptionService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]Prescription, int64, error) {
	ctx, span := otel.Tracer("services/PrescriptionService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := utils.Window(page, pageSize)
	total, err := repo.CountPrescriptions(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []Prescription{}, 0, nil
	}
	rows, err := repo.ListPrescriptionsPage(ctx, s.DB, userID, offset, pageSize)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Prescription, 0, len(rows))
	for i := range rows {
		p, err := decodePrescription(&rows[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, nil
}

// Stats returns the number of prescriptions and the newest creation time,
// used for list ETags.
func (s *PrescriptionService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.PrescriptionsStats(ctx, s.DB, userID)
}

// Plan builds a work skeleton for a submission without storing anything.
func (s *PrescriptionService) Plan(ctx context.Context, in SubmitInput) (*skeleton.Result, error) {
	_, span := otel.Tracer("services/PrescriptionService").Start(ctx, "Plan")
	defer span.End()

	scores, err := s.Resolve(in)
	if err != nil {
		return nil, err
	}
	return s.build(scores)
}

// Skeleton rebuilds the work skeleton of a stored prescription.
func (s *PrescriptionService) Skeleton(ctx context.Context, userID, id string) (*skeleton.Result, error) {
	ctx, span := otel.Tracer("services/PrescriptionService").Start(ctx, "Skeleton",
		trace.WithAttributes(attribute.String("prescription.id", id)),
	)
	defer span.End()

	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.build(p.Scores)
}

func (s *PrescriptionService) build(scores scoring.Scores) (*skeleton.Result, error) {
	res, err := s.Planner.Build(scores)
	if err != nil {
		return nil, err
	}
	for _, rule := range res.Fired {
		observability.SkeletonRulesFired.WithLabelValues(rule).Inc()
	}
	return res, nil
}

func decodePrescription(p *domain.Prescription) (*Prescription, error) {
	out := &Prescription{
		ID:             p.ID,
		UserID:         p.UserID,
		CreatedAt:      p.CreatedAt,
		Stage:          catalog.Stage(p.Stage),
		CatalogVersion: p.CatalogVersion,
		Tone:           p.Tone,
		Note:           p.Note,
	}
	if err := json.Unmarshal(p.Scores, &out.Scores); err != nil {
		return nil, fmt.Errorf("decode scores of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(p.Bands, &out.Bands); err != nil {
		return nil, fmt.Errorf("decode bands of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(p.Messages, &out.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", p.ID, err)
	}
	return out, nil
}

func toJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func normalizeStage(s catalog.Stage) catalog.Stage {
	return catalog.Stage(strings.ToUpper(strings.TrimSpace(string(s))))
}
