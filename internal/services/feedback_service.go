// Package services – FeedbackService
//
// This file implements the FeedbackService, which governs how users rate
// (-1 or +1) the coach's replies. It enforces message existence, session
// ownership, the assistant-only restriction and one rating per user, and
// persists the rating inside a single transaction.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-ttm-coach/internal/domain"
	"github.com/tbourn/go-ttm-coach/internal/repo"
)

// FeedbackService implements the use-cases around message feedback.
type FeedbackService struct {
	// DB is the database handle used for all feedback operations.
	DB *gorm.DB
}

// Leave records a feedback value for messageID on behalf of userID.
//
// Validation:
//   - value must be exactly -1 or 1; otherwise ErrInvalidFeedback.
//   - messageID must exist; otherwise ErrMessageNotFound.
//   - The message must belong to a session owned by userID and be an
//     assistant reply; otherwise ErrForbiddenFeedback.
//   - A second rating by the same user yields ErrDuplicateFeedback.
func (s *FeedbackService) Leave(ctx context.Context, userID, messageID string, value int) (*domain.Feedback, error) {
	ctx, span := otel.Tracer("services/FeedbackService").Start(ctx, "Leave",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", userID),
			attribute.Int("value", value),
		),
	)
	defer span.End()

	if value != -1 && value != 1 {
		return nil, ErrInvalidFeedback
	}

	var out *domain.Feedback
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(ctx, tx, messageID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}

		if _, err := repo.GetSession(ctx, tx, msg.SessionID, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrForbiddenFeedback
			}
			return err
		}

		if msg.Role != domain.RoleAssistant {
			return ErrForbiddenFeedback
		}

		fb, err := repo.CreateFeedback(ctx, tx, messageID, userID, value)
		if err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateFeedback
			}
			return err
		}
		out = fb
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}
