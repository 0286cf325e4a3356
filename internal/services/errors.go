// Package services defines the business logic for prescriptions, the work
// chat and message feedback. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Prescription errors.
var (
	// ErrPrescriptionNotFound indicates that the requested prescription does
	// not exist or belongs to another user.
	ErrPrescriptionNotFound = errors.New("prescription not found")

	// ErrAmbiguousInput is returned when a submission carries both totals and
	// raw answers, or neither.
	ErrAmbiguousInput = errors.New("provide exactly one of scores or answers")

	// ErrInvalidTone is returned for a tone outside plain, mi and polite.
	ErrInvalidTone = errors.New("tone must be one of plain, mi, polite")

	// ErrNoItems is returned when a rewrite request carries no messages.
	ErrNoItems = errors.New("no items to rewrite")
)

// Work chat errors.
var (
	// ErrSessionNotFound indicates that the requested session does not exist
	// or is not accessible to the current user.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidStage is returned for a stage code outside PC, C, PR, A, M.
	ErrInvalidStage = errors.New("stage must be one of PC, C, PR, A, M")

	// ErrEmptyPrompt is returned when a chat message is empty after trimming.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a chat message exceeds the configured
	// maximum rune count.
	ErrTooLong = errors.New("prompt too long")

	// ErrInvalidHistory is returned by the stateless chat when the
	// conversation is empty, has an unknown role, or does not end with a
	// user message.
	ErrInvalidHistory = errors.New("conversation must end with a user message")

	// ErrLLMUnavailable is returned by features that cannot work without the
	// language model.
	ErrLLMUnavailable = errors.New("language model unavailable")

	// ErrUnparseable is returned when the model reply does not match the
	// expected JSON shape.
	ErrUnparseable = errors.New("model reply could not be parsed")
)

// Feedback errors.
var (
	// ErrInvalidFeedback is returned when a feedback value is outside the
	// allowed set (currently -1 or 1).
	ErrInvalidFeedback = errors.New("feedback value must be -1 or 1")

	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrForbiddenFeedback is returned when a user attempts to leave feedback
	// on a message they are not permitted to rate.
	ErrForbiddenFeedback = errors.New("cannot leave feedback on this message")

	// ErrDuplicateFeedback is returned when a user attempts to leave feedback
	// on a message that they have already rated.
	ErrDuplicateFeedback = errors.New("feedback already exists")
)
