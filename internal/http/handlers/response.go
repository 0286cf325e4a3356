// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response utilities shared by all endpoints: the
// error envelope, the mapping from service errors to stable codes, list
// pagination and weak ETags.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "session not found"
//	}
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ttm-coach/internal/engine"
	"github.com/tbourn/go-ttm-coach/internal/http/middleware"
	"github.com/tbourn/go-ttm-coach/internal/scoring"
	"github.com/tbourn/go-ttm-coach/internal/services"
	"github.com/tbourn/go-ttm-coach/internal/utils"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// fail aborts the request with a structured error. Server errors (>=500) are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's NoRoute and
// NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failService translates a service or engine error into the envelope.
// Unrecognized errors become a 500 with fallbackCode.
func failService(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, scoring.ErrInvalidInputShape), errors.Is(err, scoring.ErrScoreOutOfDomain):
		fail(c, http.StatusBadRequest, ErrCodeInvalidScores, err.Error())
	case errors.Is(err, scoring.ErrBandNotFound), errors.Is(err, engine.ErrMessageNotFound):
		fail(c, http.StatusInternalServerError, ErrCodeCatalog, err.Error())
	case errors.Is(err, services.ErrInvalidTone):
		fail(c, http.StatusBadRequest, ErrCodeInvalidTone, err.Error())
	case errors.Is(err, services.ErrAmbiguousInput),
		errors.Is(err, services.ErrNoItems),
		errors.Is(err, services.ErrInvalidStage),
		errors.Is(err, services.ErrEmptyPrompt),
		errors.Is(err, services.ErrTooLong),
		errors.Is(err, services.ErrInvalidHistory),
		errors.Is(err, services.ErrInvalidFeedback):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrPrescriptionNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrForbiddenFeedback):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrDuplicateFeedback):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrLLMUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeLLMUnavailable, err.Error())
	case errors.Is(err, services.ErrUnparseable):
		fail(c, http.StatusBadGateway, ErrCodeUnparseable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// clampPagination parses the page and page_size query params and bounds
// them the way the services do.
func clampPagination(c *gin.Context) (page, pageSize int) {
	page, pageSize, _ = utils.Window(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
	return page, pageSize
}

// notModified sets a weak ETag derived from a collection's size and newest
// timestamp and reports whether If-None-Match already matches it, in which
// case a 304 has been written.
func notModified(c *gin.Context, kind, owner string, count int64, latest *time.Time) bool {
	var ts int64
	if latest != nil {
		ts = latest.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, owner, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
