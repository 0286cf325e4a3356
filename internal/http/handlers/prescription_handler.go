// Prescription HTTP handlers.
//
// This file exposes REST endpoints for questionnaire evaluation:
//   - POST /prescriptions                (evaluate + store, Idempotency-Key aware)
//   - GET  /prescriptions                (list, paginated, ETag support)
//   - GET  /prescriptions/{id}           (fetch one)
//   - GET  /prescriptions/{id}/skeleton  (work skeleton of a stored result)
//   - POST /skeleton                     (work skeleton, no persistence)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ttm-coach/internal/services"
)

// ListPrescriptionsResponse wraps a page of prescriptions, newest first.
type ListPrescriptionsResponse struct {
	Prescriptions []services.Prescription `json:"prescriptions"`
	Pagination    Pagination              `json:"pagination"`
}

// SubmitPrescription godoc
// @ID          submitPrescription
// @Summary     Evaluate questionnaire results
// @Description Classifies totals (or raw answers) into bands, selects the coaching messages and stores the result. A repeated Idempotency-Key replays the stored prescription with 200.
// @Tags        Prescriptions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"            example(user123)
// @Param       Idempotency-Key  header  string  false "Key making retries safe"          example(4f1c2a9e-submit-1)
// @Param       body             body    services.SubmitInput  true  "Scores or raw answers"
//
// @Success     201  {object}  services.Prescription
// @Success     200  {object}  services.Prescription  "Idempotent replay"
// @Header      200  {string}  Idempotency-Replayed   "true on replay"
// @Failure     400  {object}  handlers.ErrorResponse "Invalid scores or payload"
// @Failure     500  {object}  handlers.ErrorResponse "Catalog or internal error"
// @Router      /prescriptions [post]
func (h *Handlers) SubmitPrescription(c *gin.Context) {
	var req services.SubmitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	p, replayed, err := h.prescriptions.Submit(c.Request.Context(), userID(c), idempotencyKey(c), req)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	if replayed {
		markReplayed(c)
		ok(c, http.StatusOK, p)
		return
	}
	ok(c, http.StatusCreated, p)
}

// ListPrescriptions godoc
// @ID          listPrescriptions
// @Summary     List prescriptions (paginated)
// @Description Returns a page of the user's prescriptions, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Prescriptions
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListPrescriptionsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /prescriptions [get]
func (h *Handlers) ListPrescriptions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, latest, err := h.prescriptions.Stats(ctx, uid); err == nil {
		if notModified(c, "prescriptions", uid, count, latest) {
			return
		}
	}

	items, total, err := h.prescriptions.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []services.Prescription{}
	}
	ok(c, http.StatusOK, ListPrescriptionsResponse{
		Prescriptions: items,
		Pagination:    newPagination(page, pageSize, total),
	})
}

// GetPrescription godoc
// @ID          getPrescription
// @Summary     Get a prescription
// @Tags        Prescriptions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Prescription ID (UUID)" format(uuid)
//
// @Success     200  {object} services.Prescription
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Prescription not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /prescriptions/{id} [get]
func (h *Handlers) GetPrescription(c *gin.Context) {
	id, valid := idParam(c, "prescription")
	if !valid {
		return
	}
	p, err := h.prescriptions.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}

// GetPrescriptionSkeleton godoc
// @ID          getPrescriptionSkeleton
// @Summary     Work skeleton of a stored prescription
// @Description Rebuilds the goal, weekly plan, stress-management focus and resource cards from the stored scores.
// @Tags        Prescriptions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Prescription ID (UUID)" format(uuid)
//
// @Success     200  {object} skeleton.Result
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Prescription not found"
// @Failure     500  {object} handlers.ErrorResponse "Catalog or internal error"
// @Router      /prescriptions/{id}/skeleton [get]
func (h *Handlers) GetPrescriptionSkeleton(c *gin.Context) {
	id, valid := idParam(c, "prescription")
	if !valid {
		return
	}
	res, err := h.prescriptions.Skeleton(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, res)
}

// PlanSkeleton godoc
// @ID          planSkeleton
// @Summary     Build a work skeleton
// @Description Builds the work skeleton for scores or raw answers without storing anything.
// @Tags        Prescriptions
// @Accept      json
// @Produce     json
//
// @Param       body  body  services.SubmitInput  true  "Scores or raw answers"
//
// @Success     200  {object} skeleton.Result
// @Failure     400  {object} handlers.ErrorResponse "Invalid scores or payload"
// @Failure     500  {object} handlers.ErrorResponse "Catalog or internal error"
// @Router      /skeleton [post]
func (h *Handlers) PlanSkeleton(c *gin.Context) {
	var req services.SubmitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.prescriptions.Plan(c.Request.Context(), req)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, res)
}
