package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/go-ttm-coach/internal/scoring"
	"github.com/tbourn/go-ttm-coach/internal/services"
	"github.com/tbourn/go-ttm-coach/internal/skeleton"
)

func TestSubmitPrescription(t *testing.T) {
	var gotKey, gotUser string
	var gotIn services.SubmitInput
	replay := false
	r := newTestRouter(stubs{prescriptions: stubPrescriptions{
		submit: func(_ context.Context, userID, key string, in services.SubmitInput) (*services.Prescription, bool, error) {
			gotUser, gotKey, gotIn = userID, key, in
			return &services.Prescription{ID: "p1", UserID: userID, Stage: "PR"}, replay, nil
		},
	}})

	body := `{"scores":{"stage":"PR"},"tone":"plain"}`
	w := do(r, http.MethodPost, "/prescriptions", body, "Idempotency-Key", "k-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if gotUser != "u1" || gotKey != "k-1" || gotIn.Scores == nil || gotIn.Tone != "plain" {
		t.Fatalf("service got user=%q key=%q in=%+v", gotUser, gotKey, gotIn)
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("fresh submit must not be marked as replay")
	}

	replay = true
	w = do(r, http.MethodPost, "/prescriptions", body, "Idempotency-Key", "k-1")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: status=%d header=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	var p services.Prescription
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil || p.ID != "p1" {
		t.Fatalf("replay body: %v %+v", err, p)
	}
}

func TestSubmitPrescription_Errors(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"out of domain", `{}`, fmt.Errorf("pssm.stress=1: %w", scoring.ErrScoreOutOfDomain), http.StatusBadRequest, ErrCodeInvalidScores},
		{"ambiguous", `{}`, services.ErrAmbiguousInput, http.StatusBadRequest, ErrCodeValidation},
		{"bad tone", `{}`, services.ErrInvalidTone, http.StatusBadRequest, ErrCodeInvalidTone},
		{"catalog gap", `{}`, scoring.ErrBandNotFound, http.StatusInternalServerError, ErrCodeCatalog},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(stubs{prescriptions: stubPrescriptions{
				submit: func(context.Context, string, string, services.SubmitInput) (*services.Prescription, bool, error) {
					if tc.err == nil {
						t.Fatalf("service must not be called")
					}
					return nil, false, tc.err
				},
			}})
			w := do(r, http.MethodPost, "/prescriptions", tc.body)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if er := decodeError(t, w); er.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", er.Code, tc.wantCode)
			}
		})
	}
}

func TestListPrescriptions_PaginationAndETag(t *testing.T) {
	latest := time.Unix(1700000000, 0)
	var gotPage, gotSize int
	r := newTestRouter(stubs{prescriptions: stubPrescriptions{
		stats: func(context.Context, string) (int64, *time.Time, error) { return 3, &latest, nil },
		listPage: func(_ context.Context, _ string, page, size int) ([]services.Prescription, int64, error) {
			gotPage, gotSize = page, size
			return []services.Prescription{{ID: "a"}, {ID: "b"}}, 3, nil
		},
	}})

	w := do(r, http.MethodGet, "/prescriptions?page=1&page_size=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListPrescriptionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if gotPage != 1 || gotSize != 2 || len(resp.Prescriptions) != 2 || !resp.Pagination.HasNext || resp.Pagination.TotalPages != 2 {
		t.Fatalf("unexpected page: %+v (page=%d size=%d)", resp, gotPage, gotSize)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	w = do(r, http.MethodGet, "/prescriptions?page=1&page_size=2", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("conditional GET: status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestListPrescriptions_EmptyIsArray(t *testing.T) {
	r := newTestRouter(stubs{})
	w := do(r, http.MethodGet, "/prescriptions", "")
	if w.Code != http.StatusOK || !json.Valid(w.Body.Bytes()) {
		t.Fatalf("status = %d", w.Code)
	}
	var raw map[string]json.RawMessage
	_ = json.Unmarshal(w.Body.Bytes(), &raw)
	if string(raw["prescriptions"]) != "[]" {
		t.Fatalf("prescriptions = %s, want []", raw["prescriptions"])
	}
}

func TestGetPrescription(t *testing.T) {
	r := newTestRouter(stubs{prescriptions: stubPrescriptions{
		get: func(_ context.Context, _ string, id string) (*services.Prescription, error) {
			if id == otherUUID {
				return nil, services.ErrPrescriptionNotFound
			}
			return &services.Prescription{ID: id}, nil
		},
	}})

	cases := []struct {
		path string
		want int
	}{
		{"/prescriptions/" + validID, http.StatusOK},
		{"/prescriptions/" + otherUUID, http.StatusNotFound},
		{"/prescriptions/not-a-uuid", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := do(r, http.MethodGet, tc.path, ""); w.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.path, w.Code, tc.want)
		}
	}
}

func TestPrescriptionSkeleton(t *testing.T) {
	r := newTestRouter(stubs{prescriptions: stubPrescriptions{
		skel: func(_ context.Context, userID, id string) (*skeleton.Result, error) {
			if userID != "u1" || id != validID {
				return nil, services.ErrPrescriptionNotFound
			}
			return &skeleton.Result{Stage: "A", SMAFocus: skeleton.FocusPlanning}, nil
		},
	}})
	w := do(r, http.MethodGet, "/prescriptions/"+validID+"/skeleton", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var res skeleton.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Stage != "A" {
		t.Fatalf("body: %v %+v", err, res)
	}
	if w := do(r, http.MethodGet, "/prescriptions/"+otherUUID+"/skeleton", ""); w.Code != http.StatusNotFound {
		t.Fatalf("foreign prescription: status = %d", w.Code)
	}
}

func TestPlanSkeleton(t *testing.T) {
	called := false
	r := newTestRouter(stubs{prescriptions: stubPrescriptions{
		plan: func(_ context.Context, in services.SubmitInput) (*skeleton.Result, error) {
			called = true
			if in.Answers == nil {
				return nil, scoring.ErrInvalidInputShape
			}
			return &skeleton.Result{Stage: "C"}, nil
		},
	}})
	if w := do(r, http.MethodPost, "/skeleton", `{"answers":{}}`); w.Code != http.StatusOK || !called {
		t.Fatalf("status = %d called=%v", w.Code, called)
	}
	w := do(r, http.MethodPost, "/skeleton", `{"scores":{}}`)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Code != ErrCodeInvalidScores {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
}
