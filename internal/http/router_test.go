package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/config"
	"github.com/tbourn/go-ttm-coach/internal/domain"
	"github.com/tbourn/go-ttm-coach/internal/knowledge"
	"github.com/tbourn/go-ttm-coach/internal/llm"
	"github.com/tbourn/go-ttm-coach/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(domain.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:      "/api/v1",
		SEPolicy:         "stage_conditional",
		RateRPS:          100,
		RateBurst:        50,
		ChatHistoryLimit: 20,
		MaxPromptRunes:   8000,
		IdempotencyTTL:   time.Hour,
		OTEL:             config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	r := gin.New()
	deps := Deps{DB: newTestDB(t), Catalog: cat, Knowledge: knowledge.Default(), LLM: llm.Disabled{}}
	if err := RegisterRoutes(r, deps, cfg); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return r
}

func send(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const prepScores = `{"scores":{"stage":"PR","pssm":{"self_efficacy":14},"pdsm":{"pros":10,"cons":8},` +
	`"ppsm":{"experiential":15,"behavioral":12},"risci":{"stress":11,"coping":9},` +
	`"sma":{"planning":4,"reframing":6,"healthy_activity":7}}}`

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := send(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if !strings.Contains(w.Body.String(), `"catalog_version"`) {
		t.Fatalf("health body: %s", w.Body.String())
	}

	w = send(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ttm_http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	if w := send(r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := send(r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if w := send(r, http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger must be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r := newTestRouter(t, cfg)

	w := send(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	if w := send(r, http.MethodGet, "/api/v2/stages/PR", "", nil); w.Code != http.StatusOK {
		t.Fatalf("custom base path not mounted: %d", w.Code)
	}
}

func TestRegisterRoutes_SwaggerEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r := newTestRouter(t, cfg)
	if w := send(r, http.MethodGet, "/swagger/doc.json", "", nil); w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
}

func TestRegisterRoutes_InvalidPolicy(t *testing.T) {
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	cfg := testConfig()
	cfg.SEPolicy = "sometimes"
	if err := RegisterRoutes(gin.New(), Deps{DB: newTestDB(t), Catalog: cat}, cfg); err == nil {
		t.Fatalf("expected an error for an unknown self-efficacy policy")
	}
}

func TestPrescriptionFlow_Idempotent(t *testing.T) {
	r := newTestRouter(t, testConfig())
	hdr := map[string]string{"X-User-ID": "alice", "Idempotency-Key": "submit-1"}

	w := send(r, http.MethodPost, "/api/v1/prescriptions", prepScores, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit = %d (%s)", w.Code, w.Body.String())
	}
	var first struct {
		ID       string            `json:"id"`
		Stage    string            `json:"stage"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("json: %v", err)
	}
	if first.ID == "" || first.Stage != "PR" || len(first.Messages) == 0 {
		t.Fatalf("unexpected prescription: %s", w.Body.String())
	}

	w = send(r, http.MethodPost, "/api/v1/prescriptions", prepScores, hdr)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay = %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	if !strings.Contains(w.Body.String(), first.ID) {
		t.Fatalf("replay returned a different record: %s", w.Body.String())
	}

	w = send(r, http.MethodGet, "/api/v1/prescriptions", "", map[string]string{"X-User-ID": "alice"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":1`) {
		t.Fatalf("list = %d (%s)", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	w = send(r, http.MethodGet, "/api/v1/prescriptions", "", map[string]string{"X-User-ID": "alice", "If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional list = %d", w.Code)
	}

	w = send(r, http.MethodGet, "/api/v1/prescriptions/"+first.ID+"/skeleton", "", map[string]string{"X-User-ID": "alice"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"skeleton"`) {
		t.Fatalf("skeleton = %d (%s)", w.Code, w.Body.String())
	}
	if w := send(r, http.MethodGet, "/api/v1/prescriptions/"+first.ID, "", map[string]string{"X-User-ID": "bob"}); w.Code != http.StatusNotFound {
		t.Fatalf("foreign read = %d", w.Code)
	}

	bad := strings.Replace(prepScores, `"self_efficacy":14`, `"self_efficacy":99`, 1)
	w = send(r, http.MethodPost, "/api/v1/prescriptions", bad, map[string]string{"X-User-ID": "alice"})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"invalid_scores"`) {
		t.Fatalf("out-of-domain = %d (%s)", w.Code, w.Body.String())
	}
}

func TestWorkChatFlow_KnowledgeFallback(t *testing.T) {
	r := newTestRouter(t, testConfig())
	hdr := map[string]string{"X-User-ID": "carol"}

	w := send(r, http.MethodPost, "/api/v1/sessions", `{"stage":"PR"}`, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session = %d (%s)", w.Code, w.Body.String())
	}
	var sess domain.WorkSession
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatalf("json: %v", err)
	}

	path := "/api/v1/sessions/" + sess.ID + "/messages"
	w = send(r, http.MethodPost, path, `{"content":"How can I plan my week to manage stress?"}`, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("post message = %d (%s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"role":"assistant"`) {
		t.Fatalf("expected an assistant reply: %s", w.Body.String())
	}

	w = send(r, http.MethodGet, path, "", hdr)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":2`) {
		t.Fatalf("list messages = %d (%s)", w.Code, w.Body.String())
	}
	if w := send(r, http.MethodGet, path, "", map[string]string{"X-User-ID": "mallory"}); w.Code != http.StatusNotFound {
		t.Fatalf("foreign session = %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{JWTSecret: "s3cret", Required: true}
	r := newTestRouter(t, cfg)

	if w := send(r, http.MethodGet, "/api/v1/sessions", "", map[string]string{"X-User-ID": "dave"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token = %d", w.Code)
	}
	if w := send(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", w.Code)
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "dave",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w := send(r, http.MethodGet, "/api/v1/sessions", "", map[string]string{"Authorization": "Bearer " + tok})
	if w.Code != http.StatusOK {
		t.Fatalf("valid token = %d (%s)", w.Code, w.Body.String())
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func Test_idempotencyLookup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	lookup := idempotencyLookup(db)
	now := time.Now().UTC()

	if _, err := repo.CreateIdempotency(ctx, db, "u1", "prescriptions", "k1", "res-1", http.StatusCreated, time.Hour); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	if ok, err := lookup(ctx, "u1", "prescriptions", "k1", now); err != nil || !ok {
		t.Fatalf("live key = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := lookup(ctx, "u1", "prescriptions", "missing", now); err != nil || ok {
		t.Fatalf("missing key = (%v, %v), want (false, nil)", ok, err)
	}

	if err := db.Migrator().DropTable(&domain.Idempotency{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if ok, err := lookup(ctx, "u1", "prescriptions", "k1", now); err == nil || ok {
		t.Fatalf("storage failure = (%v, %v), want an error", ok, err)
	}
}
