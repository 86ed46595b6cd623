package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Skufu/MeddyPal/internal/assistant"
	"github.com/Skufu/MeddyPal/internal/engine"
	"github.com/Skufu/MeddyPal/internal/platform/middleware"
	"github.com/Skufu/MeddyPal/internal/store"
)

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type fakeDB struct {
	err error
}

func (f fakeDB) Ping(ctx context.Context) error {
	return f.err
}

type failingProfiles struct{}

func (failingProfiles) Get(context.Context, uuid.UUID) (*engine.UserProfile, error) {
	return nil, errors.New("connection refused")
}

func (failingProfiles) Upsert(context.Context, *engine.UserProfile) error {
	return errors.New("connection refused")
}

type stubComposer struct{ text string }

func (s stubComposer) Compose(context.Context, assistant.Input) (string, error) {
	return s.text, nil
}

type testServer struct {
	router *gin.Engine
	mem    *store.Memory
}

type serverOption func(*Handler, *RouterConfig)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rules, err := engine.DefaultRules()
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	eng, err := engine.New(rules, engine.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	mem := store.NewMemory()
	h := NewHandler(eng, mem.Profiles(), mem.Events(), nil, zerolog.Nop())
	h.now = func() time.Time { return fixedNow }

	cfg := RouterConfig{Auth: middleware.AuthConfig{AllowDevIdentity: true}}
	for _, opt := range opts {
		opt(h, &cfg)
	}
	return &testServer{router: NewRouter(h, nil, cfg, zerolog.Nop()), mem: mem}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestRouterHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(NewHandler(nil, nil, nil, nil, zerolog.Nop()), fakeDB{}, RouterConfig{}, zerolog.Nop())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRouterReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		db     fakeDB
		status int
		body   string
	}{
		{"healthy", fakeDB{}, http.StatusOK, `"db":"ok"`},
		{"degraded", fakeDB{err: errors.New("down")}, http.StatusServiceUnavailable, `"status":"degraded"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewRouter(NewHandler(nil, nil, nil, nil, zerolog.Nop()), tc.db, RouterConfig{}, zerolog.Nop())
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/readyz", nil)
			router.ServeHTTP(w, req)
			if w.Code != tc.status || !strings.Contains(w.Body.String(), tc.body) {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}

	s := newTestServer(t)
	if w := s.do(t, "GET", "/readyz", ""); !strings.Contains(w.Body.String(), `"db":"disabled"`) {
		t.Fatalf("expected disabled db, got %s", w.Body.String())
	}
}

func TestRecommend(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "POST", "/api/v1/recommend", `{"freeText":"I have chest pain and difficulty breathing"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp engine.Response
	decode(t, w, &resp)
	if resp.Type != engine.ResponseUrgentAction || resp.Urgency != engine.UrgencyHigh {
		t.Fatalf("expected urgent high response, got %s/%s", resp.Type, resp.Urgency)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("expected API responses to carry security headers")
	}
}

func TestRecommendIsDeterministic(t *testing.T) {
	s := newTestServer(t)
	body := `{"freeText":"I need a lab test","profile":{"age":42},"maxRecommendations":5}`
	first := s.do(t, "POST", "/api/v1/recommend", body).Body.String()
	second := s.do(t, "POST", "/api/v1/recommend", body).Body.String()
	if first != second {
		t.Fatalf("expected identical output:\n%s\n%s", first, second)
	}
}

func TestRecommendBadJSON(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "POST", "/api/v1/recommend", `{"freeText":`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_request") {
		t.Fatalf("expected 400 bad_request, got %d %s", w.Code, w.Body.String())
	}
}

func TestSymptomCheck(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "POST", "/api/v1/symptom-check", `{"symptoms":["persistent cough","wheezing"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var report engine.SymptomReport
	decode(t, w, &report)
	if report.Specialist != "Pulmonologist" {
		t.Fatalf("expected Pulmonologist, got %+v", report)
	}

	w = s.do(t, "POST", "/api/v1/symptom-check", `{"symptoms":[]}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty symptoms, got %d", w.Code)
	}
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "POST", "/api/v1/assistant/chat", `{"message": "", "maxRecommendations": 3}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for validation failure, got %d", w.Code)
	}
	body := strings.ToLower(w.Body.String())
	if !strings.Contains(body, "validation_failed") || !strings.Contains(body, "message is required") {
		t.Fatalf("expected validation error response, got %s", w.Body.String())
	}
}

func TestChatRecordsSymptomCheck(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "POST", "/api/v1/assistant/chat", `{"message":"I have a bad headache and dizziness"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp chatResponse
	decode(t, w, &resp)
	if resp.Intent != engine.IntentHealthConcern || resp.Source != assistant.SourceRules {
		t.Fatalf("unexpected response %+v", resp)
	}

	events, err := s.mem.Events().ListSince(context.Background(), middleware.DevUserID, time.Time{}, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].Category != engine.CategorySymptomCheck {
		t.Fatalf("expected one symptom_check event, got %+v", events)
	}

	// A non-health message does not add activity.
	s.do(t, "POST", "/api/v1/assistant/chat", `{"message":"What does my insurance cover?"}`)
	events, _ = s.mem.Events().ListSince(context.Background(), middleware.DevUserID, time.Time{}, 0)
	if len(events) != 1 {
		t.Fatalf("expected activity to be unchanged, got %d events", len(events))
	}
}

func TestChatUsesComposer(t *testing.T) {
	s := newTestServer(t, func(h *Handler, _ *RouterConfig) {
		h.composer = stubComposer{text: "Reworded reply."}
	})
	w := s.do(t, "POST", "/api/v1/assistant/chat", `{"message":"I want to book an appointment"}`)
	var resp chatResponse
	decode(t, w, &resp)
	if resp.Content != "Reworded reply." || resp.Source != assistant.SourceAI {
		t.Fatalf("expected composed content, got %q from %s", resp.Content, resp.Source)
	}
}

func TestChatStoreUnavailable(t *testing.T) {
	s := newTestServer(t, func(h *Handler, _ *RouterConfig) {
		h.profiles = failingProfiles{}
	})
	w := s.do(t, "POST", "/api/v1/assistant/chat", `{"message":"hello"}`)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "upstream_unavailable") {
		t.Fatalf("expected 503, got %d %s", w.Code, w.Body.String())
	}
}

func TestChatRequiresToken(t *testing.T) {
	s := newTestServer(t, func(_ *Handler, cfg *RouterConfig) {
		cfg.Auth = middleware.AuthConfig{Secret: "test-secret"}
	})
	w := s.do(t, "POST", "/api/v1/assistant/chat", `{"message":"hello"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(t, "GET", "/api/v1/me/profile", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before the profile exists, got %d", w.Code)
	}

	w := s.do(t, "PUT", "/api/v1/me/profile", `{
		"fullName": "  Ana Cruz ",
		"age": 42,
		"conditions": ["Asthma", "asthma", " "],
		"hasInsurance": false
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, "GET", "/api/v1/me/profile", "")
	var got profileResponse
	decode(t, w, &got)
	if got.Profile.FullName != "Ana Cruz" || len(got.Profile.Conditions) != 1 {
		t.Fatalf("expected cleaned profile, got %+v", got.Profile)
	}
	// full_name 10 + age 15 + conditions 15 + insurance 15
	if got.ProfileCompleteness != 55 {
		t.Fatalf("expected completeness 55, got %d", got.ProfileCompleteness)
	}

	w = s.do(t, "PUT", "/api/v1/me/profile", `{"age": 200}`)
	if w.Code != http.StatusUnprocessableEntity || !strings.Contains(w.Body.String(), "age must be at most 130") {
		t.Fatalf("expected age validation error, got %d %s", w.Code, w.Body.String())
	}
}

func TestEvents(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "POST", "/api/v1/me/events", `{"category":"surgery"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown category, got %d", w.Code)
	}

	w = s.do(t, "POST", "/api/v1/me/events", `{"category":"lab_order","occurredAt":"2027-01-01T00:00:00Z"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a future event, got %d", w.Code)
	}

	for _, body := range []string{
		`{"category":"lab_order","description":"CBC"}`,
		`{"category":"consultation","occurredAt":"2026-06-01T00:00:00Z"}`,
	} {
		if w := s.do(t, "POST", "/api/v1/me/events", body); w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
	}

	w = s.do(t, "GET", "/api/v1/me/events?days=30", "")
	var got eventsResponse
	decode(t, w, &got)
	if len(got.Events) != 1 || got.Events[0].Category != engine.CategoryLabOrder {
		t.Fatalf("expected only the recent lab order, got %+v", got.Events)
	}

	if w := s.do(t, "GET", "/api/v1/me/events?days=0", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for days=0, got %d", w.Code)
	}
}

func TestInsights(t *testing.T) {
	s := newTestServer(t)
	s.do(t, "PUT", "/api/v1/me/profile", `{"age": 42}`)

	w := s.do(t, "GET", "/api/v1/me/insights?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got engine.Insights
	decode(t, w, &got)
	if len(got.Recommendations) == 0 || got.Recommendations[0].ID != "urgent_insurance" {
		t.Fatalf("expected urgent_insurance first, got %+v", got.Recommendations)
	}
	if got.Scores.Engagement != 50 {
		t.Fatalf("expected base engagement 50, got %d", got.Scores.Engagement)
	}
}

func TestCleanList(t *testing.T) {
	got := cleanList([]string{" Penicillin", "penicillin ", "", "Latex"})
	if len(got) != 2 || got[0] != "Penicillin" || got[1] != "Latex" {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	limited := func(h *Handler, cfg *RouterConfig) {
		cfg.RateLimitRPS = 1
		cfg.RateLimitBurst = 1
	}
	send := func(s *testServer, forwarded string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/recommend", strings.NewReader(`{"freeText":"hello"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwarded)
		req.RemoteAddr = "203.0.113.9:4000"
		s.router.ServeHTTP(w, req)
		return w.Code
	}

	s := newTestServer(t, limited)
	codes := []int{}
	for i := 0; i < 5; i++ {
		codes = append(codes, send(s, "10.0.0."+string(rune('0'+i))))
	}
	if codes[0] != http.StatusOK {
		t.Fatalf("expected first request to pass, got %v", codes)
	}
	for _, code := range codes[1:] {
		if code != http.StatusTooManyRequests {
			t.Fatalf("expected rotated X-Forwarded-For to share one bucket, got %v", codes)
		}
	}

	trusted := newTestServer(t, limited, func(h *Handler, cfg *RouterConfig) {
		cfg.TrustedProxies = []string{"203.0.113.9"}
	})
	if code := send(trusted, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := send(trusted, "10.0.0.2"); code != http.StatusOK {
		t.Fatalf("expected a trusted proxy's forwarded client to get its own bucket, got %d", code)
	}
	if code := send(trusted, "10.0.0.2"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for a repeated client, got %d", code)
	}
}
