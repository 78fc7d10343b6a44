package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/imaging"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/models"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/tryon"
)

func testPayload(content string) string {
	return imaging.PayloadPrefix + base64.StdEncoding.EncodeToString([]byte(content))
}

// fakeLedger implements tryon.Ledger over a plain map for handler tests.
type fakeLedger struct {
	credits map[string]int
	calls   int
	err     error
}

func (l *fakeLedger) ConsumeOne(_ context.Context, userID string) (int, error) {
	l.calls++
	if l.err != nil {
		return 0, l.err
	}
	balance := l.credits[userID]
	if balance <= 0 {
		return models.CreditsExhausted, nil
	}
	l.credits[userID] = balance - 1
	return balance - 1, nil
}

func newTryOnPipeline(sessions SessionManager, ledger *fakeLedger, gen tryon.Generator) *tryon.Pipeline {
	return &tryon.Pipeline{
		Verifier:  sessions,
		Ledger:    ledger,
		Generator: gen,
	}
}

func issueToken(t *testing.T, sessions SessionManager, userID string) string {
	t.Helper()
	tokens, err := sessions.Issue(context.Background(), userID)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}
	return tokens.AccessToken
}

func postTryOn(t *testing.T, handler TryOnHandler, token string, body tryOnRequest) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/tryon", bytes.NewReader(payload))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()

	handler.Generate(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorBody
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestTryOnGenerateSuccess(t *testing.T) {
	sessions := newTestSessionManager()
	ledger := &fakeLedger{credits: map[string]int{"user-1": 1}}
	gen := tryon.GeneratorFunc(func(_ context.Context, req tryon.Request) (tryon.Result, error) {
		if !req.WithVideo {
			t.Fatal("expected video flag to be forwarded")
		}
		return tryon.Result{
			ImageURL:  "https://cdn.example.com/result.jpg",
			VideoURL:  "https://cdn.example.com/result.mp4",
			ElapsedMs: 3100,
		}, nil
	})

	handler := TryOnHandler{Pipeline: newTryOnPipeline(sessions, ledger, gen), Sessions: sessions}
	token := issueToken(t, sessions, "user-1")

	rec := postTryOn(t, handler, token, tryOnRequest{
		ModelImage:    testPayload("model"),
		TshirtImage:   testPayload("tshirt"),
		GenerateVideo: true,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp tryOnResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || resp.ImageURL == "" || resp.VideoURL == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RemainingCredits != 0 {
		t.Fatalf("expected 0 remaining credits, got %d", resp.RemainingCredits)
	}
	if resp.ElapsedMs != 3100 {
		t.Fatalf("expected elapsed 3100, got %d", resp.ElapsedMs)
	}
}

func TestTryOnGenerateMissingToken(t *testing.T) {
	sessions := newTestSessionManager()
	ledger := &fakeLedger{credits: map[string]int{"user-1": 1}}
	handler := TryOnHandler{Pipeline: newTryOnPipeline(sessions, ledger, okGen()), Sessions: sessions}

	rec := postTryOn(t, handler, "", tryOnRequest{
		ModelImage:  testPayload("model"),
		TshirtImage: testPayload("tshirt"),
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "Unauthorized" {
		t.Fatalf("expected Unauthorized tag, got %q", resp.Error)
	}
	if ledger.calls != 0 {
		t.Fatalf("ledger must not be touched without a valid token, got %d calls", ledger.calls)
	}
}

func TestTryOnGenerateMissingGarmentImage(t *testing.T) {
	sessions := newTestSessionManager()
	ledger := &fakeLedger{credits: map[string]int{"user-1": 5}}
	handler := TryOnHandler{Pipeline: newTryOnPipeline(sessions, ledger, okGen()), Sessions: sessions}
	token := issueToken(t, sessions, "user-1")

	rec := postTryOn(t, handler, token, tryOnRequest{ModelImage: testPayload("model")})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "invalid_request" {
		t.Fatalf("expected invalid_request tag, got %q", resp.Error)
	}
	if ledger.calls != 0 {
		t.Fatalf("ledger must not be touched for invalid payloads, got %d calls", ledger.calls)
	}
}

func TestTryOnGenerateNoCredits(t *testing.T) {
	sessions := newTestSessionManager()
	ledger := &fakeLedger{credits: map[string]int{"user-1": 1}}
	handler := TryOnHandler{Pipeline: newTryOnPipeline(sessions, ledger, okGen()), Sessions: sessions}
	token := issueToken(t, sessions, "user-1")

	valid := tryOnRequest{ModelImage: testPayload("model"), TshirtImage: testPayload("tshirt")}

	rec := postTryOn(t, handler, token, valid)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected status %d got %d", http.StatusOK, rec.Code)
	}
	var first tryOnResponse
	if err := json.NewDecoder(rec.Body).Decode(&first); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !first.OK || first.RemainingCredits != 0 {
		t.Fatalf("unexpected first response: %+v", first)
	}

	rec = postTryOn(t, handler, token, valid)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("second request: expected status %d got %d", http.StatusPaymentRequired, rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "no_credits" {
		t.Fatalf("expected no_credits tag, got %q", resp.Error)
	}
}

func TestTryOnGenerateCreditError(t *testing.T) {
	sessions := newTestSessionManager()
	ledger := &fakeLedger{credits: map[string]int{}, err: errors.New("db down")}
	handler := TryOnHandler{Pipeline: newTryOnPipeline(sessions, ledger, okGen()), Sessions: sessions}
	token := issueToken(t, sessions, "user-1")

	rec := postTryOn(t, handler, token, tryOnRequest{ModelImage: testPayload("model"), TshirtImage: testPayload("tshirt")})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d got %d", http.StatusInternalServerError, rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "credit_error" {
		t.Fatalf("expected credit_error tag, got %q", resp.Error)
	}
}

func TestTryOnGenerateBackendFailure(t *testing.T) {
	sessions := newTestSessionManager()
	ledger := &fakeLedger{credits: map[string]int{"user-1": 1}}
	gen := tryon.GeneratorFunc(func(_ context.Context, _ tryon.Request) (tryon.Result, error) {
		return tryon.Result{}, fmt.Errorf("backend exploded")
	})
	handler := TryOnHandler{Pipeline: newTryOnPipeline(sessions, ledger, gen), Sessions: sessions}
	token := issueToken(t, sessions, "user-1")

	rec := postTryOn(t, handler, token, tryOnRequest{ModelImage: testPayload("model"), TshirtImage: testPayload("tshirt")})

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d got %d", http.StatusBadGateway, rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "generation_failed" {
		t.Fatalf("expected generation_failed tag, got %q", resp.Error)
	}
	if got := ledger.credits["user-1"]; got != 0 {
		t.Fatalf("expected credit to stay spent, balance %d", got)
	}
}

func TestTryOnGenerateRateLimited(t *testing.T) {
	sessions := newTestSessionManager()
	ledger := &fakeLedger{credits: map[string]int{"user-1": 1}}
	handler := TryOnHandler{
		Pipeline: newTryOnPipeline(sessions, ledger, okGen()),
		Sessions: sessions,
		Limiter:  denyAllLimiter{},
	}
	token := issueToken(t, sessions, "user-1")

	rec := postTryOn(t, handler, token, tryOnRequest{ModelImage: testPayload("model"), TshirtImage: testPayload("tshirt")})

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d got %d", http.StatusTooManyRequests, rec.Code)
	}
	if ledger.calls != 0 {
		t.Fatalf("rate limited request must not reach the ledger, got %d calls", ledger.calls)
	}
}

type fakeHistory struct {
	records []models.TryOn
}

func (h *fakeHistory) ListForUser(_ context.Context, _ string) ([]models.TryOn, error) {
	return h.records, nil
}

func TestTryOnListPrefersArchivedAssets(t *testing.T) {
	sessions := newTestSessionManager()
	token := issueToken(t, sessions, "user-1")

	history := &fakeHistory{records: []models.TryOn{
		{
			ID:              "tryon-1",
			Status:          models.TryOnStatusCompleted,
			ImageURL:        "https://backend.example.com/ephemeral.jpg",
			ArchiveStatus:   models.ArchiveStatusReady,
			ArchiveImageURL: "https://store.example.com/tryon-1/result.jpg",
			CreatedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:            "tryon-2",
			Status:        models.TryOnStatusCompleted,
			ImageURL:      "https://backend.example.com/fresh.jpg",
			ArchiveStatus: models.ArchiveStatusPending,
			CreatedAt:     time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
		},
	}}

	handler := TryOnHandler{Sessions: sessions, History: history}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tryons", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp struct {
		TryOns []tryOnHistoryEntry `json:"tryons"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.TryOns) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.TryOns))
	}
	if resp.TryOns[0].ImageURL != "https://store.example.com/tryon-1/result.jpg" {
		t.Fatalf("expected archived url, got %q", resp.TryOns[0].ImageURL)
	}
	if resp.TryOns[1].ImageURL != "https://backend.example.com/fresh.jpg" {
		t.Fatalf("expected backend url while archive pending, got %q", resp.TryOns[1].ImageURL)
	}
}

func TestTryOnListRequiresToken(t *testing.T) {
	handler := TryOnHandler{Sessions: newTestSessionManager(), History: &fakeHistory{}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tryons", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func okGen() tryon.Generator {
	return tryon.GeneratorFunc(func(_ context.Context, _ tryon.Request) (tryon.Result, error) {
		return tryon.Result{ImageURL: "https://cdn.example.com/result.jpg", ElapsedMs: 1000}, nil
	})
}
