package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/logging"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/models"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/tryon"
)

// TryOnHandler exposes the generation pipeline over HTTP.
type TryOnHandler struct {
	Pipeline GenerationPipeline
	Sessions SessionManager
	History  TryOnHistory
	Limiter  RateLimiter
}

type tryOnRequest struct {
	ModelImage    string `json:"modelImage"`
	TshirtImage   string `json:"tshirtImage"`
	GenerateVideo bool   `json:"generateVideo"`
}

type tryOnResponse struct {
	OK               bool   `json:"ok"`
	ImageURL         string `json:"imageUrl"`
	VideoURL         string `json:"videoUrl,omitempty"`
	ElapsedMs        int64  `json:"elapsedMs"`
	RemainingCredits int    `json:"remainingCredits"`
}

// Generate handles POST /tryon requests.
func (h TryOnHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Pipeline == nil {
		logger.Error("generation pipeline unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "generation service unavailable")
		return
	}

	if !allowRequest(h.Limiter, r, "tryon") {
		logger.Warn("tryon rate limited", "remoteAddr", r.RemoteAddr)
		respondError(ctx, w, http.StatusTooManyRequests, "rate_limited", "too many generation attempts")
		return
	}

	var req tryOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid tryon payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	outcome, err := h.Pipeline.Generate(ctx, bearerToken(r), tryon.Request{
		ModelImage:   req.ModelImage,
		GarmentImage: req.TshirtImage,
		WithVideo:    req.GenerateVideo,
	})
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, tryOnResponse{
		OK:               true,
		ImageURL:         outcome.Result.ImageURL,
		VideoURL:         outcome.Result.VideoURL,
		ElapsedMs:        outcome.Result.ElapsedMs,
		RemainingCredits: outcome.RemainingCredits,
	})
}

// respondFailure maps a classified pipeline error onto the wire contract.
func (h TryOnHandler) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	switch {
	case errors.Is(err, tryon.ErrInvalidRequest):
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, tryon.ErrUnauthorized):
		respondError(ctx, w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token")
	case errors.Is(err, tryon.ErrNoCredits):
		respondError(ctx, w, http.StatusPaymentRequired, "no_credits", "credit balance exhausted")
	case errors.Is(err, tryon.ErrCreditCheckFailed):
		respondError(ctx, w, http.StatusInternalServerError, "credit_error", "could not verify credit balance, please retry")
	case errors.Is(err, tryon.ErrGenerationFailed):
		respondError(ctx, w, http.StatusBadGateway, "generation_failed", "generation did not produce a result")
	default:
		logging.FromContext(ctx).Error("unclassified pipeline error", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "unexpected error")
	}
}

type tryOnHistoryEntry struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	WithVideo bool   `json:"withVideo"`
	ImageURL  string `json:"imageUrl"`
	VideoURL  string `json:"videoUrl,omitempty"`
	ElapsedMs int64  `json:"elapsedMs"`
	CreatedAt string `json:"createdAt"`
}

// List handles GET /api/v1/tryons requests.
func (h TryOnHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil || h.History == nil {
		logger.Error("tryon history dependencies unavailable", "hasSessions", h.Sessions != nil, "hasHistory", h.History != nil)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "history service unavailable")
		return
	}

	userID, err := h.Sessions.Verify(ctx, bearerToken(r))
	if err != nil {
		respondError(ctx, w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token")
		return
	}

	records, err := h.History.ListForUser(ctx, userID)
	if err != nil {
		logger.Error("list tryons failed", "error", err, "userId", userID)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "unable to list generations")
		return
	}

	entries := make([]tryOnHistoryEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, historyEntry(record))
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"tryons": entries})
}

func historyEntry(record models.TryOn) tryOnHistoryEntry {
	imageURL := record.ImageURL
	videoURL := record.VideoURL
	// Prefer the durable archived copies once they exist.
	if record.ArchiveStatus == models.ArchiveStatusReady {
		if record.ArchiveImageURL != "" {
			imageURL = record.ArchiveImageURL
		}
		if record.ArchiveVideoURL != "" {
			videoURL = record.ArchiveVideoURL
		}
	}

	return tryOnHistoryEntry{
		ID:        record.ID,
		Status:    record.Status,
		WithVideo: record.WithVideo,
		ImageURL:  imageURL,
		VideoURL:  videoURL,
		ElapsedMs: record.ElapsedMs,
		CreatedAt: record.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
