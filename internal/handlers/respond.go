package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/logging"
)

// errorBody is the stable error envelope every failing endpoint returns.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, tag, message string) {
	respondJSON(ctx, w, status, errorBody{Error: tag, Message: message})
}

// bearerToken extracts the opaque credential from an Authorization header.
// Returns the empty string when the header is missing or not a Bearer scheme.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
