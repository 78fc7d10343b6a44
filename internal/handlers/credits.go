package handlers

import (
	"net/http"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/logging"
)

// CreditsHandler exposes the user's credit balance.
type CreditsHandler struct {
	Sessions SessionManager
	Credits  CreditReader
}

// Balance handles GET /api/v1/credits requests.
func (h CreditsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil || h.Credits == nil {
		logger.Error("credit dependencies unavailable", "hasSessions", h.Sessions != nil, "hasCredits", h.Credits != nil)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "credit service unavailable")
		return
	}

	userID, err := h.Sessions.Verify(ctx, bearerToken(r))
	if err != nil {
		respondError(ctx, w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token")
		return
	}

	balance, err := h.Credits.Balance(ctx, userID)
	if err != nil {
		logger.Error("balance lookup failed", "error", err, "userId", userID)
		respondError(ctx, w, http.StatusInternalServerError, "credit_error", "could not read credit balance")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]int{"credits": balance})
}
