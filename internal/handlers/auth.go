package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"map-manager/internal/database"
	"map-manager/internal/logging"
	"map-manager/internal/metrics"
	"map-manager/internal/middleware"
)

// LoginRequest represents a login request with password only
type LoginRequest struct {
	Password string `json:"password"`
}

// AuthResponse represents the response from authentication endpoints
type AuthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"` // Seconds until session expires
}

func setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	setSessionCookie(w, "", time.Unix(0, 0))
}

// CheckSetupRequired returns whether an API password still has to be set
func (h *Handlers) CheckSetupRequired(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]bool{
		"needsSetup": !h.db.HasUsers(r.Context()),
	})
}

// Setup sets the initial API password. Once a password exists it can only be
// changed with billingctl.
func (h *Handlers) Setup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.db.HasUsers(ctx) {
		writeJSONError(w, "Setup already completed", http.StatusForbidden)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.db.SetPassword(ctx, req.Password); err != nil {
		if errors.Is(err, database.ErrPasswordTooShort) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logging.Error("Failed to set password: %v", err)
		writeJSONError(w, "Failed to set password", http.StatusInternalServerError)
		return
	}

	logging.Info("API password configured")

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success: true,
		Message: "Password configured successfully",
	})
}

// Login authenticates with password and starts a session. The token is
// returned both as a cookie and in the body for bearer use.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.db.ValidatePassword(ctx, req.Password)
	if err != nil {
		logging.Warn("Failed login attempt")
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		writeJSONError(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()

	session, err := h.db.CreateSession(ctx, user.ID)
	if err != nil {
		logging.Error("Failed to create session: %v", err)
		writeJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	setSessionCookie(w, session.Token, session.ExpiresAt)
	logging.Info("User logged in, session expires in %v", database.SessionDuration)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success:   true,
		Token:     session.Token,
		ExpiresIn: int(database.SessionDuration.Seconds()),
	})
}

// Logout ends the current session
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		// Best-effort session cleanup - don't fail logout if this errors
		if err := h.db.DeleteSession(r.Context(), token); err != nil {
			logging.Error("failed to delete session during logout: %v", err)
		}
	}

	clearSessionCookie(w)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

// CheckAuth verifies the current session. Without a configured password
// every request is authenticated.
func (h *Handlers) CheckAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.db.HasUsers(ctx) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, AuthResponse{Success: true, Message: "No password configured"})
		return
	}

	token := middleware.SessionToken(r)
	if token == "" {
		writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	session, err := h.db.ValidateSession(ctx, token)
	if err != nil {
		clearSessionCookie(w)
		writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success:   true,
		ExpiresIn: int(time.Until(session.ExpiresAt).Seconds()),
	})
}
