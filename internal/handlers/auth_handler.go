package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"storefront-gateway/internal/api"
	"storefront-gateway/internal/captcha"
	"storefront-gateway/internal/middleware"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/otp"
	"storefront-gateway/internal/session"
	"storefront-gateway/pkg/utils"
)

type AuthHandler struct {
	Machine *otp.Machine
	Session *session.Store
	API     *api.Client
}

func NewAuthHandler(machine *otp.Machine, sessionStore *session.Store, apiClient *api.Client) *AuthHandler {
	return &AuthHandler{
		Machine: machine,
		Session: sessionStore,
		API:     apiClient,
	}
}

// SendCode starts a phone verification challenge.
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req models.SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	remaining, err := h.Machine.IssueChallenge(r.Context(), req.PhoneNumber)
	if err != nil {
		switch {
		case errors.Is(err, otp.ErrInvalidPhoneNumber):
			utils.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, captcha.ErrChallengeSetupFailed):
			utils.Error(w, http.StatusBadGateway, err.Error())
		default:
			log.Printf("[Auth] send code failed: %v", err)
			utils.Error(w, http.StatusBadGateway, "Failed to send verification code")
		}
		return
	}

	utils.JSON(w, http.StatusOK, models.ChallengeResponse{
		Success:          true,
		State:            string(h.Machine.State()),
		PhoneNumber:      req.PhoneNumber,
		RemainingSeconds: remaining,
	})
}

// ChallengeStatus reports the in-flight challenge so the UI can show
// the countdown after a reload.
func (h *AuthHandler) ChallengeStatus(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, models.ChallengeResponse{
		Success:          true,
		State:            string(h.Machine.State()),
		PhoneNumber:      h.Machine.PhoneNumber(),
		RemainingSeconds: h.Machine.RemainingSeconds(),
	})
}

// VerifyCode exchanges the entered code for an account session.
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, tokens, err := h.Machine.Verify(r.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, otp.ErrInvalidCodeFormat):
			utils.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, otp.ErrNoActiveChallenge):
			utils.Error(w, http.StatusConflict, "No active challenge. Please request a new code")
		case errors.Is(err, api.ErrSessionExpired):
			utils.Error(w, http.StatusGone, "Verification session expired. Please request a new code")
		default:
			utils.Error(w, http.StatusUnauthorized, "Verification failed")
		}
		return
	}

	if err := h.Session.Adopt(user, tokens); err != nil {
		log.Printf("[Auth] failed to adopt session: %v", err)
		utils.Error(w, http.StatusInternalServerError, "Failed to establish session")
		return
	}

	utils.JSON(w, http.StatusOK, models.AuthResponse{Success: true, User: user})
}

// ResetChallenge cancels the in-flight challenge.
func (h *AuthHandler) ResetChallenge(w http.ResponseWriter, r *http.Request) {
	h.Machine.Reset()
	utils.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Login performs the direct email/password exchange.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		utils.Error(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, tokens, err := h.API.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// Generic error - don't reveal whether the account exists
		utils.Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := h.Session.Adopt(user, tokens); err != nil {
		log.Printf("[Auth] failed to adopt session: %v", err)
		utils.Error(w, http.StatusInternalServerError, "Failed to establish session")
		return
	}

	utils.JSON(w, http.StatusOK, models.AuthResponse{Success: true, User: user})
}

// Logout invalidates the bearer upstream (best-effort) and clears the
// local session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := h.Session.Token(r.Context())
	if err == nil && token != "" {
		if err := h.API.Logout(r.Context(), token); err != nil {
			log.Printf("[Auth] upstream logout failed (continuing): %v", err)
		}
	}

	h.Session.Clear()
	utils.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SessionInfo reports whether a session exists and for whom.
func (h *AuthHandler) SessionInfo(w http.ResponseWriter, r *http.Request) {
	cur := h.Session.Current()
	if cur == nil {
		utils.JSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"user":          cur.User,
	})
}

// Profile returns the authenticated user. Mounted behind the session
// guard.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	utils.JSON(w, http.StatusOK, user)
}
