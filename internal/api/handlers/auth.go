package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/pysugar/strava-sync/internal/auth"
	"github.com/pysugar/strava-sync/internal/auth/session"
	"github.com/pysugar/strava-sync/internal/db/models"
	"github.com/pysugar/strava-sync/internal/email"
	"github.com/pysugar/strava-sync/internal/store"
)

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate ensures request correctness before any write happens.
func (r RegisterRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("username is required")
	}
	if strings.TrimSpace(r.Email) == "" || !strings.Contains(r.Email, "@") {
		return errors.New("a valid email is required")
	}
	return auth.ValidatePassword(r.Password)
}

// RegisterHandler creates a new user. With the mail sender disabled the
// account is auto-verified and the code only appears in the response; with
// it enabled the code is mailed and the account stays unverified until
// POST /auth/verify-email.
func RegisterHandler(users *store.UserStore, sender *email.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		hashed, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "could not hash password")
			return
		}

		code := auth.NewVerificationCode()
		user := &models.User{
			Username:         req.Username,
			Email:            req.Email,
			HashedPassword:   hashed,
			VerificationCode: &code,
		}
		if !sender.Enabled() {
			user.IsVerified = true
			user.IsActive = true
		}

		if err := users.Create(r.Context(), user); err != nil {
			if errors.Is(err, store.ErrDuplicateEmail) {
				writeError(w, http.StatusBadRequest, "duplicate_email", "email already registered")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}

		if sender.Enabled() {
			// Fire-and-forget: a lost mail is recoverable, the code is in the DB.
			if err := sender.SendVerificationEmail(user.Email, user.Username, code); err != nil {
				log.Printf("verification mail to %s failed: %v", user.Email, err)
			}
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"message":           "User created successfully",
			"verification_code": code,
		})
	}
}

// VerifyEmailRequest is the payload for POST /auth/verify-email.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyEmailHandler confirms the account with the one-time code.
func VerifyEmailHandler(users *store.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}

		user, err := users.ByEmail(r.Context(), req.Email)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "user not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}

		if user.VerificationCode == nil || *user.VerificationCode != req.Code {
			writeError(w, http.StatusBadRequest, "invalid_code", "invalid verification code")
			return
		}

		if err := users.MarkVerified(r.Context(), user); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
	}
}

// LoginHandler verifies form credentials and issues a session token.
func LoginHandler(authService *auth.Service, issuer *session.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse form")
			return
		}

		user, err := authService.Authenticate(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			switch {
			case errors.Is(err, auth.ErrNotVerified):
				writeError(w, http.StatusUnauthorized, "auth_failed", "account not verified")
			case errors.Is(err, auth.ErrInvalidCredentials):
				writeError(w, http.StatusUnauthorized, "auth_failed", "incorrect username or password")
			default:
				writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			}
			return
		}

		token, err := issuer.Issue(user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "could not issue session token")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"access_token": token,
			"token_type":   "bearer",
		})
	}
}

// LogoutHandler exists for client symmetry; session tokens are stateless, so
// logout is client-side discard.
func LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
	}
}
