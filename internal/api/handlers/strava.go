package handlers

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/pysugar/strava-sync/internal/api/middleware"
	"github.com/pysugar/strava-sync/internal/strava"
)

//go:embed templates/callback.html
var callbackHTML string

var callbackTemplate = template.Must(template.New("callback").Parse(callbackHTML))

// AuthorizeHandler returns the Strava consent page URL.
func AuthorizeHandler(lifecycle *strava.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"authorization_url": lifecycle.AuthorizationURL(),
		})
	}
}

// CallbackPageHandler renders the page Strava redirects the user to. It only
// displays the one-time code; the actual exchange happens via the POST
// callback from the user's client.
func CallbackPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "missing code parameter")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := callbackTemplate.Execute(w, map[string]string{"Code": code}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// LinkRequest is the payload for POST /strava/callback.
type LinkRequest struct {
	Code string `json:"code"`
}

// LinkHandler exchanges the authorization code and stores the token triple.
func LinkHandler(lifecycle *strava.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		var req LinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "missing authorization code")
			return
		}

		if err := lifecycle.Exchange(r.Context(), user, req.Code); err != nil {
			writeError(w, http.StatusBadRequest, "exchange_failed", "failed to link Strava account")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"message": "Strava account linked successfully"})
	}
}

// DisconnectHandler revokes access at Strava and unlinks the account.
func DisconnectHandler(lifecycle *strava.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		if !lifecycle.Linked(user) {
			writeError(w, http.StatusBadRequest, "not_linked", "no Strava account linked")
			return
		}

		if err := lifecycle.Revoke(r.Context(), user); err != nil {
			writeError(w, http.StatusBadRequest, "revoke_failed", "failed to disconnect Strava account")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"message": "Strava account disconnected successfully"})
	}
}
