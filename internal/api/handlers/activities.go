package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/strava-sync/internal/activitysync"
	"github.com/pysugar/strava-sync/internal/api/middleware"
	"github.com/pysugar/strava-sync/internal/db/models"
	"github.com/pysugar/strava-sync/internal/store"
	"github.com/pysugar/strava-sync/internal/strava"
)

// ActivityView is the response shape for a stored activity.
type ActivityView struct {
	ID                 uint      `json:"id"`
	StravaID           string    `json:"strava_id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	StartDate          time.Time `json:"start_date"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	ElapsedTime        int       `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
}

func toActivityView(a models.Activity) ActivityView {
	return ActivityView{
		ID:                 a.ID,
		StravaID:           a.StravaID,
		Name:               a.Name,
		Type:               a.Type,
		StartDate:          a.StartDate,
		Distance:           a.Distance,
		MovingTime:         a.MovingTime,
		ElapsedTime:        a.ElapsedTime,
		TotalElevationGain: a.TotalElevationGain,
		AverageSpeed:       a.AverageSpeed,
		MaxSpeed:           a.MaxSpeed,
	}
}

// TodayActivitiesHandler synchronizes and returns today's activities.
func TodayActivitiesHandler(synchronizer *activitysync.Synchronizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		activities, err := synchronizer.SyncToday(r.Context(), user)
		if err != nil {
			switch {
			case errors.Is(err, strava.ErrNotLinked):
				writeError(w, http.StatusBadRequest, "not_linked", "no Strava account linked")
			case errors.Is(err, strava.ErrRefreshFailed):
				writeError(w, http.StatusBadRequest, "refresh_failed", "Strava re-authorization required")
			default:
				writeError(w, http.StatusInternalServerError, "fetch_failed", "failed to fetch activities")
			}
			return
		}

		views := make([]ActivityView, 0, len(activities))
		for _, a := range activities {
			views = append(views, toActivityView(a))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// ActivityByIDHandler returns one activity owned by the caller. Absent ids
// and other users' ids are both plain 404s.
func ActivityByIDHandler(synchronizer *activitysync.Synchronizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}

		activity, err := synchronizer.GetByID(r.Context(), user, uint(id))
		if err != nil {
			if errors.Is(err, store.ErrActivityNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "activity not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toActivityView(*activity))
	}
}
