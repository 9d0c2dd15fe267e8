package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pysugar/strava-sync/internal/activitysync"
	"github.com/pysugar/strava-sync/internal/api/handlers"
	"github.com/pysugar/strava-sync/internal/api/middleware"
	"github.com/pysugar/strava-sync/internal/auth"
	"github.com/pysugar/strava-sync/internal/auth/session"
	"github.com/pysugar/strava-sync/internal/config"
	"github.com/pysugar/strava-sync/internal/db"
	"github.com/pysugar/strava-sync/internal/email"
	"github.com/pysugar/strava-sync/internal/logging"
	"github.com/pysugar/strava-sync/internal/store"
	"github.com/pysugar/strava-sync/internal/strava"
)

func main() {
	cfg, err := config.Load(os.Getenv("STRAVASYNC_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	users := store.NewUserStore(database)
	activities := store.NewActivityStore(database)

	stravaClient := strava.NewClient(&cfg.Strava)
	lifecycle := strava.NewLifecycle(stravaClient, users)
	synchronizer := activitysync.NewSynchronizer(lifecycle, stravaClient, activities)

	issuer := session.NewIssuer(cfg.Session.Secret, cfg.Session.TTL())
	authService := auth.NewService(users)
	sender := email.NewSender(cfg.Email)

	// Create router
	r := chi.NewRouter()
	r.Use(logging.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	requireSession := middleware.RequireSession(issuer, users)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message": "Welcome to Strava Integration API"}`))
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", handlers.RegisterHandler(users, sender))
		r.Post("/verify-email", handlers.VerifyEmailHandler(users))
		r.Post("/login", handlers.LoginHandler(authService, issuer))
		r.With(requireSession).Post("/logout", handlers.LogoutHandler())
	})

	r.Route("/strava", func(r chi.Router) {
		// The GET callback is hit by Strava's redirect, before any session exists.
		r.Get("/callback", handlers.CallbackPageHandler())

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/authorize", handlers.AuthorizeHandler(lifecycle))
			r.Post("/callback", handlers.LinkHandler(lifecycle))
			r.Delete("/disconnect", handlers.DisconnectHandler(lifecycle))
		})
	})

	r.Route("/activities", func(r chi.Router) {
		r.Use(requireSession)
		r.Get("/today", handlers.TodayActivitiesHandler(synchronizer))
		r.Get("/{id}", handlers.ActivityByIDHandler(synchronizer))
	})

	addr := cfg.Server.Addr()
	log.Printf("🚀 strava-sync starting on http://%s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
