package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/staffdir/internal/metrics"
	"github.com/garnizeh/staffdir/internal/ordering"
	"github.com/garnizeh/staffdir/internal/roster"
	"github.com/garnizeh/staffdir/pkg/repository"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Directory *roster.Directory
	Reorder   *ordering.Manager
	// Assets is optional; without it photos are not served. Served photos
	// are public to anyone holding the ref.
	Assets         repository.AssetReader
	Auth           AuthConfig
	MaxUploadBytes int64
	// Timeout bounds every protected request; zero disables it
	Timeout   time.Duration
	Version   string
	BuildTime string
}

func SetupRoutes(d Deps) (*mux.Router, error) {
	authHandler, err := NewAuthHandler(d.Auth)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()

	// Middleware chain
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := NewSystemHandler("staffdir")
	rosterHandler := NewRosterHandler(d.Directory, d.MaxUploadBytes)
	reorderHandler := NewReorderHandler(d.Reorder)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(d.Version, d.BuildTime)).Methods(http.MethodGet)
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/auth/login", authHandler.Login).Methods(http.MethodPost)
	// Photos load from <img src>, which cannot carry a bearer token. Refs are
	// random and archived assets leave the served namespace.
	if d.Assets != nil {
		r.HandleFunc("/v1/assets/{ref}", NewAssetHandler(d.Assets).Get).Methods(http.MethodGet)
	}

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(SessionMiddleware(d.Auth.JWTSecret))
	if d.Timeout > 0 {
		apiV1.Use(timeoutMiddleware(d.Timeout))
	}

	apiV1.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)

	// Roster endpoints
	apiV1.HandleFunc("/roster", rosterHandler.List).Methods(http.MethodGet)
	apiV1.HandleFunc("/roster", rosterHandler.Create).Methods(http.MethodPost)
	apiV1.HandleFunc("/roster/{id}", rosterHandler.Update).Methods(http.MethodPut)
	apiV1.HandleFunc("/roster/{id}", rosterHandler.Delete).Methods(http.MethodDelete)
	apiV1.HandleFunc("/positions", rosterHandler.Positions).Methods(http.MethodGet)
	apiV1.HandleFunc("/departments", rosterHandler.Departments).Methods(http.MethodGet)

	// Reorder endpoints
	apiV1.HandleFunc("/reorder", reorderHandler.Open).Methods(http.MethodPost)
	apiV1.HandleFunc("/reorder/{sid}", reorderHandler.Get).Methods(http.MethodGet)
	apiV1.HandleFunc("/reorder/{sid}", reorderHandler.Cancel).Methods(http.MethodDelete)
	apiV1.HandleFunc("/reorder/{sid}/drag", reorderHandler.Drag).Methods(http.MethodPost)
	apiV1.HandleFunc("/reorder/{sid}/hover", reorderHandler.Hover).Methods(http.MethodPost)
	apiV1.HandleFunc("/reorder/{sid}/drop", reorderHandler.Drop).Methods(http.MethodPost)
	apiV1.HandleFunc("/reorder/{sid}/dragend", reorderHandler.DragEnd).Methods(http.MethodPost)
	apiV1.HandleFunc("/reorder/{sid}/move", reorderHandler.Move).Methods(http.MethodPost)
	apiV1.HandleFunc("/reorder/{sid}/commit", reorderHandler.Commit).Methods(http.MethodPost)

	// CORS preflight for every path; CORSMiddleware answers it
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r, nil
}

// timeoutMiddleware bounds the request context; store calls observe it.
func timeoutMiddleware(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
