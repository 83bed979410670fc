package handler

import (
	"net/http"
	"time"

	"github.com/Dan9191/lostcard-service/internal/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every route; gatherer backs /metrics
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging(h.log))

	r.HandleFunc("/", h.Info).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Public routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/found-card-photo", h.FoundCardPhoto).Methods("POST")
	api.HandleFunc("/found-card-redid", h.FoundCardRedID).Methods("POST")
	api.Handle("/pickup-request",
		httprate.LimitByIP(h.cfg.PickupRateLimit, time.Minute)(http.HandlerFunc(h.PickupRequest)),
	).Methods("POST")
	api.HandleFunc("/cards/{id}", h.GetCard).Methods("GET")
	api.HandleFunc("/admin/login", h.Login).Methods("POST")

	// Protected routes
	authRouter := r.PathPrefix("/api").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(h.cfg))
	authRouter.HandleFunc("/cards", h.ListCards).Methods("GET")
	authRouter.HandleFunc("/cards/{id}/set-email", h.SetEmail).Methods("POST")
	authRouter.HandleFunc("/admin/test-email", h.TestEmail).Methods("POST")

	return cors.New(cors.Options{
		AllowedOrigins: h.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler(r)
}
