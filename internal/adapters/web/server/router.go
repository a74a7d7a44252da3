package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcalzada-xor/wsta/internal/adapters/web/middleware"
)

func SetupRoutes(s *Server) *mux.Router {
	r := mux.NewRouter()

	// Requests that change the link go through a limiter
	actionLimiter := middleware.NewRateLimiter(10, 1*time.Minute, nil)
	limited := func(h http.HandlerFunc) http.Handler {
		return middleware.RateLimitMiddleware(actionLimiter)(h)
	}

	r.HandleFunc("/ws", s.WSManager.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.StationHandler.HandleStatus).Methods(http.MethodGet)
	api.Handle("/connect", limited(s.StationHandler.HandleConnect)).Methods(http.MethodPost)
	api.Handle("/deauth", limited(s.StationHandler.HandleDeauth)).Methods(http.MethodPost)
	api.Handle("/port", limited(s.StationHandler.HandlePort)).Methods(http.MethodPost)

	if s.JournalHandler != nil {
		api.HandleFunc("/events", s.JournalHandler.HandleEvents).Methods(http.MethodGet)
	}

	if s.APHandler != nil {
		api.HandleFunc("/ap", s.APHandler.HandleInfo).Methods(http.MethodGet)
		api.HandleFunc("/ap/clients", s.APHandler.HandleClients).Methods(http.MethodGet)
		api.Handle("/ap/clients/{mac}/deauth", limited(s.APHandler.HandleDeauth)).Methods(http.MethodPost)
	}

	return r
}
