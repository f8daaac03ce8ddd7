// Package api exposes the covers over HTTP with a websocket status feed.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	ws "github.com/jkaflik/cover2mqtt/internal/websocket"
)

// HealthCheck reports a dependency failure as a non nil error.
type HealthCheck func(ctx context.Context) error

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Covers int               `json:"covers"`
	Feeds  int               `json:"feeds"`
}

func NewRouter(covers *Covers, hub *ws.Hub, checks map[string]HealthCheck) *mux.Router {
	r := mux.NewRouter()
	r.Use(logging)
	r.Use(recovery)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", health(covers, hub, checks)).Methods(http.MethodGet)
	api.HandleFunc("/ws", websocketUpgrade(covers, hub)).Methods(http.MethodGet)

	api.HandleFunc("/covers", listCovers(covers)).Methods(http.MethodGet)
	api.HandleFunc("/covers/{name}", getCover(covers)).Methods(http.MethodGet)
	api.HandleFunc("/covers/{name}/position", setPosition(covers)).Methods(http.MethodPut)
	api.HandleFunc("/covers/{name}/known_position", setKnownPosition(covers)).Methods(http.MethodPost)
	api.HandleFunc("/covers/{name}/known_action", setKnownAction(covers)).Methods(http.MethodPost)
	api.HandleFunc("/covers/{name}/{command:open|close|stop}", commandCover(covers)).Methods(http.MethodPost)

	return r
}

func health(covers *Covers, hub *ws.Hub, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status: "healthy",
			Checks: map[string]string{},
			Covers: len(covers.All()),
			Feeds:  hub.ClientCount(),
		}

		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				response.Status = "degraded"
				response.Checks[name] = err.Error()
				continue
			}
			response.Checks[name] = "ok"
		}

		status := http.StatusOK
		if response.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	}
}
