// Package diagnostics exposes the health and Prometheus metrics endpoints
// the example programs serve while a workload runs.
package diagnostics

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/docstore/internal/metrics"
)

// SetupRoutes configures and returns the diagnostics router
func SetupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Record request metrics for every endpoint
	r.Use(metrics.Middleware)

	r.HandleFunc("/health", HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

// HealthHandler reports process liveness
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Start serves the diagnostics endpoints on the given port in a background
// goroutine and returns the server so the caller can shut it down.
func Start(port string) *http.Server {
	server := &http.Server{
		Addr:    ":" + port,
		Handler: SetupRoutes(),
	}

	go func() {
		log.Info().
			Str("port", port).
			Msg("Starting diagnostics server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().
				Err(err).
				Msg("Diagnostics server failed")
		}
	}()

	return server
}
