package health

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Status is the payload served by the liveness endpoint.
type Status struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     int64  `json:"timestamp"`
}

// Server exposes process liveness over HTTP.
type Server struct {
	service string
	started time.Time
}

func NewServer(service string) *Server {
	return &Server{service: service, started: time.Now()}
}

// Handler builds the routes on a dedicated mux so nothing registers on
// http.DefaultServeMux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start serves the liveness endpoint in the background.
func (s *Server) Start(port string) {
	log.Printf("Health check listening on :%s", port)

	go func() {
		if err := http.ListenAndServe(":"+port, s.Handler()); err != nil {
			log.Fatalf("Health server failed: %v", err)
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := Status{
		Status:        "healthy",
		Service:       s.service,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Timestamp:     time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
