// Package api exposes the node's mesh status over HTTP. The administrative
// dashboard polls these endpoints and attaches to /ws for live updates.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/meshnet/internal/coordinator"
	"github.com/meshnet/internal/discovery"
	"github.com/meshnet/internal/websocket"
)

type Server struct {
	nodeID      string
	coordinator *coordinator.Coordinator
	registry    *discovery.Registry
	hub         *websocket.Hub
}

func New(nodeID string, coord *coordinator.Coordinator, registry *discovery.Registry, hub *websocket.Hub) *Server {
	return &Server{
		nodeID:      nodeID,
		coordinator: coord,
		registry:    registry,
		hub:         hub,
	}
}

// Handler builds the route table. Split from Start so tests can drive the
// mux directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cluster", s.handleCluster)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/health", s.handleHealth)
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.ServeWS)
	}
	return mux
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("[API][%s] Status server listening on %s", s.nodeID, addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cluster, ok := s.coordinator.Current()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cluster formed"})
		return
	}
	writeJSON(w, http.StatusOK, cluster)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	devices := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := map[string]interface{}{
		"status":  "ok",
		"node_id": s.nodeID,
		"peers":   s.registry.PeerCount(),
	}
	if s.hub != nil {
		status["ws_clients"] = s.hub.GetClientCount()
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}
