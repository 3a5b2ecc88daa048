// Package api exposes the REST control surface used by the configuration
// portal and other on-device collaborators.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ossuary-dev/ossuary-pi/internal/database/repositories"
	"github.com/ossuary-dev/ossuary-pi/internal/services/netman"
	"github.com/ossuary-dev/ossuary-pi/internal/services/pubsub"
)

// Server holds the handler dependencies. Handlers stay thin: they translate
// HTTP to orchestrator calls and typed failures back to status codes.
type Server struct {
	manager *netman.Manager
	poller  *netman.Poller
	store   *repositories.KnownNetworkRepository
	events  *pubsub.PubSub
	version string
}

// NewServer creates the API server with its dependencies.
func NewServer(manager *netman.Manager, poller *netman.Poller, store *repositories.KnownNetworkRepository, events *pubsub.PubSub, version string) *Server {
	return &Server{
		manager: manager,
		poller:  poller,
		store:   store,
		events:  events,
		version: version,
	}
}

// Register mounts all routes on the router.
func (s *Server) Register(router chi.Router) {
	router.Get("/health", s.handleHealth)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws", s.handleWebSocket)

	router.Route("/api/v1/network", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/scan", s.handleScan)
		r.Post("/connect", s.handleConnect)
		r.Get("/known", s.handleKnownNetworks)
		r.Delete("/known/{ssid}", s.handleForget)
		r.Post("/ap/enable", s.handleAPEnable)
		r.Post("/ap/disable", s.handleAPDisable)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   s.version,
		"state":     s.poller.State(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Status())
}

// scanEntry is the portal-facing view of a scan result. Signal is reported
// as a percentage; raw dBm stays internal.
type scanEntry struct {
	SSID         string              `json:"ssid"`
	BSSID        string              `json:"bssid"`
	Frequency    int                 `json:"frequency"`
	Signal       int                 `json:"signal_strength"`
	Security     bool                `json:"security"`
	SecurityType netman.SecurityType `json:"security_type"`
	Connected    bool                `json:"connected"`
	Known        bool                `json:"known"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	networks, err := s.manager.ScanNetworks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	entries := make([]scanEntry, 0, len(networks))
	for _, n := range networks {
		entries = append(entries, scanEntry{
			SSID:         n.SSID,
			BSSID:        n.BSSID,
			Frequency:    n.Frequency,
			Signal:       n.SignalPercent(),
			Security:     n.Security,
			SecurityType: n.SecurityType,
			Connected:    n.Connected,
			Known:        n.Known,
		})
	}

	s.events.Publish(pubsub.TopicScan, entries)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"networks": entries,
		"count":    len(entries),
	})
}

type connectRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
		return
	}
	if req.SSID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "ssid is required"})
		return
	}

	ok, err := s.manager.ConnectToNetwork(r.Context(), req.SSID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"success": ok,
		"ssid":    req.SSID,
		"state":   s.poller.State(),
	}
	if !ok {
		response["error"] = "connection failed or timed out"
	}
	writeJSON(w, http.StatusOK, response)
}

type knownNetworkEntry struct {
	SSID           string     `json:"ssid"`
	SecurityType   string     `json:"security_type"`
	AutoConnect    bool       `json:"auto_connect"`
	Priority       int        `json:"priority"`
	LastUsed       *time.Time `json:"last_used"`
	FirstConnected *time.Time `json:"first_connected"`
	ConnectCount   int        `json:"connect_count"`
	FailureCount   int        `json:"failure_count"`
}

func (s *Server) handleKnownNetworks(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context(), false)
	if err != nil {
		writeError(w, err)
		return
	}

	entries := make([]knownNetworkEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, knownNetworkEntry{
			SSID:           rec.SSID,
			SecurityType:   rec.SecurityType,
			AutoConnect:    rec.AutoConnect,
			Priority:       rec.Priority,
			LastUsed:       rec.LastUsed,
			FirstConnected: rec.FirstConnected,
			ConnectCount:   rec.ConnectCount,
			FailureCount:   rec.FailureCount,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"networks": entries,
		"count":    len(entries),
	})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	ssid := chi.URLParam(r, "ssid")
	found, err := s.manager.ForgetNetwork(r.Context(), ssid)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "unknown network", "ssid": ssid})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"ssid":    ssid,
	})
}

func (s *Server) handleAPEnable(w http.ResponseWriter, r *http.Request) {
	ok, err := s.manager.EnableAPMode(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": ok,
		"state":   s.poller.State(),
	})
}

func (s *Server) handleAPDisable(w http.ResponseWriter, r *http.Request) {
	ok, err := s.manager.DisableAPMode(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": ok,
		"state":   s.poller.State(),
	})
}

// writeError maps typed failures from the orchestrator to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, netman.ErrOperationInFlight):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "another network operation is in progress"})
	case errors.Is(err, netman.ErrNoWiFiDevice):
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "no WiFi device available"})
	default:
		log.Printf("API error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
