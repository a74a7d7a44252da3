package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/services/station"
)

// StationService is the part of the station loop the debug surface drives.
type StationService interface {
	Snapshot(ctx context.Context) (station.Snapshot, error)
	PostRequest(ctx context.Context, req domain.MlmeRequest) error
}

// Connector restarts the join, authenticate, associate sequence.
type Connector interface {
	Connect(ctx context.Context) error
}

// StationHandler exposes the station state and a few SME requests.
type StationHandler struct {
	Station   StationService
	Connector Connector
}

// NewStationHandler creates a new StationHandler. connector may be nil.
func NewStationHandler(sta StationService, connector Connector) *StationHandler {
	return &StationHandler{
		Station:   sta,
		Connector: connector,
	}
}

// HandleStatus returns the station snapshot.
func (h *StationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Station.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleConnect starts a new connection attempt.
func (h *StationHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if h.Connector == nil {
		http.Error(w, "No connector configured", http.StatusNotImplemented)
		return
	}
	if err := h.Connector.Connect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "connecting"})
}

// HandleDeauth leaves the joined BSS.
func (h *StationHandler) HandleDeauth(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Station.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if snap.Join == nil {
		http.Error(w, "Not joined to a BSS", http.StatusConflict)
		return
	}

	req := domain.DeauthenticateRequest{PeerSta: snap.Join.Bss.Bssid, ReasonCode: domain.ReasonLeavingNetworkDeauth}
	if err := h.Station.PostRequest(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "deauthenticating", "bssid": req.PeerSta.String()})
}

// HandlePort opens or blocks the controlled port (?state=open|blocked).
func (h *StationHandler) HandlePort(w http.ResponseWriter, r *http.Request) {
	var state domain.ControlledPortState
	switch r.URL.Query().Get("state") {
	case "open":
		state = domain.PortOpen
	case "blocked":
		state = domain.PortBlocked
	default:
		http.Error(w, "state must be open or blocked", http.StatusBadRequest)
		return
	}

	if err := h.Station.PostRequest(r.Context(), domain.UpdateControlledPortRequest{State: state}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"port": state.String()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the station error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrResourceExhausted), errors.Is(err, domain.ErrShouldWait):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrMalformed):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}
