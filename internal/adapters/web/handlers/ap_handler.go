package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/wsta/internal/adapters/simap"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// AccessPoint is the simulated AP as seen by the debug surface.
type AccessPoint interface {
	BssDescription() domain.BssDescription
	Clients() []simap.Client
	Deauthenticate(sta domain.MacAddr, reason domain.ReasonCode) error
}

// APHandler inspects and drives the simulated access point.
type APHandler struct {
	AP AccessPoint
}

// NewAPHandler creates a new APHandler
func NewAPHandler(ap AccessPoint) *APHandler {
	return &APHandler{AP: ap}
}

// HandleInfo returns the BSS the AP advertises.
func (h *APHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.AP.BssDescription())
}

// HandleClients lists the stations known to the AP.
func (h *APHandler) HandleClients(w http.ResponseWriter, r *http.Request) {
	clients := h.AP.Clients()
	if clients == nil {
		clients = []simap.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

// HandleDeauth kicks a station from the AP side (?reason=N, default 1).
func (h *APHandler) HandleDeauth(w http.ResponseWriter, r *http.Request) {
	mac := mux.Vars(r)["mac"]
	if !domain.IsValidMAC(mac) {
		http.Error(w, "Invalid station MAC", http.StatusBadRequest)
		return
	}
	sta, err := domain.ParseMAC(mac)
	if err != nil {
		http.Error(w, "Invalid station MAC", http.StatusBadRequest)
		return
	}

	reason := domain.ReasonUnspecified
	if s := r.URL.Query().Get("reason"); s != "" {
		n, err := strconv.ParseUint(s, 10, 16)
		if err != nil || n == 0 {
			http.Error(w, "Invalid reason", http.StatusBadRequest)
			return
		}
		reason = domain.ReasonCode(n)
	}

	if err := h.AP.Deauthenticate(sta, reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "deauthenticated", "station": sta.String()})
}
