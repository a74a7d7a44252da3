package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/ports"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// JournalHandler serves journaled MLME events.
type JournalHandler struct {
	Journal ports.EventJournal
}

// NewJournalHandler creates a new JournalHandler
func NewJournalHandler(journal ports.EventJournal) *JournalHandler {
	return &JournalHandler{Journal: journal}
}

// HandleEvents lists events, newest first.
// Query: session, name, since (RFC 3339), limit.
func (h *JournalHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.EventFilter{
		Session: q.Get("session"),
		Name:    q.Get("name"),
		Limit:   defaultEventLimit,
	}

	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "Invalid since", http.StatusBadRequest)
			return
		}
		filter.Since = since
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = min(limit, maxEventLimit)
	}

	events, err := h.Journal.Events(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
