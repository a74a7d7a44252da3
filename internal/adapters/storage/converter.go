package storage

import (
	"encoding/json"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// toModel converts an event to its database row.
func toModel(ev domain.Event) (EventModel, error) {
	payload, err := json.Marshal(ev.Message)
	if err != nil {
		return EventModel{}, err
	}
	return EventModel{
		ID:      ev.ID,
		Session: ev.Session,
		Time:    ev.Time.UTC(),
		Name:    ev.Name,
		Payload: string(payload),
	}, nil
}

// toDomain converts a database row back to an event.
func toDomain(m EventModel) (domain.Event, error) {
	msg, err := domain.DecodeMsg(m.Name, []byte(m.Payload))
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		ID:      m.ID,
		Session: m.Session,
		Time:    m.Time,
		Name:    m.Name,
		Message: msg,
	}, nil
}
