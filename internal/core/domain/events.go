package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is one message the station sent to the SME, stamped for the
// journal and the event stream.
type Event struct {
	ID      string    `json:"id"`
	Session string    `json:"session"`
	Time    time.Time `json:"time"`
	Name    string    `json:"name"`
	Message MlmeMsg   `json:"message"`
}

// EventFilter narrows a journal query. Zero fields match everything.
type EventFilter struct {
	Session string
	Name    string
	Since   time.Time
	Limit   int
}

var msgDecoders = map[string]func([]byte) (MlmeMsg, error){
	JoinConfirm{}.Name():              decodeAs[JoinConfirm],
	AuthenticateConfirm{}.Name():      decodeAs[AuthenticateConfirm],
	AssociateConfirm{}.Name():         decodeAs[AssociateConfirm],
	DeauthenticateConfirm{}.Name():    decodeAs[DeauthenticateConfirm],
	DeauthenticateIndication{}.Name(): decodeAs[DeauthenticateIndication],
	DisassociateIndication{}.Name():   decodeAs[DisassociateIndication],
	EapolIndication{}.Name():          decodeAs[EapolIndication],
	EapolConfirm{}.Name():             decodeAs[EapolConfirm],
	SignalReportIndication{}.Name():   decodeAs[SignalReportIndication],
	SetKeysConfirm{}.Name():           decodeAs[SetKeysConfirm],
}

func decodeAs[T MlmeMsg](data []byte) (MlmeMsg, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeMsg rebuilds a message from its Name and JSON encoding.
func DecodeMsg(name string, data []byte) (MlmeMsg, error) {
	decode, ok := msgDecoders[name]
	if !ok {
		return nil, fmt.Errorf("unknown message %q", name)
	}
	msg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return msg, nil
}
