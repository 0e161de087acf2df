// Package hub fans messages out to websocket clients.
//
// A single Run goroutine owns the client set; each Client has its own write
// pump, so a connection is only ever written from one goroutine.
package hub

import "encoding/json"

// Message is one broadcast frame.
type Message struct {
	// Kind labels the message in logs, e.g. "state" or "turn".
	Kind string
	Data []byte
}

// NewJSONMessage encodes v as a text frame.
func NewJSONMessage(kind string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: kind, Data: data}, nil
}
