// Package v1 defines the console notice stream protocol v1.
//
// This package is intentionally stable and dependency-light.
// Browser scripts and tests share it to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the WebSocket subprotocol a client must request.
const Subprotocol = "cms.notices.v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a stream (client -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the stream and carries the pending notices (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeNotice delivers one new notice (server -> client).
	TypeNotice = "notice"

	// TypeNoticeDismiss removes a pending notice (client -> server).
	TypeNoticeDismiss = "notice_dismiss"
	// TypeNoticeDismissed confirms a dismissal (server -> client).
	TypeNoticeDismissed = "notice_dismissed"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeNotice,
		TypeNoticeDismiss,
		TypeNoticeDismissed,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the client to start receiving notices.
type HelloPayload struct{}

// HelloAckPayload carries the connection id and notices queued before the stream opened.
type HelloAckPayload struct {
	ConnID  string          `json:"conn_id"`
	Pending []NoticePayload `json:"pending"`
}

// NoticePayload is one transient notice.
type NoticePayload struct {
	ID    string    `json:"id"`
	Level string    `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// NoticeDismissPayload names the notice to remove.
type NoticeDismissPayload struct {
	ID string `json:"id"`
}

// NoticeDismissedPayload reports the outcome of a dismissal.
type NoticeDismissedPayload struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

// ErrorPayload describes a rejected client event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
