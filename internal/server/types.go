// Package server defines the JSON frames exchanged with WebSocket clients and
// utility helpers reused across session and handler logic.
package server

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Tyrowin/gohub/internal/hub"
	"github.com/google/uuid"
)

const (
	actionJoin    = "join"
	actionLeave   = "leave"
	actionPublish = "publish"

	replyWelcome = "welcome"
	replyAck     = "ack"
	replyError   = "error"
)

var (
	errMalformedCommand = errors.New("malformed command")
	errUnknownAction    = errors.New("unknown action")
	errRateLimited      = errors.New("rate limit exceeded")
)

// Command is an inbound client request. Payload is a JSON string in text
// frames and base64 in binary frames.
type Command struct {
	Action  string          `json:"action"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// decodePayload extracts the publish payload.
func (c Command) decodePayload(binary bool) ([]byte, error) {
	if len(c.Payload) == 0 {
		return nil, nil
	}
	if binary {
		var data []byte
		err := json.Unmarshal(c.Payload, &data)
		return data, err
	}
	var text string
	if err := json.Unmarshal(c.Payload, &text); err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// Delivery is an outbound channel message in a text frame.
type Delivery struct {
	Channel string `json:"channel"`
	Payload string `json:"payload"`
	From    string `json:"from,omitempty"`
}

// BinaryDelivery is an outbound channel message in a binary frame.
type BinaryDelivery struct {
	Channel string `json:"channel"`
	Payload []byte `json:"payload"`
	From    string `json:"from,omitempty"`
}

// Reply answers a command, or greets a new connection.
type Reply struct {
	Type       string `json:"type"`
	ID         string `json:"id,omitempty"`
	Action     string `json:"action,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
	Recipients *int   `json:"recipients,omitempty"`
	Delivered  *int   `json:"delivered,omitempty"`
}

func encodeDelivery(msg hub.Message) ([]byte, error) {
	from := ""
	if msg.Origin != uuid.Nil {
		from = msg.Origin.String()
	}
	if msg.Binary {
		return json.Marshal(BinaryDelivery{Channel: msg.Channel, Payload: msg.Payload, From: from})
	}
	return json.Marshal(Delivery{Channel: msg.Channel, Payload: string(msg.Payload), From: from})
}

// errorCode maps errors to stable reply codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, hub.ErrUnknownClient):
		return "unknown_client"
	case errors.Is(err, hub.ErrUnknownChannel):
		return "unknown_channel"
	case errors.Is(err, hub.ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, hub.ErrNotMember):
		return "not_member"
	case errors.Is(err, hub.ErrInvalidChannel):
		return "invalid_channel"
	case errors.Is(err, hub.ErrHubClosed):
		return "hub_closed"
	case errors.Is(err, hub.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	case errors.Is(err, errUnknownAction):
		return "unknown_action"
	default:
		return "bad_request"
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
