// Package gateway terminates websocket transports and translates frames
// into the broker's parsed events. The broker never sees bytes or sockets;
// the gateway never touches rooms or mailboxes directly.
package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"roomcast/domain"
	"roomcast/domain/event"
	"roomcast/errors"
)

const (
	frameJoin      = "join"
	frameLeave     = "leave"
	frameBroadcast = "broadcast"
	frameDirect    = "direct"
	frameHeartbeat = "heartbeat"
	frameSystem    = "system"
)

// Frame is the inbound wire envelope. Per-kind required fields are
// enforced by a struct-level validation so a malformed frame is rejected
// before the broker sees it.
type Frame struct {
	Type      string `json:"type" validate:"required,oneof=join leave broadcast direct heartbeat"`
	Room      string `json:"room,omitempty"`
	Target    string `json:"target,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// OutboundFrame mirrors a delivered message back onto the wire.
type OutboundFrame struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
	Seq       uint64 `json:"seq,omitempty"`
	Room      string `json:"room,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Target    string `json:"target,omitempty"`
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Codec decodes inbound frames and encodes outbound messages. It carries
// the validator instance so one compiled schema serves every connection.
type Codec struct {
	validate *validator.Validate
}

func NewCodec() *Codec {
	v := validator.New()
	v.RegisterStructValidation(validateFrame, Frame{})
	return &Codec{validate: v}
}

// validateFrame enforces the per-kind required fields of the envelope:
// room for join/leave/broadcast, target for direct.
func validateFrame(sl validator.StructLevel) {
	frame := sl.Current().Interface().(Frame)
	switch frame.Type {
	case frameJoin, frameLeave, frameBroadcast:
		if frame.Room == "" {
			sl.ReportError(frame.Room, "Room", "room", "required_for_kind", "")
		}
	case frameDirect:
		if frame.Target == "" {
			sl.ReportError(frame.Target, "Target", "target", "required_for_kind", "")
		}
	}
}

// Decode parses and validates one inbound frame into a ParsedEvent.
// Failures wrap ErrProtocolViolation; the caller discards the frame and
// notifies the originating connection, but never closes it.
func (c *Codec) Decode(data []byte) (event.ParsedEvent, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", errors.ErrProtocolViolation, err)
	}
	if err := c.validate.Struct(frame); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrProtocolViolation, err)
	}

	switch frame.Type {
	case frameJoin:
		return event.Join{Room: frame.Room}, nil
	case frameLeave:
		return event.Leave{Room: frame.Room}, nil
	case frameBroadcast:
		return event.Broadcast{Room: frame.Room, Payload: []byte(frame.Payload)}, nil
	case frameDirect:
		return event.Direct{Target: domain.ConnectionID(frame.Target), Payload: []byte(frame.Payload)}, nil
	case frameHeartbeat:
		return event.Heartbeat{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", errors.ErrProtocolViolation, frame.Type)
	}
}

// Encode turns a delivered message into its wire envelope.
func (c *Codec) Encode(msg domain.Message) ([]byte, error) {
	return json.Marshal(OutboundFrame{
		Type:      msg.Kind.String(),
		MessageID: msg.ID.String(),
		Seq:       msg.Seq,
		Room:      msg.Room,
		Sender:    string(msg.Sender),
		Target:    string(msg.Target),
		Payload:   string(msg.Payload),
		Timestamp: msg.CreatedAt.UnixMilli(),
	})
}

// EncodeNotice builds a gateway-level system frame, used when a frame
// cannot even be decoded into an event.
func (c *Codec) EncodeNotice(text string) ([]byte, error) {
	return json.Marshal(OutboundFrame{
		Type:      frameSystem,
		Payload:   text,
		Timestamp: time.Now().UTC().UnixMilli(),
	})
}
