package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Client to server.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventMessageRead       = "message:read"
)

// Server to client.
const (
	EventPresenceUpdate     = "presence:update"
	EventMessageNew         = "message:new"
	EventConversationUpdate = "conversation:update"
	EventTypingUpdate       = "typing:update"
	EventReadUpdate         = "read:update"
)

var ErrUnknownEvent = errors.New("unknown event")

// Frame is the envelope of every websocket text message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// InboundEvent is the closed set of events a client may send.
type InboundEvent interface {
	inboundEvent()
}

type JoinConversation struct {
	ConversationID int64
}

type LeaveConversation struct {
	ConversationID int64
}

type TypingStart struct {
	ConversationID int64
}

type TypingStop struct {
	ConversationID int64
}

type ReadReceipt struct {
	ConversationID    int64
	LastReadMessageID int64
}

func (JoinConversation) inboundEvent()  {}
func (LeaveConversation) inboundEvent() {}
func (TypingStart) inboundEvent()       {}
func (TypingStop) inboundEvent()        {}
func (ReadReceipt) inboundEvent()       {}

// FlexibleID accepts a JSON number or numeric string. Anything else, including
// fractions and non-positive values, decodes to zero.
type FlexibleID int64

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	*id = 0

	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil
	}

	var text string
	switch v := raw.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f <= 0 || f > 1<<53 {
		return nil
	}
	*id = FlexibleID(f)
	return nil
}

type conversationRef struct {
	ConversationID FlexibleID `json:"conversation_id"`
}

type readRef struct {
	ConversationID    FlexibleID `json:"conversation_id"`
	LastReadMessageID FlexibleID `json:"last_read_message_id"`
}

// DecodeInbound parses a client frame into its typed event.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch frame.Event {
	case EventJoinConversation:
		return JoinConversation{ConversationID: bareID(frame.Data)}, nil
	case EventLeaveConversation:
		return LeaveConversation{ConversationID: bareID(frame.Data)}, nil
	case EventTypingStart:
		return TypingStart{ConversationID: objectID(frame.Data)}, nil
	case EventTypingStop:
		return TypingStop{ConversationID: objectID(frame.Data)}, nil
	case EventMessageRead:
		var ref readRef
		if len(frame.Data) > 0 {
			_ = json.Unmarshal(frame.Data, &ref)
		}
		return ReadReceipt{
			ConversationID:    int64(ref.ConversationID),
			LastReadMessageID: int64(ref.LastReadMessageID),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
}

func bareID(data json.RawMessage) int64 {
	var id FlexibleID
	if len(data) > 0 {
		_ = id.UnmarshalJSON(data)
	}
	return int64(id)
}

func objectID(data json.RawMessage) int64 {
	var ref conversationRef
	if len(data) > 0 {
		_ = json.Unmarshal(data, &ref)
	}
	return int64(ref.ConversationID)
}

type typingPayload struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
	Typing         bool  `json:"typing"`
}

type readPayload struct {
	ConversationID    int64     `json:"conversation_id"`
	UserID            int64     `json:"user_id"`
	LastReadMessageID int64     `json:"last_read_message_id"`
	ReadAt            time.Time `json:"read_at"`
}

type outboundFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: data})
}
