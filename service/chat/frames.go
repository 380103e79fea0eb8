package chat

import (
	"encoding/json"

	"github.com/pkg/errors"

	"chatwire/module/chat/service"
)

// Client-originated event names.
const (
	EventJoinConversations = "join_conversations"
	EventSendMessage       = "send_message"
	EventMarkRead          = "mark_read"
)

// Frame is the wire envelope for every live-channel event, both directions.
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// ParseFrame decodes an inbound frame. The payload stays loosely typed;
// handlers decode it into their own structs.
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.WithMessage(err, "unmarshal frame")
	}
	if f.Event == "" {
		return nil, errors.New("frame has no event")
	}
	return &f, nil
}

// EncodeEvent serializes an outbound event into its wire envelope.
func EncodeEvent(ev service.Event) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: ev.Name, Data: ev.Data})
}

type sendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type markReadPayload struct {
	ConversationID string `json:"conversationId"`
}
