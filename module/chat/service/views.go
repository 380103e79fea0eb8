package service

import (
	"time"

	chatmodel "chatwire/module/chat/model"
	usermodel "chatwire/module/user/model"
)

// Live-channel event names pushed by the server. Client-originated event
// names live with the gateway dispatcher.
const (
	EventNewMessage      = "new_message"
	EventMessagesRead    = "messages_read"
	EventNewConversation = "new_conversation"
)

// Event is one outbound live-channel event before serialization.
type Event struct {
	Name string
	Data any
}

// MessageView is the wire shape of a message, with the sender's public
// profile embedded. Key names follow the original client contract.
type MessageView struct {
	ID             string                  `json:"_id"`
	ConversationID string                  `json:"conversation"`
	Sender         usermodel.PublicProfile `json:"sender"`
	Content        string                  `json:"content"`
	Read           bool                    `json:"read"`
	CreatedAt      time.Time               `json:"createdAt"`
}

// ConversationView is the wire shape of a conversation summary.
type ConversationView struct {
	ID                string                    `json:"_id"`
	Participants      []usermodel.PublicProfile `json:"participants"`
	IsGroup           bool                      `json:"isGroup"`
	Name              string                    `json:"name,omitempty"`
	LastMessage       string                    `json:"lastMessage"`
	LastMessageSender *usermodel.PublicProfile  `json:"lastMessageSender,omitempty"`
	CreatedBy         string                    `json:"createdBy"`
	CreatedAt         time.Time                 `json:"createdAt"`
	UpdatedAt         time.Time                 `json:"updatedAt"`
}

// ReadReceipt announces that userID has read everything addressed to them in
// the conversation.
type ReadReceipt struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func messageView(m *chatmodel.Message, sender usermodel.PublicProfile) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Content:        m.Content,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}
}
