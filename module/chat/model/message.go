package model

import "time"

const MessageCollection = "messages"

// Message is one persisted chat message. CreatedAt is server-assigned and is
// the authoritative ordering key; Read only ever transitions false to true.
type Message struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	SenderID       string    `bson:"sender_id"`
	Content        string    `bson:"content"`
	Read           bool      `bson:"read"`
	CreatedAt      time.Time `bson:"created_at"`
}
