package model

import "time"

const ConversationCollection = "conversations"

// Conversation is a durable participant set plus a cached last-message
// summary. The participant set is immutable after creation.
type Conversation struct {
	ID           string    `bson:"_id"`
	Participants []string  `bson:"participants"`
	IsGroup      bool      `bson:"is_group"`
	Name         string    `bson:"name,omitempty"` // required iff IsGroup
	LastMessage  string    `bson:"last_message"`
	CreatedBy    string    `bson:"created_by"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// HasParticipant reports whether userID is a member. Membership is the sole
// access-control boundary for every conversation-scoped operation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipants returns every member except userID.
func (c *Conversation) OtherParticipants(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}
