package model

import "time"

const CollectionName = "users"

// User is the durable account record. PasswordHash never leaves the store
// layer; handlers expose Public() instead.
type User struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	MobileNo     string    `bson:"mobile_no,omitempty"`
	PasswordHash string    `bson:"password_hash,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// PublicProfile is the subset of a user safe to embed in messages and
// conversation summaries. Field names mirror the wire contract.
type PublicProfile struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{ID: u.ID, Name: u.Name, Email: u.Email}
}
