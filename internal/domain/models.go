// Package domain defines the persistence models for user accounts and chat
// messages. These types are mapped with GORM and form the core data layer
// shared by the REST endpoints and the WebSocket relay.
package domain

import (
	"time"
)

// User represents a registered account. The Name is the human-readable
// presence key clients use on the relay; ID is the stable identifier that
// message records reference.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: unique display name, trimmed, at most 32 runes.
//   - Email: unique, stored lowercased.
//   - PasswordHash: bcrypt hash; empty for accounts created via Google sign-in.
//   - ImageURL: optional profile picture.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Name         string    `json:"name"       gorm:"type:varchar(32);not null;uniqueIndex:ux_users_name"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255)"`
	ImageURL     string    `json:"imageUrl"   gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Message is a single chat message between two participants. It is written
// once by the relay and never updated.
//
// SenderID and ReceiverID are nullable: a frame naming an unknown user is
// still recorded, with the unresolved side stored as NULL.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SenderID / ReceiverID: references to users.id (indexed together for
//     participant-pair lookups).
//   - Content: message text.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - Sender / Receiver: associations, preloaded for history responses.
type Message struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	SenderID   *string   `json:"sender_id"   gorm:"type:char(36);index:idx_msgs_pair,priority:1"`
	ReceiverID *string   `json:"receiver_id" gorm:"type:char(36);index:idx_msgs_pair,priority:2"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index"`
	UpdatedAt  time.Time `json:"updated_at"`

	Sender   *User `json:"-" gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Receiver *User `json:"-" gorm:"foreignKey:ReceiverID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
