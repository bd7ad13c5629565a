// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// CreateMessage inserts a new message row. A nil senderID or receiverID is
// stored as NULL.
func CreateMessage(ctx context.Context, db *gorm.DB, senderID, receiverID *string, content string) (*domain.Message, error) {
	now := time.Now().UTC()
	m := &domain.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListConversation returns the messages exchanged between users a and b in
// either direction, ordered deterministically (CreatedAt ASC, ID ASC), with
// Sender and Receiver preloaded. A limit <= 0 returns the whole conversation.
func ListConversation(ctx context.Context, db *gorm.DB, a, b string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := conversationScope(db.WithContext(ctx), a, b).
		Preload("Sender").
		Preload("Receiver").
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// conversationScope restricts a query to the unordered participant pair.
func conversationScope(db *gorm.DB, a, b string) *gorm.DB {
	return db.Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		a, b, b, a,
	)
}
