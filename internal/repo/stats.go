// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides a small aggregate query used for
// conditional responses (ETag generation) on the history endpoint.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// ConversationStats returns aggregate metadata for the messages exchanged
// between users a and b: the total number of rows and the maximum UpdatedAt
// among those rows.
//
// When the pair has no messages, the returned count is 0 and maxUpdatedAt
// is nil.
func ConversationStats(ctx context.Context, db *gorm.DB, a, b string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := conversationScope(db.WithContext(ctx).Model(&domain.Message{}), a, b)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q = conversationScope(db.WithContext(ctx).Model(&domain.Message{}), a, b)
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
