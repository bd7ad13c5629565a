// Package services – HistoryService
//
// HistoryService is the message store used by the relay and the history
// endpoint. Records are append-only: nothing here updates or deletes a
// message.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/repo"
)

// HistoryService persists and reads direct messages.
type HistoryService struct {
	DB *gorm.DB
	// Limit caps conversation reads; <= 0 returns everything.
	Limit int
}

// Record stores a message. Either participant may be nil when the name did
// not resolve to a user.
func (s *HistoryService) Record(ctx context.Context, senderID, receiverID *string, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "Record",
		trace.WithAttributes(
			attribute.Bool("sender.resolved", senderID != nil),
			attribute.Bool("receiver.resolved", receiverID != nil),
		),
	)
	defer span.End()

	m, err := repo.CreateMessage(ctx, s.DB, senderID, receiverID, content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return m, nil
}

// Conversation returns the messages between a and b in both directions,
// oldest first, with participants preloaded.
func (s *HistoryService) Conversation(ctx context.Context, a, b string) ([]domain.Message, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "Conversation",
		trace.WithAttributes(
			attribute.String("user.a", a),
			attribute.String("user.b", b),
		),
	)
	defer span.End()

	items, err := repo.ListConversation(ctx, s.DB, a, b, s.Limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Message{}
	}
	return items, nil
}

// Stats returns the row count and latest update for the pair, for ETags.
func (s *HistoryService) Stats(ctx context.Context, a, b string) (int64, *time.Time, error) {
	return repo.ConversationStats(ctx, s.DB, a, b)
}
