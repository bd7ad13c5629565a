// History HTTP handlers.
//
// This file exposes the conversation history endpoint:
//   - POST /messages   (messages exchanged by two named users, oldest first)
//
// The response carries a weak ETag derived from the conversation's row count
// and latest update, so polling clients can revalidate with If-None-Match and
// receive 304 Not Modified while nothing new was relayed.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/services"
)

//
// DTOs
//

// HistoryRequest names the two participants of a conversation.
type HistoryRequest struct {
	Sender   string `json:"sender" example:"alice"`
	Receiver string `json:"receiver" example:"bob"`
}

// Participant identifies one side of a stored message.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HistoryMessage is a stored message with participant names populated.
// Sender or Receiver is null when that side did not resolve to a user at
// the time the message was relayed.
type HistoryMessage struct {
	ID        string       `json:"id"`
	Sender    *Participant `json:"sender"`
	Receiver  *Participant `json:"receiver"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

//
// Helpers
//

func participant(u *domain.User) *Participant {
	if u == nil {
		return nil
	}
	return &Participant{ID: u.ID, Name: u.Name}
}

func toHistory(msgs []domain.Message) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		out = append(out, HistoryMessage{
			ID:        m.ID,
			Sender:    participant(m.Sender),
			Receiver:  participant(m.Receiver),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

// conversationETag is symmetric in a and b so both participants share it.
func conversationETag(a, b string, count int64, maxTS *time.Time) string {
	if b < a {
		a, b = b, a
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	return fmt.Sprintf(`W/"messages:%s:%s:%d:%d"`, a, b, count, ts)
}

//
// Handlers
//

// ListConversation godoc
// @ID          listConversation
// @Summary     Conversation history between two users
// @Description Returns every message exchanged by sender and receiver in
// @Description either direction, oldest first. Supports If-None-Match.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       body           body      handlers.HistoryRequest  true   "Participants by name"
// @Param       If-None-Match  header    string                   false  "ETag from a previous response"
// @Success     200            {array}   handlers.HistoryMessage
// @Success     304            "Not modified"
// @Failure     400            {object}  handlers.ErrorResponse   "Bad request"
// @Failure     404            {object}  handlers.ErrorResponse   "Sender or receiver not found"
// @Failure     500            {object}  handlers.ErrorResponse   "Internal error"
// @Router      /messages [post]
func (h *Handlers) ListConversation(c *gin.Context) {
	ctx := c.Request.Context()

	var req HistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	req.Sender = strings.TrimSpace(req.Sender)
	req.Receiver = strings.TrimSpace(req.Receiver)
	if req.Sender == "" || req.Receiver == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sender and receiver required")
		return
	}

	s, err := h.accounts.FindByName(ctx, req.Sender)
	var r *domain.User
	if err == nil {
		r, err = h.accounts.FindByName(ctx, req.Receiver)
	}
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "Sender or receiver not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeHistoryFailed, "An error occurred while fetching messages")
		return
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := h.history.Stats(ctx, s.ID, r.ID); err == nil {
		etag := conversationETag(s.ID, r.ID, count, maxTS)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	msgs, err := h.history.Conversation(ctx, s.ID, r.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeHistoryFailed, "An error occurred while fetching messages")
		return
	}
	ok(c, http.StatusOK, toHistory(msgs))
}
