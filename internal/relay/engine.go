package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/services"
)

// DefaultPersistTimeout bounds resolution plus persistence when the engine
// is built without one.
const DefaultPersistTimeout = 5 * time.Second

// IdentityResolver maps presence names to users. A miss must be reported as
// services.ErrUserNotFound.
type IdentityResolver interface {
	FindByName(ctx context.Context, name string) (*domain.User, error)
}

// MessageStore persists chat messages. Nil identifiers are stored as NULL.
type MessageStore interface {
	Record(ctx context.Context, senderID, receiverID *string, content string) (*domain.Message, error)
}

// Outcome classifies a successful delivery.
type Outcome string

const (
	// OutcomeDelivered means the recipient was live and received the payload.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeEchoed means only the origin received the payload.
	OutcomeEchoed Outcome = "echoed"

	outcomeFailed = "failed"
)

// Engine persists message frames and pushes them to the live recipient and
// back to the origin.
type Engine struct {
	Registry       *Registry
	Identities     IdentityResolver
	Store          MessageStore
	PersistTimeout time.Duration
}

// NewEngine wires an engine; timeout <= 0 selects DefaultPersistTimeout.
func NewEngine(reg *Registry, ids IdentityResolver, store MessageStore, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	return &Engine{Registry: reg, Identities: ids, Store: store, PersistTimeout: timeout}
}

// Deliver runs one message frame through resolve → persist → lookup → push.
//
// Resolution misses are stored as NULL participants. Any other resolver
// error, a store error or the persist deadline aborts the delivery: nothing
// is pushed and the returned error wraps ErrPersist. The registry is only
// consulted after the record is durable, and no lock is held during I/O.
func (e *Engine) Deliver(ctx context.Context, origin Conn, sender, recipient, content string) (Outcome, error) {
	tr := otel.Tracer("relay/Engine")
	ctx, span := tr.Start(ctx, "Deliver",
		trace.WithAttributes(
			attribute.String("relay.sender", sender),
			attribute.String("relay.recipient", recipient),
			attribute.Int("relay.content_len", len(content)),
		),
	)
	defer span.End()

	lg := zerolog.Ctx(ctx)

	if err := e.persist(ctx, sender, recipient, content); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		deliveriesTotal.WithLabelValues(outcomeFailed).Inc()
		return "", fmt.Errorf("%w: %w", ErrPersist, err)
	}

	payload := EncodeDelivery(sender, content)
	outcome := OutcomeEchoed
	if peer, ok := e.Registry.Lookup(recipient); ok && peer.Writable() {
		if err := peer.Send(payload); err != nil {
			lg.Warn().Err(err).Str("recipient", recipient).Str("peer_id", peer.ID()).Msg("push to recipient failed")
		} else {
			outcome = OutcomeDelivered
		}
	}
	if err := origin.Send(payload); err != nil {
		lg.Warn().Err(err).Str("origin_id", origin.ID()).Msg("echo to origin failed")
	}

	span.SetAttributes(attribute.String("relay.outcome", string(outcome)))
	deliveriesTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}

func (e *Engine) persist(ctx context.Context, sender, recipient, content string) error {
	timeout := e.PersistTimeout
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	senderID, err := e.resolve(ctx, sender)
	if err != nil {
		return fmt.Errorf("resolve sender: %w", err)
	}
	recipientID, err := e.resolve(ctx, recipient)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if _, err := e.Store.Record(ctx, senderID, recipientID, content); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	// A store that ignores ctx may return after the deadline.
	return ctx.Err()
}

func (e *Engine) resolve(ctx context.Context, name string) (*string, error) {
	u, err := e.Identities.FindByName(ctx, name)
	if errors.Is(err, services.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := u.ID
	return &id, nil
}
