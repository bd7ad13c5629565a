package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-chat-relay/internal/config"
)

// Options tunes sessions created by a Handler.
type Options struct {
	MaxFrameBytes  int64
	FrameRPS       float64
	FrameBurst     int
	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	StrictSender   bool
	AllowedOrigins []string
}

// OptionsFromConfig maps relay configuration onto session options.
func OptionsFromConfig(c config.RelayConfig) Options {
	return Options{
		MaxFrameBytes:  c.MaxFrameBytes,
		FrameRPS:       c.FrameRPS,
		FrameBurst:     c.FrameBurst,
		SendBuffer:     c.SendBuffer,
		PingInterval:   c.PingInterval,
		PongWait:       c.PongWait,
		WriteWait:      c.WriteWait,
		StrictSender:   c.StrictSender,
		AllowedOrigins: c.AllowedOrigins,
	}
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 << 10
	}
	if o.FrameBurst < 1 {
		o.FrameBurst = 20
	}
	if o.SendBuffer < 1 {
		o.SendBuffer = 64
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	return o
}

// Handler upgrades HTTP requests to relay sessions and routes their frames
// to the registry and the delivery engine.
type Handler struct {
	reg      *Registry
	engine   *Engine
	opts     Options
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// NewHandler builds a Handler around reg and engine.
func NewHandler(reg *Registry, engine *Engine, opts Options) *Handler {
	opts = opts.withDefaults()
	h := &Handler{
		reg:      reg,
		engine:   engine,
		opts:     opts,
		sessions: make(map[*Session]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// originChecker accepts any origin when allowed is empty, otherwise only
// exact matches. Requests without an Origin header are non-browser clients
// and are accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP upgrades the request and runs the session until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	lg := log.With().Str("conn_id", id).Str("remote_ip", r.RemoteAddr).Logger()
	s := newSession(id, ws, h.opts, lg, h.release)

	if !h.track(s) {
		_ = s.Close()
		return
	}
	lg.Debug().Msg("relay connection opened")

	// Sessions outlive the upgrade request's context, so frames are handled
	// under a fresh root that only carries the session logger.
	ctx := lg.WithContext(context.Background())

	go s.writeLoop()
	s.readLoop(ctx, h.dispatch)
	lg.Debug().Msg("relay connection closed")
}

// dispatch applies one decoded frame. It runs on the session's read
// goroutine, so frames from one connection are handled in order.
func (h *Handler) dispatch(ctx context.Context, s *Session, f *Frame) {
	switch f.Type {
	case FrameEstablish:
		framesTotal.WithLabelValues(FrameEstablish).Inc()
		h.reg.Register(f.Name, s)
		// A concurrent Close may have unregistered before this Register.
		if !s.Writable() {
			h.reg.Unregister(s)
			return
		}
		s.name, s.established = f.Name, true
		s.log.Debug().Str("name", f.Name).Msg("presence established")

	case FrameMessage:
		if h.opts.StrictSender && (!s.established || f.Sender != s.name) {
			s.reject(CodeSenderMismatch, "sender does not match the name established on this connection")
			return
		}
		framesTotal.WithLabelValues(FrameMessage).Inc()
		if _, err := h.engine.Deliver(ctx, s, f.Sender, f.Recipient, f.Content); err != nil {
			s.log.Error().Err(err).
				Str("sender", f.Sender).
				Str("recipient", f.Recipient).
				Msg("delivery failed")
			if serr := s.Send(EncodeError(CodeDeliveryFailed, "message could not be stored")); serr != nil {
				s.log.Debug().Err(serr).Msg("error frame dropped")
			}
		}
	}
}

// track records a live session; it refuses new sessions once Close began.
func (h *Handler) track(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	connsActive.Inc()
	return true
}

// release is the session close hook: it drops every registry binding of s
// and stops tracking it.
func (h *Handler) release(s *Session) {
	h.reg.Unregister(s)

	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()

	if ok {
		connsActive.Dec()
		h.wg.Done()
	}
}

// Len returns the number of open sessions.
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close stops accepting sessions, closes every open one and waits for them
// to unregister or for ctx to expire.
func (h *Handler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	open := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

var _ Conn = (*Session)(nil)
