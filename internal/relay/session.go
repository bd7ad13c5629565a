package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Session is one WebSocket connection. Reads happen on the goroutine that
// runs readLoop; all writes except close control frames go through a single
// writer goroutine fed by a bounded queue.
type Session struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	onClose   func(*Session)

	limiter *rate.Limiter
	opts    Options
	log     zerolog.Logger

	// name is the last established presence name; read loop only.
	name        string
	established bool
}

func newSession(id string, ws *websocket.Conn, opts Options, lg zerolog.Logger, onClose func(*Session)) *Session {
	s := &Session{
		id:      id,
		ws:      ws,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		onClose: onClose,
		opts:    opts,
		log:     lg,
	}
	if opts.FrameRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.FrameRPS), opts.FrameBurst)
	}
	return s
}

// ID returns the connection identifier.
func (s *Session) ID() string { return s.id }

// Writable reports whether the session still accepts payloads.
func (s *Session) Writable() bool { return !s.closed.Load() }

// Send enqueues payload for the writer goroutine. It never blocks: a closed
// session yields ErrConnClosed and a full queue ErrSendQueueFull.
func (s *Session) Send(payload []byte) error {
	if s.closed.Load() {
		return ErrConnClosed
	}
	select {
	case <-s.done:
		return ErrConnClosed
	default:
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close marks the session unwritable, runs the close hook (registry
// removal) exactly once and closes the socket. Safe to call repeatedly and
// from any goroutine.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.onClose != nil {
			s.onClose(s)
		}
		close(s.done)
		deadline := time.Now().Add(s.opts.WriteWait)
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
		err = s.ws.Close()
	})
	return err
}

// writeLoop drains the send queue and pings the peer on a ticker.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug().Err(err).Msg("ping failed")
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop reads frames until the peer goes away, the read deadline passes
// or the session is closed, dispatching each frame in order.
func (s *Session) readLoop(ctx context.Context, dispatch func(context.Context, *Session, *Frame)) {
	defer s.Close()

	s.ws.SetReadLimit(s.opts.MaxFrameBytes)
	_ = s.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		mt, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Info().Err(err).Msg("connection dropped")
			}
			return
		}
		_ = s.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		if mt != websocket.TextMessage {
			s.reject(CodeBadFrame, "only text frames are accepted")
			continue
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.reject(CodeRateLimited, "too many frames")
			continue
		}
		f, err := ParseFrame(data)
		if err != nil {
			var pe *ProtocolError
			if errors.As(err, &pe) {
				s.reject(pe.Code, pe.Message)
			} else {
				s.reject(CodeBadFrame, err.Error())
			}
			continue
		}
		dispatch(ctx, s, f)
	}
}

// reject counts the frame as an error and reports code to the peer.
func (s *Session) reject(code, message string) {
	framesTotal.WithLabelValues(frameError).Inc()
	s.log.Debug().Str("code", code).Msg(message)
	if err := s.Send(EncodeError(code, message)); err != nil {
		s.log.Debug().Err(err).Msg("error frame dropped")
	}
}
