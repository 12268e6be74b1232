// Package client is the listener side of the event feed: it dials a
// document server over WebSocket, logs in and reads the event stream.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/docfeed/dslisten/internal/event"
	"github.com/docfeed/dslisten/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	pongTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second
)

// Server is an open, not yet authenticated connection.
type Server struct {
	url string

	writeMu sync.Mutex // serialises all conn writes (login, subscribe, ping, close)
	conn    *websocket.Conn

	closeOnce sync.Once
}

// Dial opens a connection to the feed at url. Any failure to reach a
// server that speaks the protocol wraps ErrUnreachable.
func Dial(ctx context.Context, url string) (*Server, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s: handshake status %d", ErrUnreachable, url, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, url, err)
	}
	log.Debug().Str("url", url).Msg("ws connected")
	return &Server{url: url, conn: conn}, nil
}

// Close sends a close frame and releases the connection.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// Login authenticates and returns the session. Rejections wrap
// ErrAuthentication or ErrInvalidLicense; the connection is closed on error.
func (s *Server) Login(ctx context.Context, domain, username, password string) (*Session, error) {
	reply, err := s.roundTrip(ctx, protocol.MsgLogin, protocol.LoginPayload{
		Domain:   domain,
		Username: username,
		Password: password,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	if reply.Type != protocol.MsgLoginOK {
		s.Close()
		return nil, fmt.Errorf("%w: unexpected %q reply to login", ErrTransport, reply.Type)
	}
	var ok protocol.LoginOKPayload
	if err := reply.Decode(&ok); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: login reply: %v", ErrTransport, err)
	}
	return &Session{srv: s, id: ok.SessionID, principal: ok.Principal}, nil
}

// roundTrip writes one frame and reads the reply. Error frames are
// returned as *ServerError.
func (s *Server) roundTrip(ctx context.Context, t protocol.MessageType, payload any) (protocol.Message, error) {
	msg, err := protocol.New(t, payload)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%w: encode %s: %v", ErrTransport, t, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(handshakeTimeout)
	}
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(deadline)
	err = s.conn.WriteJSON(msg)
	s.writeMu.Unlock()
	if err != nil {
		return protocol.Message{}, s.ioError(ctx, "write "+string(t), err)
	}

	s.conn.SetReadDeadline(deadline)
	var reply protocol.Message
	if err := s.conn.ReadJSON(&reply); err != nil {
		return protocol.Message{}, s.ioError(ctx, "read "+string(t)+" reply", err)
	}
	s.conn.SetReadDeadline(time.Time{})

	if reply.Type == protocol.MsgError {
		var p protocol.ErrorPayload
		if err := reply.Decode(&p); err != nil {
			return protocol.Message{}, fmt.Errorf("%w: error frame: %v", ErrTransport, err)
		}
		return protocol.Message{}, &ServerError{Code: p.Code, Message: p.Message}
	}
	return reply, nil
}

func (s *Server) ioError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %v", ErrTransport, op, err)
}

// Session is an authenticated connection. It can be subscribed once.
type Session struct {
	srv       *Server
	id        string
	principal string

	mu         sync.Mutex
	subscribed bool
}

// ID returns the server-assigned session ID.
func (s *Session) ID() string { return s.id }

// Principal returns the identity the server logged us in as.
func (s *Session) Principal() string { return s.principal }

// Close ends the session and its subscription, if any.
func (s *Session) Close() error { return s.srv.Close() }

// Subscribe registers for the kinds in mask. The session moves from
// unsubscribed to subscribed exactly once; a second call fails.
func (s *Session) Subscribe(ctx context.Context, mask event.Mask) (*Subscription, error) {
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return nil, errors.New("session already subscribed")
	}
	s.subscribed = true
	s.mu.Unlock()

	reply, err := s.srv.roundTrip(ctx, protocol.MsgSubscribe, protocol.SubscribePayload{Mask: mask})
	if err != nil {
		return nil, err
	}
	if reply.Type != protocol.MsgSubscribed {
		return nil, fmt.Errorf("%w: unexpected %q reply to subscribe", ErrTransport, reply.Type)
	}
	var ack protocol.SubscribePayload
	if err := reply.Decode(&ack); err != nil {
		return nil, fmt.Errorf("%w: subscribe reply: %v", ErrTransport, err)
	}

	conn := s.srv.conn
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	pingCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{srv: s.srv, mask: ack.Mask, cancelPing: cancel}
	go sub.pingLoop(pingCtx)
	log.Debug().Str("mask", ack.Mask.String()).Msg("subscribed")
	return sub, nil
}

// Subscription is the live event feed of a session.
type Subscription struct {
	srv        *Server
	mask       event.Mask
	cancelPing context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Mask returns the kinds the server agreed to deliver.
func (s *Subscription) Mask() event.Mask { return s.mask }

// Close stops the feed and closes the connection.
func (s *Subscription) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelPing()
	return s.srv.Close()
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Next blocks until the next event arrives. A frame that cannot be decoded
// yields *event.DecodeError and leaves the feed usable. Any other error is
// terminal and closes the subscription: ctx.Err() on cancellation,
// otherwise a wrapped ErrTransport.
func (s *Subscription) Next(ctx context.Context) (event.Event, error) {
	for {
		if s.isClosed() {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			s.Close()
			return nil, err
		}

		stop := context.AfterFunc(ctx, func() { s.srv.conn.Close() })
		_, data, err := s.srv.conn.ReadMessage()
		stop()
		if err != nil {
			if ctx.Err() != nil {
				s.Close()
				return nil, ctx.Err()
			}
			if s.isClosed() {
				return nil, ErrClosed
			}
			s.Close()
			return nil, fmt.Errorf("%w: read: %v", ErrTransport, err)
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, &event.DecodeError{Raw: data, Err: fmt.Errorf("%w: %v", event.ErrMalformed, err)}
		}

		switch msg.Type {
		case protocol.MsgEvent:
			return event.Decode(msg.Seq, msg.Payload)
		case protocol.MsgError:
			var p protocol.ErrorPayload
			_ = msg.Decode(&p)
			s.Close()
			return nil, &ServerError{Code: p.Code, Message: p.Message}
		default:
			log.Debug().Str("type", string(msg.Type)).Msg("ignoring frame")
		}
	}
}

// Events returns the feed as a lazy, unbounded sequence. Decode errors are
// yielded and iteration continues; a terminal error is yielded once and
// ends the sequence. Cancelling ctx ends it without an error.
func (s *Subscription) Events(ctx context.Context) iter.Seq2[event.Event, error] {
	return func(yield func(event.Event, error) bool) {
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				var de *event.DecodeError
				if errors.As(err, &de) {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if ctx.Err() == nil {
					yield(nil, err)
				}
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// pingLoop keeps the connection alive until ctx is cancelled or a ping
// fails.
func (s *Subscription) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.srv.writeMu.Lock()
			err := s.srv.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.srv.writeMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("ws ping failed")
				return
			}
		}
	}
}
