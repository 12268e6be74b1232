// Package ws serves the demo document server's event feed over WebSocket:
// the login handshake, the subscription and the broadcast of events.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docfeed/dslisten/internal/config"
	"github.com/docfeed/dslisten/internal/directory"
	"github.com/docfeed/dslisten/internal/event"
	"github.com/docfeed/dslisten/internal/protocol"
	"github.com/docfeed/dslisten/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	controlTimeout = 5 * time.Second
	idleTimeout    = 90 * time.Second
)

type Server struct {
	cfg            config.ServerConfig
	dir            *directory.Directory
	store          *session.Store
	broadcaster    *Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

func NewServer(cfg config.ServerConfig, dir *directory.Directory, store *session.Store, broadcaster *Broadcaster) *Server {
	s := &Server{
		cfg:            cfg,
		dir:            dir,
		store:          store,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	if s.cfg.LoginTimeout <= 0 {
		s.cfg.LoginTimeout = 10 * time.Second
	}

	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Routes returns the HTTP handler for the feed and the health endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get(protocol.Path, s.handleWS)
	r.Get("/health", s.handleHealth)
	return r
}

type healthResponse struct {
	Status      string          `json:"status"`
	Sessions    int             `json:"sessions"`
	Subscribers int             `json:"subscribers"`
	Active      []activeSession `json:"active"`
}

type activeSession struct {
	Principal string    `json:"principal"`
	Domain    string    `json:"domain"`
	Remote    string    `json:"remote"`
	Since     time.Time `json:"since"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	all := s.store.GetAll()
	resp := healthResponse{
		Status:      "ok",
		Sessions:    len(all),
		Subscribers: s.broadcaster.ClientCount(),
		Active:      make([]activeSession, 0, len(all)),
	}
	for _, st := range all {
		resp.Active = append(resp.Active, activeSession{
			Principal: st.Principal,
			Domain:    st.Domain,
			Remote:    st.RemoteAddr,
			Since:     st.StartedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws upgrade error")
		return
	}
	defer conn.Close()

	log.Debug().Str("remote", r.RemoteAddr).Msg("ws client connected")
	s.serve(conn, r.RemoteAddr)
	log.Debug().Str("remote", r.RemoteAddr).Msg("ws client disconnected")
}

// serve runs one connection: login, subscribe, then read until the peer
// goes away.
func (s *Server) serve(conn *websocket.Conn, remote string) {
	st, ok := s.login(conn, remote)
	if !ok {
		return
	}
	defer func() {
		s.store.Close(st.ID)
		s.broadcaster.Publish(&event.LoginEvent{
			Header:   event.Header{EventKind: event.Logout, By: st.Principal},
			UserName: st.Principal,
			Domain:   st.Domain,
		})
		log.Info().Str("principal", st.Principal).Str("session", st.ID).Msg("logged out")
	}()

	c, ok := s.subscribe(conn, st)
	if !ok {
		return
	}
	defer s.broadcaster.RemoveClient(c)

	conn.SetReadDeadline(time.Now().Add(idleTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		log.Debug().Str("session", st.ID).Int("bytes", len(data)).Msg("ignoring frame after subscribe")
	}
}

// login reads the first frame, which must be a login within the login
// timeout. Every rejection is answered with an error frame.
func (s *Server) login(conn *websocket.Conn, remote string) (*session.Session, bool) {
	conn.SetReadDeadline(time.Now().Add(s.cfg.LoginTimeout))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		log.Debug().Err(err).Str("remote", remote).Msg("no login frame")
		return nil, false
	}
	var p protocol.LoginPayload
	if msg.Type != protocol.MsgLogin || msg.Decode(&p) != nil {
		s.reject(conn, protocol.CodeBadRequest, "expected login")
		return nil, false
	}
	if p.Username == "" {
		s.reject(conn, protocol.CodeBadRequest, "username required")
		return nil, false
	}

	name, domain, err := s.dir.Authenticate(p.Domain, p.Username, p.Password, s.store.ActiveCount())
	if err != nil {
		s.refuse(conn, p, remote, err)
		return nil, false
	}
	// Other logins may have taken seats during the bcrypt comparison.
	st, err := s.store.Open(name, domain, remote, s.dir.Seats())
	if err != nil {
		s.refuse(conn, p, remote, err)
		return nil, false
	}
	if err := s.write(conn, protocol.MsgLoginOK, protocol.LoginOKPayload{SessionID: st.ID, Principal: st.Principal}); err != nil {
		s.store.Close(st.ID)
		return nil, false
	}
	s.broadcaster.Publish(&event.LoginEvent{
		Header:   event.Header{EventKind: event.Login, By: name},
		UserName: name,
		Domain:   domain,
	})
	log.Info().Str("principal", name).Str("domain", domain).Str("session", st.ID).Msg("logged in")
	return st, true
}

// refuse publishes LOGIN_FAILED for the attempted identity and answers
// with an error frame.
func (s *Server) refuse(conn *websocket.Conn, p protocol.LoginPayload, remote string, err error) {
	attempted := p.Domain
	if attempted == "" {
		attempted = s.dir.DefaultDomain()
	}
	s.broadcaster.Publish(&event.LoginEvent{
		Header:   event.Header{EventKind: event.LoginFailed, By: p.Username},
		UserName: p.Username,
		Domain:   attempted,
	})
	log.Warn().Err(err).Str("user", p.Username).Str("domain", attempted).Str("remote", remote).Msg("login rejected")

	code := protocol.CodeAuthFailed
	if errors.Is(err, directory.ErrInvalidLicense) || errors.Is(err, session.ErrSeatsExhausted) {
		code = protocol.CodeInvalidLicense
	}
	s.reject(conn, code, err.Error())
}

// subscribe waits for the subscribe frame and hands the connection to the
// broadcaster, which sends the acknowledgement.
func (s *Server) subscribe(conn *websocket.Conn, st *session.Session) (*subscriber, bool) {
	conn.SetReadDeadline(time.Now().Add(s.cfg.LoginTimeout))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		log.Debug().Err(err).Str("session", st.ID).Msg("no subscribe frame")
		return nil, false
	}
	var p protocol.SubscribePayload
	if msg.Type != protocol.MsgSubscribe || msg.Decode(&p) != nil {
		s.reject(conn, protocol.CodeBadRequest, "expected subscribe")
		return nil, false
	}
	if p.Mask == 0 {
		s.reject(conn, protocol.CodeBadRequest, "empty subscription mask")
		return nil, false
	}

	ack, err := protocol.New(protocol.MsgSubscribed, protocol.SubscribePayload{Mask: p.Mask})
	if err != nil {
		return nil, false
	}
	greeting, err := json.Marshal(ack)
	if err != nil {
		return nil, false
	}
	c, err := s.broadcaster.AddClient(conn, st.Principal, p.Mask, greeting)
	if err != nil {
		log.Warn().Err(err).Str("session", st.ID).Msg("subscription refused")
		s.reject(conn, protocol.CodeUnavailable, err.Error())
		return nil, false
	}
	log.Debug().Str("session", st.ID).Str("mask", p.Mask.String()).Msg("subscribed")
	return c, true
}

func (s *Server) write(conn *websocket.Conn, t protocol.MessageType, payload any) error {
	msg, err := protocol.New(t, payload)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(controlTimeout))
	return conn.WriteJSON(msg)
}

func (s *Server) reject(conn *websocket.Conn, code protocol.ErrorCode, message string) {
	if err := s.write(conn, protocol.MsgError, protocol.ErrorPayload{Code: code, Message: message}); err != nil {
		log.Debug().Err(err).Msg("ws error frame not sent")
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(code)),
		time.Now().Add(controlTimeout))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
