package hubtest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/channelize/channelize-go/pkg/wire"
)

// ErrUnknownConnection is returned when a connection ID is not live.
var ErrUnknownConnection = errors.New("unknown connection")

// Call is one recorded HTTP call.
type Call struct {
	Method       string
	Path         string
	Domain       string
	RequestID    string
	ConnectionID string
	Extra        []string
	Query        url.Values
	Body         []byte
	Auth         string
}

// BodyField decodes the JSON body and returns field, or nil.
func (c Call) BodyField(field string) any {
	var m map[string]any
	if json.Unmarshal(c.Body, &m) != nil {
		return nil
	}
	return m[field]
}

// Reply is a hub event pushed in answer to a subscribe call.
type Reply struct {
	Event   string
	Payload any
	Delay   time.Duration
}

// Response scripts the answer to a subscribe call.
type Response struct {
	// Status defaults to 200.
	Status int

	// Replies are pushed on the caller's connection after the response.
	Replies []Reply
}

// Responder computes the Response for a subscribe call.
type Responder func(Call) Response

// Confirm answers with one confirmation frame.
func Confirm(event, tag string) Responder {
	return func(c Call) Response {
		return Response{Replies: []Reply{{
			Event:   event,
			Payload: map[string]any{"RequestId": c.RequestID, "RequestFor": tag},
		}}}
	}
}

// ConfirmKeyed answers with one confirmation per entry of the JSON array
// bodyField, carrying the entry in keyField.
func ConfirmKeyed(event, tag, bodyField, keyField string) Responder {
	return func(c Call) Response {
		keys, _ := c.BodyField(bodyField).([]any)
		replies := make([]Reply, 0, len(keys))
		for _, k := range keys {
			key, ok := k.(string)
			if !ok {
				continue
			}
			replies = append(replies, Reply{
				Event:   event,
				Payload: map[string]any{"RequestId": c.RequestID, "RequestFor": tag, keyField: key},
			})
		}
		return Response{Replies: replies}
	}
}

// Reject answers with status and no frames.
func Reject(status int) Responder {
	return func(Call) Response { return Response{Status: status} }
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// HubPath is the websocket route. Defaults to /hub.
	HubPath string

	// Token, when set, is required as a bearer token on every request.
	Token string

	// PingInterval sends a Ping to every connection when positive.
	PingInterval time.Duration

	Logger *slog.Logger
}

// Server is a fake channelize backend: a websocket hub plus the
// subscribe and unsubscribe HTTP routes.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger
	router chi.Router

	mu         sync.Mutex
	conns      map[string]*serverConn
	responders map[string]Responder
	calls      []Call
	invokes    []*wire.Message
	pongs      int

	callCh    chan Call
	connected chan string
}

type serverConn struct {
	id     string
	codec  wire.Codec
	ws     *websocket.Conn
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (c *serverConn) write(ctx context.Context, msg *wire.Message) error {
	data, err := c.codec.EncodeMessage(msg)
	if err != nil {
		return err
	}
	typ := websocket.MessageText
	if c.codec.Binary() {
		typ = websocket.MessageBinary
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Write(ctx, typ, data)
}

// NewServer creates a fake backend.
func NewServer(cfg ServerConfig) *Server {
	if cfg.HubPath == "" {
		cfg.HubPath = "/hub"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		logger:     cfg.Logger,
		conns:      make(map[string]*serverConn),
		responders: make(map[string]Responder),
		callCh:     make(chan Call, 256),
		connected:  make(chan string, 64),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(s.authorize)
	r.Get(cfg.HubPath, s.serveHub)
	r.Post("/{domain}/subscriptions/channelize/{requestID}/{connID}", s.serveSubscribe)
	r.Post("/{domain}/subscriptions/channelize/{requestID}/{connID}/*", s.serveSubscribe)
	r.Delete("/{domain}/subscriptions/{connID}", s.serveUnsubscribe)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handle sets the responder for subscribe calls on domain.
func (s *Server) Handle(domain string, fn Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responders[domain] = fn
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveHub(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{wire.SubprotocolJSON, wire.SubprotocolCBOR},
	})
	if err != nil {
		s.logger.Warn("hubtest: accept failed", "error", err)
		return
	}

	codec, err := wire.CodecBySubprotocol(ws.Subprotocol())
	if err != nil {
		codec = wire.JSON
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &serverConn{id: uuid.NewString(), codec: codec, ws: ws, cancel: cancel}
	if err := c.write(ctx, &wire.Message{Type: wire.MessageHandshake, ConnectionID: c.id}); err != nil {
		ws.Close(websocket.StatusInternalError, "handshake failed")
		return
	}

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	select {
	case s.connected <- c.id:
	default:
	}
	s.logger.Debug("hubtest: connection opened", "conn_id", c.id, "codec", codec.Name())

	defer func() {
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		s.logger.Debug("hubtest: connection closed", "conn_id", c.id)
	}()

	if s.cfg.PingInterval > 0 {
		go s.pingLoop(ctx, c)
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			ws.Close(websocket.StatusNormalClosure, "")
			return
		}
		msg, err := codec.DecodeMessage(data)
		if err != nil {
			ws.Close(websocket.StatusUnsupportedData, "malformed message")
			return
		}
		switch msg.Type {
		case wire.MessagePing:
			_ = c.write(ctx, &wire.Message{Type: wire.MessagePong})
		case wire.MessagePong:
			s.mu.Lock()
			s.pongs++
			s.mu.Unlock()
		case wire.MessageInvoke:
			s.mu.Lock()
			s.invokes = append(s.invokes, msg)
			s.mu.Unlock()
		case wire.MessageClose:
			ws.Close(websocket.StatusNormalClosure, msg.Error)
			return
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, c *serverConn) {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.write(ctx, &wire.Message{Type: wire.MessagePing}); err != nil {
				return
			}
		}
	}
}

func (s *Server) record(r *http.Request) (Call, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return Call{}, err
	}
	call := Call{
		Method:       r.Method,
		Path:         r.URL.Path,
		Domain:       chi.URLParam(r, "domain"),
		RequestID:    chi.URLParam(r, "requestID"),
		ConnectionID: chi.URLParam(r, "connID"),
		Query:        r.URL.Query(),
		Body:         body,
		Auth:         r.Header.Get("Authorization"),
	}
	if rest := chi.URLParam(r, "*"); rest != "" {
		call.Extra = strings.Split(rest, "/")
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	select {
	case s.callCh <- call:
	default:
	}
	return call, nil
}

func (s *Server) serveSubscribe(w http.ResponseWriter, r *http.Request) {
	call, err := s.record(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	_, live := s.conns[call.ConnectionID]
	fn := s.responders[call.Domain]
	s.mu.Unlock()

	if !live {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	resp := Response{}
	if fn != nil {
		resp = fn(call)
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	w.WriteHeader(resp.Status)
	if resp.Status >= 300 || len(resp.Replies) == 0 {
		return
	}

	go func() {
		for _, reply := range resp.Replies {
			if reply.Delay > 0 {
				time.Sleep(reply.Delay)
			}
			if err := s.Push(call.ConnectionID, reply.Event, reply.Payload); err != nil {
				s.logger.Debug("hubtest: reply not delivered", "conn_id", call.ConnectionID, "error", err)
				return
			}
		}
	}()
}

func (s *Server) serveUnsubscribe(w http.ResponseWriter, r *http.Request) {
	call, err := s.record(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	_, live := s.conns[call.ConnectionID]
	s.mu.Unlock()
	if !live {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

func (s *Server) conn(connID string) (*serverConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}
	return c, nil
}

// Push sends an event frame to one connection.
func (s *Server) Push(connID, event string, payload any) error {
	c, err := s.conn(connID)
	if err != nil {
		return err
	}
	msg, err := wire.EncodeEvent(c.codec, event, payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.write(ctx, msg)
}

// Broadcast sends an event frame to every connection and returns how many
// received it.
func (s *Server) Broadcast(event string, payload any) int {
	n := 0
	for _, id := range s.Connections() {
		if s.Push(id, event, payload) == nil {
			n++
		}
	}
	return n
}

// Ping sends a Ping message to one connection.
func (s *Server) Ping(connID string) error {
	c, err := s.conn(connID)
	if err != nil {
		return err
	}
	return c.write(context.Background(), &wire.Message{Type: wire.MessagePing})
}

// Disconnect drops a connection without a Close message.
func (s *Server) Disconnect(connID string) error {
	c, err := s.conn(connID)
	if err != nil {
		return err
	}
	c.cancel()
	return c.ws.CloseNow()
}

// Close sends a Close message with reason and ends the connection.
func (s *Server) Close(connID, reason string) error {
	c, err := s.conn(connID)
	if err != nil {
		return err
	}
	_ = c.write(context.Background(), &wire.Message{Type: wire.MessageClose, Error: reason})
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}

// Connections returns the live connection IDs.
func (s *Server) Connections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

// Connected receives the ID of every accepted connection.
func (s *Server) Connected() <-chan string {
	return s.connected
}

// Requests receives every recorded HTTP call.
func (s *Server) Requests() <-chan Call {
	return s.callCh
}

// Calls returns the recorded HTTP calls.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Invokes returns the Invoke messages received from clients.
func (s *Server) Invokes() []*wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*wire.Message(nil), s.invokes...)
}

// Pongs returns the number of Pong messages received.
func (s *Server) Pongs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pongs
}
