// Package host serves the WebSocket link the game client shim connects to.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nihhunt.ai/internal/protocol"
)

const outQueue = 32

// Sink receives decoded host traffic. Calls for one link arrive from a single
// goroutine, in wire order.
type Sink interface {
	HostConnected(ctx context.Context, sessionID, username string) error
	HostMessage(ctx context.Context, sessionID string, msg any) error
	HostDisconnected(sessionID string)
}

type link struct {
	sessionID string
	username  string
	conn      *websocket.Conn
	out       chan []byte
	cancel    context.CancelFunc
}

type Stats struct {
	Connected        bool
	SessionID        string
	Username         string
	ConnectsTotal    uint64
	MessagesTotal    uint64
	MalformedTotal   uint64
	NoticesSent      uint64
	NoticesDropped   uint64
	LastMessageUnix  int64
	LastConnectUnix  int64
	LastDisconnected int64
}

type Server struct {
	sink Sink
	log  *log.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	current *link

	connectsTotal    atomic.Uint64
	messagesTotal    atomic.Uint64
	malformedTotal   atomic.Uint64
	noticesSent      atomic.Uint64
	noticesDropped   atomic.Uint64
	lastMessageUnix  atomic.Int64
	lastConnectUnix  atomic.Int64
	lastDisconnected atomic.Int64
}

func NewServer(sink Sink, logger *log.Logger) *Server {
	return &Server{
		sink: sink,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			// The shim runs inside the game client on the same machine.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		l := s.handshake(ctx, conn, cancel)
		if l == nil {
			return
		}
		defer s.detach(l)

		go s.writeLoop(ctx, l, cancel)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := Decode(raw)
			if err != nil {
				s.malformedTotal.Add(1)
				s.printf("host %s skipped message: %v", l.sessionID, err)
				continue
			}
			s.messagesTotal.Add(1)
			s.lastMessageUnix.Store(time.Now().UTC().Unix())
			if err := s.sink.HostMessage(ctx, l.sessionID, msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) *link {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	base, err := protocol.DecodeBase(raw)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(raw, &hello); err != nil {
		closeWith(conn, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}

	l := &link{
		sessionID: uuid.NewString(),
		username:  strings.TrimSpace(hello.Username),
		conn:      conn,
		out:       make(chan []byte, outQueue),
		cancel:    cancel,
	}
	if err := s.sink.HostConnected(ctx, l.sessionID, l.username); err != nil {
		closeWith(conn, "daemon shutting down")
		return nil
	}
	if err := writeJSON(conn, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       l.sessionID,
	}); err != nil {
		s.sink.HostDisconnected(l.sessionID)
		return nil
	}

	s.mu.Lock()
	prev := s.current
	s.current = l
	s.mu.Unlock()
	if prev != nil {
		s.printf("host %s replaced by %s", prev.sessionID, l.sessionID)
		prev.cancel()
		_ = prev.conn.Close()
	}
	s.connectsTotal.Add(1)
	s.lastConnectUnix.Store(time.Now().UTC().Unix())
	s.printf("host %s connected user=%q", l.sessionID, l.username)
	return l
}

func (s *Server) writeLoop(ctx context.Context, l *link, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-l.out:
			_ = l.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := l.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				cancel()
				return
			}
		}
	}
}

func (s *Server) detach(l *link) {
	s.mu.Lock()
	if s.current == l {
		s.current = nil
	}
	s.mu.Unlock()
	s.lastDisconnected.Store(time.Now().UTC().Unix())
	s.printf("host %s disconnected", l.sessionID)
	s.sink.HostDisconnected(l.sessionID)
}

// Notify forwards a notice to the connected host. With no host, or a host
// that is not reading, the notice is dropped.
func (s *Server) Notify(text string) {
	b, err := json.Marshal(protocol.NewNotice(text))
	if err != nil {
		return
	}
	s.mu.Lock()
	l := s.current
	s.mu.Unlock()
	if l == nil {
		s.noticesDropped.Add(1)
		return
	}
	select {
	case l.out <- b:
		s.noticesSent.Add(1)
	default:
		s.noticesDropped.Add(1)
	}
}

func (s *Server) Stats() Stats {
	st := Stats{
		ConnectsTotal:    s.connectsTotal.Load(),
		MessagesTotal:    s.messagesTotal.Load(),
		MalformedTotal:   s.malformedTotal.Load(),
		NoticesSent:      s.noticesSent.Load(),
		NoticesDropped:   s.noticesDropped.Load(),
		LastMessageUnix:  s.lastMessageUnix.Load(),
		LastConnectUnix:  s.lastConnectUnix.Load(),
		LastDisconnected: s.lastDisconnected.Load(),
	}
	s.mu.Lock()
	if s.current != nil {
		st.Connected = true
		st.SessionID = s.current.sessionID
		st.Username = s.current.username
	}
	s.mu.Unlock()
	return st
}

// Decode turns one host frame into its typed message.
func Decode(raw []byte) (any, error) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return nil, err
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
		return nil, fmt.Errorf("bad protocol_version %q", base.ProtocolVersion)
	}
	var v any
	switch base.Type {
	case protocol.TypeAction:
		v = &protocol.ActionMsg{}
	case protocol.TypeFeedback:
		v = &protocol.FeedbackMsg{}
	case protocol.TypeTick:
		v = &protocol.TickMsg{}
	case protocol.TypeInventory:
		v = &protocol.InventoryMsg{}
	case protocol.TypeNPCSpawn:
		v = &protocol.NPCSpawnMsg{}
	case protocol.TypeNPCDespawn:
		v = &protocol.NPCDespawnMsg{}
	default:
		return nil, fmt.Errorf("unexpected type %q", base.Type)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("%s: %w", base.Type, err)
	}
	return v, nil
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
