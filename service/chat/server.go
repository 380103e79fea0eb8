// Package chat is the connection gateway: it authenticates websocket
// handshakes, keeps the connection registry and room membership, dispatches
// inbound events to the message router, and implements the router's fan-out
// surface.
package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatwire/logger"
	"chatwire/module/chat/service"
	usermodel "chatwire/module/user/model"
	"chatwire/tools/decode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Authenticator verifies a bearer token and resolves the account, exactly as
// the REST middleware does.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*usermodel.User, error)
}

// PresenceTracker records connect/disconnect presence. Informational only;
// no delivery decision reads it.
type PresenceTracker interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

type Server struct {
	auth     Authenticator
	router   *service.Router
	registry *Registry
	rooms    *Rooms
	presence PresenceTracker // nil when presence is not configured
	disp     *Dispatcher
}

func NewServer(auth Authenticator, registry *Registry, rooms *Rooms, presence PresenceTracker) *Server {
	s := &Server{
		auth:     auth,
		registry: registry,
		rooms:    rooms,
		presence: presence,
		disp:     NewDispatcher(),
	}
	s.disp.Register(EventJoinConversations, s.handleJoinConversations)
	s.disp.Register(EventSendMessage, s.handleSendMessage)
	s.disp.Register(EventMarkRead, s.handleMarkRead)
	return s
}

// SetRouter wires the message router in after construction; the router in
// turn fans out through this server.
func (s *Server) SetRouter(r *service.Router) { s.router = r }

// HandleWS upgrades the connection, authenticates it before any registry
// mutation, then runs the read loop until disconnect.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("ws: upgrade failed: %v", err)
		return
	}

	user, err := s.auth.Authenticate(c.Request.Context(), bearerToken(c.Request))
	if err != nil {
		// generic close reason; no hint which sub-check failed
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}

	conn := newConn(uuid.NewString(), user.ID, ws)
	if s.registry.Add(conn) == 1 && s.presence != nil {
		if err := s.presence.Online(context.Background(), user.ID); err != nil {
			logger.Warnf("presence: online failed user=%s: %v", user.ID, err)
		}
	}
	go conn.writePump()
	logger.Infof("ws: connected user=%s conn=%s", user.ID, conn.ID)

	s.readLoop(conn)
	s.disconnect(conn)
}

func (s *Server) readLoop(conn *Conn) {
	ws := conn.sock
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("ws: peer closed conn=%s", conn.ID)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("ws: read timeout conn=%s", conn.ID)
			} else {
				logger.Infof("ws: read error conn=%s: %v", conn.ID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, err := ParseFrame(data)
		if err != nil {
			logger.Warnf("ws: bad frame conn=%s: %v", conn.ID, err)
			continue
		}

		// Handler failures are logged and swallowed: a failed fan-out or a
		// rejected send never terminates the connection, and the client's
		// next fetch self-heals.
		if err := s.disp.Dispatch(context.Background(), conn, frame); err != nil {
			logger.Warnf("ws: %s failed conn=%s user=%s: %v", frame.Event, conn.ID, conn.UserID, err)
		}
	}
}

// disconnect removes the connection from the registry and every room. When
// it was the user's last connection the user goes offline.
func (s *Server) disconnect(conn *Conn) {
	conn.close()
	s.rooms.LeaveAll(conn)
	if s.registry.Remove(conn) == 0 && s.presence != nil {
		if err := s.presence.Offline(context.Background(), conn.UserID); err != nil {
			logger.Warnf("presence: offline failed user=%s: %v", conn.UserID, err)
		}
	}
	logger.Infof("ws: disconnected user=%s conn=%s", conn.UserID, conn.ID)
}

// ---- inbound event handlers ----

// handleJoinConversations subscribes the connection to every conversation
// its user belongs to. Idempotent; clients re-invoke it after reconnect.
func (s *Server) handleJoinConversations(ctx context.Context, c *Conn, _ map[string]any) error {
	ids, err := s.router.ConversationIDs(ctx, c.UserID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.rooms.Join(id, c)
	}
	c.markJoined()
	return nil
}

func (s *Server) handleSendMessage(ctx context.Context, c *Conn, payload map[string]any) error {
	p, err := decode.FromMap[sendMessagePayload](payload)
	if err != nil {
		return err
	}
	_, err = s.router.SendMessage(ctx, c.UserID, c.ID, p.ConversationID, p.Content)
	return err
}

func (s *Server) handleMarkRead(ctx context.Context, c *Conn, payload map[string]any) error {
	p, err := decode.FromMap[markReadPayload](payload)
	if err != nil {
		return err
	}
	return s.router.MarkRead(ctx, c.UserID, p.ConversationID)
}

// ---- fan-out surface (service.Pusher) ----

// PushRoom delivers to the conversation's joined subscribers, excluding the
// originating connection and every connection of skipUserID.
func (s *Server) PushRoom(convID, skipConnID, skipUserID string, ev service.Event) {
	data, err := EncodeEvent(ev)
	if err != nil {
		logger.Errorf("ws: encode %s failed: %v", ev.Name, err)
		return
	}
	for _, c := range s.rooms.Connections(convID) {
		if c.ID == skipConnID || (skipUserID != "" && c.UserID == skipUserID) {
			continue
		}
		c.Enqueue(data)
	}
}

// PushUser delivers to all of one user's connections regardless of join
// state. Used for new_conversation, which precedes any room membership.
func (s *Server) PushUser(userID string, ev service.Event) {
	data, err := EncodeEvent(ev)
	if err != nil {
		logger.Errorf("ws: encode %s failed: %v", ev.Name, err)
		return
	}
	for _, c := range s.registry.ListByUser(userID) {
		c.Enqueue(data)
	}
}

// Subscribe adds the listed users' already-joined connections to the
// conversation's room, so a conversation created after join_conversations
// still delivers without a rejoin.
func (s *Server) Subscribe(convID string, userIDs []string) {
	for _, uid := range userIDs {
		for _, c := range s.registry.ListByUser(uid) {
			if c.Joined() {
				s.rooms.Join(convID, c)
			}
		}
	}
}

// bearerToken extracts the credential from the handshake request: ?token=,
// x-auth-token, or an Authorization bearer header.
func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if t := r.Header.Get("x-auth-token"); t != "" {
		return t
	}
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(authz) > len(prefix) && authz[:len(prefix)] == prefix {
		return authz[len(prefix):]
	}
	return ""
}
