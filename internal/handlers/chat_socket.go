package handlers

import (
	"context"
	"net/http"
	"time"

	"encore-realtime/internal/metrics"
	"encore-realtime/internal/models"
	ws "encore-realtime/internal/websocket"
	"encore-realtime/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// persistTimeout bounds collaborator calls made from a socket's read loop.
const persistTimeout = 5 * time.Second

// chatSession is one admitted socket: a user bound to a room.
type chatSession struct {
	user   *models.User
	roomID int
	client *ws.Client
}

// chatRoomHooks adapt chatSocket for group chats and DM conversations.
type chatRoomHooks struct {
	canJoin         func(ctx context.Context, userID, roomID int) (bool, error)
	notMemberReason string
	onJoin          func(s *chatSession)
	onFrame         func(s *chatSession, frame models.InboundFrame)
	onLeave         func(s *chatSession)
}

// chatSocket is the admission and lifecycle shared by both chat endpoints.
type chatSocket struct {
	auth        Authenticator
	registry    *ws.Registry
	broadcaster *ws.Broadcaster
	upgrader    websocket.Upgrader
	opts        ws.ClientOptions
}

func newChatSocket(auth Authenticator, registry *ws.Registry, opts ws.ClientOptions, allowedOrigins []string) chatSocket {
	return chatSocket{
		auth:        auth,
		registry:    registry,
		broadcaster: ws.NewBroadcaster(registry),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		opts: opts,
	}
}

func (s *chatSocket) serve(w http.ResponseWriter, r *http.Request, hooks chatRoomHooks) {
	roomID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	// Admission: both checks run before the registry is touched.
	user, err := authenticate(r, s.auth)
	if err != nil {
		ws.CloseWithCode(conn, ws.CloseInvalidToken, "Invalid or expired token", s.opts.WriteWait)
		return
	}

	ok, err := hooks.canJoin(r.Context(), user.ID, roomID)
	if err != nil {
		logger.Error("Error checking %s membership for user %d room %d: %v", s.registry.Kind(), user.ID, roomID, err)
		ws.CloseWithCode(conn, websocket.CloseInternalServerErr, "membership check failed", s.opts.WriteWait)
		return
	}
	if !ok {
		ws.CloseWithCode(conn, ws.CloseNotMember, hooks.notMemberReason, s.opts.WriteWait)
		return
	}

	client := ws.NewClient(conn, s.registry.Kind(), roomID, user.ID, s.opts)
	go client.WritePump()

	if replaced := s.registry.Connect(roomID, user.ID, client); replaced != nil {
		event := s.logEvent(logger.Log().Info(), user, roomID, client)
		if old, ok := replaced.(*ws.Client); ok {
			old.Close()
			event = event.Str("replaced_session", old.SessionID())
		}
		event.Msg("replaced an older room session")
	}
	s.logEvent(logger.Log().Info(), user, roomID, client).Msg("joined room")

	session := &chatSession{user: user, roomID: roomID, client: client}
	defer func() {
		released := s.registry.Release(roomID, user.ID, client)
		if released && hooks.onLeave != nil {
			hooks.onLeave(session)
		}
		client.Close()
		s.logEvent(logger.Log().Info(), user, roomID, client).Bool("released", released).Msg("left room")
	}()

	if hooks.onJoin != nil {
		hooks.onJoin(session)
	}

	client.ReadPump(func(data []byte) {
		var frame models.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			metrics.InboundFramesDropped.WithLabelValues(s.registry.Kind(), "malformed").Inc()
			logger.Log().Debug().
				Str("kind", s.registry.Kind()).
				Int("room_id", roomID).
				Int("user_id", user.ID).
				Err(err).
				Msg("ignoring malformed frame")
			return
		}
		if frame.Type == "" {
			frame.Type = models.MessageTypeMessage
		}
		hooks.onFrame(session, frame)
	})
}

func (s *chatSocket) logEvent(e *zerolog.Event, user *models.User, roomID int, client *ws.Client) *zerolog.Event {
	return e.
		Str("kind", s.registry.Kind()).
		Int("room_id", roomID).
		Int("user_id", user.ID).
		Str("username", user.Username).
		Str("session", client.SessionID())
}

func (s *chatSocket) pong(session *chatSession) {
	s.broadcaster.SendTo(session.client, models.WebSocketMessage{Type: models.MessageTypePong})
}

func (s *chatSocket) typing(session *chatSession) {
	s.broadcaster.BroadcastExcept(session.roomID, models.WebSocketMessage{
		Type:     models.MessageTypeTyping,
		UserID:   session.user.ID,
		Username: session.user.Username,
	}, session.user.ID)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
