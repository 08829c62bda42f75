package handlers

import (
	"context"
	"errors"
	"net/http"

	"encore-realtime/internal/models"
	"encore-realtime/internal/services"
	ws "encore-realtime/internal/websocket"
	"encore-realtime/pkg/logger"
)

type DirectChat interface {
	CanJoinConversation(ctx context.Context, userID, conversationID int) (bool, error)
	SaveDirectMessage(ctx context.Context, conversationID, senderID int, content string, imageURL *string) (*models.DirectMessage, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID int) error
}

type DMChatHandlers struct {
	chatSocket
	chat DirectChat
}

func NewDMChatHandlers(auth Authenticator, chat DirectChat, registry *ws.Registry, opts ws.ClientOptions, allowedOrigins []string) *DMChatHandlers {
	return &DMChatHandlers{
		chatSocket: newChatSocket(auth, registry, opts, allowedOrigins),
		chat:       chat,
	}
}

// HandleWebSocket serves /ws/dm/{id}?token=<jwt>.
func (h *DMChatHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chatRoomHooks{
		canJoin:         h.chat.CanJoinConversation,
		notMemberReason: "Not a participant of this conversation",
		onJoin:          h.onJoin,
		onFrame:         h.onFrame,
	})
}

func (h *DMChatHandlers) onJoin(s *chatSession) {
	h.markRead(s)
}

func (h *DMChatHandlers) onFrame(s *chatSession, frame models.InboundFrame) {
	switch frame.Type {
	case models.MessageTypeMessage:
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		saved, err := h.chat.SaveDirectMessage(ctx, s.roomID, s.user.ID, frame.Content, frame.ImageURL)
		if err != nil {
			if !errors.Is(err, services.ErrEmptyMessage) {
				logger.Error("Error saving message in conversation %d: %v", s.roomID, err)
			}
			return
		}
		h.broadcastMessage(s.user, saved)

	case models.MessageTypeTyping:
		h.typing(s)

	case models.MessageTypeRead:
		h.markRead(s)
		h.broadcaster.BroadcastExcept(s.roomID, models.WebSocketMessage{
			Type:   models.MessageTypeRead,
			UserID: s.user.ID,
		}, s.user.ID)

	case models.MessageTypePing:
		h.pong(s)

	default:
		logger.Debug("Ignoring %q frame in conversation %d", frame.Type, s.roomID)
	}
}

func (h *DMChatHandlers) markRead(s *chatSession) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := h.chat.MarkConversationRead(ctx, s.roomID, s.user.ID); err != nil {
		logger.Error("Error marking conversation %d read: %v", s.roomID, err)
	}
}

// broadcastMessage delivers a persisted DM to both participants; the
// sender's own socket gets the echo carrying the stored id and timestamp.
func (h *DMChatHandlers) broadcastMessage(sender *models.User, saved *models.DirectMessage) models.WebSocketMessage {
	event := models.WebSocketMessage{
		Type:           models.MessageTypeMessage,
		Content:        saved.Content,
		ImageURL:       saved.ImageURL,
		SenderID:       sender.ID,
		Username:       sender.Username,
		ProfilePicture: sender.ProfilePicture,
		MessageID:      saved.ID,
		Timestamp:      timestamp(saved.CreatedAt),
	}
	h.broadcaster.Broadcast(saved.ConversationID, event)
	return event
}

// PostMessage serves POST /api/v1/conversations/{id}/messages.
func (h *DMChatHandlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	conversationID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req models.SendMessageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	ok, err := h.chat.CanJoinConversation(r.Context(), user.ID, conversationID)
	if err != nil {
		logger.Error("Error checking participant %d in conversation %d: %v", user.ID, conversationID, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
		return
	}

	saved, err := h.chat.SaveDirectMessage(r.Context(), conversationID, user.ID, req.Content, req.ImageURL)
	if err != nil {
		if errors.Is(err, services.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Error saving message in conversation %d: %v", conversationID, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, h.broadcastMessage(user, saved))
}
