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

// GroupChat is what the group endpoints need from the membership and
// persistence collaborators.
type GroupChat interface {
	CanJoinGroup(ctx context.Context, userID, groupID int) (bool, error)
	SaveGroupMessage(ctx context.Context, groupID, userID int, content string, imageURL *string) (*models.GroupMessage, error)
	Profiles(ctx context.Context, ids []int) ([]models.UserProfile, error)
	GroupMembers(ctx context.Context, groupID int) ([]*models.GroupMember, error)
}

type GroupChatHandlers struct {
	chatSocket
	chat     GroupChat
	presence *ws.Presence
}

func NewGroupChatHandlers(auth Authenticator, chat GroupChat, registry *ws.Registry, opts ws.ClientOptions, allowedOrigins []string) *GroupChatHandlers {
	return &GroupChatHandlers{
		chatSocket: newChatSocket(auth, registry, opts, allowedOrigins),
		chat:       chat,
		presence:   ws.NewPresence(registry),
	}
}

// HandleWebSocket serves /ws/group/{id}?token=<jwt>.
func (h *GroupChatHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chatRoomHooks{
		canJoin:         h.chat.CanJoinGroup,
		notMemberReason: "Not a member of this group",
		onJoin:          h.onJoin,
		onFrame:         h.onFrame,
		onLeave:         h.onLeave,
	})
}

func (h *GroupChatHandlers) onJoin(s *chatSession) {
	h.broadcaster.BroadcastExcept(s.roomID, models.WebSocketMessage{
		Type:           models.MessageTypeUserJoined,
		UserID:         s.user.ID,
		Username:       s.user.Username,
		ProfilePicture: s.user.ProfilePicture,
	}, s.user.ID)

	others := make([]int, 0)
	for _, id := range h.presence.OnlineUserIDs(s.roomID) {
		if id != s.user.ID {
			others = append(others, id)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	profiles, err := h.chat.Profiles(ctx, others)
	if err != nil {
		logger.Error("Error loading online users for group %d: %v", s.roomID, err)
		profiles = []models.UserProfile{}
	}

	h.broadcaster.SendTo(s.client, models.OnlineUsersMessage{
		Type:        models.MessageTypeOnlineUsers,
		OnlineUsers: profiles,
	})
}

func (h *GroupChatHandlers) onFrame(s *chatSession, frame models.InboundFrame) {
	switch frame.Type {
	case models.MessageTypeMessage:
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		saved, err := h.chat.SaveGroupMessage(ctx, s.roomID, s.user.ID, frame.Content, frame.ImageURL)
		if err != nil {
			if !errors.Is(err, services.ErrEmptyMessage) {
				logger.Error("Error saving message in group %d: %v", s.roomID, err)
			}
			return
		}
		h.broadcastMessage(s.user, saved)

	case models.MessageTypeTyping:
		h.typing(s)

	case models.MessageTypePing:
		h.pong(s)

	default:
		logger.Debug("Ignoring %q frame in group %d", frame.Type, s.roomID)
	}
}

func (h *GroupChatHandlers) onLeave(s *chatSession) {
	h.broadcaster.Broadcast(s.roomID, models.WebSocketMessage{
		Type:     models.MessageTypeUserLeft,
		UserID:   s.user.ID,
		Username: s.user.Username,
	})
}

// broadcastMessage fans a persisted message out to everyone in the group but its sender.
func (h *GroupChatHandlers) broadcastMessage(sender *models.User, saved *models.GroupMessage) models.WebSocketMessage {
	event := models.WebSocketMessage{
		Type:           models.MessageTypeMessage,
		Content:        saved.Content,
		ImageURL:       saved.ImageURL,
		UserID:         sender.ID,
		Username:       sender.Username,
		ProfilePicture: sender.ProfilePicture,
		MessageID:      saved.ID,
		Timestamp:      timestamp(saved.CreatedAt),
	}
	h.broadcaster.BroadcastExcept(saved.GroupID, event, sender.ID)
	return event
}

// OnlineMembers serves GET /api/v1/groups/{id}/online.
func (h *GroupChatHandlers) OnlineMembers(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	groupID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	if !h.requireMember(w, r, user.ID, groupID) {
		return
	}

	profiles, err := h.chat.Profiles(r.Context(), h.presence.OnlineUserIDs(groupID))
	if err != nil {
		logger.Error("Error loading online users for group %d: %v", groupID, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group_id":     groupID,
		"online_users": profiles,
		"count":        len(profiles),
	})
}

// Members serves GET /api/v1/groups/{id}/members: the full member list with
// an online badge per member.
func (h *GroupChatHandlers) Members(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	groupID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	if !h.requireMember(w, r, user.ID, groupID) {
		return
	}

	members, err := h.chat.GroupMembers(r.Context(), groupID)
	if err != nil {
		logger.Error("Error listing members of group %d: %v", groupID, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	online := h.presence.OnlineSet(groupID)
	for _, m := range members {
		m.IsOnline = online[m.UserID]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"total":   len(members),
	})
}

// PostMessage serves POST /api/v1/groups/{id}/messages: the HTTP path of
// save-then-broadcast, used for messages that are not typed into a socket
// (for example an uploaded image).
func (h *GroupChatHandlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	groupID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	var req models.SendMessageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if !h.requireMember(w, r, user.ID, groupID) {
		return
	}

	saved, err := h.chat.SaveGroupMessage(r.Context(), groupID, user.ID, req.Content, req.ImageURL)
	if err != nil {
		if errors.Is(err, services.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Error saving message in group %d: %v", groupID, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, h.broadcastMessage(user, saved))
}

func (h *GroupChatHandlers) requireMember(w http.ResponseWriter, r *http.Request, userID, groupID int) bool {
	ok, err := h.chat.CanJoinGroup(r.Context(), userID, groupID)
	if err != nil {
		logger.Error("Error checking membership for user %d group %d: %v", userID, groupID, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return false
	}
	return true
}
