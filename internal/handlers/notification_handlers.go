package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"encore-realtime/internal/models"
	"encore-realtime/internal/notify"
	"encore-realtime/internal/services"
	"encore-realtime/pkg/logger"
)

type Notifier interface {
	Notify(ctx context.Context, actor *models.User, req *models.CreateNotificationRequest) (*models.Notification, error)
}

type NotificationHandlers struct {
	auth      Authenticator
	fanout    *notify.Fanout
	notifier  Notifier
	keepalive time.Duration
}

func NewNotificationHandlers(auth Authenticator, fanout *notify.Fanout, notifier Notifier, keepalive time.Duration) *NotificationHandlers {
	return &NotificationHandlers{
		auth:      auth,
		fanout:    fanout,
		notifier:  notifier,
		keepalive: keepalive,
	}
}

// Stream serves GET /api/v1/feed/notifications/stream as server-sent
// events. EventSource cannot set headers, so the token may come in the
// query string.
func (h *NotificationHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	user, err := authenticate(r, h.auth)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.fanout.Register(user.ID)
	defer h.fanout.Unregister(user.ID, sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err = notify.Stream(r.Context(), sub, h.keepalive, func(event string, data []byte) error {
		if err := notify.WriteSSE(w, event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("Notification stream for user %d ended: %v", user.ID, err)
	}
}

// Create serves POST /api/v1/notifications. Producers call it after the
// action that triggers the notification (like, comment, follow, invite).
func (h *NotificationHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())

	var req models.CreateNotificationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	saved, err := h.notifier.Notify(r.Context(), actor, &req)
	if err != nil {
		if errors.Is(err, services.ErrSelfNotification) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		logger.Error("Error creating notification: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}
