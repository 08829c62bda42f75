package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"encore-realtime/internal/database"
	"encore-realtime/internal/models"
)

var ErrSelfNotification = errors.New("actor and recipient are the same user")

// Publisher delivers a payload to a user's open notification streams.
type Publisher interface {
	Publish(userID int, payload any)
}

type NotificationService struct {
	db        database.NotificationRepository
	publisher Publisher
}

func NewNotificationService(db database.NotificationRepository, publisher Publisher) *NotificationService {
	return &NotificationService{db: db, publisher: publisher}
}

// Notify persists a notification from actor to req.RecipientID and then
// pushes it to the recipient's live streams. Users are never notified about
// their own actions.
func (s *NotificationService) Notify(ctx context.Context, actor *models.User, req *models.CreateNotificationRequest) (*models.Notification, error) {
	if actor.ID == req.RecipientID {
		return nil, ErrSelfNotification
	}

	message := req.Message
	if message == "" {
		message = defaultMessage(actor.Username, req.NotificationType)
	}

	saved, err := s.db.CreateNotification(ctx, &models.Notification{
		RecipientID:      req.RecipientID,
		ActorID:          actor.ID,
		NotificationType: req.NotificationType,
		Message:          message,
		ReviewID:         req.ReviewID,
		CommentID:        req.CommentID,
		GroupInviteID:    req.GroupInviteID,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	s.publisher.Publish(saved.RecipientID, models.NotificationEvent{
		ID:                  saved.ID,
		NotificationType:    saved.NotificationType,
		Message:             saved.Message,
		IsRead:              saved.IsRead,
		CreatedAt:           saved.CreatedAt.UTC().Format(time.RFC3339Nano),
		ActorID:             actor.ID,
		ActorUsername:       actor.Username,
		ActorProfilePicture: actor.ProfilePicture,
		ReviewID:            saved.ReviewID,
		CommentID:           saved.CommentID,
		GroupInviteID:       saved.GroupInviteID,
	})

	return saved, nil
}

func defaultMessage(actor string, t models.NotificationType) string {
	switch t {
	case models.NotificationLike:
		return actor + " liked your review"
	case models.NotificationComment:
		return actor + " commented on your review"
	case models.NotificationReply:
		return actor + " replied to your comment"
	case models.NotificationFollow:
		return actor + " started following you"
	case models.NotificationGroupInvite:
		return actor + " invited you to a group"
	default:
		return actor + " sent you a notification"
	}
}
