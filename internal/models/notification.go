package models

import "time"

type NotificationType string

const (
	NotificationLike        NotificationType = "like"
	NotificationComment     NotificationType = "comment"
	NotificationReply       NotificationType = "reply"
	NotificationFollow      NotificationType = "follow"
	NotificationGroupInvite NotificationType = "group_invite"
)

type Notification struct {
	ID               int              `json:"id"`
	RecipientID      int              `json:"recipient_id"`
	ActorID          int              `json:"actor_id"`
	NotificationType NotificationType `json:"notification_type"`
	Message          string           `json:"message"`
	ReviewID         *int             `json:"review_id"`
	CommentID        *int             `json:"comment_id"`
	GroupInviteID    *int             `json:"group_invite_id"`
	IsRead           bool             `json:"is_read"`
	CreatedAt        time.Time        `json:"created_at"`
}

// NotificationEvent is the payload pushed on a recipient's live stream.
type NotificationEvent struct {
	ID                  int              `json:"id"`
	NotificationType    NotificationType `json:"notification_type"`
	Message             string           `json:"message"`
	IsRead              bool             `json:"is_read"`
	CreatedAt           string           `json:"created_at"`
	ActorID             int              `json:"actor_id"`
	ActorUsername       string           `json:"actor_username"`
	ActorProfilePicture *string          `json:"actor_profile_picture"`
	ReviewID            *int             `json:"review_id"`
	CommentID           *int             `json:"comment_id"`
	GroupInviteID       *int             `json:"group_invite_id"`
}

type CreateNotificationRequest struct {
	RecipientID      int              `json:"recipient_id" validate:"required,gt=0"`
	NotificationType NotificationType `json:"notification_type" validate:"required,oneof=like comment reply follow group_invite"`
	Message          string           `json:"message" validate:"max=500"`
	ReviewID         *int             `json:"review_id,omitempty" validate:"omitempty,gt=0"`
	CommentID        *int             `json:"comment_id,omitempty" validate:"omitempty,gt=0"`
	GroupInviteID    *int             `json:"group_invite_id,omitempty" validate:"omitempty,gt=0"`
}
