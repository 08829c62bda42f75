package services

import (
	"context"
	"testing"

	"encore-realtime/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	userID  int
	payload any
}

type fakePublisher struct {
	calls []published
}

func (p *fakePublisher) Publish(userID int, payload any) {
	p.calls = append(p.calls, published{userID: userID, payload: payload})
}

func TestNotifyPersistsThenPublishes(t *testing.T) {
	db := newFakeDB()
	pub := &fakePublisher{}
	svc := NewNotificationService(db, pub)
	actor := &models.User{ID: 1, Username: "ana", ProfilePicture: strPtr("ana.png")}
	reviewID := 33

	saved, err := svc.Notify(context.Background(), actor, &models.CreateNotificationRequest{
		RecipientID:      2,
		NotificationType: models.NotificationLike,
		ReviewID:         &reviewID,
	})
	require.NoError(t, err)
	require.Len(t, db.notifications, 1)
	assert.Equal(t, "ana liked your review", saved.Message)

	require.Len(t, pub.calls, 1)
	assert.Equal(t, 2, pub.calls[0].userID)

	event, ok := pub.calls[0].payload.(models.NotificationEvent)
	require.True(t, ok)
	assert.Equal(t, saved.ID, event.ID)
	assert.Equal(t, models.NotificationLike, event.NotificationType)
	assert.Equal(t, "ana", event.ActorUsername)
	assert.Equal(t, "ana.png", *event.ActorProfilePicture)
	assert.Equal(t, 33, *event.ReviewID)
	assert.Equal(t, "2026-01-02T03:04:05Z", event.CreatedAt)
}

func TestNotifyKeepsExplicitMessage(t *testing.T) {
	svc := NewNotificationService(newFakeDB(), &fakePublisher{})

	saved, err := svc.Notify(context.Background(), &models.User{ID: 1, Username: "ana"}, &models.CreateNotificationRequest{
		RecipientID:      2,
		NotificationType: models.NotificationGroupInvite,
		Message:          "join the jazz club",
	})
	require.NoError(t, err)
	assert.Equal(t, "join the jazz club", saved.Message)
}

func TestNotifySkipsSelf(t *testing.T) {
	db := newFakeDB()
	pub := &fakePublisher{}
	svc := NewNotificationService(db, pub)

	_, err := svc.Notify(context.Background(), &models.User{ID: 1}, &models.CreateNotificationRequest{
		RecipientID:      1,
		NotificationType: models.NotificationFollow,
	})
	assert.ErrorIs(t, err, ErrSelfNotification)
	assert.Empty(t, db.notifications)
	assert.Empty(t, pub.calls)
}

func TestNotifyDoesNotPublishWhenSaveFails(t *testing.T) {
	db := newFakeDB()
	db.failWrites = true
	pub := &fakePublisher{}
	svc := NewNotificationService(db, pub)

	_, err := svc.Notify(context.Background(), &models.User{ID: 1, Username: "ana"}, &models.CreateNotificationRequest{
		RecipientID:      2,
		NotificationType: models.NotificationComment,
	})
	assert.ErrorIs(t, err, errWriteFailed)
	assert.Empty(t, pub.calls)
}

func TestDefaultMessage(t *testing.T) {
	assert.Equal(t, "ana replied to your comment", defaultMessage("ana", models.NotificationReply))
	assert.Equal(t, "ana started following you", defaultMessage("ana", models.NotificationFollow))
	assert.Equal(t, "ana commented on your review", defaultMessage("ana", models.NotificationComment))
}
