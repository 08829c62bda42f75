package models

import "time"

type User struct {
	ID             int       `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	ProfilePicture *string   `json:"profile_picture"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserProfile is the public slice of a user carried in presence events.
type UserProfile struct {
	UserID         int     `json:"user_id"`
	Username       string  `json:"username"`
	ProfilePicture *string `json:"profile_picture"`
}

func (u *User) Profile() UserProfile {
	return UserProfile{
		UserID:         u.ID,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
	}
}
