package models

import "github.com/google/uuid"

// User is a registered account. The room layer only ever sees the id, the
// display name and the avatar id; everything else stays behind the account
// endpoints.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Name     string    `json:"name"`
	Avatar   int       `json:"profileImageResId"`

	EmailVerified bool `json:"emailVerified"`
}
