package domain

import "time"

// User is a registered account. The presence subsystem only ever sees the
// derived IdentityRecord; the full user lives in the user repository.
type User struct {
	ID           Identity  `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Avatar       string    `json:"avatar"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Record derives the presence record for this user.
func (u *User) Record() IdentityRecord {
	return IdentityRecord{
		ID:     u.ID,
		Name:   u.Username,
		Avatar: u.Avatar,
		Online: true,
	}
}
