package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a registered author. Passwords are stored as bcrypt hashes
// only; reset token material is stored hashed and never serialized.
type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Username         string     `gorm:"size:64;not null" json:"username"`
	Email            string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash     string     `gorm:"size:255;not null" json:"-"`
	ResetTokenHash   *string    `gorm:"size:64" json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// PublicUser is the projection of a user safe to return to clients.
type PublicUser struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Public strips credential and reset fields from a user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// AuthorRef is the minimal author projection attached to posts and comments.
type AuthorRef struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}
