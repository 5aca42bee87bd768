package models

import "time"

// Like is one element of a post's like set. The composite unique index makes
// set-add an atomic single-statement insert: a user can like a post at most
// once regardless of concurrent retries.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_like_user_post" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_like_user_post" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}
