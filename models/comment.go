package models

import "time"

// Comment represents a reply to a post. Comments are never edited, only
// created and deleted by their author.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index;not null" json:"post_id"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `json:"created_at"`

	// Computed at query time, not persisted.
	Author *AuthorRef `gorm:"-" json:"author,omitempty"`
}
