package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// StringList stores an ordered list of strings as a JSON text column.
type StringList []string

// Scan implements sql.Scanner for reading JSON arrays from the database.
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = StringList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("StringList.Scan: expected []byte or string, got %T", value)
	}
	if len(bytes) == 0 {
		*s = StringList{}
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer for writing JSON arrays to the database.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// ImageMeta describes an image stored with the object-storage collaborator.
type ImageMeta struct {
	URL        string `json:"url"`
	ProviderID string `json:"provider_id"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SizeBytes  int64  `json:"size_bytes"`
	Format     string `json:"format"`
}

// Scan implements sql.Scanner for reading image metadata from a JSON column.
func (m *ImageMeta) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("ImageMeta.Scan: expected []byte or string, got %T", value)
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Value implements driver.Valuer for writing image metadata as JSON.
func (m ImageMeta) Value() (driver.Value, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Post represents a blog post. AuthorID is stored as an opaque reference with
// no foreign key; hydration falls back to "Unknown" when the author is gone.
type Post struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	AuthorID  uint       `gorm:"index;not null" json:"author_id"`
	Title     string     `gorm:"size:255;not null" json:"title"`
	Body      string     `gorm:"type:text;not null" json:"body"`
	Tags      StringList `gorm:"type:text" json:"tags"`
	Image     *ImageMeta `gorm:"type:text" json:"image"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`

	// Computed at query time, not persisted.
	LikesCount int64      `gorm:"-" json:"likes_count"`
	IsLiked    bool       `gorm:"-" json:"is_liked"`
	Author     *AuthorRef `gorm:"-" json:"author,omitempty"`
}

// BeforeCreate hook ensures the creation timestamp is set. UpdatedAt stays
// null until the first update.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return nil
}

// SearchResult is one relevance-ranked (or recency-ranked fallback) hit.
// Score is nil when the fallback strategy produced the result.
type SearchResult struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	BodySnippet string     `json:"body_snippet"`
	AuthorID    uint       `json:"author_id"`
	Image       *ImageMeta `json:"image"`
	Score       *float64   `json:"score"`
	CreatedAt   time.Time  `json:"created_at"`
}
