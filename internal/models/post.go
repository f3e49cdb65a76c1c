package models

import (
	"fmt"
	"time"
)

// MaxTitleLen is the upper bound on post titles.
const MaxTitleLen = 100

// SnippetLen is how many leading characters of content appear in list views.
const SnippetLen = 13

// Post is a blog entry authored by a user.
//
// AuthorID is assigned once at creation from the authenticated session and is
// never taken from request payloads. PostedAt is the sole sort key for
// listings and is immutable after creation.
type Post struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Title    string    `gorm:"size:100;not null" json:"title"`
	Content  string    `gorm:"type:text;not null" json:"content"`
	PostedAt time.Time `gorm:"not null;index" json:"date_posted"`
	AuthorID uint      `gorm:"not null;index" json:"author_id"`
	Author   User      `gorm:"foreignKey:AuthorID" json:"author"`
	// Image is the stored filename under the media directory.
	Image     string    `gorm:"not null;default:default.jpg" json:"image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanonicalURL is the stable locator for the post's detail view, used as the
// redirect target after create and update.
func (p *Post) CanonicalURL() string {
	return fmt.Sprintf("/api/posts/%d", p.ID)
}

// Snippet returns the leading characters of the content for list views.
func (p *Post) Snippet() string {
	runes := []rune(p.Content)
	if len(runes) <= SnippetLen {
		return p.Content
	}
	return string(runes[:SnippetLen]) + "..."
}
