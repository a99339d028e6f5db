package models

import "time"

// ProgressRecord is a per-user, per-book reading cursor.
type ProgressRecord struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	BookID         int64     `json:"book_id"`
	ChapterIndex   int       `json:"chapter_index"`
	ParagraphIndex int       `json:"paragraph_index"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Status is the derived reading status of a book for one user.
type Status string

const (
	StatusUnread     Status = "unread"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// User is an account that owns progress records.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
