package models

import (
	"time"

	"gorm.io/gorm"
)

// Message is one channel message. A message belonging to a thread carries
// that thread's ID in ThreadID unless it is the thread's original message:
// originals keep ThreadID null so they still count as channel messages,
// while replies count only toward their thread.
type Message struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ChannelID uint  `gorm:"not null;index" json:"channel_id"`
	ThreadID  *uint `gorm:"index" json:"thread_id"`
	AuthorID  uint  `gorm:"not null;index" json:"author_id"`

	Body string `gorm:"type:text;not null" json:"body"`

	LastEditorID *uint `json:"last_editor_id"`
}

// Trashed reports whether the message is soft-deleted.
func (m *Message) Trashed() bool {
	return m.DeletedAt.Valid
}

// ThreadReply reports whether the message is a thread reply (not the
// thread's original message).
func (m *Message) ThreadReply() bool {
	return m.ThreadID != nil
}

type MessageResponse struct {
	ID        uint      `json:"id"`
	ChannelID uint      `json:"channel_id"`
	ThreadID  *uint     `json:"thread_id"`
	AuthorID  uint      `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		ThreadID:  m.ThreadID,
		AuthorID:  m.AuthorID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}
