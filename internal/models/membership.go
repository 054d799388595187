package models

import (
	"time"
)

type NotificationLevel string

const (
	NotifyAlways   NotificationLevel = "always"
	NotifyMentions NotificationLevel = "mentions"
	NotifyNever    NotificationLevel = "never"
)

// ChannelMembership tracks one user's relationship with a channel.
// LastReadMessageID is the read cursor: nil until the user has read
// anything, then monotonically non-decreasing while following.
type ChannelMembership struct {
	UserID    uint `gorm:"primaryKey" json:"user_id"`
	ChannelID uint `gorm:"primaryKey" json:"channel_id"`

	Following bool `gorm:"default:true;index" json:"following"`
	Muted     bool `gorm:"default:false" json:"muted"`

	NotificationLevel NotificationLevel `gorm:"type:varchar(20);default:'mentions'" json:"notification_level"`

	LastReadMessageID *uint `json:"last_read_message_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ThreadMembership is the thread-scoped counterpart, created lazily the
// first time a user posts in or reads a thread.
type ThreadMembership struct {
	UserID   uint `gorm:"primaryKey" json:"user_id"`
	ThreadID uint `gorm:"primaryKey" json:"thread_id"`

	Following bool `gorm:"default:true;index" json:"following"`
	Muted     bool `gorm:"default:false" json:"muted"`

	NotificationLevel NotificationLevel `gorm:"type:varchar(20);default:'mentions'" json:"notification_level"`

	LastReadMessageID *uint `json:"last_read_message_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
