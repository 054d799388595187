package models

import (
	"time"
)

type MentionClass string

const (
	MentionDirect MentionClass = "direct"
	MentionGroup  MentionClass = "group"
	MentionHere   MentionClass = "here"
	MentionAll    MentionClass = "all"
)

// Mention is the persisted target set of a message: one row per
// (message, user) plus the group the target was reached through, if any.
// Edits prune rows whose target disappeared; notifications already sent
// for pruned rows are kept.
type Mention struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	MessageID uint         `gorm:"not null;uniqueIndex:idx_mention_target" json:"message_id"`
	UserID    uint         `gorm:"not null;uniqueIndex:idx_mention_target;index" json:"user_id"`
	Class     MentionClass `gorm:"type:varchar(10);not null" json:"class"`
	GroupID   *uint        `json:"group_id"`
}

type NotificationType string

const (
	NotificationMention NotificationType = "mention"
)

// Notification is one delivered notification. The (message, user) pair is
// unique: re-resolving a message's mentions after an edit can never create
// a second notification for the same recipient.
type Notification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	MessageID uint             `gorm:"not null;uniqueIndex:idx_notification_target" json:"message_id"`
	UserID    uint             `gorm:"not null;uniqueIndex:idx_notification_target;index" json:"user_id"`
	ChannelID uint             `gorm:"not null;index" json:"channel_id"`
	Type      NotificationType `gorm:"type:varchar(20);default:'mention'" json:"type"`

	// Data carries mention-class metadata and display hints, JSON-encoded.
	Data string `gorm:"type:text" json:"data"`

	Read bool `gorm:"default:false;index" json:"read"`
}
