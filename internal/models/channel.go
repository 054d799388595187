package models

import (
	"time"

	"gorm.io/gorm"
)

type ChannelStatus string

const (
	ChannelOpen     ChannelStatus = "open"
	ChannelClosed   ChannelStatus = "closed"
	ChannelReadOnly ChannelStatus = "read_only"
	ChannelArchived ChannelStatus = "archived"
)

type Channel struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name   string        `gorm:"size:100;not null" json:"name"`
	Status ChannelStatus `gorm:"type:varchar(20);default:'open';index" json:"status"`

	// Direct-message channels relax group-mention membership rules.
	DirectMessage bool `gorm:"default:false" json:"direct_message"`

	ThreadingEnabled         bool `gorm:"default:false" json:"threading_enabled"`
	AllowChannelWideMentions bool `gorm:"default:true" json:"allow_channel_wide_mentions"`

	// Most recent non-trashed message in the channel, nil when empty.
	LastMessageID *uint `json:"last_message_id"`
}

// AcceptsMessages reports whether new messages may be posted.
func (c *Channel) AcceptsMessages() bool {
	return c.Status == ChannelOpen
}
