package models

import (
	"time"
)

// Thread groups replies under an original channel message. RepliesCount
// caches the number of non-trashed replies; the original message is not a
// reply and is not counted.
type Thread struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ChannelID         uint `gorm:"not null;index" json:"channel_id"`
	OriginalMessageID uint `gorm:"not null;uniqueIndex" json:"original_message_id"`

	// Most recent non-trashed reply, nil when the thread has none.
	LastMessageID *uint `json:"last_message_id"`

	RepliesCount int64 `gorm:"default:0" json:"replies_count"`
}
