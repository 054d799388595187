package models

import (
	"time"
)

type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username string `gorm:"size:60;uniqueIndex;not null" json:"username"`
	Bot      bool   `gorm:"default:false" json:"bot"`
	Staff    bool   `gorm:"default:false" json:"staff"`

	SuspendedTill *time.Time `json:"suspended_till"`
	LastSeenAt    *time.Time `gorm:"index" json:"last_seen_at"`

	// Notification preferences, mirrored from the host app.
	AllowChannelWideMentions bool `gorm:"default:true" json:"allow_channel_wide_mentions"`
	AllowDirectMessages      bool `gorm:"default:true" json:"allow_direct_messages"`
}

// Suspended reports whether the user is currently suspended.
func (u *User) Suspended(now time.Time) bool {
	return u.SuspendedTill != nil && u.SuspendedTill.After(now)
}

// UserRelationship records one user muting and/or ignoring another.
// A row only exists while at least one flag is set.
type UserRelationship struct {
	UserID   uint `gorm:"primaryKey" json:"user_id"`
	TargetID uint `gorm:"primaryKey" json:"target_id"`

	Muting   bool `gorm:"default:false" json:"muting"`
	Ignoring bool `gorm:"default:false" json:"ignoring"`

	CreatedAt time.Time `json:"created_at"`
}
