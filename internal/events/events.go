package events

import (
	"fmt"
	"time"
)

// Publisher is the narrow sink the core publishes to. The host subscribes
// on its side of the bus; nothing here waits for delivery.
type Publisher interface {
	Publish(topic string, payload any) error
}

type NoticeKind string

const (
	NoticeGlobalMentionsDisabled NoticeKind = "global_mentions_disabled"
	NoticeGroupTooLarge          NoticeKind = "group_too_large"
	NoticeCannotSee              NoticeKind = "cannot_see"
	NoticeInvite                 NoticeKind = "invite"
)

// Notice is an ephemeral advisory scoped to the acting user's view of a
// channel. It is never persisted and never shown to mentioned users.
type Notice struct {
	EventID   string     `json:"event_id"`
	Kind      NoticeKind `json:"kind"`
	ChannelID uint       `json:"channel_id"`
	UserID    uint       `json:"user_id"`
	Usernames []string   `json:"usernames,omitempty"`
	Group     string     `json:"group,omitempty"`
}

// ChannelDelta is the per-channel slice of a tracking-state event. The
// field set is a stable contract with the host's sidebar badges.
type ChannelDelta struct {
	LastReadMessageID         *uint      `json:"last_read_message_id"`
	MentionCount              int64      `json:"mention_count"`
	UnreadCount               int64      `json:"unread_count"`
	WatchedThreadsUnreadCount int64      `json:"watched_threads_unread_count"`
	LastReplyCreatedAt        *time.Time `json:"last_reply_created_at"`
}

// TrackingState carries one user's cursor/unread deltas, keyed by channel
// id rendered as a string. Bulk operations publish exactly one of these.
type TrackingState struct {
	EventID  string                  `json:"event_id"`
	UserID   uint                    `json:"user_id"`
	Channels map[string]ChannelDelta `json:"channels"`
}

// ThreadCreated announces a thread synthesized by a bulk move.
type ThreadCreated struct {
	EventID           string `json:"event_id"`
	ThreadID          uint   `json:"thread_id"`
	ChannelID         uint   `json:"channel_id"`
	OriginalMessageID uint   `json:"original_message_id"`
}

func NoticeTopic(channelID, userID uint) string {
	return fmt.Sprintf("chattrack.notice.%d.%d", channelID, userID)
}

func TrackingTopic(userID uint) string {
	return fmt.Sprintf("chattrack.tracking.%d", userID)
}

func ThreadCreatedTopic(channelID uint) string {
	return fmt.Sprintf("chattrack.thread_created.%d", channelID)
}
