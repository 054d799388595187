package repository

import (
	"github.com/forumkit/chattrack/internal/models"
)

// MessageRepositoryInterface defines the contract for message store operations
type MessageRepositoryInterface interface {
	Create(message *models.Message) error
	FindByID(id uint) (*models.Message, error)
	FindByIDAny(id uint) (*models.Message, error)
	UpdateBody(id uint, body string, editorID uint) error
	Trash(id uint) error
	Restore(id uint) error
	LatestInChannel(channelID uint) (*models.Message, error)
	LatestInThread(threadID uint) (*models.Message, error)
	CountChannelAfter(channelID uint, afterID uint, includeReplies bool) (int64, error)
	CountThreadAfter(threadID uint, afterID uint) (int64, error)
	FirstThreadReplyAfter(threadID uint, afterID uint) (*models.Message, error)
	ListThreadReplies(threadID uint) ([]models.Message, error)
	MoveToChannel(ids []uint, destChannelID uint) error
	SetThread(ids []uint, threadID *uint) error
}

// ChannelRepositoryInterface defines the contract for channel store operations
type ChannelRepositoryInterface interface {
	FindByID(id uint) (*models.Channel, error)
	FindByIDs(ids []uint) ([]models.Channel, error)
	SetLastMessage(channelID uint, messageID *uint) error
}

// ThreadRepositoryInterface defines the contract for thread store operations
type ThreadRepositoryInterface interface {
	Create(thread *models.Thread) error
	FindByID(id uint) (*models.Thread, error)
	FindByOriginalMessage(messageID uint) (*models.Thread, error)
	SetLastMessage(threadID uint, messageID *uint) error
	SetRepliesCount(threadID uint, count int64) error
	Delete(id uint) error
}

// MembershipRepositoryInterface defines the contract for channel and thread
// membership operations, including the forward-only cursor.
type MembershipRepositoryInterface interface {
	GetChannelMembership(userID, channelID uint) (*models.ChannelMembership, error)
	GetOrCreateChannelMembership(userID, channelID uint) (*models.ChannelMembership, error)
	AdvanceChannelCursor(userID, channelID, messageID uint) (bool, error)
	ListFollowing(userID uint) ([]models.ChannelMembership, error)
	ListFollowingUserIDs(channelID uint) ([]uint, error)
	RewriteChannelCursors(channelID uint, fromIDs []uint, batchSize int) (int64, error)

	GetThreadMembership(userID, threadID uint) (*models.ThreadMembership, error)
	GetOrCreateThreadMembership(userID, threadID uint) (*models.ThreadMembership, error)
	AdvanceThreadCursor(userID, threadID, messageID uint) (bool, error)
	ListFollowedThreadIDs(userID, channelID uint) ([]uint, error)
	DeleteThreadMemberships(threadID uint) error
	RewriteThreadCursors(threadID uint, fromIDs []uint, batchSize int) (int64, error)
}

// MentionRepositoryInterface defines the contract for the persisted mention
// target set of a message.
type MentionRepositoryInterface interface {
	ReplaceForMessage(messageID uint, mentions []models.Mention) error
}

// NotificationRepositoryInterface defines the contract for the notification
// sink. CreateIfAbsent must be atomic with the duplicate check.
type NotificationRepositoryInterface interface {
	CreateIfAbsent(n *models.Notification) (bool, error)
	MarkReadUpTo(userID, channelID, messageID uint) (int64, error)
	MarkReadUpToInThread(userID, threadID, messageID uint) (int64, error)
	CountUnreadAfter(userID, channelID, afterID uint) (int64, error)
}

// UserRepositoryInterface defines the contract for user lookups
type UserRepositoryInterface interface {
	FindByID(id uint) (*models.User, error)
	FindByIDs(ids []uint) ([]models.User, error)
	FindByUsernames(usernames []string) ([]models.User, error)
	RelationshipsTargeting(userIDs []uint, targetID uint) ([]models.UserRelationship, error)
}

// GroupRepositoryInterface defines the contract for group lookups
type GroupRepositoryInterface interface {
	FindByNames(names []string) ([]models.Group, error)
	MemberIDs(groupID uint) ([]uint, error)
	MemberCount(groupID uint) (int64, error)
}

// Repos bundles every store so services can run a logical operation inside
// one transaction. Zero tx means Transaction just runs the closure, which
// is what the in-memory test doubles rely on.
type Repos struct {
	Messages      MessageRepositoryInterface
	Channels      ChannelRepositoryInterface
	Threads       ThreadRepositoryInterface
	Memberships   MembershipRepositoryInterface
	Mentions      MentionRepositoryInterface
	Notifications NotificationRepositoryInterface
	Users         UserRepositoryInterface
	Groups        GroupRepositoryInterface

	tx func(fn func(*Repos) error) error
}

// Transaction runs fn with every store bound to one database transaction.
// The whole closure commits or rolls back as a unit.
func (r *Repos) Transaction(fn func(*Repos) error) error {
	if r.tx == nil {
		return fn(r)
	}
	return r.tx(fn)
}
