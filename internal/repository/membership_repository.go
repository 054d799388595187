package repository

import (
	"github.com/forumkit/chattrack/internal/models"
	"gorm.io/gorm"
)

type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) GetChannelMembership(userID, channelID uint) (*models.ChannelMembership, error) {
	var m models.ChannelMembership
	err := r.db.Where("user_id = ? AND channel_id = ?", userID, channelID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MembershipRepository) GetOrCreateChannelMembership(userID, channelID uint) (*models.ChannelMembership, error) {
	err := r.db.Exec(`
		INSERT INTO channel_memberships (user_id, channel_id, following, notification_level, created_at, updated_at)
		VALUES (?, ?, TRUE, 'mentions', NOW(), NOW())
		ON CONFLICT (user_id, channel_id) DO NOTHING
	`, userID, channelID).Error
	if err != nil {
		return nil, err
	}
	return r.GetChannelMembership(userID, channelID)
}

// AdvanceChannelCursor moves the cursor forward with a compare-and-set so
// concurrent advances can never let a smaller id overwrite a larger one.
// Returns false when the stored cursor was already past messageID.
func (r *MembershipRepository) AdvanceChannelCursor(userID, channelID, messageID uint) (bool, error) {
	res := r.db.Exec(`
		UPDATE channel_memberships
		SET last_read_message_id = ?, updated_at = NOW()
		WHERE user_id = ? AND channel_id = ?
		  AND (last_read_message_id IS NULL OR last_read_message_id <= ?)
	`, messageID, userID, channelID, messageID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *MembershipRepository) ListFollowing(userID uint) ([]models.ChannelMembership, error) {
	var memberships []models.ChannelMembership
	err := r.db.Where("user_id = ? AND following = ?", userID, true).Find(&memberships).Error
	return memberships, err
}

func (r *MembershipRepository) ListFollowingUserIDs(channelID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.ChannelMembership{}).
		Where("channel_id = ? AND following = ?", channelID, true).
		Pluck("user_id", &ids).Error
	return ids, err
}

// RewriteChannelCursors repoints every cursor currently sitting on one of
// fromIDs to the nearest earlier non-trashed message still in the channel,
// or null when none remain. One correlated update per batch, never one
// query per membership; callers loop until it reports zero rows.
func (r *MembershipRepository) RewriteChannelCursors(channelID uint, fromIDs []uint, batchSize int) (int64, error) {
	if len(fromIDs) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	res := r.db.Exec(`
		UPDATE channel_memberships cm
		SET last_read_message_id = (
			SELECT MAX(m.id) FROM messages m
			WHERE m.channel_id = cm.channel_id
			  AND m.id < cm.last_read_message_id
			  AND m.deleted_at IS NULL
		), updated_at = NOW()
		WHERE cm.channel_id = ?
		  AND cm.last_read_message_id IN ?
		  AND cm.user_id IN (
			SELECT user_id FROM channel_memberships
			WHERE channel_id = ? AND last_read_message_id IN ?
			LIMIT ?
		  )
	`, channelID, fromIDs, channelID, fromIDs, batchSize)
	return res.RowsAffected, res.Error
}

func (r *MembershipRepository) GetThreadMembership(userID, threadID uint) (*models.ThreadMembership, error) {
	var m models.ThreadMembership
	err := r.db.Where("user_id = ? AND thread_id = ?", userID, threadID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MembershipRepository) GetOrCreateThreadMembership(userID, threadID uint) (*models.ThreadMembership, error) {
	err := r.db.Exec(`
		INSERT INTO thread_memberships (user_id, thread_id, following, notification_level, created_at, updated_at)
		VALUES (?, ?, TRUE, 'mentions', NOW(), NOW())
		ON CONFLICT (user_id, thread_id) DO NOTHING
	`, userID, threadID).Error
	if err != nil {
		return nil, err
	}
	return r.GetThreadMembership(userID, threadID)
}

func (r *MembershipRepository) AdvanceThreadCursor(userID, threadID, messageID uint) (bool, error) {
	res := r.db.Exec(`
		UPDATE thread_memberships
		SET last_read_message_id = ?, updated_at = NOW()
		WHERE user_id = ? AND thread_id = ?
		  AND (last_read_message_id IS NULL OR last_read_message_id <= ?)
	`, messageID, userID, threadID, messageID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *MembershipRepository) ListFollowedThreadIDs(userID, channelID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.ThreadMembership{}).
		Joins("JOIN threads ON threads.id = thread_memberships.thread_id").
		Where("thread_memberships.user_id = ? AND thread_memberships.following = ? AND threads.channel_id = ?",
			userID, true, channelID).
		Pluck("thread_memberships.thread_id", &ids).Error
	return ids, err
}

func (r *MembershipRepository) DeleteThreadMemberships(threadID uint) error {
	return r.db.Where("thread_id = ?", threadID).Delete(&models.ThreadMembership{}).Error
}

func (r *MembershipRepository) RewriteThreadCursors(threadID uint, fromIDs []uint, batchSize int) (int64, error) {
	if len(fromIDs) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	res := r.db.Exec(`
		UPDATE thread_memberships tm
		SET last_read_message_id = (
			SELECT MAX(m.id) FROM messages m
			WHERE m.thread_id = tm.thread_id
			  AND m.id < tm.last_read_message_id
			  AND m.deleted_at IS NULL
		), updated_at = NOW()
		WHERE tm.thread_id = ?
		  AND tm.last_read_message_id IN ?
		  AND tm.user_id IN (
			SELECT user_id FROM thread_memberships
			WHERE thread_id = ? AND last_read_message_id IN ?
			LIMIT ?
		  )
	`, threadID, fromIDs, threadID, fromIDs, batchSize)
	return res.RowsAffected, res.Error
}
