package repository

import (
	"github.com/forumkit/chattrack/internal/models"
	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateIfAbsent inserts a notification unless one already exists for the
// (message, user) pair. The conflict clause makes the existence check and
// the insert one atomic statement, so concurrent edits cannot double-send.
func (r *NotificationRepository) CreateIfAbsent(n *models.Notification) (bool, error) {
	res := r.db.Exec(`
		INSERT INTO notifications (message_id, user_id, channel_id, type, data, read, created_at)
		VALUES (?, ?, ?, ?, ?, FALSE, NOW())
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, n.MessageID, n.UserID, n.ChannelID, n.Type, n.Data)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkReadUpTo marks a user's unread notifications in a channel as read
// for every message up to and including messageID.
func (r *NotificationRepository) MarkReadUpTo(userID, channelID, messageID uint) (int64, error) {
	res := r.db.Model(&models.Notification{}).
		Where("user_id = ? AND channel_id = ? AND message_id <= ? AND read = ?",
			userID, channelID, messageID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

// MarkReadUpToInThread is the thread-scoped counterpart: only
// notifications for messages inside the thread are covered, so advancing a
// thread cursor never touches channel-level mentions.
func (r *NotificationRepository) MarkReadUpToInThread(userID, threadID, messageID uint) (int64, error) {
	res := r.db.Exec(`
		UPDATE notifications SET read = TRUE
		WHERE user_id = ? AND read = FALSE AND message_id <= ?
		  AND message_id IN (SELECT id FROM messages WHERE thread_id = ?)
	`, userID, messageID, threadID)
	return res.RowsAffected, res.Error
}

func (r *NotificationRepository) CountUnreadAfter(userID, channelID, afterID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).
		Where("user_id = ? AND channel_id = ? AND message_id > ? AND read = ?",
			userID, channelID, afterID, false).
		Count(&count).Error
	return count, err
}
