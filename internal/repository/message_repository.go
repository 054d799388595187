package repository

import (
	"errors"

	"github.com/forumkit/chattrack/internal/models"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *models.Message) error {
	return r.db.Create(message).Error
}

func (r *MessageRepository) FindByID(id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// FindByIDAny also returns trashed messages.
func (r *MessageRepository) FindByIDAny(id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Unscoped().First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepository) UpdateBody(id uint, body string, editorID uint) error {
	return r.db.Model(&models.Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"body":           body,
			"last_editor_id": editorID,
		}).Error
}

func (r *MessageRepository) Trash(id uint) error {
	res := r.db.Delete(&models.Message{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *MessageRepository) Restore(id uint) error {
	return r.db.Unscoped().Model(&models.Message{}).Where("id = ?", id).
		Update("deleted_at", nil).Error
}

// LatestInChannel returns the most recent non-trashed channel-visible
// message (thread replies excluded), or nil when the channel is empty.
func (r *MessageRepository) LatestInChannel(channelID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("channel_id = ? AND thread_id IS NULL", channelID).
		Order("id DESC").
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepository) LatestInThread(threadID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("thread_id = ?", threadID).
		Order("id DESC").
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// CountChannelAfter counts non-trashed messages newer than afterID. Thread
// replies are excluded unless includeReplies is set (channels with
// threading disabled degrade replies to ordinary messages).
func (r *MessageRepository) CountChannelAfter(channelID uint, afterID uint, includeReplies bool) (int64, error) {
	q := r.db.Model(&models.Message{}).
		Where("channel_id = ? AND id > ?", channelID, afterID)
	if !includeReplies {
		q = q.Where("thread_id IS NULL")
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

func (r *MessageRepository) CountThreadAfter(threadID uint, afterID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Message{}).
		Where("thread_id = ? AND id > ?", threadID, afterID).
		Count(&count).Error
	return count, err
}

// FirstThreadReplyAfter returns the oldest non-trashed reply newer than
// afterID, or nil when the thread has no unread replies.
func (r *MessageRepository) FirstThreadReplyAfter(threadID uint, afterID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("thread_id = ? AND id > ?", threadID, afterID).
		Order("id ASC").
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListThreadReplies returns the thread's non-trashed replies in id order.
func (r *MessageRepository) ListThreadReplies(threadID uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where("thread_id = ?", threadID).
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// MoveToChannel reassigns messages to another channel and severs their
// thread association in the same statement.
func (r *MessageRepository) MoveToChannel(ids []uint, destChannelID uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.Message{}).Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"channel_id": destChannelID,
			"thread_id":  nil,
		}).Error
}

func (r *MessageRepository) SetThread(ids []uint, threadID *uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.Message{}).Where("id IN ?", ids).
		Update("thread_id", threadID).Error
}
