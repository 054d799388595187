package repository

import (
	"errors"

	"github.com/forumkit/chattrack/internal/models"
	"gorm.io/gorm"
)

type ThreadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) Create(thread *models.Thread) error {
	return r.db.Create(thread).Error
}

func (r *ThreadRepository) FindByID(id uint) (*models.Thread, error) {
	var thread models.Thread
	err := r.db.First(&thread, id).Error
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *ThreadRepository) FindByOriginalMessage(messageID uint) (*models.Thread, error) {
	var thread models.Thread
	err := r.db.Where("original_message_id = ?", messageID).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *ThreadRepository) SetLastMessage(threadID uint, messageID *uint) error {
	return r.db.Model(&models.Thread{}).Where("id = ?", threadID).
		Update("last_message_id", messageID).Error
}

func (r *ThreadRepository) SetRepliesCount(threadID uint, count int64) error {
	return r.db.Model(&models.Thread{}).Where("id = ?", threadID).
		Update("replies_count", count).Error
}

func (r *ThreadRepository) Delete(id uint) error {
	return r.db.Delete(&models.Thread{}, id).Error
}
