package repository

import (
	"github.com/forumkit/chattrack/internal/models"
	"gorm.io/gorm"
)

type ChannelRepository struct {
	db *gorm.DB
}

func NewChannelRepository(db *gorm.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func (r *ChannelRepository) FindByID(id uint) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.First(&channel, id).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *ChannelRepository) FindByIDs(ids []uint) ([]models.Channel, error) {
	var channels []models.Channel
	if len(ids) == 0 {
		return channels, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&channels).Error
	return channels, err
}

func (r *ChannelRepository) SetLastMessage(channelID uint, messageID *uint) error {
	return r.db.Model(&models.Channel{}).Where("id = ?", channelID).
		Update("last_message_id", messageID).Error
}
