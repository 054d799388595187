package repository

import (
	"github.com/forumkit/chattrack/internal/models"
	"gorm.io/gorm"
)

type MentionRepository struct {
	db *gorm.DB
}

func NewMentionRepository(db *gorm.DB) *MentionRepository {
	return &MentionRepository{db: db}
}

// ReplaceForMessage reconciles the persisted target set with the result of
// the latest resolution: rows for targets no longer present are pruned,
// surviving rows keep their identity, new targets are inserted. Already
// delivered notifications are untouched.
func (r *MentionRepository) ReplaceForMessage(messageID uint, mentions []models.Mention) error {
	keep := make([]uint, 0, len(mentions))
	for _, m := range mentions {
		keep = append(keep, m.UserID)
	}

	q := r.db.Where("message_id = ?", messageID)
	if len(keep) > 0 {
		q = q.Where("user_id NOT IN ?", keep)
	}
	if err := q.Delete(&models.Mention{}).Error; err != nil {
		return err
	}

	for i := range mentions {
		mentions[i].MessageID = messageID
		err := r.db.Exec(`
			INSERT INTO mentions (message_id, user_id, class, group_id, created_at)
			VALUES (?, ?, ?, ?, NOW())
			ON CONFLICT (message_id, user_id) DO UPDATE
			SET class = EXCLUDED.class, group_id = EXCLUDED.group_id
		`, mentions[i].MessageID, mentions[i].UserID, mentions[i].Class, mentions[i].GroupID).Error
		if err != nil {
			return err
		}
	}
	return nil
}
