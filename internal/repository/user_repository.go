package repository

import (
	"github.com/forumkit/chattrack/internal/models"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByIDs(ids []uint) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *UserRepository) FindByUsernames(usernames []string) ([]models.User, error) {
	var users []models.User
	if len(usernames) == 0 {
		return users, nil
	}
	err := r.db.Where("username IN ?", usernames).Find(&users).Error
	return users, err
}

// RelationshipsTargeting returns mute/ignore rows held by any of userIDs
// against targetID, one batch lookup for the reachability filter.
func (r *UserRepository) RelationshipsTargeting(userIDs []uint, targetID uint) ([]models.UserRelationship, error) {
	var rels []models.UserRelationship
	if len(userIDs) == 0 {
		return rels, nil
	}
	err := r.db.Where("user_id IN ? AND target_id = ?", userIDs, targetID).Find(&rels).Error
	return rels, err
}
