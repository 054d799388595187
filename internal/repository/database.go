package repository

import (
	"fmt"
	"os"

	"github.com/forumkit/chattrack/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func InitDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.UserRelationship{},
		&models.Group{},
		&models.GroupMember{},
		&models.Channel{},
		&models.Thread{},
		&models.Message{},
		&models.ChannelMembership{},
		&models.ThreadMembership{},
		&models.Mention{},
		&models.Notification{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

// NewRepos builds the full store set over one gorm handle. Transaction
// rebinds every store to the transactional handle for the closure.
func NewRepos(db *gorm.DB) *Repos {
	return reposFor(db)
}

func reposFor(db *gorm.DB) *Repos {
	r := &Repos{
		Messages:      NewMessageRepository(db),
		Channels:      NewChannelRepository(db),
		Threads:       NewThreadRepository(db),
		Memberships:   NewMembershipRepository(db),
		Mentions:      NewMentionRepository(db),
		Notifications: NewNotificationRepository(db),
		Users:         NewUserRepository(db),
		Groups:        NewGroupRepository(db),
	}
	r.tx = func(fn func(*Repos) error) error {
		return db.Transaction(func(tx *gorm.DB) error {
			inner := reposFor(tx)
			inner.tx = nil
			return fn(inner)
		})
	}
	return r
}
