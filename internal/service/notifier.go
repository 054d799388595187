package service

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forumkit/chattrack/internal/events"
	"github.com/forumkit/chattrack/internal/models"
	"github.com/forumkit/chattrack/internal/repository"
)

// Notifier turns a mention resolution into side effects: the persisted
// mention target set, at most one notification per (message, user), and
// fire-and-forget advisory notices back to the sender.
type Notifier struct {
	publisher events.Publisher
}

func NewNotifier(publisher events.Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

type notificationData struct {
	Class       models.MentionClass `json:"class"`
	MentionedBy string              `json:"mentioned_by"`
	Group       string              `json:"group,omitempty"`
}

type target struct {
	userID  uint
	class   models.MentionClass
	groupID *uint
	group   string
}

// Apply persists the target set and creates missing notifications, all
// through the store handle the caller passes, so a service transaction
// covers these writes too. It is the single path for both message creation
// and edits: the notification store's conflict-free insert makes re-runs
// idempotent, and pruning stale mention rows keeps future edits from
// seeing removed targets. Sent notifications are never deleted.
func (n *Notifier) Apply(
	repos *repository.Repos,
	msg *models.Message,
	channel *models.Channel,
	sender *models.User,
	res *MentionResolution,
) error {
	targets := flatten(res)

	mentions := make([]models.Mention, 0, len(targets))
	for _, t := range targets {
		mentions = append(mentions, models.Mention{
			MessageID: msg.ID,
			UserID:    t.userID,
			Class:     t.class,
			GroupID:   t.groupID,
		})
	}
	if err := repos.Mentions.ReplaceForMessage(msg.ID, mentions); err != nil {
		return err
	}

	for _, t := range targets {
		if t.userID == sender.ID {
			// A self-mention keeps its mention record but never
			// notifies.
			continue
		}
		suppressed, err := n.suppressed(repos, t.userID, msg.ChannelID)
		if err != nil {
			return err
		}
		if suppressed {
			continue
		}
		data, err := json.Marshal(notificationData{
			Class:       t.class,
			MentionedBy: sender.Username,
			Group:       t.group,
		})
		if err != nil {
			return err
		}
		_, err = repos.Notifications.CreateIfAbsent(&models.Notification{
			MessageID: msg.ID,
			UserID:    t.userID,
			ChannelID: msg.ChannelID,
			Type:      models.NotificationMention,
			Data:      string(data),
		})
		if err != nil {
			return err
		}
	}

	n.publishAdvisories(repos, channel, sender, res)
	return nil
}

// suppressed reports whether a target's channel membership swallows the
// notification. The mention row is kept either way.
func (n *Notifier) suppressed(repos *repository.Repos, userID, channelID uint) (bool, error) {
	membership, err := repos.Memberships.GetChannelMembership(userID, channelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return membership.Muted || membership.NotificationLevel == models.NotifyNever, nil
}

func flatten(res *MentionResolution) []target {
	var out []target
	for _, id := range res.Direct {
		out = append(out, target{userID: id, class: models.MentionDirect})
	}
	for i := range res.Groups {
		g := res.Groups[i]
		gid := g.GroupID
		for _, id := range g.UserIDs {
			out = append(out, target{userID: id, class: models.MentionGroup, groupID: &gid, group: g.Name})
		}
	}
	for _, id := range res.Here {
		out = append(out, target{userID: id, class: models.MentionHere})
	}
	for _, id := range res.Global {
		out = append(out, target{userID: id, class: models.MentionAll})
	}
	return out
}

// publishAdvisories is best effort: notices are ephemeral and losing one
// never fails the surrounding operation.
func (n *Notifier) publishAdvisories(repos *repository.Repos, channel *models.Channel, sender *models.User, res *MentionResolution) {
	if n.publisher == nil {
		return
	}
	topic := events.NoticeTopic(channel.ID, sender.ID)

	for _, adv := range res.Advisories {
		_ = n.publisher.Publish(topic, events.Notice{
			EventID:   uuid.NewString(),
			Kind:      adv.Kind,
			ChannelID: channel.ID,
			UserID:    sender.ID,
			Usernames: adv.Usernames,
			Group:     adv.Group,
		})
	}

	if len(res.InviteUserIDs) > 0 {
		usernames, err := invitedUsernames(repos, res.InviteUserIDs)
		if err != nil {
			return
		}
		_ = n.publisher.Publish(topic, events.Notice{
			EventID:   uuid.NewString(),
			Kind:      events.NoticeInvite,
			ChannelID: channel.ID,
			UserID:    sender.ID,
			Usernames: usernames,
		})
	}
}

func invitedUsernames(repos *repository.Repos, ids []uint) ([]string, error) {
	users, err := repos.Users.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Username)
	}
	return out, nil
}
