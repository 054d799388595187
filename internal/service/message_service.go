package service

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forumkit/chattrack/internal/apperr"
	"github.com/forumkit/chattrack/internal/config"
	"github.com/forumkit/chattrack/internal/events"
	"github.com/forumkit/chattrack/internal/models"
	"github.com/forumkit/chattrack/internal/repository"
)

// MessageService orchestrates the message lifecycle: every create, edit,
// trash, restore and bulk move flows through here and into the resolver,
// the notifier and the tracker. Each public method is one all-or-nothing
// logical unit.
type MessageService struct {
	repos     *repository.Repos
	resolver  *MentionResolver
	notifier  *Notifier
	tracker   *Tracker
	publisher events.Publisher
	cfg       config.Mentions
}

func NewMessageService(
	repos *repository.Repos,
	resolver *MentionResolver,
	notifier *Notifier,
	tracker *Tracker,
	publisher events.Publisher,
	cfg config.Mentions,
) *MessageService {
	return &MessageService{
		repos:     repos,
		resolver:  resolver,
		notifier:  notifier,
		tracker:   tracker,
		publisher: publisher,
		cfg:       cfg,
	}
}

type CreateMessageInput struct {
	ChannelID uint   `json:"channel_id"`
	ThreadID  *uint  `json:"thread_id"`
	Body      string `json:"body"`
}

func (s *MessageService) Create(authorID uint, input CreateMessageInput) (*models.Message, error) {
	if input.Body == "" {
		return nil, apperr.InvalidArg("message body is required")
	}

	channel, err := s.repos.Channels.FindByID(input.ChannelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("channel not found")
	}
	if err != nil {
		return nil, err
	}

	author, err := s.repos.Users.FindByID(authorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	if !channel.AcceptsMessages() && !author.Bot && !author.Staff {
		return nil, apperr.Forbidden("channel does not accept messages")
	}

	var thread *models.Thread
	if input.ThreadID != nil {
		if !channel.ThreadingEnabled {
			return nil, apperr.InvalidArg("channel has threading disabled")
		}
		thread, err = s.repos.Threads.FindByID(*input.ThreadID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("thread not found")
		}
		if err != nil {
			return nil, err
		}
		if thread.ChannelID != channel.ID {
			return nil, apperr.InvalidArg("thread does not belong to channel")
		}
	}

	msg := &models.Message{
		ChannelID: channel.ID,
		ThreadID:  input.ThreadID,
		AuthorID:  authorID,
		Body:      input.Body,
	}

	err = s.repos.Transaction(func(r *repository.Repos) error {
		if err := r.Messages.Create(msg); err != nil {
			return err
		}
		// Posting implies following.
		if _, err := r.Memberships.GetOrCreateChannelMembership(authorID, channel.ID); err != nil {
			return err
		}

		if thread != nil {
			id := msg.ID
			if err := r.Threads.SetLastMessage(thread.ID, &id); err != nil {
				return err
			}
			count, err := r.Messages.CountThreadAfter(thread.ID, 0)
			if err != nil {
				return err
			}
			if err := r.Threads.SetRepliesCount(thread.ID, count); err != nil {
				return err
			}
			// Posting in a thread lazily creates the thread membership.
			if _, err := r.Memberships.GetOrCreateThreadMembership(authorID, thread.ID); err != nil {
				return err
			}
			if _, err := r.Memberships.AdvanceThreadCursor(authorID, thread.ID, msg.ID); err != nil {
				return err
			}
		} else {
			id := msg.ID
			if err := r.Channels.SetLastMessage(channel.ID, &id); err != nil {
				return err
			}
			// The author has read their own message.
			if _, err := r.Memberships.AdvanceChannelCursor(authorID, channel.ID, msg.ID); err != nil {
				return err
			}
		}

		res, err := s.resolver.Resolve(r, msg, channel, author, ParseMentions(msg.Body), s.cfg)
		if err != nil {
			return err
		}
		return s.notifier.Apply(r, msg, channel, author, res)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Edit updates the body and re-resolves mentions from scratch. Targets
// introduced by the edit get notifications; targets removed by it are
// pruned from the persisted mention set, while notifications already sent
// stay delivered.
func (s *MessageService) Edit(editorID, messageID uint, body string) (*models.Message, error) {
	if body == "" {
		return nil, apperr.InvalidArg("message body is required")
	}

	msg, err := s.repos.Messages.FindByID(messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, err
	}

	editor, err := s.repos.Users.FindByID(editorID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != editorID && !editor.Staff {
		return nil, apperr.Forbidden("cannot edit another user's message")
	}

	channel, err := s.repos.Channels.FindByID(msg.ChannelID)
	if err != nil {
		return nil, err
	}
	author, err := s.repos.Users.FindByID(msg.AuthorID)
	if err != nil {
		return nil, err
	}

	err = s.repos.Transaction(func(r *repository.Repos) error {
		if err := r.Messages.UpdateBody(msg.ID, body, editorID); err != nil {
			return err
		}
		msg.Body = body
		msg.LastEditorID = &editorID

		res, err := s.resolver.Resolve(r, msg, channel, author, ParseMentions(body), s.cfg)
		if err != nil {
			return err
		}
		return s.notifier.Apply(r, msg, channel, author, res)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Trash soft-deletes a message, repairs last-message pointers and reply
// counts, and cascades the cursor rewrite. Trashing an already-trashed
// message is a no-op.
func (s *MessageService) Trash(actorID, messageID uint) error {
	msg, err := s.repos.Messages.FindByIDAny(messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("message not found")
	}
	if err != nil {
		return err
	}
	if msg.Trashed() {
		return nil
	}

	actor, err := s.repos.Users.FindByID(actorID)
	if err != nil {
		return err
	}
	if msg.AuthorID != actorID && !actor.Staff {
		return apperr.Forbidden("cannot delete another user's message")
	}

	err = s.repos.Transaction(func(r *repository.Repos) error {
		if err := r.Messages.Trash(msg.ID); err != nil {
			return err
		}
		return s.repairAfterRemoval(r, msg)
	})
	if err != nil {
		return err
	}

	return s.tracker.CascadeTrashed(msg.ChannelID, msg.ThreadID, msg.ID)
}

// Restore undoes a trash and recomputes the pointers the trash rewrote.
// Restoring a message you do not own requires staff.
func (s *MessageService) Restore(actorID, messageID uint) error {
	msg, err := s.repos.Messages.FindByIDAny(messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("message not found")
	}
	if err != nil {
		return err
	}
	if !msg.Trashed() {
		return nil
	}

	actor, err := s.repos.Users.FindByID(actorID)
	if err != nil {
		return err
	}
	if msg.AuthorID != actorID && !actor.Staff {
		return apperr.Forbidden("cannot restore another user's message")
	}

	return s.repos.Transaction(func(r *repository.Repos) error {
		if err := r.Messages.Restore(msg.ID); err != nil {
			return err
		}
		return s.repairAfterRemoval(r, msg)
	})
}

// repairAfterRemoval recomputes the affected scope's last-message pointer
// and, for replies, the thread's reply count. Valid after both trash and
// restore since it derives everything from current store state.
func (s *MessageService) repairAfterRemoval(r *repository.Repos, msg *models.Message) error {
	if msg.ThreadID != nil {
		latest, err := r.Messages.LatestInThread(*msg.ThreadID)
		if err != nil {
			return err
		}
		var lastID *uint
		if latest != nil {
			id := latest.ID
			lastID = &id
		}
		if err := r.Threads.SetLastMessage(*msg.ThreadID, lastID); err != nil {
			return err
		}
		count, err := r.Messages.CountThreadAfter(*msg.ThreadID, 0)
		if err != nil {
			return err
		}
		return r.Threads.SetRepliesCount(*msg.ThreadID, count)
	}

	latest, err := r.Messages.LatestInChannel(msg.ChannelID)
	if err != nil {
		return err
	}
	var lastID *uint
	if latest != nil {
		id := latest.ID
		lastID = &id
	}
	return r.Channels.SetLastMessage(msg.ChannelID, lastID)
}

type MoveMessagesInput struct {
	SourceChannelID uint   `json:"source_channel_id"`
	DestChannelID   uint   `json:"dest_channel_id"`
	MessageIDs      []uint `json:"message_ids"`
}

// MoveMessages relocates messages between channels. Thread associations on
// moved messages are severed; when a thread's original message moves away,
// a new thread is synthesized in the source channel from the remaining
// replies, preserving order. Cursors pointing at moved messages are
// rewritten to the nearest remaining message in the source channel.
func (s *MessageService) MoveMessages(actorID uint, input MoveMessagesInput) error {
	if len(input.MessageIDs) == 0 {
		return apperr.InvalidArg("no messages to move")
	}
	if input.SourceChannelID == input.DestChannelID {
		return apperr.InvalidArg("source and destination channels are the same")
	}

	actor, err := s.repos.Users.FindByID(actorID)
	if err != nil {
		return err
	}
	if !actor.Staff {
		return apperr.Forbidden("moving messages requires staff")
	}

	if _, err := s.repos.Channels.FindByID(input.DestChannelID); errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("destination channel not found")
	} else if err != nil {
		return err
	}

	moved := make(map[uint]bool, len(input.MessageIDs))
	var affectedThreads []uint
	for _, id := range input.MessageIDs {
		msg, err := s.repos.Messages.FindByIDAny(id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("message not found")
		}
		if err != nil {
			return err
		}
		if msg.ChannelID != input.SourceChannelID {
			return apperr.InvalidArg("message does not belong to source channel")
		}
		moved[id] = true
		if msg.ThreadID != nil {
			affectedThreads = append(affectedThreads, *msg.ThreadID)
		}
	}

	err = s.repos.Transaction(func(r *repository.Repos) error {
		// Threads losing their original message get resynthesized from
		// whatever replies stay behind.
		for _, id := range input.MessageIDs {
			thread, err := r.Threads.FindByOriginalMessage(id)
			if err != nil {
				return err
			}
			if thread == nil {
				continue
			}
			if err := s.resynthesizeThread(r, thread, moved); err != nil {
				return err
			}
		}

		if err := r.Messages.MoveToChannel(input.MessageIDs, input.DestChannelID); err != nil {
			return err
		}

		// Threads that merely lost some replies need fresh counts.
		for _, threadID := range affectedThreads {
			if _, err := r.Threads.FindByID(threadID); errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			} else if err != nil {
				return err
			}
			count, err := r.Messages.CountThreadAfter(threadID, 0)
			if err != nil {
				return err
			}
			if err := r.Threads.SetRepliesCount(threadID, count); err != nil {
				return err
			}
			latest, err := r.Messages.LatestInThread(threadID)
			if err != nil {
				return err
			}
			var lastID *uint
			if latest != nil {
				id := latest.ID
				lastID = &id
			}
			if err := r.Threads.SetLastMessage(threadID, lastID); err != nil {
				return err
			}
		}

		for _, channelID := range []uint{input.SourceChannelID, input.DestChannelID} {
			latest, err := r.Messages.LatestInChannel(channelID)
			if err != nil {
				return err
			}
			var lastID *uint
			if latest != nil {
				id := latest.ID
				lastID = &id
			}
			if err := r.Channels.SetLastMessage(channelID, lastID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.tracker.CascadeMoved(input.SourceChannelID, input.MessageIDs)
}

func (s *MessageService) resynthesizeThread(r *repository.Repos, thread *models.Thread, moved map[uint]bool) error {
	replies, err := r.Messages.ListThreadReplies(thread.ID)
	if err != nil {
		return err
	}
	var remaining []models.Message
	for _, reply := range replies {
		if !moved[reply.ID] {
			remaining = append(remaining, reply)
		}
	}

	if err := r.Memberships.DeleteThreadMemberships(thread.ID); err != nil {
		return err
	}
	if err := r.Threads.Delete(thread.ID); err != nil {
		return err
	}
	if len(remaining) == 0 {
		return nil
	}

	// The earliest remaining reply becomes the new original; the rest
	// keep their order under the new thread.
	original := remaining[0]
	newThread := &models.Thread{
		ChannelID:         thread.ChannelID,
		OriginalMessageID: original.ID,
	}
	if err := r.Threads.Create(newThread); err != nil {
		return err
	}
	if err := r.Messages.SetThread([]uint{original.ID}, nil); err != nil {
		return err
	}
	rest := make([]uint, 0, len(remaining)-1)
	for _, reply := range remaining[1:] {
		rest = append(rest, reply.ID)
	}
	if err := r.Messages.SetThread(rest, &newThread.ID); err != nil {
		return err
	}
	if err := r.Threads.SetRepliesCount(newThread.ID, int64(len(rest))); err != nil {
		return err
	}
	var lastID *uint
	if len(remaining) > 1 {
		id := remaining[len(remaining)-1].ID
		lastID = &id
	}
	if err := r.Threads.SetLastMessage(newThread.ID, lastID); err != nil {
		return err
	}

	if s.publisher != nil {
		_ = s.publisher.Publish(events.ThreadCreatedTopic(thread.ChannelID), events.ThreadCreated{
			EventID:           uuid.NewString(),
			ThreadID:          newThread.ID,
			ChannelID:         thread.ChannelID,
			OriginalMessageID: original.ID,
		})
	}
	return nil
}
