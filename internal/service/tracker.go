package service

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forumkit/chattrack/internal/apperr"
	"github.com/forumkit/chattrack/internal/events"
	"github.com/forumkit/chattrack/internal/repository"
)

// Tracker owns the forward-only read cursors and the unread aggregates
// derived from them. Aggregates are always recomputed from the message and
// membership stores; nothing here caches counts between calls.
type Tracker struct {
	repos     *repository.Repos
	publisher events.Publisher
}

func NewTracker(repos *repository.Repos, publisher events.Publisher) *Tracker {
	return &Tracker{repos: repos, publisher: publisher}
}

// TrackingSnapshot is the derived unread state for one (user, channel)
// pair. It is computed on demand and never persisted.
type TrackingSnapshot struct {
	ChannelID                 uint       `json:"channel_id"`
	LastReadMessageID         *uint      `json:"last_read_message_id"`
	UnreadCount               int64      `json:"unread_count"`
	MentionCount              int64      `json:"mention_count"`
	WatchedThreadsUnreadCount int64      `json:"watched_threads_unread_count"`
	LastReplyCreatedAt        *time.Time `json:"last_reply_created_at"`
}

// ThreadUnreadInfo badges one thread: when it has unread replies, the
// creation time of the earliest one.
type ThreadUnreadInfo struct {
	ThreadID            uint      `json:"thread_id"`
	EarliestUnreadReply time.Time `json:"earliest_unread_reply"`
}

// AdvanceChannelCursor moves a user's channel cursor to messageID. The
// cursor only moves forward: an id older than the current cursor is a
// validation rejection, the same id is a no-op. Unread notifications up to
// the id are marked read alongside.
func (t *Tracker) AdvanceChannelCursor(userID, channelID, messageID uint) (*TrackingSnapshot, error) {
	msg, err := t.repos.Messages.FindByIDAny(messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, err
	}
	if msg.ChannelID != channelID {
		return nil, apperr.InvalidArg("message does not belong to channel")
	}
	if msg.Trashed() {
		user, err := t.repos.Users.FindByID(userID)
		if err != nil {
			return nil, err
		}
		if msg.AuthorID != userID && !user.Staff {
			return nil, apperr.NotFound("message not found")
		}
	}

	membership, err := t.repos.Memberships.GetOrCreateChannelMembership(userID, channelID)
	if err != nil {
		return nil, err
	}
	if membership.LastReadMessageID != nil && *membership.LastReadMessageID > messageID {
		return nil, apperr.InvalidArg("read cursor cannot move backwards")
	}

	err = t.repos.Transaction(func(r *repository.Repos) error {
		// Compare-and-set: a concurrent advance past messageID makes
		// this a no-op, never a rewind.
		if _, err := r.Memberships.AdvanceChannelCursor(userID, channelID, messageID); err != nil {
			return err
		}
		_, err := r.Notifications.MarkReadUpTo(userID, channelID, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}

	snapshot, err := t.ChannelUnread(userID, channelID)
	if err != nil {
		return nil, err
	}
	t.publishTracking(userID, []TrackingSnapshot{*snapshot})
	return snapshot, nil
}

// AdvanceThreadCursor is the thread-scoped counterpart. It creates the
// thread membership lazily, which is how "reading a thread" first
// materializes one.
func (t *Tracker) AdvanceThreadCursor(userID, threadID, messageID uint) error {
	if _, err := t.repos.Threads.FindByID(threadID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("thread not found")
		}
		return err
	}

	msg, err := t.repos.Messages.FindByIDAny(messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("message not found")
	}
	if err != nil {
		return err
	}
	if msg.ThreadID == nil || *msg.ThreadID != threadID {
		return apperr.InvalidArg("message does not belong to thread")
	}
	if msg.Trashed() {
		user, err := t.repos.Users.FindByID(userID)
		if err != nil {
			return err
		}
		if msg.AuthorID != userID && !user.Staff {
			return apperr.NotFound("message not found")
		}
	}

	membership, err := t.repos.Memberships.GetOrCreateThreadMembership(userID, threadID)
	if err != nil {
		return err
	}
	if membership.LastReadMessageID != nil && *membership.LastReadMessageID > messageID {
		return apperr.InvalidArg("read cursor cannot move backwards")
	}

	return t.repos.Transaction(func(r *repository.Repos) error {
		if _, err := r.Memberships.AdvanceThreadCursor(userID, threadID, messageID); err != nil {
			return err
		}
		// Only notifications inside the thread are covered; the channel
		// cursor has not moved, so channel-level mentions stay unread.
		_, err := r.Notifications.MarkReadUpToInThread(userID, threadID, messageID)
		return err
	})
}

// MarkAllRead advances the cursor to the channel's last message for every
// channel the user follows, skipping empty channels, and publishes one
// aggregated tracking event covering all of them.
func (t *Tracker) MarkAllRead(userID uint) ([]TrackingSnapshot, error) {
	memberships, err := t.repos.Memberships.ListFollowing(userID)
	if err != nil {
		return nil, err
	}
	channelIDs := make([]uint, 0, len(memberships))
	for _, m := range memberships {
		channelIDs = append(channelIDs, m.ChannelID)
	}
	channels, err := t.repos.Channels.FindByIDs(channelIDs)
	if err != nil {
		return nil, err
	}

	var advanced []uint
	err = t.repos.Transaction(func(r *repository.Repos) error {
		for _, ch := range channels {
			if ch.LastMessageID == nil {
				continue
			}
			if _, err := r.Memberships.AdvanceChannelCursor(userID, ch.ID, *ch.LastMessageID); err != nil {
				return err
			}
			if _, err := r.Notifications.MarkReadUpTo(userID, ch.ID, *ch.LastMessageID); err != nil {
				return err
			}
			advanced = append(advanced, ch.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	snapshots := make([]TrackingSnapshot, 0, len(advanced))
	for _, channelID := range advanced {
		snapshot, err := t.ChannelUnread(userID, channelID)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	t.publishTracking(userID, snapshots)
	return snapshots, nil
}

// ChannelUnread recomputes the tracking snapshot for one channel. Thread
// originals count toward the channel, replies toward their thread only,
// unless the channel has threading disabled and replies degrade to plain
// channel messages.
func (t *Tracker) ChannelUnread(userID, channelID uint) (*TrackingSnapshot, error) {
	channel, err := t.repos.Channels.FindByID(channelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("channel not found")
	}
	if err != nil {
		return nil, err
	}

	var cursor *uint
	membership, err := t.repos.Memberships.GetChannelMembership(userID, channelID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if membership != nil {
		cursor = membership.LastReadMessageID
	}
	after := uint(0)
	if cursor != nil {
		after = *cursor
	}

	unread, err := t.repos.Messages.CountChannelAfter(channelID, after, !channel.ThreadingEnabled)
	if err != nil {
		return nil, err
	}
	mentions, err := t.repos.Notifications.CountUnreadAfter(userID, channelID, after)
	if err != nil {
		return nil, err
	}

	snapshot := &TrackingSnapshot{
		ChannelID:         channelID,
		LastReadMessageID: cursor,
		UnreadCount:       unread,
		MentionCount:      mentions,
	}

	if channel.LastMessageID != nil {
		if last, err := t.repos.Messages.FindByID(*channel.LastMessageID); err == nil {
			created := last.CreatedAt
			snapshot.LastReplyCreatedAt = &created
		}
	}

	if channel.ThreadingEnabled {
		watched, err := t.watchedThreadsUnread(userID, channelID)
		if err != nil {
			return nil, err
		}
		snapshot.WatchedThreadsUnreadCount = watched
	}
	return snapshot, nil
}

func (t *Tracker) watchedThreadsUnread(userID, channelID uint) (int64, error) {
	threadIDs, err := t.repos.Memberships.ListFollowedThreadIDs(userID, channelID)
	if err != nil {
		return 0, err
	}
	var watched int64
	for _, threadID := range threadIDs {
		membership, err := t.repos.Memberships.GetThreadMembership(userID, threadID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Thread vanished mid-scan, e.g. emptied by a move.
			continue
		}
		if err != nil {
			return 0, err
		}
		after := uint(0)
		if membership.LastReadMessageID != nil {
			after = *membership.LastReadMessageID
		}
		count, err := t.repos.Messages.CountThreadAfter(threadID, after)
		if err != nil {
			return 0, err
		}
		if count > 0 {
			watched++
		}
	}
	return watched, nil
}

// ThreadUnread counts a thread's unread replies for a user. The original
// message is a channel message and is not counted here.
func (t *Tracker) ThreadUnread(userID, threadID uint) (int64, error) {
	if _, err := t.repos.Threads.FindByID(threadID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("thread not found")
		}
		return 0, err
	}
	after := uint(0)
	membership, err := t.repos.Memberships.GetThreadMembership(userID, threadID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	if membership != nil && membership.LastReadMessageID != nil {
		after = *membership.LastReadMessageID
	}
	return t.repos.Messages.CountThreadAfter(threadID, after)
}

// ThreadOverview reports, per followed thread with at least one unread
// reply, when the earliest unread reply was created. Used to badge threads
// without computing full counts.
func (t *Tracker) ThreadOverview(userID, channelID uint) ([]ThreadUnreadInfo, error) {
	channel, err := t.repos.Channels.FindByID(channelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("channel not found")
	}
	if err != nil {
		return nil, err
	}
	if !channel.ThreadingEnabled {
		return nil, nil
	}

	threadIDs, err := t.repos.Memberships.ListFollowedThreadIDs(userID, channelID)
	if err != nil {
		return nil, err
	}
	var out []ThreadUnreadInfo
	for _, threadID := range threadIDs {
		membership, err := t.repos.Memberships.GetThreadMembership(userID, threadID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		after := uint(0)
		if membership.LastReadMessageID != nil {
			after = *membership.LastReadMessageID
		}
		first, err := t.repos.Messages.FirstThreadReplyAfter(threadID, after)
		if err != nil {
			return nil, err
		}
		if first == nil {
			continue
		}
		out = append(out, ThreadUnreadInfo{
			ThreadID:            threadID,
			EarliestUnreadReply: first.CreatedAt,
		})
	}
	return out, nil
}

const cascadeBatchSize = 500

// CascadeTrashed repoints every cursor that sat exactly on a trashed
// message. Batches keep each transaction brief; replaying a batch after a
// partial failure is harmless because rewritten cursors no longer match.
func (t *Tracker) CascadeTrashed(channelID uint, threadID *uint, messageID uint) error {
	for {
		n, err := t.repos.Memberships.RewriteChannelCursors(channelID, []uint{messageID}, cascadeBatchSize)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	if threadID != nil {
		for {
			n, err := t.repos.Memberships.RewriteThreadCursors(*threadID, []uint{messageID}, cascadeBatchSize)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
		}
	}
	return nil
}

// CascadeMoved rewrites source-channel cursors that pointed at any moved
// message, after the move itself has committed.
func (t *Tracker) CascadeMoved(sourceChannelID uint, movedIDs []uint) error {
	for {
		n, err := t.repos.Memberships.RewriteChannelCursors(sourceChannelID, movedIDs, cascadeBatchSize)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (t *Tracker) publishTracking(userID uint, snapshots []TrackingSnapshot) {
	if t.publisher == nil || len(snapshots) == 0 {
		return
	}
	channels := make(map[string]events.ChannelDelta, len(snapshots))
	for _, s := range snapshots {
		channels[strconv.FormatUint(uint64(s.ChannelID), 10)] = events.ChannelDelta{
			LastReadMessageID:         s.LastReadMessageID,
			MentionCount:              s.MentionCount,
			UnreadCount:               s.UnreadCount,
			WatchedThreadsUnreadCount: s.WatchedThreadsUnreadCount,
			LastReplyCreatedAt:        s.LastReplyCreatedAt,
		}
	}
	_ = t.publisher.Publish(events.TrackingTopic(userID), events.TrackingState{
		EventID:  uuid.NewString(),
		UserID:   userID,
		Channels: channels,
	})
}
