package service

import (
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/forumkit/chattrack/internal/models"
	"github.com/forumkit/chattrack/internal/repository"
)

// In-memory store doubles mirroring the Postgres semantics the services
// rely on: soft-delete scoping, compare-and-set cursor advances, and the
// correlated cursor rewrite.

type mockMessageRepo struct {
	messages map[uint]*models.Message
	nextID   uint
	now      time.Time
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{
		messages: make(map[uint]*models.Message),
		nextID:   1,
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *mockMessageRepo) Create(message *models.Message) error {
	if message.ID == 0 {
		message.ID = m.nextID
	}
	if message.ID >= m.nextID {
		m.nextID = message.ID + 1
	}
	if message.CreatedAt.IsZero() {
		m.now = m.now.Add(time.Minute)
		message.CreatedAt = m.now
	}
	m.messages[message.ID] = message
	return nil
}

func (m *mockMessageRepo) FindByID(id uint) (*models.Message, error) {
	msg, ok := m.messages[id]
	if !ok || msg.Trashed() {
		return nil, gorm.ErrRecordNotFound
	}
	return msg, nil
}

func (m *mockMessageRepo) FindByIDAny(id uint) (*models.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return msg, nil
}

func (m *mockMessageRepo) UpdateBody(id uint, body string, editorID uint) error {
	msg, ok := m.messages[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	msg.Body = body
	msg.LastEditorID = &editorID
	return nil
}

func (m *mockMessageRepo) Trash(id uint) error {
	msg, ok := m.messages[id]
	if !ok || msg.Trashed() {
		return gorm.ErrRecordNotFound
	}
	msg.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	return nil
}

func (m *mockMessageRepo) Restore(id uint) error {
	msg, ok := m.messages[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	msg.DeletedAt = gorm.DeletedAt{}
	return nil
}

func (m *mockMessageRepo) LatestInChannel(channelID uint) (*models.Message, error) {
	var latest *models.Message
	for _, msg := range m.messages {
		if msg.ChannelID != channelID || msg.Trashed() || msg.ThreadID != nil {
			continue
		}
		if latest == nil || msg.ID > latest.ID {
			latest = msg
		}
	}
	return latest, nil
}

func (m *mockMessageRepo) LatestInThread(threadID uint) (*models.Message, error) {
	var latest *models.Message
	for _, msg := range m.messages {
		if msg.ThreadID == nil || *msg.ThreadID != threadID || msg.Trashed() {
			continue
		}
		if latest == nil || msg.ID > latest.ID {
			latest = msg
		}
	}
	return latest, nil
}

// nearestBefore mirrors the correlated subquery the cursor rewrite runs:
// newest non-trashed message in the channel older than beforeID.
func (m *mockMessageRepo) nearestBefore(channelID uint, beforeID uint) *uint {
	var nearest *uint
	for _, msg := range m.messages {
		if msg.ChannelID != channelID || msg.Trashed() || msg.ID >= beforeID {
			continue
		}
		if nearest == nil || msg.ID > *nearest {
			id := msg.ID
			nearest = &id
		}
	}
	return nearest
}

func (m *mockMessageRepo) CountChannelAfter(channelID uint, afterID uint, includeReplies bool) (int64, error) {
	var count int64
	for _, msg := range m.messages {
		if msg.ChannelID != channelID || msg.Trashed() || msg.ID <= afterID {
			continue
		}
		if !includeReplies && msg.ThreadID != nil {
			continue
		}
		count++
	}
	return count, nil
}

func (m *mockMessageRepo) CountThreadAfter(threadID uint, afterID uint) (int64, error) {
	var count int64
	for _, msg := range m.messages {
		if msg.ThreadID != nil && *msg.ThreadID == threadID && !msg.Trashed() && msg.ID > afterID {
			count++
		}
	}
	return count, nil
}

func (m *mockMessageRepo) FirstThreadReplyAfter(threadID uint, afterID uint) (*models.Message, error) {
	var first *models.Message
	for _, msg := range m.messages {
		if msg.ThreadID == nil || *msg.ThreadID != threadID || msg.Trashed() || msg.ID <= afterID {
			continue
		}
		if first == nil || msg.ID < first.ID {
			first = msg
		}
	}
	return first, nil
}

func (m *mockMessageRepo) ListThreadReplies(threadID uint) ([]models.Message, error) {
	var replies []models.Message
	for _, msg := range m.messages {
		if msg.ThreadID != nil && *msg.ThreadID == threadID && !msg.Trashed() {
			replies = append(replies, *msg)
		}
	}
	sort.Slice(replies, func(i, j int) bool { return replies[i].ID < replies[j].ID })
	return replies, nil
}

func (m *mockMessageRepo) MoveToChannel(ids []uint, destChannelID uint) error {
	for _, id := range ids {
		if msg, ok := m.messages[id]; ok {
			msg.ChannelID = destChannelID
			msg.ThreadID = nil
		}
	}
	return nil
}

func (m *mockMessageRepo) SetThread(ids []uint, threadID *uint) error {
	for _, id := range ids {
		if msg, ok := m.messages[id]; ok {
			msg.ThreadID = threadID
		}
	}
	return nil
}

type mockChannelRepo struct {
	channels map[uint]*models.Channel
}

func newMockChannelRepo() *mockChannelRepo {
	return &mockChannelRepo{channels: make(map[uint]*models.Channel)}
}

func (m *mockChannelRepo) FindByID(id uint) (*models.Channel, error) {
	ch, ok := m.channels[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return ch, nil
}

func (m *mockChannelRepo) FindByIDs(ids []uint) ([]models.Channel, error) {
	var out []models.Channel
	for _, id := range ids {
		if ch, ok := m.channels[id]; ok {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (m *mockChannelRepo) SetLastMessage(channelID uint, messageID *uint) error {
	ch, ok := m.channels[channelID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ch.LastMessageID = messageID
	return nil
}

type mockThreadRepo struct {
	threads map[uint]*models.Thread
	nextID  uint
}

func newMockThreadRepo() *mockThreadRepo {
	return &mockThreadRepo{threads: make(map[uint]*models.Thread), nextID: 1}
}

func (m *mockThreadRepo) Create(thread *models.Thread) error {
	if thread.ID == 0 {
		thread.ID = m.nextID
	}
	if thread.ID >= m.nextID {
		m.nextID = thread.ID + 1
	}
	m.threads[thread.ID] = thread
	return nil
}

func (m *mockThreadRepo) FindByID(id uint) (*models.Thread, error) {
	t, ok := m.threads[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (m *mockThreadRepo) FindByOriginalMessage(messageID uint) (*models.Thread, error) {
	for _, t := range m.threads {
		if t.OriginalMessageID == messageID {
			return t, nil
		}
	}
	return nil, nil
}

func (m *mockThreadRepo) SetLastMessage(threadID uint, messageID *uint) error {
	t, ok := m.threads[threadID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.LastMessageID = messageID
	return nil
}

func (m *mockThreadRepo) SetRepliesCount(threadID uint, count int64) error {
	t, ok := m.threads[threadID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.RepliesCount = count
	return nil
}

func (m *mockThreadRepo) Delete(id uint) error {
	delete(m.threads, id)
	return nil
}

type membershipKey struct {
	userID  uint
	scopeID uint
}

type mockMembershipRepo struct {
	channelMemberships map[membershipKey]*models.ChannelMembership
	threadMemberships  map[membershipKey]*models.ThreadMembership
	messages           *mockMessageRepo
	threads            *mockThreadRepo
}

func newMockMembershipRepo(messages *mockMessageRepo, threads *mockThreadRepo) *mockMembershipRepo {
	return &mockMembershipRepo{
		channelMemberships: make(map[membershipKey]*models.ChannelMembership),
		threadMemberships:  make(map[membershipKey]*models.ThreadMembership),
		messages:           messages,
		threads:            threads,
	}
}

func (m *mockMembershipRepo) GetChannelMembership(userID, channelID uint) (*models.ChannelMembership, error) {
	cm, ok := m.channelMemberships[membershipKey{userID, channelID}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cm, nil
}

func (m *mockMembershipRepo) GetOrCreateChannelMembership(userID, channelID uint) (*models.ChannelMembership, error) {
	key := membershipKey{userID, channelID}
	if cm, ok := m.channelMemberships[key]; ok {
		return cm, nil
	}
	cm := &models.ChannelMembership{
		UserID:            userID,
		ChannelID:         channelID,
		Following:         true,
		NotificationLevel: models.NotifyMentions,
	}
	m.channelMemberships[key] = cm
	return cm, nil
}

func (m *mockMembershipRepo) AdvanceChannelCursor(userID, channelID, messageID uint) (bool, error) {
	cm, ok := m.channelMemberships[membershipKey{userID, channelID}]
	if !ok {
		return false, nil
	}
	if cm.LastReadMessageID != nil && *cm.LastReadMessageID > messageID {
		return false, nil
	}
	id := messageID
	cm.LastReadMessageID = &id
	return true, nil
}

func (m *mockMembershipRepo) ListFollowing(userID uint) ([]models.ChannelMembership, error) {
	var out []models.ChannelMembership
	for _, cm := range m.channelMemberships {
		if cm.UserID == userID && cm.Following {
			out = append(out, *cm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out, nil
}

func (m *mockMembershipRepo) ListFollowingUserIDs(channelID uint) ([]uint, error) {
	var ids []uint
	for _, cm := range m.channelMemberships {
		if cm.ChannelID == channelID && cm.Following {
			ids = append(ids, cm.UserID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *mockMembershipRepo) RewriteChannelCursors(channelID uint, fromIDs []uint, batchSize int) (int64, error) {
	from := make(map[uint]bool, len(fromIDs))
	for _, id := range fromIDs {
		from[id] = true
	}
	var rewritten int64
	for _, cm := range m.channelMemberships {
		if cm.ChannelID != channelID || cm.LastReadMessageID == nil || !from[*cm.LastReadMessageID] {
			continue
		}
		cm.LastReadMessageID = m.messages.nearestBefore(channelID, *cm.LastReadMessageID)
		rewritten++
	}
	return rewritten, nil
}

func (m *mockMembershipRepo) GetThreadMembership(userID, threadID uint) (*models.ThreadMembership, error) {
	tm, ok := m.threadMemberships[membershipKey{userID, threadID}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return tm, nil
}

func (m *mockMembershipRepo) GetOrCreateThreadMembership(userID, threadID uint) (*models.ThreadMembership, error) {
	key := membershipKey{userID, threadID}
	if tm, ok := m.threadMemberships[key]; ok {
		return tm, nil
	}
	tm := &models.ThreadMembership{
		UserID:            userID,
		ThreadID:          threadID,
		Following:         true,
		NotificationLevel: models.NotifyMentions,
	}
	m.threadMemberships[key] = tm
	return tm, nil
}

func (m *mockMembershipRepo) AdvanceThreadCursor(userID, threadID, messageID uint) (bool, error) {
	tm, ok := m.threadMemberships[membershipKey{userID, threadID}]
	if !ok {
		return false, nil
	}
	if tm.LastReadMessageID != nil && *tm.LastReadMessageID > messageID {
		return false, nil
	}
	id := messageID
	tm.LastReadMessageID = &id
	return true, nil
}

func (m *mockMembershipRepo) ListFollowedThreadIDs(userID, channelID uint) ([]uint, error) {
	var ids []uint
	for _, tm := range m.threadMemberships {
		if tm.UserID != userID || !tm.Following {
			continue
		}
		if t, ok := m.threads.threads[tm.ThreadID]; ok && t.ChannelID == channelID {
			ids = append(ids, tm.ThreadID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *mockMembershipRepo) DeleteThreadMemberships(threadID uint) error {
	for key, tm := range m.threadMemberships {
		if tm.ThreadID == threadID {
			delete(m.threadMemberships, key)
		}
	}
	return nil
}

func (m *mockMembershipRepo) RewriteThreadCursors(threadID uint, fromIDs []uint, batchSize int) (int64, error) {
	from := make(map[uint]bool, len(fromIDs))
	for _, id := range fromIDs {
		from[id] = true
	}
	var rewritten int64
	for _, tm := range m.threadMemberships {
		if tm.ThreadID != threadID || tm.LastReadMessageID == nil || !from[*tm.LastReadMessageID] {
			continue
		}
		var nearest *uint
		for _, msg := range m.messages.messages {
			if msg.ThreadID == nil || *msg.ThreadID != threadID || msg.Trashed() || msg.ID >= *tm.LastReadMessageID {
				continue
			}
			if nearest == nil || msg.ID > *nearest {
				id := msg.ID
				nearest = &id
			}
		}
		tm.LastReadMessageID = nearest
		rewritten++
	}
	return rewritten, nil
}

type mockMentionRepo struct {
	mentions map[uint][]models.Mention
}

func newMockMentionRepo() *mockMentionRepo {
	return &mockMentionRepo{mentions: make(map[uint][]models.Mention)}
}

func (m *mockMentionRepo) ReplaceForMessage(messageID uint, mentions []models.Mention) error {
	out := make([]models.Mention, len(mentions))
	for i, mn := range mentions {
		mn.MessageID = messageID
		out[i] = mn
	}
	m.mentions[messageID] = out
	return nil
}

// ListByMessage is a test-side accessor, not part of the store contract.
func (m *mockMentionRepo) ListByMessage(messageID uint) ([]models.Mention, error) {
	return m.mentions[messageID], nil
}

type mockNotificationRepo struct {
	notifications []*models.Notification
	messages      *mockMessageRepo
	nextID        uint
}

func newMockNotificationRepo(messages *mockMessageRepo) *mockNotificationRepo {
	return &mockNotificationRepo{messages: messages, nextID: 1}
}

func (m *mockNotificationRepo) CreateIfAbsent(n *models.Notification) (bool, error) {
	for _, existing := range m.notifications {
		if existing.MessageID == n.MessageID && existing.UserID == n.UserID {
			return false, nil
		}
	}
	n.ID = m.nextID
	m.nextID++
	m.notifications = append(m.notifications, n)
	return true, nil
}

func (m *mockNotificationRepo) MarkReadUpTo(userID, channelID, messageID uint) (int64, error) {
	var marked int64
	for _, n := range m.notifications {
		if n.UserID == userID && n.ChannelID == channelID && n.MessageID <= messageID && !n.Read {
			n.Read = true
			marked++
		}
	}
	return marked, nil
}

func (m *mockNotificationRepo) MarkReadUpToInThread(userID, threadID, messageID uint) (int64, error) {
	var marked int64
	for _, n := range m.notifications {
		if n.UserID != userID || n.Read || n.MessageID > messageID {
			continue
		}
		msg, ok := m.messages.messages[n.MessageID]
		if !ok || msg.ThreadID == nil || *msg.ThreadID != threadID {
			continue
		}
		n.Read = true
		marked++
	}
	return marked, nil
}

func (m *mockNotificationRepo) CountUnreadAfter(userID, channelID, afterID uint) (int64, error) {
	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && n.ChannelID == channelID && n.MessageID > afterID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) forUser(userID uint) []*models.Notification {
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type mockUserRepo struct {
	users         map[uint]*models.User
	relationships []models.UserRelationship
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uint]*models.User)}
}

func (m *mockUserRepo) FindByID(id uint) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (m *mockUserRepo) FindByIDs(ids []uint) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) FindByUsernames(usernames []string) ([]models.User, error) {
	var out []models.User
	for _, name := range usernames {
		for _, u := range m.users {
			if u.Username == name {
				out = append(out, *u)
				break
			}
		}
	}
	return out, nil
}

func (m *mockUserRepo) RelationshipsTargeting(userIDs []uint, targetID uint) ([]models.UserRelationship, error) {
	idSet := make(map[uint]bool, len(userIDs))
	for _, id := range userIDs {
		idSet[id] = true
	}
	var out []models.UserRelationship
	for _, rel := range m.relationships {
		if idSet[rel.UserID] && rel.TargetID == targetID {
			out = append(out, rel)
		}
	}
	return out, nil
}

type mockGroupRepo struct {
	groups  map[string]*models.Group
	members map[uint][]uint
	nextID  uint
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{
		groups:  make(map[string]*models.Group),
		members: make(map[uint][]uint),
		nextID:  1,
	}
}

func (m *mockGroupRepo) addGroup(name string, mentionable bool, memberIDs ...uint) *models.Group {
	g := &models.Group{ID: m.nextID, Name: name, Mentionable: mentionable}
	m.nextID++
	m.groups[name] = g
	ids := append([]uint(nil), memberIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	m.members[g.ID] = ids
	return g
}

func (m *mockGroupRepo) FindByNames(names []string) ([]models.Group, error) {
	var out []models.Group
	for _, name := range names {
		if g, ok := m.groups[name]; ok {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *mockGroupRepo) MemberIDs(groupID uint) ([]uint, error) {
	return m.members[groupID], nil
}

func (m *mockGroupRepo) MemberCount(groupID uint) (int64, error) {
	return int64(len(m.members[groupID])), nil
}

type mockPublisher struct {
	published []publishedEvent
}

type publishedEvent struct {
	topic   string
	payload any
}

func (m *mockPublisher) Publish(topic string, payload any) error {
	m.published = append(m.published, publishedEvent{topic: topic, payload: payload})
	return nil
}

func (m *mockPublisher) byTopicPrefix(prefix string) []publishedEvent {
	var out []publishedEvent
	for _, e := range m.published {
		if len(e.topic) >= len(prefix) && e.topic[:len(prefix)] == prefix {
			out = append(out, e)
		}
	}
	return out
}

// testStores bundles every mock plus the Repos view the services consume.
type testStores struct {
	repos         *repository.Repos
	messages      *mockMessageRepo
	channels      *mockChannelRepo
	threads       *mockThreadRepo
	memberships   *mockMembershipRepo
	mentions      *mockMentionRepo
	notifications *mockNotificationRepo
	users         *mockUserRepo
	groups        *mockGroupRepo
	publisher     *mockPublisher
}

func newTestStores() *testStores {
	messages := newMockMessageRepo()
	threads := newMockThreadRepo()
	s := &testStores{
		messages:      messages,
		channels:      newMockChannelRepo(),
		threads:       threads,
		memberships:   newMockMembershipRepo(messages, threads),
		mentions:      newMockMentionRepo(),
		notifications: newMockNotificationRepo(messages),
		users:         newMockUserRepo(),
		groups:        newMockGroupRepo(),
		publisher:     &mockPublisher{},
	}
	s.repos = &repository.Repos{
		Messages:      s.messages,
		Channels:      s.channels,
		Threads:       s.threads,
		Memberships:   s.memberships,
		Mentions:      s.mentions,
		Notifications: s.notifications,
		Users:         s.users,
		Groups:        s.groups,
	}
	return s
}

func (s *testStores) addUser(id uint, username string) *models.User {
	lastSeen := time.Now()
	u := &models.User{
		ID:                       id,
		Username:                 username,
		LastSeenAt:               &lastSeen,
		AllowChannelWideMentions: true,
		AllowDirectMessages:      true,
	}
	s.users.users[id] = u
	return u
}

func (s *testStores) addChannel(id uint, opts func(*models.Channel)) *models.Channel {
	ch := &models.Channel{
		ID:                       id,
		Name:                     "channel",
		Status:                   models.ChannelOpen,
		AllowChannelWideMentions: true,
	}
	if opts != nil {
		opts(ch)
	}
	s.channels.channels[id] = ch
	return ch
}

func (s *testStores) follow(userID, channelID uint) *models.ChannelMembership {
	cm, _ := s.memberships.GetOrCreateChannelMembership(userID, channelID)
	return cm
}

func (s *testStores) addMessage(id, channelID, authorID uint, body string, threadID *uint) *models.Message {
	msg := &models.Message{
		ID:        id,
		ChannelID: channelID,
		ThreadID:  threadID,
		AuthorID:  authorID,
		Body:      body,
	}
	_ = s.messages.Create(msg)
	return msg
}
