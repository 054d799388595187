package service

import (
	"regexp"
	"strings"
	"time"

	"github.com/forumkit/chattrack/internal/cache"
	"github.com/forumkit/chattrack/internal/config"
	"github.com/forumkit/chattrack/internal/events"
	"github.com/forumkit/chattrack/internal/models"
	"github.com/forumkit/chattrack/internal/repository"
)

const (
	hereToken = "here"
	allToken  = "all"
)

var mentionPattern = regexp.MustCompile(`\B@([a-z0-9_][a-z0-9_\-.]*)`)

// ParseMentions extracts mention tokens from a message body in appearance
// order. Tokens inside quote blocks (bbcode [quote] spans and markdown
// "> " lines) never reach resolution, and repeated tokens keep only their
// first position.
func ParseMentions(body string) []string {
	body = stripQuotes(strings.ToLower(body))
	seen := make(map[string]bool)
	var tokens []string
	for _, m := range mentionPattern.FindAllStringSubmatch(body, -1) {
		name := strings.TrimRight(m[1], "-.")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tokens = append(tokens, name)
	}
	return tokens
}

func stripQuotes(body string) string {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(body); {
		if strings.HasPrefix(body[i:], "[quote") {
			depth++
			i += len("[quote")
			continue
		}
		if strings.HasPrefix(body[i:], "[/quote]") {
			if depth > 0 {
				depth--
			}
			i += len("[/quote]")
			continue
		}
		if depth == 0 {
			b.WriteByte(body[i])
		}
		i++
	}
	lines := strings.Split(b.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// Advisory is an ephemeral outcome of resolution, surfaced to the sender
// only. It is never an error and never reaches the mentioned users.
type Advisory struct {
	Kind      events.NoticeKind
	Usernames []string
	Group     string
}

// GroupMentions is the resolved member set of one mentioned group, in the
// order the group token appeared.
type GroupMentions struct {
	GroupID uint
	Name    string
	UserIDs []uint
}

// MentionResolution is the outcome of resolving one message's tokens. The
// Direct, Groups, Here and Global sets are pairwise disjoint.
type MentionResolution struct {
	Direct []uint
	Groups []GroupMentions
	Here   []uint
	Global []uint

	// InviteUserIDs are reachable users who were mentioned but cannot be
	// notified without joining the channel first.
	InviteUserIDs []uint

	Advisories []Advisory
}

// MentionResolver turns parsed mention tokens into disjoint target sets.
// Precedence: a direct mention claims its user everywhere; remaining
// claims go to whichever token appears leftmost in the body.
type MentionResolver struct {
	presence *cache.PresenceCache
}

func NewMentionResolver(presence *cache.PresenceCache) *MentionResolver {
	return &MentionResolver{presence: presence}
}

// Resolve computes target sets for a message. The caller passes the store
// handle so resolution runs on the same transaction as the surrounding
// write. Missing user or group lookups are no-matches, never errors; only
// store failures propagate.
func (r *MentionResolver) Resolve(
	repos *repository.Repos,
	msg *models.Message,
	channel *models.Channel,
	sender *models.User,
	tokens []string,
	cfg config.Mentions,
) (*MentionResolution, error) {
	res := &MentionResolution{}
	if len(tokens) == 0 {
		return res, nil
	}

	var names []string
	hasHere, hasAll := false, false
	for _, tok := range tokens {
		switch tok {
		case hereToken:
			hasHere = true
		case allToken:
			hasAll = true
		default:
			names = append(names, tok)
		}
	}

	users, err := repos.Users.FindByUsernames(names)
	if err != nil {
		return nil, err
	}
	usersByName := make(map[string]*models.User, len(users))
	for i := range users {
		usersByName[strings.ToLower(users[i].Username)] = &users[i]
	}

	var groupNames []string
	for _, name := range names {
		if _, ok := usersByName[name]; !ok {
			groupNames = append(groupNames, name)
		}
	}
	groups, err := repos.Groups.FindByNames(groupNames)
	if err != nil {
		return nil, err
	}
	groupsByName := make(map[string]*models.Group, len(groups))
	for i := range groups {
		groupsByName[strings.ToLower(groups[i].Name)] = &groups[i]
	}

	mentionCount := 0
	for _, name := range names {
		if _, ok := usersByName[name]; ok {
			mentionCount++
		} else if _, ok := groupsByName[name]; ok {
			mentionCount++
		}
	}
	// Past the cap, direct and group mentions are dropped wholesale
	// rather than honored partially. Channel-wide tokens are exempt.
	capped := mentionCount > cfg.MaxMentionsPerMessage

	followingIDs, err := repos.Memberships.ListFollowingUserIDs(channel.ID)
	if err != nil {
		return nil, err
	}
	following := make(map[uint]bool, len(followingIDs))
	for _, id := range followingIDs {
		following[id] = true
	}

	reach, err := r.newReachability(repos, channel, sender, usersByName, groups, followingIDs, hasHere, hasAll)
	if err != nil {
		return nil, err
	}

	claimed := make(map[uint]bool)
	invited := make(map[uint]bool)

	// Direct mentions claim first and win over every other class.
	var cannotSee []string
	if !capped {
		for _, name := range names {
			u, ok := usersByName[name]
			if !ok {
				continue
			}
			if u.ID != sender.ID && !reach.ok(u.ID) {
				cannotSee = append(cannotSee, u.Username)
				continue
			}
			if u.ID != sender.ID && !sender.Bot && !following[u.ID] {
				if !invited[u.ID] {
					invited[u.ID] = true
					res.InviteUserIDs = append(res.InviteUserIDs, u.ID)
				}
				continue
			}
			if !claimed[u.ID] {
				claimed[u.ID] = true
				res.Direct = append(res.Direct, u.ID)
			}
		}
	}
	if len(cannotSee) > 0 {
		res.Advisories = append(res.Advisories, Advisory{
			Kind:      events.NoticeCannotSee,
			Usernames: cannotSee,
		})
	}

	channelWideAllowed := cfg.ChannelWideMentionsAllowed && channel.AllowChannelWideMentions
	wideDisallowedNoticed := false

	// Remaining claims go left to right: the first token to reach a user
	// keeps them; later groups and channel-wide tokens lose.
	for _, tok := range tokens {
		switch tok {
		case hereToken, allToken:
			if !channelWideAllowed {
				if !wideDisallowedNoticed {
					wideDisallowedNoticed = true
					res.Advisories = append(res.Advisories, Advisory{Kind: events.NoticeGlobalMentionsDisabled})
				}
				continue
			}
			if tok == hereToken {
				res.Here = append(res.Here, r.claimHere(msg, sender, followingIDs, reach, claimed, cfg)...)
			} else {
				res.Global = append(res.Global, claimGlobal(sender, followingIDs, reach, claimed)...)
			}
		default:
			if capped {
				continue
			}
			g, ok := groupsByName[tok]
			if !ok || !g.Mentionable {
				continue
			}
			gm, adv, err := r.expandGroup(repos, g, channel, sender, following, reach, claimed, invited, res, cfg)
			if err != nil {
				return nil, err
			}
			if adv != nil {
				res.Advisories = append(res.Advisories, *adv)
				continue
			}
			res.Groups = append(res.Groups, *gm)
		}
	}

	return res, nil
}

func (r *MentionResolver) expandGroup(
	repos *repository.Repos,
	g *models.Group,
	channel *models.Channel,
	sender *models.User,
	following map[uint]bool,
	reach *reachability,
	claimed map[uint]bool,
	invited map[uint]bool,
	res *MentionResolution,
	cfg config.Mentions,
) (*GroupMentions, *Advisory, error) {
	count, err := repos.Groups.MemberCount(g.ID)
	if err != nil {
		return nil, nil, err
	}
	if count > int64(cfg.MaxGroupMentionSize) {
		return nil, &Advisory{Kind: events.NoticeGroupTooLarge, Group: g.Name}, nil
	}

	memberIDs, err := repos.Groups.MemberIDs(g.ID)
	if err != nil {
		return nil, nil, err
	}

	gm := &GroupMentions{GroupID: g.ID, Name: g.Name}
	for _, id := range memberIDs {
		if id == sender.ID || claimed[id] {
			continue
		}
		if !reach.ok(id) {
			continue
		}
		if !following[id] {
			// In a personal channel every group member is eligible;
			// non-participants get an invite advisory instead of a
			// notification. Elsewhere non-members are simply outside
			// the mention.
			if channel.DirectMessage && !invited[id] {
				invited[id] = true
				res.InviteUserIDs = append(res.InviteUserIDs, id)
			}
			continue
		}
		claimed[id] = true
		gm.UserIDs = append(gm.UserIDs, id)
	}
	return gm, nil, nil
}

func (r *MentionResolver) claimHere(
	msg *models.Message,
	sender *models.User,
	followingIDs []uint,
	reach *reachability,
	claimed map[uint]bool,
	cfg config.Mentions,
) []uint {
	cutoff := msg.CreatedAt.Add(-cfg.HereRecencyWindow)
	cached := r.presence.LastSeen(followingIDs)

	var out []uint
	for _, id := range followingIDs {
		if id == sender.ID || claimed[id] {
			continue
		}
		// @here is a channel-wide mention and honors the same opt-out
		// as @all.
		u := reach.user(id)
		if u == nil || !u.AllowChannelWideMentions {
			continue
		}
		lastSeen, ok := cached[id]
		if !ok {
			if u.LastSeenAt == nil {
				continue
			}
			lastSeen = *u.LastSeenAt
		}
		if lastSeen.Before(cutoff) {
			continue
		}
		if !reach.ok(id) {
			continue
		}
		claimed[id] = true
		out = append(out, id)
	}
	return out
}

func claimGlobal(
	sender *models.User,
	followingIDs []uint,
	reach *reachability,
	claimed map[uint]bool,
) []uint {
	var out []uint
	for _, id := range followingIDs {
		if id == sender.ID || claimed[id] {
			continue
		}
		u := reach.user(id)
		if u == nil || !u.AllowChannelWideMentions {
			continue
		}
		if !reach.ok(id) {
			continue
		}
		claimed[id] = true
		out = append(out, id)
	}
	return out
}

// reachability batches the eligibility inputs for every candidate of one
// resolution: user rows and any mute/ignore relationships held against
// the sender.
type reachability struct {
	sender  *models.User
	channel *models.Channel
	users   map[uint]*models.User
	blocked map[uint]bool
	now     time.Time
}

func (r *MentionResolver) newReachability(
	repos *repository.Repos,
	channel *models.Channel,
	sender *models.User,
	usersByName map[string]*models.User,
	groups []models.Group,
	followingIDs []uint,
	hasHere, hasAll bool,
) (*reachability, error) {
	idSet := make(map[uint]bool)
	var ids []uint
	add := func(id uint) {
		if !idSet[id] {
			idSet[id] = true
			ids = append(ids, id)
		}
	}
	for _, u := range usersByName {
		add(u.ID)
	}
	for i := range groups {
		memberIDs, err := repos.Groups.MemberIDs(groups[i].ID)
		if err != nil {
			return nil, err
		}
		for _, id := range memberIDs {
			add(id)
		}
	}
	if hasHere || hasAll {
		for _, id := range followingIDs {
			add(id)
		}
	}

	users, err := repos.Users.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	rels, err := repos.Users.RelationshipsTargeting(ids, sender.ID)
	if err != nil {
		return nil, err
	}
	blocked := make(map[uint]bool, len(rels))
	for _, rel := range rels {
		if rel.Muting || rel.Ignoring {
			blocked[rel.UserID] = true
		}
	}

	return &reachability{
		sender:  sender,
		channel: channel,
		users:   byID,
		blocked: blocked,
		now:     time.Now(),
	}, nil
}

func (re *reachability) user(id uint) *models.User {
	return re.users[id]
}

// ok reports whether the sender can reach the candidate at all. Bot and
// system senders bypass silencing.
func (re *reachability) ok(id uint) bool {
	u := re.users[id]
	if u == nil {
		return false
	}
	if u.Suspended(re.now) {
		return false
	}
	if re.sender.Bot {
		return true
	}
	if re.blocked[id] {
		return false
	}
	if re.channel.DirectMessage && !u.AllowDirectMessages {
		return false
	}
	return true
}
