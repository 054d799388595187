package config

import (
	"os"
	"strconv"
	"time"
)

// Mentions holds the feature toggles threaded into mention resolution and
// fan-out. The host passes these explicitly on every call path; nothing
// reads ambient global settings.
type Mentions struct {
	// HereRecencyWindow bounds how recently a member must have been seen
	// for @here to reach them.
	HereRecencyWindow time.Duration

	// MaxGroupMentionSize caps how large a group may be and still expand.
	MaxGroupMentionSize int

	// MaxMentionsPerMessage caps direct plus group mention tokens; past
	// the cap both classes resolve to nothing.
	MaxMentionsPerMessage int

	// ChannelWideMentionsAllowed is the site-wide @here/@all switch.
	ChannelWideMentionsAllowed bool
}

func DefaultMentions() Mentions {
	return Mentions{
		HereRecencyWindow:          5 * time.Minute,
		MaxGroupMentionSize:        30,
		MaxMentionsPerMessage:      25,
		ChannelWideMentionsAllowed: true,
	}
}

// MentionsFromEnv reads overrides from the environment, falling back to
// defaults for unset or unparsable values.
func MentionsFromEnv() Mentions {
	cfg := DefaultMentions()
	if v := envInt("HERE_RECENCY_WINDOW_SECONDS"); v > 0 {
		cfg.HereRecencyWindow = time.Duration(v) * time.Second
	}
	if v := envInt("MAX_GROUP_MENTION_SIZE"); v > 0 {
		cfg.MaxGroupMentionSize = v
	}
	if v := envInt("MAX_MENTIONS_PER_MESSAGE"); v > 0 {
		cfg.MaxMentionsPerMessage = v
	}
	if v := os.Getenv("CHANNEL_WIDE_MENTIONS_ALLOWED"); v != "" {
		cfg.ChannelWideMentionsAllowed = v == "true" || v == "1"
	}
	return cfg
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
