package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/forumkit/chattrack/internal/httpx"
	"github.com/forumkit/chattrack/internal/service"
)

type TrackingHandler struct {
	tracker *service.Tracker
}

func NewTrackingHandler(tracker *service.Tracker) *TrackingHandler {
	return &TrackingHandler{tracker: tracker}
}

// AdvanceChannelCursor handles PUT /api/channels/:id/read/:message_id
func (h *TrackingHandler) AdvanceChannelCursor(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user context")
	}
	channelID, err := c.ParamsInt("id")
	if err != nil || channelID <= 0 {
		return httpx.BadRequest(c, "invalid_channel_id", "Invalid channel id")
	}
	messageID, err := c.ParamsInt("message_id")
	if err != nil || messageID <= 0 {
		return httpx.BadRequest(c, "invalid_message_id", "Invalid message id")
	}

	snapshot, err := h.tracker.AdvanceChannelCursor(userID, uint(channelID), uint(messageID))
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(snapshot)
}

// AdvanceThreadCursor handles PUT /api/threads/:id/read/:message_id
func (h *TrackingHandler) AdvanceThreadCursor(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user context")
	}
	threadID, err := c.ParamsInt("id")
	if err != nil || threadID <= 0 {
		return httpx.BadRequest(c, "invalid_thread_id", "Invalid thread id")
	}
	messageID, err := c.ParamsInt("message_id")
	if err != nil || messageID <= 0 {
		return httpx.BadRequest(c, "invalid_message_id", "Invalid message id")
	}

	if err := h.tracker.AdvanceThreadCursor(userID, uint(threadID), uint(messageID)); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkAllRead handles PUT /api/read
func (h *TrackingHandler) MarkAllRead(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user context")
	}

	snapshots, err := h.tracker.MarkAllRead(userID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"channels": snapshots})
}

// ChannelUnread handles GET /api/channels/:id/unread
func (h *TrackingHandler) ChannelUnread(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user context")
	}
	channelID, err := c.ParamsInt("id")
	if err != nil || channelID <= 0 {
		return httpx.BadRequest(c, "invalid_channel_id", "Invalid channel id")
	}

	snapshot, err := h.tracker.ChannelUnread(userID, uint(channelID))
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(snapshot)
}

// ThreadOverview handles GET /api/channels/:id/threads/unread
func (h *TrackingHandler) ThreadOverview(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user context")
	}
	channelID, err := c.ParamsInt("id")
	if err != nil || channelID <= 0 {
		return httpx.BadRequest(c, "invalid_channel_id", "Invalid channel id")
	}

	overview, err := h.tracker.ThreadOverview(userID, uint(channelID))
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"threads": overview})
}
