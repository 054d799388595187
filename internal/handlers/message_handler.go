package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/forumkit/chattrack/internal/httpx"
	"github.com/forumkit/chattrack/internal/service"
)

type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// CreateMessage handles POST /api/channels/:id/messages
func (h *MessageHandler) CreateMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user context")
	}
	channelID, err := c.ParamsInt("id")
	if err != nil || channelID <= 0 {
		return httpx.BadRequest(c, "invalid_channel_id", "Invalid channel id")
	}

	var body struct {
		Body     string `json:"body"`
		ThreadID *uint  `json:"thread_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}

	msg, err := h.messages.Create(userID, service.CreateMessageInput{
		ChannelID: uint(channelID),
		ThreadID:  body.ThreadID,
		Body:      body.Body,
	})
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg.ToResponse())
}

// EditMessage handles PUT /api/messages/:id
func (h *MessageHandler) EditMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user context")
	}
	messageID, err := c.ParamsInt("id")
	if err != nil || messageID <= 0 {
		return httpx.BadRequest(c, "invalid_message_id", "Invalid message id")
	}

	var body struct {
		Body string `json:"body"`
	}
	if err := c.BodyParser(&body); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}

	msg, err := h.messages.Edit(userID, uint(messageID), body.Body)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(msg.ToResponse())
}

// TrashMessage handles DELETE /api/messages/:id
func (h *MessageHandler) TrashMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user context")
	}
	messageID, err := c.ParamsInt("id")
	if err != nil || messageID <= 0 {
		return httpx.BadRequest(c, "invalid_message_id", "Invalid message id")
	}

	if err := h.messages.Trash(userID, uint(messageID)); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RestoreMessage handles POST /api/messages/:id/restore
func (h *MessageHandler) RestoreMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user context")
	}
	messageID, err := c.ParamsInt("id")
	if err != nil || messageID <= 0 {
		return httpx.BadRequest(c, "invalid_message_id", "Invalid message id")
	}

	if err := h.messages.Restore(userID, uint(messageID)); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MoveMessages handles POST /api/messages/move
func (h *MessageHandler) MoveMessages(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user context")
	}

	var input service.MoveMessagesInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}

	if err := h.messages.MoveMessages(userID, input); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
