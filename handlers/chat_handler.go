package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/fitcoach/fitness_coach/models"
	"github.com/fitcoach/fitness_coach/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

// ChatHandler is the REST surface of the chat subsystem. Every endpoint
// runs the same pipeline the socket path runs, so REST and socket clients
// observe a single event stream.
type ChatHandler struct {
	messages      *services.MessageService
	conversations *services.ConversationService
}

func NewChatHandler(messages *services.MessageService, conversations *services.ConversationService) *ChatHandler {
	return &ChatHandler{messages: messages, conversations: conversations}
}

func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	return uuid.Parse(claims["user_id"].(string))
}

// rejection maps the service error taxonomy onto HTTP statuses. The reason
// string travels verbatim so clients can render distinct UI per case.
func rejection(c *fiber.Ctx, err error) error {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Reason})
	case errors.Is(err, services.ErrEditWindowExpired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Printf("Chat request failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong, please try again"})
	}
}

func (h *ChatHandler) GetConversations(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	summaries, err := h.conversations.ListForUser(userID)
	if err != nil {
		return rejection(c, err)
	}
	return c.JSON(fiber.Map{"conversations": summaries})
}

func (h *ChatHandler) GetOrCreateConversation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	otherUserID, err := uuid.Parse(c.Params("otherUserId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	conversation, err := h.conversations.ResolveOrCreate(userID, otherUserID)
	if err != nil {
		return rejection(c, err)
	}
	return c.JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	otherUserID, err := uuid.Parse(c.Params("otherUserId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	messages, err := h.messages.History(userID, otherUserID, page, limit)
	if err != nil {
		return rejection(c, err)
	}

	return c.JSON(fiber.Map{
		// Stored newest-first, shown oldest-first.
		"messages": lo.Reverse(messages),
		"pagination": fiber.Map{
			"page":     page,
			"limit":    limit,
			"has_more": len(messages) == limit,
		},
	})
}

type SendMessageRequest struct {
	ReceiverID     *string               `json:"receiver_id" validate:"omitempty,uuid"`
	ConversationID *string               `json:"conversation_id" validate:"omitempty,uuid"`
	Message        *string               `json:"message"`
	MessageType    string                `json:"message_type" validate:"omitempty,max=20"`
	Attachments    []models.Attachment   `json:"attachments"`
	SharedContent  *models.SharedContent `json:"shared_content"`
	ReplyTo        *string               `json:"reply_to" validate:"omitempty,uuid"`
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	input := services.SendMessageInput{
		Body:          req.Message,
		MessageType:   req.MessageType,
		Attachments:   req.Attachments,
		SharedContent: req.SharedContent,
	}
	if req.ReceiverID != nil {
		id, _ := uuid.Parse(*req.ReceiverID)
		input.ReceiverID = &id
	}
	if req.ConversationID != nil {
		id, _ := uuid.Parse(*req.ConversationID)
		input.ConversationID = &id
	}
	if req.ReplyTo != nil {
		id, _ := uuid.Parse(*req.ReplyTo)
		input.ReplyToID = &id
	}

	message, conversation, err := h.messages.Send(userID, input)
	if err != nil {
		return rejection(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":         message,
		"conversation_id": conversation.ID,
	})
}

type EditMessageRequest struct {
	Message string `json:"message" validate:"required"`
}

func (h *ChatHandler) EditMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	messageID, err := uuid.Parse(c.Params("messageId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message ID"})
	}

	var req EditMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	message, err := h.messages.Edit(userID, messageID, req.Message)
	if err != nil {
		return rejection(c, err)
	}
	return c.JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	messageID, err := uuid.Parse(c.Params("messageId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message ID"})
	}

	if err := h.messages.Delete(userID, messageID); err != nil {
		return rejection(c, err)
	}
	return c.JSON(fiber.Map{"message": "Message deleted"})
}

type AddReactionRequest struct {
	Reaction string `json:"reaction" validate:"required"`
}

func (h *ChatHandler) AddReaction(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	messageID, err := uuid.Parse(c.Params("messageId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message ID"})
	}

	var req AddReactionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	message, err := h.messages.React(userID, messageID, req.Reaction)
	if err != nil {
		return rejection(c, err)
	}
	return c.JSON(fiber.Map{"reactions": message.Reactions})
}

func (h *ChatHandler) MarkConversationRead(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation ID"})
	}

	if err := h.messages.MarkConversationRead(userID, conversationID); err != nil {
		return rejection(c, err)
	}
	return c.JSON(fiber.Map{"message": "Conversation marked as read"})
}

func (h *ChatHandler) SearchMessages(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	messages, err := h.messages.Search(userID, c.Query("query"), limit)
	if err != nil {
		return rejection(c, err)
	}
	return c.JSON(fiber.Map{"messages": messages})
}
