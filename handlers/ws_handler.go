package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	config "github.com/fitcoach/fitness_coach/configs"
	"github.com/fitcoach/fitness_coach/services"
	ws "github.com/fitcoach/fitness_coach/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// WSHandler is the connection gateway: it authenticates the upgrade, binds
// the connection to the presence registry, and routes inbound events into
// the message pipeline. The pipeline itself is shared with the REST path.
type WSHandler struct {
	registry  *ws.Registry
	messages  *services.MessageService
	store     services.ChatStore
	directory services.UserDirectory
	authz     *services.AuthorizationService
}

func NewWSHandler(registry *ws.Registry, messages *services.MessageService, store services.ChatStore, directory services.UserDirectory, authz *services.AuthorizationService) *WSHandler {
	return &WSHandler{registry: registry, messages: messages, store: store, directory: directory, authz: authz}
}

// session is the explicit per-connection state passed into every pipeline
// call. No handler closes over connection state.
type session struct {
	user   *userIdentity
	client *ws.Client
}

type userIdentity struct {
	ID       uuid.UUID
	FullName string
}

// Upgrade authenticates the connection attempt before the websocket
// upgrade. A missing or invalid bearer credential rejects the attempt here,
// before any event is processed.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocketcontrib.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication token required"})
	}

	claims, err := parseToken(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	raw, ok := claims["user_id"].(string)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	c.Locals("ws_user_id", userID)
	return c.Next()
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Config("JWT_SECRET")), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Serve runs one authenticated connection: registry binding, presence
// edges, then the inbound event loop until the peer goes away.
func (h *WSHandler) Serve(conn *websocketcontrib.Conn) {
	userID := conn.Locals("ws_user_id").(uuid.UUID)

	user, err := h.directory.GetUser(userID)
	if err != nil || !user.IsActive {
		log.Printf("WebSocket rejected for %s: user not found or inactive", userID)
		_ = conn.WriteJSON(ws.Event{Type: ws.EventMessageError, Data: fiber.Map{"error": "User not found or inactive"}})
		conn.Close()
		return
	}

	client := ws.NewClient(userID, conn)
	sess := &session{
		user:   &userIdentity{ID: user.ID, FullName: user.FullName},
		client: client,
	}

	log.Printf("WebSocket client connected: %s (%s)", user.FullName, userID)
	if h.registry.Register(client) {
		h.registry.BroadcastAll(ws.Event{
			Type: ws.EventUserOnline,
			Data: fiber.Map{"user_id": userID, "name": user.FullName},
		}, userID)
	}

	defer func() {
		log.Printf("WebSocket client disconnected: %s", userID)
		if h.registry.Unregister(client) {
			if err := h.directory.TouchLastActivity(userID, time.Now()); err != nil {
				log.Printf("Failed to update last activity for %s: %v", userID, err)
			}
			h.registry.BroadcastAll(ws.Event{
				Type: ws.EventUserOffline,
				Data: fiber.Map{"user_id": userID, "name": user.FullName},
			}, userID)
		}
		conn.Close()
	}()

	for {
		var env inboundEvent
		if err := conn.ReadJSON(&env); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseAbnormalClosure) {
				log.Printf("WebSocket closed for client %s: %v", userID, err)
			} else {
				log.Printf("WebSocket read error for client %s: %v", userID, err)
			}
			break
		}
		h.dispatch(sess, env)
	}
}

type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinPayload struct {
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	OtherUserID    *uuid.UUID `json:"other_user_id,omitempty"`
}

type editPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Message   string    `json:"message"`
}

type deletePayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type reactionPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Reaction  string    `json:"reaction"`
}

type markReadPayload struct {
	MessageID      *uuid.UUID `json:"message_id,omitempty"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
}

type typingPayload struct {
	ReceiverID     *uuid.UUID `json:"receiver_id,omitempty"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
}

func (h *WSHandler) dispatch(sess *session, env inboundEvent) {
	switch env.Type {
	case ws.EventJoinConversation:
		h.handleJoin(sess, env.Data)
	case ws.EventLeaveConversation:
		h.handleLeave(sess, env.Data)
	case ws.EventSendMessage:
		h.handleSend(sess, env.Data)
	case ws.EventEditMessage:
		h.handleEdit(sess, env.Data)
	case ws.EventDeleteMessage:
		h.handleDelete(sess, env.Data)
	case ws.EventAddReaction:
		h.handleReaction(sess, env.Data)
	case ws.EventMarkAsRead:
		h.handleMarkRead(sess, env.Data)
	case ws.EventTypingStart, ws.EventTypingStop:
		h.handleTyping(sess, env.Data, env.Type == ws.EventTypingStart)
	case ws.EventGetOnlineUsers:
		h.sendEvent(sess, ws.Event{Type: ws.EventOnlineUsers, Data: fiber.Map{"users": h.registry.OnlineUsers()}})
	default:
		log.Printf("Unknown event %q from client %s", env.Type, sess.user.ID)
	}
}

func (h *WSHandler) handleJoin(sess *session, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	switch {
	case p.ConversationID != nil:
		conv, err := h.store.GetConversation(*p.ConversationID)
		if err != nil || !h.authz.CanAccessConversation(sess.user.ID, conv) {
			return
		}
		h.registry.Join(ws.ConversationRoomID(conv.ID), sess.client)
		h.sendEvent(sess, ws.Event{Type: ws.EventJoined, Data: fiber.Map{"conversation_id": conv.ID}})
	case p.OtherUserID != nil:
		room := ws.DirectRoomID(sess.user.ID, *p.OtherUserID)
		h.registry.Join(room, sess.client)
		h.sendEvent(sess, ws.Event{Type: ws.EventJoined, Data: fiber.Map{"room_id": room}})
	}
}

func (h *WSHandler) handleLeave(sess *session, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	switch {
	case p.ConversationID != nil:
		h.registry.Leave(ws.ConversationRoomID(*p.ConversationID), sess.client)
	case p.OtherUserID != nil:
		h.registry.Leave(ws.DirectRoomID(sess.user.ID, *p.OtherUserID), sess.client)
	}
}

func (h *WSHandler) handleSend(sess *session, data json.RawMessage) {
	var input services.SendMessageInput
	if err := json.Unmarshal(data, &input); err != nil {
		h.sendError(sess, ws.EventMessageError, "Cannot parse message")
		return
	}

	message, conversation, err := h.messages.Send(sess.user.ID, input)
	if err != nil {
		h.sendError(sess, ws.EventMessageError, socketReason(err))
		return
	}

	// Ack to the sending connection; the pipeline already fanned out
	// new_message to everyone else.
	h.sendEvent(sess, ws.Event{
		Type: ws.EventMessageSent,
		Data: fiber.Map{"message": message, "conversation_id": conversation.ID},
	})
}

func (h *WSHandler) handleEdit(sess *session, data json.RawMessage) {
	var p editPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(sess, ws.EventEditError, "Cannot parse edit request")
		return
	}
	if _, err := h.messages.Edit(sess.user.ID, p.MessageID, p.Message); err != nil {
		h.sendError(sess, ws.EventEditError, socketReason(err))
	}
}

func (h *WSHandler) handleDelete(sess *session, data json.RawMessage) {
	var p deletePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(sess, ws.EventDeleteError, "Cannot parse delete request")
		return
	}
	if err := h.messages.Delete(sess.user.ID, p.MessageID); err != nil {
		h.sendError(sess, ws.EventDeleteError, socketReason(err))
	}
}

func (h *WSHandler) handleReaction(sess *session, data json.RawMessage) {
	var p reactionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.sendError(sess, ws.EventReactionError, "Cannot parse reaction")
		return
	}
	if _, err := h.messages.React(sess.user.ID, p.MessageID, p.Reaction); err != nil {
		h.sendError(sess, ws.EventReactionError, socketReason(err))
	}
}

func (h *WSHandler) handleMarkRead(sess *session, data json.RawMessage) {
	var p markReadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	var err error
	switch {
	case p.MessageID != nil:
		err = h.messages.MarkMessageRead(sess.user.ID, *p.MessageID)
	case p.ConversationID != nil:
		err = h.messages.MarkConversationRead(sess.user.ID, *p.ConversationID)
	}
	if err != nil {
		log.Printf("Mark as read failed for client %s: %v", sess.user.ID, err)
	}
}

func (h *WSHandler) handleTyping(sess *session, data json.RawMessage, isTyping bool) {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	h.messages.Typing(sess.user.ID, sess.user.FullName, p.ReceiverID, p.ConversationID, isTyping)
}

func (h *WSHandler) sendEvent(sess *session, e ws.Event) {
	if err := sess.client.Send(e); err != nil {
		log.Printf("Failed to write %s to client %s: %v", e.Type, sess.user.ID, err)
	}
}

func (h *WSHandler) sendError(sess *session, eventType, reason string) {
	h.sendEvent(sess, ws.Event{Type: eventType, Data: fiber.Map{"error": reason}})
}

// socketReason keeps the taxonomy visible over the socket: a rejection
// reason travels verbatim, an internal failure does not.
func socketReason(err error) string {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	if errors.Is(err, services.ErrForbidden) ||
		errors.Is(err, services.ErrNotFound) ||
		errors.Is(err, services.ErrEditWindowExpired) {
		return err.Error()
	}
	return "Something went wrong, please try again"
}
