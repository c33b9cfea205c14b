package services

import (
	"log"
	"strings"
	"time"

	"github.com/fitcoach/fitness_coach/models"
	"github.com/fitcoach/fitness_coach/websocket"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MessageService is the pipeline every message intent flows through,
// whether it arrived over REST or over a socket: validate, authorize,
// persist, update the conversation aggregate, then fan out. Persistence
// strictly precedes fan-out; a fan-out miss never affects the outcome.
type MessageService struct {
	store     ChatStore
	directory UserDirectory
	authz     *AuthorizationService
	presence  Broadcaster
}

func NewMessageService(store ChatStore, directory UserDirectory, authz *AuthorizationService, presence Broadcaster) *MessageService {
	return &MessageService{store: store, directory: directory, authz: authz, presence: presence}
}

type SendMessageInput struct {
	ReceiverID     *uuid.UUID            `json:"receiver_id,omitempty"`
	ConversationID *uuid.UUID            `json:"conversation_id,omitempty"`
	Body           *string               `json:"message,omitempty"`
	MessageType    string                `json:"message_type,omitempty"`
	Attachments    []models.Attachment   `json:"attachments,omitempty"`
	SharedContent  *models.SharedContent `json:"shared_content,omitempty"`
	ReplyToID      *uuid.UUID            `json:"reply_to,omitempty"`
}

// Send validates, persists and fans out a new message. Direct sends name a
// receiver and lazily resolve the pair's conversation; group sends name an
// existing conversation. Returns the stored message and its conversation.
func (s *MessageService) Send(senderID uuid.UUID, in SendMessageInput) (*models.Message, *models.Conversation, error) {
	if err := validateSendInput(in); err != nil {
		return nil, nil, err
	}
	sender, err := s.directory.GetUser(senderID)
	if err != nil {
		return nil, nil, translate("load sender", err)
	}

	now := time.Now()
	msg := &models.Message{
		SenderID:      senderID,
		Body:          in.Body,
		MessageType:   messageTypeOrDefault(in.MessageType),
		Attachments:   in.Attachments,
		SharedContent: in.SharedContent,
		ReplyToID:     in.ReplyToID,
		DeliveredAt:   &now,
		IsRead:        false,
	}

	var conv *models.Conversation
	if in.ConversationID != nil {
		conv, err = s.sendToConversation(sender, msg, *in.ConversationID)
	} else {
		conv, err = s.sendDirect(sender, msg, *in.ReceiverID)
	}
	if err != nil {
		return nil, nil, err
	}

	msg.Sender = sender
	payload := map[string]interface{}{"message": msg, "conversation_id": conv.ID}
	delivered := 0
	for _, id := range conv.OtherParticipantIDs(senderID) {
		delivered += s.presence.BroadcastToUser(id, websocket.Event{Type: websocket.EventNewMessage, Data: payload})
	}
	if delivered == 0 {
		// Presence miss: recipients catch up via history fetch.
		log.Printf("No live connections for message %s, stored only", msg.ID)
	}
	return msg, conv, nil
}

// sendDirect resolves the pair's conversation and persists message plus
// aggregate bump in one transaction, so a failure at any step leaves no
// orphaned conversation and nothing to fan out.
func (s *MessageService) sendDirect(sender *models.User, msg *models.Message, receiverID uuid.UUID) (*models.Conversation, error) {
	if sender.ID == receiverID {
		return nil, ErrInvalidParticipants
	}
	receiver, err := s.directory.GetUser(receiverID)
	if err != nil {
		return nil, translate("load receiver", err)
	}
	if !s.authz.CanMessage(sender, receiver) {
		return nil, ErrForbidden
	}

	var conv *models.Conversation
	err = s.store.Transaction(func(tx ChatStore) error {
		var txErr error
		conv, txErr = tx.FindOrCreateDirectConversation(sender, receiver)
		if txErr != nil {
			return txErr
		}
		msg.ConversationID = conv.ID
		msg.ReceiverID = &receiver.ID
		if txErr = tx.CreateMessage(msg); txErr != nil {
			return txErr
		}
		return tx.RecordMessage(conv.ID, msg.ID, msg.CreatedAt)
	})
	if err != nil {
		return nil, translate("send message", err)
	}
	return conv, nil
}

func (s *MessageService) sendToConversation(sender *models.User, msg *models.Message, conversationID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return nil, translate("load conversation", err)
	}
	if !s.authz.CanAccessConversation(sender.ID, conv) {
		return nil, ErrForbidden
	}
	err = s.store.Transaction(func(tx ChatStore) error {
		msg.ConversationID = conv.ID
		if conv.Kind == models.ConversationDirect {
			if other := conv.OtherParticipantIDs(sender.ID); len(other) == 1 {
				msg.ReceiverID = &other[0]
			}
		}
		if txErr := tx.CreateMessage(msg); txErr != nil {
			return txErr
		}
		return tx.RecordMessage(conv.ID, msg.ID, msg.CreatedAt)
	})
	if err != nil {
		return nil, translate("send message", err)
	}
	return conv, nil
}

// Edit replaces the body of a message within the edit window. The first
// edit snapshots the original body; later edits keep that first snapshot.
func (s *MessageService) Edit(actorID, messageID uuid.UUID, newBody string) (*models.Message, error) {
	newBody = strings.TrimSpace(newBody)
	if newBody == "" {
		return nil, &ValidationError{Reason: "the new message body cannot be empty"}
	}
	if len([]rune(newBody)) > models.MaxMessageLength {
		return nil, &ValidationError{Reason: "message cannot exceed 1000 characters"}
	}
	msg, err := s.loadLiveMessage(messageID)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanModify(actorID, msg) {
		return nil, ErrForbidden
	}
	now := time.Now()
	if !msg.WithinEditWindow(now) {
		return nil, ErrEditWindowExpired
	}

	if !msg.IsEdited {
		msg.OriginalBody = msg.Body
	}
	msg.Body = &newBody
	msg.IsEdited = true
	msg.EditedAt = &now
	if err := s.store.SaveMessage(msg); err != nil {
		return nil, translate("save edited message", err)
	}

	s.fanOutToConversation(msg.ConversationID, websocket.Event{
		Type: websocket.EventMessageEdited,
		Data: map[string]interface{}{
			"message_id": msg.ID,
			"new_body":   newBody,
			"edited_at":  now,
			"edited_by":  actorID,
		},
	})
	return msg, nil
}

// Delete soft-deletes a message. Deleting an already-deleted message is a
// no-op success.
func (s *MessageService) Delete(actorID, messageID uuid.UUID) error {
	msg, err := s.store.GetMessage(messageID)
	if err != nil {
		return translate("load message", err)
	}
	if !s.authz.CanModify(actorID, msg) {
		return ErrForbidden
	}
	if msg.IsDeleted {
		return nil
	}
	now := time.Now()
	changed, err := s.store.MarkMessageDeleted(msg.ID, actorID, now)
	if err != nil {
		return translate("delete message", err)
	}
	if !changed {
		// Lost the race against another delete of the same message.
		return nil
	}
	if err := s.store.DecrementMessageCount(msg.ConversationID, 1); err != nil {
		log.Printf("Failed to decrement message count for conversation %s: %v", msg.ConversationID, err)
	}

	s.fanOutToConversation(msg.ConversationID, websocket.Event{
		Type: websocket.EventMessageDeleted,
		Data: map[string]interface{}{
			"message_id": msg.ID,
			"deleted_by": actorID,
			"deleted_at": now,
		},
	})
	return nil
}

// React toggles the actor's reaction on a message and broadcasts the full
// updated reaction list, not a delta.
func (s *MessageService) React(actorID, messageID uuid.UUID, reaction string) (*models.Message, error) {
	if !lo.Contains(models.AllowedReactions, reaction) {
		return nil, &ValidationError{Reason: "unsupported reaction"}
	}
	msg, err := s.loadLiveMessage(messageID)
	if err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(msg.ConversationID)
	if err != nil {
		return nil, translate("load conversation", err)
	}
	if !s.authz.CanAccessConversation(actorID, conv) {
		return nil, ErrForbidden
	}

	msg.ApplyReaction(actorID, reaction, time.Now())
	if err := s.store.SaveMessage(msg); err != nil {
		return nil, translate("save reaction", err)
	}

	s.fanOut(conv, websocket.Event{
		Type: websocket.EventMessageReaction,
		Data: map[string]interface{}{
			"message_id": msg.ID,
			"reactions":  msg.Reactions,
			"updated_by": actorID,
		},
	})
	return msg, nil
}

// MarkMessageRead marks a single message read. Only the receiver can do it
// and re-reading is a no-op; the original sender is notified, not the
// reader.
func (s *MessageService) MarkMessageRead(actorID, messageID uuid.UUID) error {
	msg, err := s.loadLiveMessage(messageID)
	if err != nil {
		return err
	}
	if msg.ReceiverID == nil || *msg.ReceiverID != actorID {
		return nil
	}
	if msg.IsRead {
		return nil
	}
	now := time.Now()
	msg.IsRead = true
	msg.ReadAt = &now
	if err := s.store.SaveMessage(msg); err != nil {
		return translate("mark message read", err)
	}

	s.presence.BroadcastToUser(msg.SenderID, websocket.Event{
		Type: websocket.EventMessageRead,
		Data: map[string]interface{}{
			"message_id": msg.ID,
			"read_by":    actorID,
			"read_at":    now,
		},
	})
	return nil
}

// MarkConversationRead bulk-marks every unread message addressed to the
// actor and bumps the actor's lastReadAt on the conversation. The other
// participants are notified.
func (s *MessageService) MarkConversationRead(actorID, conversationID uuid.UUID) error {
	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return translate("load conversation", err)
	}
	if !s.authz.CanAccessConversation(actorID, conv) {
		return ErrForbidden
	}
	now := time.Now()
	if _, err := s.store.MarkMessagesRead(conv.ID, actorID, now); err != nil {
		return translate("mark conversation read", err)
	}
	if err := s.store.MarkParticipantRead(conv.ID, actorID, now); err != nil {
		return translate("update participant last read", err)
	}

	payload := map[string]interface{}{"conversation_id": conv.ID, "read_by": actorID}
	for _, id := range conv.OtherParticipantIDs(actorID) {
		s.presence.BroadcastToUser(id, websocket.Event{Type: websocket.EventConversationRead, Data: payload})
	}
	return nil
}

// History returns a page of the direct conversation between the actor and
// another user, newest first, and marks the fetched-as-receiver side read.
// No conversation yet means an empty page, not an error.
func (s *MessageService) History(actorID, otherUserID uuid.UUID, page, limit int) ([]models.Message, error) {
	if _, err := s.directory.GetUser(otherUserID); err != nil {
		return nil, translate("load user", err)
	}
	conv, err := s.store.FindDirectConversation(actorID, otherUserID)
	if err != nil {
		if translated := translate("find conversation", err); translated != ErrNotFound {
			return nil, translated
		}
		return []models.Message{}, nil
	}

	messages, err := s.store.ListConversationMessages(conv.ID, page, limit)
	if err != nil {
		return nil, translate("list messages", err)
	}

	now := time.Now()
	if _, err := s.store.MarkMessagesRead(conv.ID, actorID, now); err != nil {
		log.Printf("Failed to mark conversation %s read for %s: %v", conv.ID, actorID, err)
	} else if err := s.store.MarkParticipantRead(conv.ID, actorID, now); err != nil {
		log.Printf("Failed to update last read for %s in conversation %s: %v", actorID, conv.ID, err)
	}
	return messages, nil
}

// Search matches the actor's own non-deleted messages, newest first.
func (s *MessageService) Search(actorID uuid.UUID, query string, limit int) ([]models.Message, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return nil, &ValidationError{Reason: "search query must be at least 2 characters"}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	messages, err := s.store.SearchMessages(actorID, query, limit)
	if err != nil {
		return nil, translate("search messages", err)
	}
	return messages, nil
}

// Typing fans out an ephemeral typing signal. Nothing is persisted and an
// offline target silently drops it.
func (s *MessageService) Typing(actorID uuid.UUID, actorName string, receiverID, conversationID *uuid.UUID, isTyping bool) {
	event := websocket.Event{
		Type: websocket.EventUserTyping,
		Data: map[string]interface{}{
			"user_id":   actorID,
			"name":      actorName,
			"is_typing": isTyping,
		},
	}
	if receiverID != nil {
		s.presence.BroadcastToUser(*receiverID, event)
	}
	if conversationID != nil {
		s.presence.BroadcastToRoom(websocket.ConversationRoomID(*conversationID), event, actorID)
	}
}

func (s *MessageService) loadLiveMessage(id uuid.UUID) (*models.Message, error) {
	msg, err := s.store.GetMessage(id)
	if err != nil {
		return nil, translate("load message", err)
	}
	if msg.IsDeleted {
		return nil, ErrNotFound
	}
	return msg, nil
}

// fanOut delivers an event to every participant of a conversation,
// including the actor's other devices.
func (s *MessageService) fanOut(conv *models.Conversation, e websocket.Event) {
	for _, p := range conv.Participants {
		s.presence.BroadcastToUser(p.UserID, e)
	}
}

// fanOutToConversation is fanOut for callers that only hold the
// conversation id. The write already committed at this point, so a lookup
// failure downgrades to a logged presence miss.
func (s *MessageService) fanOutToConversation(conversationID uuid.UUID, e websocket.Event) {
	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		log.Printf("Fan-out skipped, cannot load conversation %s: %v", conversationID, err)
		return
	}
	s.fanOut(conv, e)
}

func validateSendInput(in SendMessageInput) error {
	if in.ReceiverID == nil && in.ConversationID == nil {
		return &ValidationError{Reason: "a receiver or a conversation is required"}
	}
	hasBody := in.Body != nil && strings.TrimSpace(*in.Body) != ""
	if !hasBody && len(in.Attachments) == 0 {
		return ErrInvalidMessage
	}
	if hasBody && len([]rune(*in.Body)) > models.MaxMessageLength {
		return &ValidationError{Reason: "message cannot exceed 1000 characters"}
	}
	if in.MessageType != "" && !lo.Contains(models.MessageTypes, in.MessageType) {
		return &ValidationError{Reason: "unsupported message type"}
	}
	if in.SharedContent != nil && !lo.Contains(models.SharedContentKinds, in.SharedContent.Kind) {
		return &ValidationError{Reason: "unsupported shared content kind"}
	}
	return nil
}

func messageTypeOrDefault(t string) string {
	if t == "" {
		return models.MessageTypeText
	}
	return t
}
