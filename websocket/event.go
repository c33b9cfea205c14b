package websocket

import "github.com/google/uuid"

// Outbound event names.
const (
	EventNewMessage       = "new_message"
	EventMessageSent      = "message_sent"
	EventMessageEdited    = "message_edited"
	EventMessageDeleted   = "message_deleted"
	EventMessageReaction  = "message_reaction"
	EventMessageRead      = "message_read"
	EventConversationRead = "conversation_read"
	EventUserTyping       = "user_typing"
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
	EventJoined           = "joined_conversation"
	EventOnlineUsers      = "online_users"

	EventMessageError  = "message_error"
	EventEditError     = "edit_error"
	EventDeleteError   = "delete_error"
	EventReactionError = "reaction_error"
)

// Inbound event names.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventEditMessage       = "edit_message"
	EventDeleteMessage     = "delete_message"
	EventAddReaction       = "add_reaction"
	EventMarkAsRead        = "mark_as_read"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventGetOnlineUsers    = "get_online_users"
)

// Event is the wire envelope for everything crossing a chat connection.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ConversationRoomID names the room holding every connected participant of
// a conversation.
func ConversationRoomID(conversationID uuid.UUID) string {
	return "conversation_" + conversationID.String()
}

// DirectRoomID names the pairwise room for two users, independent of which
// side joins first.
func DirectRoomID(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return "direct_" + x + "_" + y
}
