package services

import (
	"time"

	"github.com/fitcoach/fitness_coach/models"
	"github.com/fitcoach/fitness_coach/websocket"
	"github.com/google/uuid"
)

// UserDirectory is the narrow view of user management the chat core needs:
// lookups, plus the single write it performs (last activity on disconnect).
type UserDirectory interface {
	GetUser(id uuid.UUID) (*models.User, error)
	TouchLastActivity(id uuid.UUID, at time.Time) error
}

// ChatStore is the persistence gateway for conversations and messages. The
// production implementation lives in the repository package; tests use
// in-memory fakes.
type ChatStore interface {
	// Transaction runs fn atomically. Everything the send path touches
	// (conversation find-or-insert, message insert, aggregate bump) commits
	// or rolls back together so a failure leaves nothing behind.
	Transaction(fn func(tx ChatStore) error) error

	CreateMessage(m *models.Message) error
	GetMessage(id uuid.UUID) (*models.Message, error)
	SaveMessage(m *models.Message) error
	// MarkMessageDeleted flips the soft-delete fields and reports whether
	// this call was the one that did it (false on an already-deleted row).
	MarkMessageDeleted(id, by uuid.UUID, at time.Time) (bool, error)

	FindDirectConversation(a, b uuid.UUID) (*models.Conversation, error)
	// FindOrCreateDirectConversation is an atomic find-or-insert keyed by
	// the canonical participant pair.
	FindOrCreateDirectConversation(a, b *models.User) (*models.Conversation, error)
	CreateGroupConversation(name string, members []*models.User) (*models.Conversation, error)
	GetConversation(id uuid.UUID) (*models.Conversation, error)
	ListUserConversations(userID uuid.UUID) ([]models.Conversation, error)
	HasSharedConversation(a, b uuid.UUID) (bool, error)

	// RecordMessage bumps the conversation aggregate (lastMessageId,
	// messageCount, lastActivityAt) with atomic column updates.
	RecordMessage(conversationID, messageID uuid.UUID, createdAt time.Time) error
	DecrementMessageCount(conversationID uuid.UUID, by int64) error
	MarkParticipantRead(conversationID, userID uuid.UUID, at time.Time) error

	ListConversationMessages(conversationID uuid.UUID, page, limit int) ([]models.Message, error)
	// MarkMessagesRead bulk-marks every unread message addressed to the
	// reader in a conversation and returns how many rows changed.
	MarkMessagesRead(conversationID, readerID uuid.UUID, at time.Time) (int64, error)
	UnreadCount(conversationID, userID uuid.UUID) (int64, error)
	SearchMessages(userID uuid.UUID, query string, limit int) ([]models.Message, error)
}

// Broadcaster is the fan-out side of the presence registry. Delivery is
// best-effort: a zero count from BroadcastToUser means the target is
// offline, which is never an error.
type Broadcaster interface {
	BroadcastToUser(userID uuid.UUID, e websocket.Event) int
	BroadcastToRoom(room string, e websocket.Event, except uuid.UUID)
	IsOnline(userID uuid.UUID) bool
}
