package services

import (
	"github.com/fitcoach/fitness_coach/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ConversationService resolves and summarizes conversation aggregates.
type ConversationService struct {
	store     ChatStore
	directory UserDirectory
}

func NewConversationService(store ChatStore, directory UserDirectory) *ConversationService {
	return &ConversationService{store: store, directory: directory}
}

// ConversationSummary is a conversation plus the computed unread count for
// the requesting user.
type ConversationSummary struct {
	models.Conversation
	UnreadCount int64 `json:"unread_count"`
}

// ResolveOrCreate returns the direct conversation between two users,
// creating it if this is first contact. Safe under concurrent first-contact
// sends from both directions: the store's find-or-insert is keyed by the
// canonical participant pair.
func (s *ConversationService) ResolveOrCreate(userID, otherUserID uuid.UUID) (*models.Conversation, error) {
	if userID == otherUserID {
		return nil, ErrInvalidParticipants
	}
	user, err := s.directory.GetUser(userID)
	if err != nil {
		return nil, translate("load user", err)
	}
	other, err := s.directory.GetUser(otherUserID)
	if err != nil {
		return nil, translate("load user", err)
	}
	conv, err := s.store.FindOrCreateDirectConversation(user, other)
	if err != nil {
		return nil, translate("resolve conversation", err)
	}
	return conv, nil
}

// CreateGroup creates a group conversation. The creator must be among the
// members and at least two distinct users are required.
func (s *ConversationService) CreateGroup(creatorID uuid.UUID, name string, memberIDs []uuid.UUID) (*models.Conversation, error) {
	memberIDs = lo.Uniq(append(memberIDs, creatorID))
	if len(memberIDs) < 2 {
		return nil, ErrInvalidParticipants
	}
	members := make([]*models.User, 0, len(memberIDs))
	for _, id := range memberIDs {
		u, err := s.directory.GetUser(id)
		if err != nil {
			return nil, translate("load user", err)
		}
		members = append(members, u)
	}
	conv, err := s.store.CreateGroupConversation(name, members)
	if err != nil {
		return nil, translate("create group conversation", err)
	}
	return conv, nil
}

// ListForUser returns the user's active conversations, most recent activity
// first, each with its unread count.
func (s *ConversationService) ListForUser(userID uuid.UUID) ([]ConversationSummary, error) {
	conversations, err := s.store.ListUserConversations(userID)
	if err != nil {
		return nil, translate("list conversations", err)
	}
	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		unread, err := s.store.UnreadCount(conv.ID, userID)
		if err != nil {
			return nil, translate("count unread messages", err)
		}
		summaries = append(summaries, ConversationSummary{Conversation: conv, UnreadCount: unread})
	}
	return summaries, nil
}
