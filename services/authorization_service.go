package services

import (
	"log"

	"github.com/fitcoach/fitness_coach/models"
	"github.com/google/uuid"
)

// AuthorizationService answers yes/no questions about who may message or
// touch what. Absence of permission is normal control flow, so every method
// returns a plain bool.
type AuthorizationService struct {
	store ChatStore
}

func NewAuthorizationService(store ChatStore) *AuthorizationService {
	return &AuthorizationService{store: store}
}

// CanMessage permits trainer↔assigned-client pairs, and otherwise falls
// back to "they already share a conversation" for group and legacy cases.
func (s *AuthorizationService) CanMessage(actor, target *models.User) bool {
	if actor == nil || target == nil || actor.ID == target.ID {
		return false
	}
	if !target.IsActive {
		return false
	}
	if actor.IsTrainer() && target.IsClient() &&
		target.TrainerID != nil && *target.TrainerID == actor.ID {
		return true
	}
	if actor.IsClient() && actor.TrainerID != nil && *actor.TrainerID == target.ID {
		return true
	}
	shared, err := s.store.HasSharedConversation(actor.ID, target.ID)
	if err != nil {
		log.Printf("Shared-conversation check failed for %s -> %s: %v", actor.ID, target.ID, err)
		return false
	}
	return shared
}

// CanModify permits edits and deletes only to the original sender.
func (s *AuthorizationService) CanModify(actorID uuid.UUID, m *models.Message) bool {
	return m != nil && m.SenderID == actorID
}

// CanAccessConversation permits participants only.
func (s *AuthorizationService) CanAccessConversation(actorID uuid.UUID, c *models.Conversation) bool {
	return c != nil && c.HasParticipant(actorID)
}
