package repository

import (
	"time"

	"github.com/fitcoach/fitness_coach/models"
	"github.com/fitcoach/fitness_coach/services"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository is the relational persistence gateway for conversations
// and messages. It implements services.ChatStore and services.UserDirectory.
type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Transaction runs fn against a transactional view of the repository.
func (r *ChatRepository) Transaction(fn func(tx services.ChatStore) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&ChatRepository{db: tx})
	})
}

func (r *ChatRepository) GetUser(id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *ChatRepository) TouchLastActivity(id uuid.UUID, at time.Time) error {
	return r.db.Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_activity", at).Error
}

func (r *ChatRepository) CreateMessage(m *models.Message) error {
	return r.db.Create(m).Error
}

func (r *ChatRepository) GetMessage(id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	if err := r.db.First(&msg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *ChatRepository) SaveMessage(m *models.Message) error {
	return r.db.Save(m).Error
}

// MarkMessageDeleted soft-deletes in a single guarded update so two
// concurrent deletes cannot both count as the deleting one.
func (r *ChatRepository) MarkMessageDeleted(id, by uuid.UUID, at time.Time) (bool, error) {
	res := r.db.Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": at,
			"deleted_by": by,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *ChatRepository) FindDirectConversation(a, b uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.Preload("Participants").
		Where("participant_key = ?", models.DirectParticipantKey(a, b)).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindOrCreateDirectConversation is the one find-or-insert in the system
// that must be atomic: the unique index on participant_key plus
// ON CONFLICT DO NOTHING guarantees concurrent first-contact sends from
// both directions land on a single conversation.
func (r *ChatRepository) FindOrCreateDirectConversation(a, b *models.User) (*models.Conversation, error) {
	now := time.Now()
	key := models.DirectParticipantKey(a.ID, b.ID)
	conv := models.Conversation{
		ID:             uuid.New(),
		Kind:           models.ConversationDirect,
		ParticipantKey: &key,
		LastActivityAt: now,
		IsActive:       true,
	}
	res := r.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_key"}},
			DoNothing: true,
		}).
		Omit("Participants").
		Create(&conv)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		participants := []models.ConversationParticipant{
			{ConversationID: conv.ID, UserID: a.ID, Role: a.Role, JoinedAt: now, LastReadAt: now, NotificationsEnabled: true},
			{ConversationID: conv.ID, UserID: b.ID, Role: b.Role, JoinedAt: now, LastReadAt: now, NotificationsEnabled: true},
		}
		if err := r.db.Create(&participants).Error; err != nil {
			return nil, err
		}
	}
	// RowsAffected == 0 means the other side won the race. Either way the
	// canonical row is read back by key, participants included.
	return r.findByKey(key)
}

func (r *ChatRepository) findByKey(key string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.Preload("Participants").Where("participant_key = ?", key).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ChatRepository) CreateGroupConversation(name string, members []*models.User) (*models.Conversation, error) {
	now := time.Now()
	participants := make([]models.ConversationParticipant, 0, len(members))
	for _, m := range members {
		participants = append(participants, models.ConversationParticipant{
			UserID: m.ID, Role: m.Role, JoinedAt: now, LastReadAt: now, NotificationsEnabled: true,
		})
	}
	conv := models.Conversation{
		Kind:           models.ConversationGroup,
		Name:           &name,
		LastActivityAt: now,
		IsActive:       true,
		Participants:   participants,
	}
	if err := r.db.Omit("Participants.User").Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ChatRepository) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.Preload("Participants").First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ChatRepository) ListUserConversations(userID uuid.UUID) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID).
		Where("conversations.is_active = ?", true).
		Preload("Participants.User").
		Preload("LastMessage").
		Order("conversations.last_activity_at DESC").
		Find(&conversations).Error
	return conversations, err
}

func (r *ChatRepository) HasSharedConversation(a, b uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&models.Conversation{}).
		Joins("JOIN conversation_participants cp1 ON cp1.conversation_id = conversations.id AND cp1.user_id = ?", a).
		Joins("JOIN conversation_participants cp2 ON cp2.conversation_id = conversations.id AND cp2.user_id = ?", b).
		Where("conversations.is_active = ?", true).
		Count(&count).Error
	return count > 0, err
}

// RecordMessage bumps the aggregate with atomic column expressions; no
// read-modify-write, so concurrent senders cannot lose updates.
func (r *ChatRepository) RecordMessage(conversationID, messageID uuid.UUID, createdAt time.Time) error {
	return r.db.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumns(map[string]interface{}{
			"message_count":    gorm.Expr("message_count + 1"),
			"last_message_id":  messageID,
			"last_activity_at": gorm.Expr("GREATEST(last_activity_at, ?)", createdAt),
			"updated_at":       time.Now(),
		}).Error
}

func (r *ChatRepository) DecrementMessageCount(conversationID uuid.UUID, by int64) error {
	return r.db.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumn("message_count", gorm.Expr("GREATEST(message_count - ?, 0)", by)).Error
}

func (r *ChatRepository) MarkParticipantRead(conversationID, userID uuid.UUID, at time.Time) error {
	return r.db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		UpdateColumn("last_read_at", at).Error
}

// ListConversationMessages pages newest-first with the insertion sequence
// breaking createdAt ties.
func (r *ChatRepository) ListConversationMessages(conversationID uuid.UUID, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var messages []models.Message
	err := r.db.
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
		Preload("Sender").
		Order("created_at DESC, seq DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *ChatRepository) MarkMessagesRead(conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.Model(&models.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = ? AND is_deleted = ?",
			conversationID, readerID, false, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

func (r *ChatRepository) UnreadCount(conversationID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&models.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = ? AND is_deleted = ?",
			conversationID, userID, false, false).
		Count(&count).Error
	return count, err
}

func (r *ChatRepository) SearchMessages(userID uuid.UUID, query string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.
		Where("(sender_id = ? OR receiver_id = ?) AND is_deleted = ?", userID, userID, false).
		Where("body ILIKE ?", "%"+query+"%").
		Preload("Sender").
		Order("created_at DESC, seq DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
