package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

type Conversation struct {
	ID   uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Kind string    `gorm:"size:10;not null;default:'direct'" json:"kind"`

	// ParticipantKey is the canonical unordered participant pair for direct
	// conversations. The unique index on it is what makes concurrent
	// first-contact sends resolve to a single conversation. Nil for groups.
	ParticipantKey *string `gorm:"size:80;uniqueIndex" json:"-"`

	Name         *string                   `gorm:"size:255" json:"name,omitempty"`
	Participants []ConversationParticipant `gorm:"constraint:OnDelete:CASCADE" json:"participants"`

	LastMessageID  *uuid.UUID `gorm:"type:uuid" json:"last_message_id,omitempty"`
	LastMessage    *Message   `gorm:"foreignKey:LastMessageID" json:"last_message,omitempty"`
	LastActivityAt time.Time  `gorm:"not null;index" json:"last_activity_at"`
	MessageCount   int64      `gorm:"not null;default:0" json:"message_count"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`

	Settings ConversationSettings  `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`
	Metadata *ConversationMetadata `gorm:"serializer:json" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationMetadata is free-form organizational state clients attach to
// a conversation. The chat core stores and returns it untouched.
type ConversationMetadata struct {
	Tags     []string `json:"tags,omitempty"`
	Priority string   `json:"priority,omitempty"`
}

type ConversationParticipant struct {
	ConversationID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	Role                 string    `gorm:"size:20;not null" json:"role"`
	JoinedAt             time.Time `gorm:"not null" json:"joined_at"`
	LastReadAt           time.Time `gorm:"not null" json:"last_read_at"`
	NotificationsEnabled bool      `gorm:"default:true" json:"notifications_enabled"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

type ConversationSettings struct {
	AllowFileSharing    bool `gorm:"default:true" json:"allow_file_sharing"`
	AllowWorkoutSharing bool `gorm:"default:true" json:"allow_workout_sharing"`
	AutoDeleteEnabled   bool `gorm:"default:false" json:"auto_delete_enabled"`
	AutoDeleteAfterDays int  `gorm:"default:30" json:"auto_delete_after_days"`
}

// DirectParticipantKey canonicalizes an unordered user pair so both send
// directions hit the same uniqueness constraint.
func DirectParticipantKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return strings.Join([]string{x, y}, ":")
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return lo.ContainsBy(c.Participants, func(p ConversationParticipant) bool {
		return p.UserID == userID
	})
}

// OtherParticipantIDs returns every participant except the given user.
func (c *Conversation) OtherParticipantIDs(userID uuid.UUID) []uuid.UUID {
	return lo.FilterMap(c.Participants, func(p ConversationParticipant, _ int) (uuid.UUID, bool) {
		return p.UserID, p.UserID != userID
	})
}
