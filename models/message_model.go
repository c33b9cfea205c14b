package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageTypeText          = "text"
	MessageTypeImage         = "image"
	MessageTypeVideo         = "video"
	MessageTypeAudio         = "audio"
	MessageTypeFile          = "file"
	MessageTypeSharedContent = "shared_content"
)

// MaxMessageLength mirrors the client-side composer limit.
const MaxMessageLength = 1000

// EditWindow is how long after creation the sender may still edit a message.
const EditWindow = 15 * time.Minute

var MessageTypes = []string{
	MessageTypeText,
	MessageTypeImage,
	MessageTypeVideo,
	MessageTypeAudio,
	MessageTypeFile,
	MessageTypeSharedContent,
}

var AllowedReactions = []string{"👍", "👎", "❤️", "😂", "😮", "😢", "😡"}

type Attachment struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type Reaction struct {
	UserID    uuid.UUID `json:"user_id"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	SharedWorkoutProgram = "workout_program"
	SharedWorkoutSession = "workout_session"
	SharedNutritionPlan  = "nutrition_plan"
	SharedProgressPhoto  = "progress_photo"
)

var SharedContentKinds = []string{
	SharedWorkoutProgram,
	SharedWorkoutSession,
	SharedNutritionPlan,
	SharedProgressPhoto,
}

// SharedContent references platform content attached to a message. The
// metadata variant is selected by Kind; Extra carries anything a future
// content kind may need before it gets its own variant.
type SharedContent struct {
	Kind      string              `json:"kind"`
	ContentID uuid.UUID           `json:"content_id"`
	Workout   *WorkoutShareMeta   `json:"workout,omitempty"`
	Nutrition *NutritionShareMeta `json:"nutrition,omitempty"`
	Extra     map[string]string   `json:"extra,omitempty"`
}

type WorkoutShareMeta struct {
	Title           string `json:"title"`
	Exercises       int    `json:"exercises"`
	DurationMinutes int    `json:"duration_minutes"`
}

type NutritionShareMeta struct {
	Title       string `json:"title"`
	Calories    int    `json:"calories"`
	MealsPerDay int    `json:"meals_per_day"`
}

type Message struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`

	// Seq breaks createdAt ties so near-simultaneous sends keep their
	// insertion order on read.
	Seq int64 `gorm:"autoIncrement;uniqueIndex" json:"seq"`

	ConversationID uuid.UUID  `gorm:"type:uuid;not null;index" json:"conversation_id"`
	SenderID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	ReceiverID     *uuid.UUID `gorm:"type:uuid;index" json:"receiver_id,omitempty"`

	Body        *string `gorm:"type:text" json:"body,omitempty"`
	MessageType string  `gorm:"size:20;not null;default:'text'" json:"message_type"`

	Attachments   []Attachment   `gorm:"serializer:json" json:"attachments,omitempty"`
	SharedContent *SharedContent `gorm:"serializer:json" json:"shared_content,omitempty"`
	ReplyToID     *uuid.UUID     `gorm:"type:uuid" json:"reply_to_id,omitempty"`
	Reactions     []Reaction     `gorm:"serializer:json" json:"reactions,omitempty"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	IsEdited     bool       `gorm:"default:false" json:"is_edited"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	OriginalBody *string    `gorm:"type:text" json:"original_body,omitempty"`

	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	IsDeleted bool       `gorm:"default:false;index" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uuid.UUID `gorm:"type:uuid" json:"deleted_by,omitempty"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// HasContent reports whether the message carries a body or at least one
// attachment. A message must carry one of the two.
func (m *Message) HasContent() bool {
	if m.Body != nil && *m.Body != "" {
		return true
	}
	return len(m.Attachments) > 0
}

// WithinEditWindow reports whether the sender may still edit the body.
func (m *Message) WithinEditWindow(now time.Time) bool {
	return now.Sub(m.CreatedAt) <= EditWindow
}

// ApplyReaction toggles a user's reaction: same symbol removes it, a
// different symbol replaces it, none appends. A user holds at most one
// reaction per message.
func (m *Message) ApplyReaction(userID uuid.UUID, reaction string, now time.Time) {
	for i, r := range m.Reactions {
		if r.UserID != userID {
			continue
		}
		if r.Reaction == reaction {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
		} else {
			m.Reactions[i].Reaction = reaction
			m.Reactions[i].CreatedAt = now
		}
		return
	}
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Reaction: reaction, CreatedAt: now})
}
