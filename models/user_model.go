package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleTrainer = "trainer"
	RoleClient  = "client"
)

// User is owned by the account-management side of the platform. The chat
// core only reads it (directory lookups, messaging authorization) and
// touches LastActivity when the last connection of a user goes away.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	FullName string    `gorm:"size:255;not null" json:"full_name"`
	Email    string    `gorm:"size:255;not null;unique" json:"email"`
	Password string    `gorm:"not null" json:"-"`
	Role     string    `gorm:"size:20;not null;default:'client'" json:"role"`

	// TrainerID links a client to their assigned trainer. Nil for trainers.
	TrainerID *uuid.UUID `gorm:"type:uuid;index" json:"trainer_id,omitempty"`

	ProfilePictureURL *string `gorm:"size:255" json:"profile_picture_url,omitempty"`

	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastActivity *time.Time `json:"last_activity,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) IsTrainer() bool { return u.Role == RoleTrainer }

func (u *User) IsClient() bool { return u.Role == RoleClient }
