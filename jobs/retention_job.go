package jobs

import (
	"log"
	"time"

	"github.com/fitcoach/fitness_coach/database"
	"github.com/fitcoach/fitness_coach/models"
	"gorm.io/gorm"
)

// PurgeExpiredMessages soft-deletes messages past the auto-delete window of
// conversations that opted in. Rows stay in storage for audit; they only
// disappear from listings and search.
func PurgeExpiredMessages() {
	log.Println("Running job: PurgeExpiredMessages...")

	var conversations []models.Conversation
	err := database.DB.
		Where("settings_auto_delete_enabled = ? AND is_active = ?", true, true).
		Find(&conversations).Error
	if err != nil {
		log.Printf("Error loading auto-delete conversations: %v", err)
		return
	}

	now := time.Now()
	for _, conv := range conversations {
		days := conv.Settings.AutoDeleteAfterDays
		if days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -days)

		res := database.DB.Model(&models.Message{}).
			Where("conversation_id = ? AND is_deleted = ? AND created_at < ?", conv.ID, false, cutoff).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"deleted_at": now,
			})
		if res.Error != nil {
			log.Printf("Error purging conversation %s: %v", conv.ID, res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}

		err = database.DB.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			UpdateColumn("message_count", gorm.Expr("GREATEST(message_count - ?, 0)", res.RowsAffected)).Error
		if err != nil {
			log.Printf("Error adjusting message count for conversation %s: %v", conv.ID, err)
		}

		log.Printf("Purged %d expired messages from conversation %s", res.RowsAffected, conv.ID)
	}
}
