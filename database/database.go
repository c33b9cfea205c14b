package database

import (
	"fmt"
	"log"

	config "github.com/fitcoach/fitness_coach/configs"
	"github.com/fitcoach/fitness_coach/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDB() {
	var err error
	dsn := config.Config("DATABASE_URL")

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}

	fmt.Println("✅ Database connected successfully")
}

func Migrate() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
	)
	if err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	fmt.Println("✅ Database migration successful")
}

// SeedDev creates a trainer with one assigned client for local development.
// Enabled with DEV_SEED=true.
func SeedDev() {
	if config.Config("DEV_SEED") != "true" {
		return
	}

	trainerEmail := config.Config("DEV_TRAINER_EMAIL")
	if trainerEmail == "" {
		trainerEmail = "trainer@fitcoach.local"
	}

	var count int64
	if err := DB.Model(&models.User{}).Where("email = ?", trainerEmail).Count(&count).Error; err != nil {
		log.Fatalf("🔥 Failed to check for dev trainer: %v", err)
	}
	if count > 0 {
		log.Println("Dev users already exist.")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(config.Config("DEV_SEED_PASSWORD")), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("🔥 Failed to hash dev password: %v", err)
	}

	trainer := models.User{
		FullName: "Dev Trainer",
		Email:    trainerEmail,
		Password: string(hashedPassword),
		Role:     models.RoleTrainer,
	}
	if err := DB.Create(&trainer).Error; err != nil {
		log.Fatalf("🔥 Failed to seed dev trainer: %v", err)
	}

	client := models.User{
		FullName:  "Dev Client",
		Email:     "client@fitcoach.local",
		Password:  string(hashedPassword),
		Role:      models.RoleClient,
		TrainerID: &trainer.ID,
	}
	if err := DB.Create(&client).Error; err != nil {
		log.Fatalf("🔥 Failed to seed dev client: %v", err)
	}

	log.Println("✅ Dev users seeded successfully")
}
