package main

import (
	"log"
	"time"

	"github.com/fitcoach/fitness_coach/database"
	"github.com/fitcoach/fitness_coach/handlers"
	"github.com/fitcoach/fitness_coach/jobs"
	"github.com/fitcoach/fitness_coach/repository"
	"github.com/fitcoach/fitness_coach/routes"
	"github.com/fitcoach/fitness_coach/services"
	"github.com/fitcoach/fitness_coach/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.SeedDev()

	c := cron.New()
	c.AddFunc("@hourly", jobs.PurgeExpiredMessages)
	go c.Start()
	log.Println("✅ Cron job for message retention scheduled successfully.")

	repo := repository.NewChatRepository(database.DB)
	registry := websocket.NewRegistry()
	authz := services.NewAuthorizationService(repo)
	conversationService := services.NewConversationService(repo, repo)
	messageService := services.NewMessageService(repo, repo, authz, registry)

	chatHandler := handlers.NewChatHandler(messageService, conversationService)
	wsHandler := handlers.NewWSHandler(registry, messageService, repo, repo, authz)

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "Fitness Coach",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Fitness Coach API",
		})
	})

	routes.ChatRoutes(app, chatHandler, wsHandler)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Println("✅ Server is running on port 8080")
	err := app.Listen(":8080")
	if err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
