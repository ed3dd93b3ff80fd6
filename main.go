package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"habit-companion/handlers"
	"habit-companion/models"
	"habit-companion/services"
	"habit-companion/utils"
	"habit-companion/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 16 * 1024 * 1024, // proof images are capped at 5MB each
	})

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.HabitMirror{},
		&models.CompletionMirror{},
		&models.UserProfileMirror{},
		&models.LifeChallengeRedemption{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	serviceURL := os.Getenv("REDEMPTION_SERVICE_URL")
	if serviceURL == "" {
		log.Fatal("REDEMPTION_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("COMPANION_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("COMPANION_SERVICE_TOKEN environment variable not set")
	}

	clock := clockwork.NewRealClock()
	client := services.NewRedemptionClient(serviceURL, serviceToken)

	syncWorker := workers.NewHabitSyncWorker(db, client, 1*time.Minute)
	store := services.NewRedemptionStore(client, clock, syncWorker)

	workflows := services.NewWorkflowManager(client, clock, func(redemptionID string) services.WorkflowCallbacks {
		return services.WorkflowCallbacks{
			OnApproved: func(v *models.ChallengeValidation) {
				log.Printf("✅ Challenge proof approved for redemption %s", redemptionID)
			},
			OnRejected: func(v *models.ChallengeValidation) {
				log.Printf("❌ Challenge proof rejected for redemption %s", redemptionID)
			},
			RefreshDependents: store.RefreshAfterValidation,
		}
	})

	lifeService := services.NewLifeChallengeService(db, clock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker.Start(ctx)
	store.Start(ctx)
	if err := store.Refresh(ctx, false); err != nil {
		log.Printf("⚠️  initial redemption refresh failed: %v", err)
	}

	evalScheduler, err := lifeService.StartEvaluationScheduler()
	if err != nil {
		log.Fatal("failed to start life-challenge scheduler:", err)
	}

	handlers.SetupRedemptionRoutes(app, store, workflows)
	handlers.SetupLifeChallengeRoutes(app, lifeService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Habit mirror sync worker running")
	log.Println("✅ Redemption store polling + countdown running")
	log.Println("✅ Life-challenge evaluation scheduler running (every 1m)")

	<-ctx.Done()
	log.Println("Shutting down server...")
	store.Stop()
	workflows.TeardownAll()
	_ = evalScheduler.Shutdown()
	_ = app.Shutdown()
}
