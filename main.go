package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"childcare-enrollment/handlers"
	"childcare-enrollment/middleware"
	"childcare-enrollment/models"
	"childcare-enrollment/services"
	"childcare-enrollment/utils"
	"childcare-enrollment/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// openDatabase connects with the configured driver. SQLite is for local
// development; it gets a single connection so queue writers queue up instead
// of failing with SQLITE_BUSY.
func openDatabase(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (use postgres or sqlite)", driver)
	}
}

func newFileStore(ctx context.Context) (utils.FileStore, error) {
	switch utils.SafeEnv("FILE_STORE", "local") {
	case "r2":
		return utils.NewR2FileStore(ctx, utils.R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			Endpoint:        os.Getenv("R2_ENDPOINT"),
		})
	case "local":
		store := utils.NewLocalFileStore(utils.SafeEnv("UPLOAD_DIR", "uploads"))
		if err := store.EnsureUploadDir(); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported FILE_STORE %q (use local or r2)", os.Getenv("FILE_STORE"))
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbDriver := utils.SafeEnv("DB_DRIVER", "postgres")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := openDatabase(dbDriver, dsn)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Institution{},
		&models.Class{},
		&models.Application{},
		&models.ApplicationParticipant{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	files, err := newFileStore(ctx)
	if err != nil {
		log.Fatal("failed to initialize file store:", err)
	}

	var notifier services.Notifier = services.LogNotifier{}
	if mailURL := os.Getenv("MAIL_SERVICE_URL"); mailURL != "" {
		notifier = services.NewHTTPMailer(mailURL, os.Getenv("MAIL_SERVICE_TOKEN"))
	} else {
		log.Println("⚠️  MAIL_SERVICE_URL not set, status mails will only be logged")
	}

	waitlistService := services.NewWaitlistService(db)
	applicationService := services.NewApplicationService(db, waitlistService, files, notifier)

	auditInterval := utils.EnvDuration("WAITLIST_AUDIT_INTERVAL", 15*time.Minute)
	sched, err := waitlistService.StartReconcileScheduler(ctx, auditInterval)
	if err != nil {
		log.Fatal("failed to start waitlist scheduler:", err)
	}
	defer func() { _ = sched.Shutdown() }()

	if registryURL := os.Getenv("REGISTRY_SERVICE_URL"); registryURL != "" {
		syncWorker := workers.NewInstitutionSyncWorker(db, registryURL, "/api/v1/public/institutions",
			os.Getenv("REGISTRY_SERVICE_TOKEN"), utils.EnvDuration("INSTITUTION_SYNC_INTERVAL", 10*time.Minute))
		syncWorker.Start(ctx)
	} else {
		log.Println("⚠️  REGISTRY_SERVICE_URL not set, institution sync disabled")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: utils.EnvInt("BODY_LIMIT_MB", 25) * 1024 * 1024,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(os.Getenv("GATEWAY_SERVICE_TOKEN")))

	allowedOrigins := utils.SplitList(utils.SafeEnv("ALLOWED_ORIGINS", "http://localhost:3000"))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupApplicationRoutes(app, applicationService, waitlistService)

	port := utils.SafeEnv("PORT", "5300")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s (db=%s)", port, dbDriver)
	log.Printf("✅ Waitlist reconcile every %s", auditInterval)
	log.Printf("✅ CORS configured for origins: %v", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
