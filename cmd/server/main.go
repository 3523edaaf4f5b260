package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/academia/backend/internal/config"
	"github.com/academia/backend/internal/database"
	"github.com/academia/backend/internal/handlers"
	"github.com/academia/backend/internal/middleware"
	"github.com/academia/backend/internal/models"
	"github.com/academia/backend/internal/services"
	"github.com/academia/backend/internal/storage"
	"github.com/academia/backend/pkg/logger"
	"github.com/academia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if err := utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours); err != nil {
		log.Fatalf("jwt configuration failed: %v", err)
	}
	encryptionKey := cfg.Encryption.Key
	if encryptionKey == "" {
		logger.Warn("encryption_key_fallback", map[string]interface{}{
			"reason": "ENCRYPTION_KEY not set, deriving from JWT_SECRET",
		})
		encryptionKey = cfg.JWT.Secret
	}
	utils.ConfigureEncryption(encryptionKey)

	db, err := database.Connect(cfg.DB, cfg.Admin)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	var mailer services.Mailer
	if cfg.Mail.SendgridKey != "" {
		mailer = services.NewSendgridMailer(cfg.Mail)
	} else {
		logger.Warn("mail_console_fallback", map[string]interface{}{
			"reason": "SENDGRID_API_KEY not set",
		})
		mailer = services.ConsoleMailer{}
	}

	cardService := services.NewIDCardService(cfg.Gotenberg)
	registrationService := services.NewRegistrationService(db, storageClient, cardService, mailer)

	authHandler := handlers.NewAuthHandler(db)
	mfaHandler := handlers.NewMFAHandler(db)
	usersHandler := handlers.NewUsersHandler(db)
	studentsHandler := handlers.NewStudentsHandler(db, registrationService, storageClient)
	coursesHandler := handlers.NewCoursesHandler(db)
	attendanceHandler := handlers.NewAttendanceHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)
	staffOnly := middleware.RequireRoles(models.UserRoleAdmin, models.UserRoleMaintenance, models.UserRoleTeacher)
	adminOnly := middleware.RequireRoles(models.UserRoleAdmin)

	app := fiber.New(fiber.Config{BodyLimit: 20 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/2fa/verify", authHandler.VerifyTwoFactor)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	mfaRoutes := api.Group("/auth/2fa", authMiddleware.RequireAuth)
	mfaRoutes.Get("/status", mfaHandler.Status)
	mfaRoutes.Post("/totp/setup", mfaHandler.TOTPSetup)
	mfaRoutes.Post("/totp/verify-setup", mfaHandler.TOTPVerifySetup)
	mfaRoutes.Post("/totp/disable", mfaHandler.TOTPDisable)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, adminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Put("/:id", usersHandler.Update)
	userRoutes.Delete("/:id", usersHandler.Delete)

	studentRoutes := api.Group("/students")
	studentRoutes.Post("/register", studentsHandler.Register)
	studentRoutes.Post("/login", studentsHandler.Login)
	studentRoutes.Get("/me", authMiddleware.RequireAuth, studentsHandler.Me)
	studentRoutes.Get("/", authMiddleware.RequireAuth, staffOnly, studentsHandler.List)
	studentRoutes.Get("/:id/courses", authMiddleware.RequireAuth, staffOnly, studentsHandler.ListCourses)
	studentRoutes.Get("/:id", authMiddleware.RequireAuth, staffOnly, studentsHandler.Get)
	studentRoutes.Put("/:id/status", authMiddleware.RequireAuth, adminOnly, studentsHandler.SetStatus)
	studentRoutes.Put("/:id", authMiddleware.RequireAuth, staffOnly, studentsHandler.Update)
	studentRoutes.Delete("/:id", authMiddleware.RequireAuth, adminOnly, studentsHandler.Delete)

	courseRoutes := api.Group("/courses", authMiddleware.RequireAuth)
	courseRoutes.Post("/", staffOnly, coursesHandler.Create)
	courseRoutes.Get("/", coursesHandler.List)
	courseRoutes.Get("/:id", coursesHandler.Get)
	courseRoutes.Put("/:id", staffOnly, coursesHandler.Update)
	courseRoutes.Delete("/:id", adminOnly, coursesHandler.Delete)
	courseRoutes.Post("/:id/enroll", staffOnly, coursesHandler.Enroll)
	courseRoutes.Post("/:id/drop", staffOnly, coursesHandler.Drop)
	courseRoutes.Get("/:id/students", staffOnly, coursesHandler.ListStudents)

	attendanceRoutes := api.Group("/attendance", authMiddleware.RequireAuth, staffOnly)
	attendanceRoutes.Post("/", attendanceHandler.Mark)
	attendanceRoutes.Get("/", attendanceHandler.List)
	attendanceRoutes.Get("/export", attendanceHandler.ExportCSV)

	// Consumed challenge IDs only need to outlive the 5-minute token window.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			utils.CleanupExpiredJTIs()
		}
	}()

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
