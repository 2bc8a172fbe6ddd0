package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/scriptoria/scriptoria-api/internal/config"
	"github.com/scriptoria/scriptoria-api/internal/database"
	"github.com/scriptoria/scriptoria-api/internal/handler"
	"github.com/scriptoria/scriptoria-api/internal/middleware"
	"github.com/scriptoria/scriptoria-api/internal/models"
	"github.com/scriptoria/scriptoria-api/internal/repository"
	"github.com/scriptoria/scriptoria-api/internal/router"
	"github.com/scriptoria/scriptoria-api/internal/service"
	cloud "github.com/scriptoria/scriptoria-api/pkg/cloudinary"
	"github.com/scriptoria/scriptoria-api/pkg/extract"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Cohort{},
		&models.Template{},
		&models.TemplatePage{},
		&models.Assignment{},
		&models.ChapterSchedule{},
		&models.Paper{},
		&models.Violation{},
		&models.IntegrityProfile{},
		&models.ActivityLog{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	templateRepo := repository.NewTemplateRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	paperRepo := repository.NewPaperRepository(db)
	userRepo := repository.NewUserRepository(db)
	violationRepo := repository.NewViolationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	events := service.NewEventPublisher(redisClient, natsConn, cfg.EventChannel, logger)
	activityService := service.NewActivityService(activityRepo, logger)

	templateService, err := service.NewTemplateService(templateRepo, validate, logger)
	if err != nil {
		log.Fatalf("failed to create template service: %v", err)
	}

	violationService := service.NewViolationService(violationRepo, validate, redisClient, cfg.ViolationCacheTTL, cfg.ViolationThreshold, activityService, events, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, templateRepo, paperRepo, userRepo, validate, events, logger)
	integrityService := service.NewIntegrityService(paperRepo, validate, activityService, events, cfg.IntegrityTolerance, logger)

	minimumScore := 100 - cfg.IntegrityTolerance
	paperService := service.NewPaperService(paperRepo, userRepo, validate, violationService, activityService, events, minimumScore, logger)
	finalDocumentService := service.NewFinalDocumentService(paperRepo, userRepo, paperService, uploader, extract.New(), integrityService, validate, activityService, events, logger)
	gradingService := service.NewGradingService(paperRepo, validate, activityService, events, minimumScore, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		TemplateHandler:      handler.NewTemplateHandler(templateService, logger),
		AssignmentHandler:    handler.NewAssignmentHandler(assignmentService, logger),
		PaperHandler:         handler.NewPaperHandler(paperService, logger),
		FinalDocumentHandler: handler.NewFinalDocumentHandler(finalDocumentService, logger),
		IntegrityHandler:     handler.NewIntegrityHandler(integrityService, logger),
		GradingHandler:       handler.NewGradingHandler(gradingService, logger),
		ViolationHandler:     handler.NewViolationHandler(violationService, logger),
		ActivityHandler:      handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
