package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"schoolcore/config"
	"schoolcore/database"
	"schoolcore/database/seeders"
	"schoolcore/middleware"
	"schoolcore/routes"
	"schoolcore/services"
	"schoolcore/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

func init() {
	// Load configuration
	config.LoadConfig()

	// Initialize logging
	setupLogging(config.AppConfig)

	// Connect to database
	database.Connect()

	if err := seeders.SeedAdmin(database.DB, config.AppConfig.SeedAdminUsername, config.AppConfig.SeedAdminPassword); err != nil {
		logrus.WithError(err).Error("Failed to seed admin user")
	}
}

func main() {
	cfg := config.AppConfig
	db := database.GetDB()
	rdb := database.GetRedisClient()

	deps := routes.Dependencies{
		DB:          db,
		Auth:        middleware.NewAuthenticator(db, rdb, cfg.JWTSecret, cfg.JWTExpiresIn),
		Activity:    services.NewActivityLogService(db, rdb),
		Health:      services.NewHealthService(db, rdb, cfg.AppEnv, "School Core API", version),
		Grades:      services.NewGradeService(db, services.NewScoreEngine(services.WeightsFromConfig(cfg))),
		Rankings:    services.NewRankingService(db),
		Students:    services.NewStudentService(db),
		Enrollment:  services.NewEnrollmentService(db),
		Academic:    services.NewAcademicService(db),
		Ledger:      services.NewLedgerService(db, cfg.InvoiceDueDays),
		Payroll:     services.NewPayrollService(db, cfg.SalaryTaxRate),
		Timetable:   services.NewTimetableService(db),
		MaxFileSize: cfg.MaxFileSize,
	}

	if store, err := storage.NewStorageService(storage.Options{
		Region:            cfg.AWSRegion,
		Bucket:            cfg.S3BucketName,
		AccessKeyID:       cfg.AWSAccessKeyID,
		SecretAccessKey:   cfg.AWSSecretAccessKey,
		MaxFileSize:       cfg.MaxFileSize,
		AllowedExtensions: strings.Split(cfg.AllowedExtensions, ","),
	}); err != nil {
		logrus.WithError(err).Warn("Receipt storage disabled")
	} else {
		deps.Storage = store
	}

	archiveStore, err := services.NewS3ArchiveStore(context.Background(), cfg.AWSRegion, cfg.S3BucketName)
	if err != nil {
		logrus.WithError(err).Warn("Log archive uploads disabled")
	}
	deps.Archive = services.NewLogArchiveService(db, rdb, archiveStore)

	// Start log maintenance scheduler
	scheduleManager := services.NewScheduleManager()
	if cfg.EnableLogMaintenance {
		if err := scheduleManager.AddLogMaintenance(cfg.LogMaintenanceCron, deps.Archive, cfg.LogArchiveDays); err != nil {
			logrus.WithError(err).Error("Log maintenance not scheduled")
		}
	}
	scheduleManager.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.MaxFileSize),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization," + middleware.RequestIDHeader,
	}))

	// Custom middleware
	app.Use(middleware.RequestID())
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware(deps.Activity))

	// API routes
	routes.SetupRoutes(app, deps)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		addr := ":" + cfg.Port
		logrus.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.AppEnv,
			"version":     version,
		}).Info("Server starting")
		if err := app.Listen(addr); err != nil {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	scheduleManager.Stop(ctx)
	if _, err := deps.Archive.FlushCachedLogs(ctx, 0); err != nil && rdb != nil {
		logrus.WithError(err).Warn("Final log flush failed")
	}
	database.Close()
}

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// Log to stdout in development, to the log file otherwise
	if cfg.AppEnv == "development" || cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logrus.SetOutput(file)
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":      err.Error(),
		"path":       c.Path(),
		"method":     c.Method(),
		"ip":         c.IP(),
		"status":     code,
		"request_id": middleware.GetRequestID(c),
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
