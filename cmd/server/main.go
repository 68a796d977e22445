package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecocero/backend/internal/config"
	"github.com/ecocero/backend/internal/database"
	"github.com/ecocero/backend/internal/handlers"
	"github.com/ecocero/backend/internal/middleware"
	"github.com/ecocero/backend/internal/services"
	"github.com/ecocero/backend/pkg/logger"
	"github.com/ecocero/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	utils.ConfigureEncryption(cfg.TwoFA.EncryptionSecret)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	auditService := services.NewAuditService(db)
	twoFactorHandler := handlers.NewTwoFactorHandler(db, auditService, cfg.TwoFA)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New())
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	api.Post("/generate-2fa-secret", authMiddleware.RequireAuth, twoFactorHandler.GenerateSecret)
	api.Post("/verify-totp", twoFactorHandler.VerifyTOTP)

	twoFARoutes := api.Group("/2fa", authMiddleware.RequireAuth)
	twoFARoutes.Get("/status", twoFactorHandler.Status)
	twoFARoutes.Post("/enable", twoFactorHandler.Enable)
	twoFARoutes.Post("/disable", twoFactorHandler.Disable)
	twoFARoutes.Get("/qr", twoFactorHandler.QR)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
		"issuer":  cfg.TwoFA.Issuer,
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
			auditService.Close()
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
