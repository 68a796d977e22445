package handlers

import (
	"errors"

	"github.com/ecocero/backend/internal/config"
	"github.com/ecocero/backend/internal/middleware"
	"github.com/ecocero/backend/internal/models"
	"github.com/ecocero/backend/internal/services"
	"github.com/ecocero/backend/pkg/logger"
	"github.com/ecocero/backend/pkg/totp"
	"github.com/ecocero/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	qrcode "github.com/skip2/go-qrcode"
	"gorm.io/gorm"
)

type TwoFactorHandler struct {
	DB     *gorm.DB
	Audit  *services.AuditService
	Issuer string
	Window int
}

func NewTwoFactorHandler(db *gorm.DB, audit *services.AuditService, cfg config.TwoFAConfig) *TwoFactorHandler {
	window := cfg.ToleranceWindow
	if window <= 0 {
		window = totp.DefaultWindow
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "EcoCero"
	}
	return &TwoFactorHandler{DB: db, Audit: audit, Issuer: issuer, Window: window}
}

// GenerateSecret starts (or restarts) enrollment for the authenticated
// account. Nothing is persisted here; the secret only reaches storage once
// the user proves possession via Enable. Because of that, calling this
// again regenerates freely and the old secret stays valid until the new
// one is confirmed.
func (h *TwoFactorHandler) GenerateSecret(c *fiber.Ctx) error {
	profile := middleware.GetCurrentProfile(c)
	if profile == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		logger.Error("twofa_secret_generation_failed", err, map[string]interface{}{
			"user_id": profile.ID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate 2FA secret")
	}

	otpauthURL, err := totp.EnrollmentURI(secret, h.Issuer, profile.Email)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to build enrollment URI")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"secret":     secret,
		"otpauthUrl": otpauthURL,
	})
}

type verifyTOTPRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

// VerifyTOTP checks a 6-digit code either against a transient secret
// supplied by the enrollment flow or against the persisted secret of the
// given user during login. It is deliberately unauthenticated: the login
// flow calls it before any session exists. Malformed codes are rejected
// before any stored secret is read.
func (h *TwoFactorHandler) VerifyTOTP(c *fiber.Ctx) error {
	var req verifyTOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}
	if !totp.ValidCodeFormat(req.Token) {
		return utils.Error(c, fiber.StatusBadRequest, "code must be 6 digits")
	}

	secret := req.Secret
	if secret == "" {
		if req.UserID == "" {
			return utils.Error(c, fiber.StatusBadRequest, "userId or secret is required")
		}

		userID, err := parseUUID(req.UserID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid userId")
		}

		var profile models.Profile
		if err := h.DB.First(&profile, "id = ?", userID).Error; err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "2FA is not enabled for this user")
		}
		if profile.TwoFactorSecret == nil || *profile.TwoFactorSecret == "" {
			return utils.Error(c, fiber.StatusBadRequest, "2FA is not enabled for this user")
		}

		secret = utils.DecryptOrPlaintext(*profile.TwoFactorSecret)
	}

	result, err := totp.Verify(req.Token, secret, h.Window)
	if err != nil {
		if errors.Is(err, totp.ErrInvalidSecret) {
			// A transient secret comes straight from the client; a stored
			// one failing to decode is a data-integrity fault we must not
			// detail to the end user.
			if req.Secret != "" {
				return utils.Error(c, fiber.StatusBadRequest, "invalid 2FA secret")
			}
			logger.Error("twofa_stored_secret_invalid", err, map[string]interface{}{
				"user_id": req.UserID,
			})
			return utils.Error(c, fiber.StatusInternalServerError, "verification unavailable")
		}
		return utils.Error(c, fiber.StatusBadRequest, "code must be 6 digits")
	}

	if !result.Valid && req.UserID != "" {
		h.Audit.LogAsync(services.AuditEntry{
			Action:    "2fa.verify_failed",
			Details:   map[string]interface{}{"user_id": req.UserID},
			IPAddress: c.IP(),
			RequestID: getRequestID(c),
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"valid": result.Valid,
	})
}

func (h *TwoFactorHandler) Status(c *fiber.Ctx) error {
	profile := middleware.GetCurrentProfile(c)
	if profile == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"enabled": profile.TwoFactorEnabled,
	})
}

type enableTwoFactorRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

// Enable completes enrollment: the user proves possession of the transient
// secret with a current code, and only then are the secret and flag
// persisted, in a single update.
func (h *TwoFactorHandler) Enable(c *fiber.Ctx) error {
	profile := middleware.GetCurrentProfile(c)
	if profile == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req enableTwoFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Secret == "" {
		return utils.Error(c, fiber.StatusBadRequest, "secret is required")
	}
	if !totp.ValidCodeFormat(req.Code) {
		return utils.Error(c, fiber.StatusBadRequest, "code must be 6 digits")
	}

	result, err := totp.Verify(req.Code, req.Secret, h.Window)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid 2FA secret")
	}
	if !result.Valid {
		return utils.Error(c, fiber.StatusBadRequest, "invalid verification code")
	}

	encrypted, err := utils.EncryptAESGCM(req.Secret)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to store 2FA secret")
	}

	if err := h.DB.Model(&models.Profile{}).Where("id = ?", profile.ID).Updates(map[string]interface{}{
		"two_factor_enabled": true,
		"two_factor_secret":  encrypted,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to enable 2FA")
	}

	logger.Info("twofa_enabled", map[string]interface{}{
		"user_id": profile.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:    &profile.ID,
		Action:    "2fa.enabled",
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"enabled": true,
	})
}

type disableTwoFactorRequest struct {
	Code string `json:"code"`
}

// Disable turns two-factor auth off after re-authentication with a valid
// current code. Flag and secret are cleared together.
func (h *TwoFactorHandler) Disable(c *fiber.Ctx) error {
	profile := middleware.GetCurrentProfile(c)
	if profile == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req disableTwoFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !profile.TwoFactorEnabled || profile.TwoFactorSecret == nil || *profile.TwoFactorSecret == "" {
		return utils.Error(c, fiber.StatusBadRequest, "2FA is not enabled")
	}
	if !totp.ValidCodeFormat(req.Code) {
		return utils.Error(c, fiber.StatusBadRequest, "code must be 6 digits")
	}

	secret := utils.DecryptOrPlaintext(*profile.TwoFactorSecret)
	result, err := totp.Verify(req.Code, secret, h.Window)
	if err != nil {
		logger.Error("twofa_stored_secret_invalid", err, map[string]interface{}{
			"user_id": profile.ID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "verification unavailable")
	}
	if !result.Valid {
		return utils.Error(c, fiber.StatusBadRequest, "invalid verification code")
	}

	if err := h.DB.Model(&models.Profile{}).Where("id = ?", profile.ID).Updates(map[string]interface{}{
		"two_factor_enabled": false,
		"two_factor_secret":  nil,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to disable 2FA")
	}

	logger.Info("twofa_disabled", map[string]interface{}{
		"user_id": profile.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:    &profile.ID,
		Action:    "2fa.disabled",
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"enabled": false,
	})
}

// QR renders the enrollment QR for a transient secret so browser clients
// do not need their own QR library. The secret comes from the query string
// because it is not persisted anywhere server-side before Enable.
func (h *TwoFactorHandler) QR(c *fiber.Ctx) error {
	profile := middleware.GetCurrentProfile(c)
	if profile == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	secret := c.Query("secret")
	if secret == "" {
		return utils.Error(c, fiber.StatusBadRequest, "secret is required")
	}

	uri, err := totp.EnrollmentURI(secret, h.Issuer, profile.Email)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid 2FA secret")
	}

	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to render QR code")
	}

	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}
