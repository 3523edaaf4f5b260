package handlers

import (
	"time"

	"github.com/academia/backend/internal/middleware"
	"github.com/academia/backend/internal/models"
	"github.com/academia/backend/pkg/logger"
	"github.com/academia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const totpIssuer = "Academia"

type MFAHandler struct {
	DB *gorm.DB
}

func NewMFAHandler(db *gorm.DB) *MFAHandler {
	return &MFAHandler{DB: db}
}

func (h *MFAHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var twoFactor models.TwoFactorConfig
	hasConfig := h.DB.First(&twoFactor, "user_id = ?", user.ID).Error == nil

	var verifiedAt *time.Time
	if hasConfig {
		verifiedAt = twoFactor.VerifiedAt
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"enabled":    hasConfig && twoFactor.Enabled,
		"verifiedAt": verifiedAt,
	})
}

// TOTPSetup generates a fresh secret and returns it with a scannable
// enrollment image. The secret is stored encrypted but stays disabled until
// TOTPVerifySetup sees a correct code.
func (h *MFAHandler) TOTPSetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var existing models.TwoFactorConfig
	if err := h.DB.First(&existing, "user_id = ?", user.ID).Error; err == nil && existing.Enabled {
		return utils.Error(c, fiber.StatusConflict, "two-factor is already enabled")
	}

	key, err := utils.GenerateTOTPKey(totpIssuer, user.Email)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating secret")
	}

	enrollmentImage, err := utils.TOTPImagePNG(key, 200)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed rendering enrollment image")
	}

	encryptedSecret, err := utils.EncryptAESGCM(key.Secret())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed encrypting secret")
	}

	if existing.ID != uuid.Nil {
		if err := h.DB.Model(&existing).Updates(map[string]interface{}{
			"secret":      encryptedSecret,
			"enabled":     false,
			"verified_at": nil,
		}).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed updating two-factor config")
		}
	} else {
		twoFactor := models.TwoFactorConfig{
			UserID: user.ID,
			Secret: encryptedSecret,
		}
		if err := h.DB.Create(&twoFactor).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed saving two-factor config")
		}
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"secret":          key.Secret(),
		"provisioningURI": key.URL(),
		"enrollmentImage": enrollmentImage,
	})
}

type verifySetupRequest struct {
	Code string `json:"code"`
}

func (h *MFAHandler) TOTPVerifySetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req verifySetupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	var twoFactor models.TwoFactorConfig
	if err := h.DB.First(&twoFactor, "user_id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "two-factor setup not started")
	}

	if twoFactor.Enabled {
		return utils.Error(c, fiber.StatusConflict, "two-factor is already enabled")
	}

	secret := utils.DecryptOrPlaintext(twoFactor.Secret)
	if secret == "" {
		return utils.Error(c, fiber.StatusBadRequest, "two-factor setup not started")
	}
	if !utils.ValidateTOTPCode(req.Code, secret) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid verification code")
	}

	now := time.Now()
	if err := h.DB.Model(&twoFactor).Updates(map[string]interface{}{
		"enabled":     true,
		"verified_at": now,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed enabling two-factor")
	}

	logger.Info("twofactor_enabled", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"enabled": true})
}

type disableRequest struct {
	Password string `json:"password"`
}

// TOTPDisable removes the config row entirely. Re-enabling has to start from
// a fresh TOTPSetup; nothing of the old secret survives the disable.
func (h *MFAHandler) TOTPDisable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req disableRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "password is required")
	}

	var dbUser models.User
	if err := h.DB.First(&dbUser, "id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	if !utils.CheckPassword(req.Password, dbUser.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid password")
	}

	var twoFactor models.TwoFactorConfig
	if err := h.DB.First(&twoFactor, "user_id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "two-factor is not configured")
	}

	if err := h.DB.Delete(&twoFactor).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed disabling two-factor")
	}

	logger.Info("twofactor_disabled", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"enabled": false})
}
