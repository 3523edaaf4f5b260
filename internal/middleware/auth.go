package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/academia/backend/internal/models"
	"github.com/academia/backend/pkg/logger"
	"github.com/academia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	currentIdentityKey = "currentIdentity"
	currentUserKey     = "currentUser"
	currentStudentKey  = "currentStudent"
)

// Identity is the resolved principal attached to the request context after a
// successful token check. Downstream handlers read it from locals and never
// re-decode the token.
type Identity struct {
	ID    uuid.UUID
	Email string
	Role  models.UserRole
}

type AuthMiddleware struct {
	DB *gorm.DB
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{DB: db}
}

func CORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: "http://localhost:3001,http://127.0.0.1:3001",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// RequireAuth is the single token gate. Role restrictions are layered on via
// RequireRoles; there are no per-role copies of the decode logic.
func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("jwt_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		message := "invalid token"
		if errors.Is(err, utils.ErrTokenExpired) {
			message = "token expired"
		}
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, message)
	}

	if claims.Role == models.RoleStudent {
		var student models.Student
		if err := a.DB.First(&student, "id = ?", claims.UserID).Error; err != nil {
			logger.Warn("jwt_student_not_found", map[string]interface{}{
				"ip":         c.IP(),
				"path":       c.Path(),
				"student_id": claims.UserID,
			})
			return utils.Error(c, fiber.StatusUnauthorized, "account not found")
		}
		c.Locals(currentStudentKey, &student)
	} else {
		var user models.User
		if err := a.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
			logger.Warn("jwt_user_not_found", map[string]interface{}{
				"ip":      c.IP(),
				"path":    c.Path(),
				"user_id": claims.UserID,
			})
			return utils.Error(c, fiber.StatusUnauthorized, "account not found")
		}
		c.Locals(currentUserKey, &user)
	}

	c.Locals(currentIdentityKey, &Identity{
		ID:    claims.UserID,
		Email: claims.Email,
		Role:  claims.Role,
	})
	return c.Next()
}

// RequireRoles guards a route group with a role-membership check against the
// identity RequireAuth resolved. An empty role list admits any authenticated
// principal.
func RequireRoles(roles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := GetIdentity(c)
		if identity == nil {
			return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
		}
		if len(roles) == 0 {
			return c.Next()
		}
		for _, role := range roles {
			if identity.Role == role {
				return c.Next()
			}
		}

		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		logger.Warn("role_forbidden", map[string]interface{}{
			"path":     c.Path(),
			"role":     string(identity.Role),
			"required": names,
		})
		return utils.Error(c, fiber.StatusForbidden, fmt.Sprintf("access restricted to roles: %s", strings.Join(names, ", ")))
	}
}

func GetIdentity(c *fiber.Ctx) *Identity {
	value := c.Locals(currentIdentityKey)
	if value == nil {
		return nil
	}
	identity, ok := value.(*Identity)
	if !ok {
		return nil
	}
	return identity
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

func GetCurrentStudent(c *fiber.Ctx) *models.Student {
	value := c.Locals(currentStudentKey)
	if value == nil {
		return nil
	}
	student, ok := value.(*models.Student)
	if !ok {
		return nil
	}
	return student
}
