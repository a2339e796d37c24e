package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"schoolcore/models"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

const revokedTokenPrefix = "blacklist:jwt:"

type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller, resolved once per request.
type Principal struct {
	UserID   uint
	Username string
	Role     models.Role
}

// Role groups guarding the route families.
var (
	FinanceRoles    = []models.Role{models.RoleAdmin, models.RoleHeadmaster, models.RoleBursar}
	AcademicRoles   = []models.Role{models.RoleAdmin, models.RoleHeadmaster, models.RoleTeacher}
	ManagementRoles = []models.Role{models.RoleAdmin, models.RoleHeadmaster}
	AdminRoles      = []models.Role{models.RoleAdmin}
)

// Authenticator issues and verifies bearer tokens.
type Authenticator struct {
	db     *gorm.DB
	redis  *redis.Client
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator checks revoked tokens in rdb when it is not nil.
func NewAuthenticator(db *gorm.DB, rdb *redis.Client, secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{db: db, redis: rdb, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken creates a new JWT token for a user
func (a *Authenticator) GenerateToken(user *models.User) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	return signed, expires, err
}

func (a *Authenticator) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrBadAuthHeader     = errors.New("invalid authorization header format")
)

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return "", ErrBadAuthHeader
	}
	return tokenString, nil
}

// Middleware validates the bearer token and stores the Principal and user.
func (a *Authenticator) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := BearerToken(c)
		if errors.Is(err, ErrMissingAuthHeader) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization header"})
		}
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid authorization header format"})
		}

		claims, err := a.parse(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		role, ok := models.ParseRole(claims.Role)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
		}

		if a.redis != nil {
			n, err := a.redis.Exists(c.UserContext(), revokedTokenPrefix+tokenString).Result()
			if err == nil && n > 0 {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token has been revoked"})
			}
		}

		// Verify user still exists and is active
		var user models.User
		if err := a.db.WithContext(c.UserContext()).Where("id = ? AND status = ?", claims.UserID, "active").First(&user).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found or inactive"})
		}
		if user.Role != role {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token role is out of date"})
		}

		c.Locals("user", &user)
		c.Locals("principal", &Principal{UserID: user.ID, Username: user.Username, Role: role})
		return c.Next()
	}
}

// Revoke blacklists tokenString until it would have expired anyway.
func (a *Authenticator) Revoke(ctx context.Context, tokenString string) error {
	if a.redis == nil {
		return errors.New("redis client not available")
	}
	ttl := a.ttl
	if claims, err := a.parse(tokenString); err == nil && claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(a.now())
	}
	if ttl <= 0 {
		return nil
	}
	return a.redis.Set(ctx, revokedTokenPrefix+tokenString, "1", ttl).Err()
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := GetPrincipal(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing user claims"})
		}
		if p.HasRole(roles...) {
			return c.Next()
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Insufficient permissions"})
	}
}

func (p *Principal) HasRole(roles ...models.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// GetPrincipal returns the authenticated caller.
func GetPrincipal(c *fiber.Ctx) (*Principal, error) {
	p, ok := c.Locals("principal").(*Principal)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Principal not found in context")
	}
	return p, nil
}

// GetCurrentUser returns the current authenticated user
func GetCurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "User not found in context")
	}
	return user, nil
}

// CurrentUserID is the caller's id, or nil for unauthenticated requests.
func CurrentUserID(c *fiber.Ctx) *uint {
	if p, err := GetPrincipal(c); err == nil {
		id := p.UserID
		return &id
	}
	return nil
}
