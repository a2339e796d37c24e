package middleware

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"schoolcore/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const RequestIDHeader = "X-Request-ID"

// ActivityRecorder persists audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry models.ActivityLog) error
}

// RequestID reuses an incoming X-Request-ID or assigns a new uuid.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set(RequestIDHeader, id)
		return c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or "".
func GetRequestID(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"request_id": GetRequestID(c),
			"user_agent": c.Get("User-Agent"),
		}).Info("HTTP Request")

		return err
	}
}

// LogActivity records one audit entry for the current caller. Failures are
// logged and never fail the request.
func LogActivity(c *fiber.Ctx, rec ActivityRecorder, action, resource string, resourceID uint, details map[string]interface{}) {
	entry := models.ActivityLog{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}
	if p, err := GetPrincipal(c); err == nil {
		entry.UserID = p.UserID
	}

	meta := map[string]interface{}{
		"request_id":  GetRequestID(c),
		"method":      c.Method(),
		"path":        c.Path(),
		"status_code": c.Response().StatusCode(),
	}
	if q := string(c.Request().URI().QueryString()); q != "" {
		meta["query"] = q
	}
	for k, v := range details {
		meta[k] = v
	}
	if raw, err := json.Marshal(meta); err == nil {
		entry.Details = datatypes.JSON(raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rec.Record(ctx, entry); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"action":   action,
			"resource": resource,
		}).Error("Failed to record activity log")
	}
}

// LogActivityMiddleware records successful mutating requests made by an
// authenticated caller. Auth endpoints log their own entries.
func LogActivityMiddleware(rec ActivityRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead || strings.Contains(c.Path(), "/auth/") {
			return c.Next()
		}

		err := c.Next()

		action := actionFor(c.Method())
		if action == "" || err != nil || c.Response().StatusCode() >= 400 {
			return err
		}
		if _, perr := GetPrincipal(c); perr != nil {
			return err
		}

		resource, resourceID := resourceOf(c.Path())
		if id, convErr := strconv.ParseUint(c.Params("id"), 10, 64); convErr == nil {
			resourceID = uint(id)
		}
		LogActivity(c, rec, action, resource, resourceID, nil)
		return err
	}
}

func actionFor(method string) string {
	switch method {
	case fiber.MethodPost:
		return "CREATE"
	case fiber.MethodPut, fiber.MethodPatch:
		return "UPDATE"
	case fiber.MethodDelete:
		return "DELETE"
	}
	return ""
}

// resourceOf reads "/api/<resource>/<id>/..." paths.
func resourceOf(path string) (string, uint) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 0 && parts[0] == "api" {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return "", 0
	}
	var id uint
	if len(parts) > 1 {
		if n, err := strconv.ParseUint(parts[1], 10, 64); err == nil {
			id = uint(n)
		}
	}
	return parts[0], id
}
