package controllers

import (
	"encoding/json"
	"strconv"
	"time"

	"schoolcore/models"
	"schoolcore/services"

	"github.com/gofiber/fiber/v2"
)

type LogController struct {
	activity *services.ActivityLogService
	archive  *services.LogArchiveService
}

func NewLogController(activity *services.ActivityLogService, archive *services.LogArchiveService) *LogController {
	return &LogController{activity: activity, archive: archive}
}

// LogResponse represents a log entry response
type LogResponse struct {
	ID         uint                   `json:"id"`
	UserID     uint                   `json:"user_id"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID uint                   `json:"resource_id"`
	Details    map[string]interface{} `json:"details"`
	IPAddress  string                 `json:"ip_address"`
	UserAgent  string                 `json:"user_agent"`
	CreatedAt  time.Time              `json:"created_at"`
	User       *UserBasicInfo         `json:"user,omitempty"`
}

type UserBasicInfo struct {
	ID       uint        `json:"id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

func toLogResponse(l models.ActivityLog) LogResponse {
	out := LogResponse{
		ID:         l.ID,
		UserID:     l.UserID,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		CreatedAt:  l.CreatedAt,
	}
	if len(l.Details) > 0 {
		var details map[string]interface{}
		if err := json.Unmarshal(l.Details, &details); err == nil {
			out.Details = details
		}
	}
	if l.User.ID > 0 {
		out.User = &UserBasicInfo{ID: l.User.ID, Username: l.User.Username, Role: l.User.Role}
	}
	return out
}

// GetLogs retrieves paginated activity logs with filters
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	f := services.LogFilter{
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		Page:     pageOf(c),
	}
	var err error
	if f.UserID, err = queryUint(c, "user_id"); err != nil {
		return respondError(c, err)
	}
	if f.From, f.To, err = queryRange(c); err != nil {
		return respondError(c, err)
	}

	logs, total, err := lc.activity.ListLogs(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]LogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, toLogResponse(l))
	}
	return c.JSON(fiber.Map{
		"logs":       out,
		"pagination": pagination(f.Page, total),
	})
}

// FlushCache writes every buffered log from Redis to the database.
func (lc *LogController) FlushCache(c *fiber.Ctx) error {
	n, err := lc.archive.FlushCachedLogs(c.UserContext(), 0)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"message":       "Cached logs flushed",
		"flushed_count": n,
	})
}

// ArchiveLogs archives logs older than ?days= (default 30, minimum 7) now.
func (lc *LogController) ArchiveLogs(c *fiber.Ctx) error {
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil {
		return respondError(c, badRequest("Invalid days parameter"))
	}
	rec, err := lc.archive.ArchiveOldLogs(c.UserContext(), days)
	if err != nil {
		return respondError(c, err)
	}
	if rec == nil {
		return c.JSON(fiber.Map{"message": "No logs to archive"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Logs archived successfully",
		"archive": rec,
	})
}

func (lc *LogController) GetArchives(c *fiber.Ctx) error {
	archives, err := lc.archive.ListArchives(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"archives": archives, "total": len(archives)})
}

// DownloadArchive streams the zip of one completed archive.
func (lc *LogController) DownloadArchive(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	body, name, err := lc.archive.OpenArchive(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Attachment(name)
	return c.SendStream(body)
}
