package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"schoolcore/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const cachedLogTTL = 24 * time.Hour

// ActivityLogService records the audit trail. With Redis available entries are
// buffered under LogQueueKey and flushed later by LogArchiveService.
type ActivityLogService struct {
	db    *gorm.DB
	redis *redis.Client
	now   func() time.Time
}

func NewActivityLogService(db *gorm.DB, rdb *redis.Client) *ActivityLogService {
	return &ActivityLogService{db: db, redis: rdb, now: time.Now}
}

// Record stores entry, falling back to a direct insert when the cache write fails.
func (s *ActivityLogService) Record(ctx context.Context, entry models.ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if s.redis != nil {
		err := s.cache(ctx, entry)
		if err == nil {
			return nil
		}
		logrus.WithError(err).Warn("Failed to cache activity log, saving directly to database")
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&entry).Error; err != nil {
		return fmt.Errorf("save activity log: %w", err)
	}
	return nil
}

func (s *ActivityLogService) cache(ctx context.Context, entry models.ActivityLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}
	key := fmt.Sprintf("log:%d:%s:%s", entry.UserID, strings.ToLower(entry.Action), uuid.NewString())

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, key, data, cachedLogTTL)
	pipe.ZAdd(ctx, LogQueueKey, &redis.Z{Score: float64(entry.CreatedAt.Unix()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache log: %w", err)
	}
	return nil
}

type LogFilter struct {
	UserID   uint
	Action   string
	Resource string
	From     *time.Time
	To       *time.Time
	Page
}

// ListLogs returns persisted entries newest first. Buffered entries appear
// after the next flush.
func (s *ActivityLogService) ListLogs(ctx context.Context, f LogFilter) ([]models.ActivityLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.ActivityLog{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", strings.ToUpper(f.Action))
	}
	if f.Resource != "" {
		q = q.Where("resource = ?", f.Resource)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count activity logs: %w", err)
	}
	var out []models.ActivityLog
	if err := f.Page.apply(q).Preload("User").Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list activity logs: %w", err)
	}
	return out, total, nil
}
