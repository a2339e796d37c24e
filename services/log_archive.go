package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"schoolcore/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LogQueueKey is the sorted set of buffered activity log keys, scored by unix time.
const LogQueueKey = "logs:queue"

const minArchiveDays = 7

// ArchiveStore keeps log archives outside the database.
type ArchiveStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type s3ArchiveStore struct {
	client *s3.Client
	bucket string
}

// NewS3ArchiveStore uses the default AWS credential chain for region.
func NewS3ArchiveStore(ctx context.Context, region, bucket string) (ArchiveStore, error) {
	if region == "" || bucket == "" {
		return nil, fmt.Errorf("AWS region and S3 bucket are required for log archives")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &s3ArchiveStore{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (s *s3ArchiveStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *s3ArchiveStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// LogArchiveService flushes buffered activity logs into the database and
// moves old ones into zip archives.
type LogArchiveService struct {
	db    *gorm.DB
	redis *redis.Client
	store ArchiveStore
	now   func() time.Time
}

// NewLogArchiveService accepts a nil redis client or store; the operations
// needing them then return an error.
func NewLogArchiveService(db *gorm.DB, rdb *redis.Client, store ArchiveStore) *LogArchiveService {
	return &LogArchiveService{db: db, redis: rdb, store: store, now: time.Now}
}

// ArchivedLog is one activity log row as written into an archive.
type ArchivedLog struct {
	ID         uint           `json:"id"`
	UserID     uint           `json:"user_id"`
	Username   string         `json:"username,omitempty"`
	UserRole   string         `json:"user_role,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID uint           `json:"resource_id"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	CreatedAt  time.Time      `json:"created_at"`
}

func toArchived(l models.ActivityLog) ArchivedLog {
	a := ArchivedLog{
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
		var details map[string]any
		if err := json.Unmarshal(l.Details, &details); err == nil {
			a.Details = details
		}
	}
	if l.User.ID > 0 {
		a.Username = l.User.Username
		a.UserRole = string(l.User.Role)
	}
	return a
}

// FlushCachedLogs writes every buffered log queued before now-minAge to the
// database and drops it from Redis. It returns how many were written.
func (s *LogArchiveService) FlushCachedLogs(ctx context.Context, minAge time.Duration) (int, error) {
	if s.redis == nil {
		return 0, fmt.Errorf("redis client not available")
	}
	cutoff := s.now().Add(-minAge)
	keys, err := s.redis.ZRangeByScore(ctx, LogQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read log queue: %w", err)
	}

	var flushed, failed int
	for _, key := range keys {
		raw, err := s.redis.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			s.redis.ZRem(ctx, LogQueueKey, key)
			continue
		}
		if err != nil {
			logrus.WithError(err).WithField("key", key).Error("Failed to read cached log")
			failed++
			continue
		}

		var entry models.ActivityLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logrus.WithError(err).WithField("key", key).Error("Dropping unreadable cached log")
			s.redis.Del(ctx, key)
			s.redis.ZRem(ctx, LogQueueKey, key)
			failed++
			continue
		}
		entry.ID = 0
		if err := s.db.WithContext(ctx).Omit("User").Create(&entry).Error; err != nil {
			logrus.WithError(err).WithField("key", key).Error("Failed to persist cached log")
			failed++
			continue
		}

		pipe := s.redis.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, LogQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to remove flushed log from cache")
		}
		flushed++
	}

	logrus.WithFields(logrus.Fields{"flushed": flushed, "failed": failed}).Info("Cached activity logs flushed")
	return flushed, nil
}

// ArchiveOldLogs zips activity logs older than daysOld days, uploads the
// archive, records it and deletes the rows. Nil means there was nothing to archive.
func (s *LogArchiveService) ArchiveOldLogs(ctx context.Context, daysOld int) (*models.LogArchive, error) {
	if daysOld < minArchiveDays {
		return nil, NewValidationError("minimum archive age is %d days", minArchiveDays)
	}
	if s.store == nil {
		return nil, fmt.Errorf("archive storage not configured")
	}
	db := s.db.WithContext(ctx)
	cutoff := s.now().AddDate(0, 0, -daysOld)

	const batchSize = 1000
	var logs []ArchivedLog
	var lastID uint
	for {
		var batch []models.ActivityLog
		if err := db.Preload("User").
			Where("created_at < ? AND id > ?", cutoff, lastID).
			Order("id").
			Limit(batchSize).
			Find(&batch).Error; err != nil {
			return nil, fmt.Errorf("load logs to archive: %w", err)
		}
		for _, l := range batch {
			logs = append(logs, toArchived(l))
		}
		if len(batch) < batchSize {
			break
		}
		lastID = batch[len(batch)-1].ID
	}
	if len(logs) == 0 {
		logrus.Info("No activity logs to archive")
		return nil, nil
	}

	fileName := fmt.Sprintf("activity_logs_%s.zip", cutoff.Format("2006-01-02"))
	buf, err := buildLogArchive(logs, fileName, s.now())
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("logs/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), fileName)

	record := models.LogArchive{
		FileName:    fileName,
		S3Key:       key,
		StartDate:   logs[0].CreatedAt,
		EndDate:     cutoff,
		RecordCount: len(logs),
		FileSize:    int64(buf.Len()),
		Status:      "completed",
	}
	if err := s.store.Put(ctx, key, buf.Bytes(), "application/zip"); err != nil {
		record.Status = "failed"
		record.Error = err.Error()
		if cerr := db.Create(&record).Error; cerr != nil {
			logrus.WithError(cerr).Error("Failed to record failed log archive")
		}
		return nil, fmt.Errorf("upload log archive: %w", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("created_at < ? AND id <= ?", cutoff, logs[len(logs)-1].ID).
			Delete(&models.ActivityLog{}).Error; err != nil {
			return fmt.Errorf("delete archived logs: %w", err)
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"key": key, "records": len(logs)}).Info("Activity logs archived")
	return &record, nil
}

// buildLogArchive writes the logs as JSON and CSV plus a metadata file.
func buildLogArchive(logs []ArchivedLog, fileName string, at time.Time) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	jf, err := zw.Create("activity_logs.json")
	if err != nil {
		return nil, fmt.Errorf("create activity_logs.json: %w", err)
	}
	enc := json.NewEncoder(jf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"export_date":    at.UTC(),
		"record_count":   len(logs),
		"format_version": "1.0",
		"logs":           logs,
	}); err != nil {
		return nil, fmt.Errorf("encode logs: %w", err)
	}

	mf, err := zw.Create("metadata.json")
	if err != nil {
		return nil, fmt.Errorf("create metadata.json: %w", err)
	}
	if err := json.NewEncoder(mf).Encode(map[string]any{
		"file_name":    fileName,
		"created_at":   at.UTC(),
		"record_count": len(logs),
		"date_range": map[string]any{
			"start": logs[0].CreatedAt,
			"end":   logs[len(logs)-1].CreatedAt,
		},
		"schema_version": "1.0",
	}); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	cf, err := zw.Create("activity_logs.csv")
	if err != nil {
		return nil, fmt.Errorf("create activity_logs.csv: %w", err)
	}
	cw := csv.NewWriter(cf)
	_ = cw.Write([]string{"ID", "User ID", "Username", "Role", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, l := range logs {
		details := ""
		if l.Details != nil {
			if b, err := json.Marshal(l.Details); err == nil {
				details = string(b)
			}
		}
		_ = cw.Write([]string{
			strconv.FormatUint(uint64(l.ID), 10),
			strconv.FormatUint(uint64(l.UserID), 10),
			l.Username,
			l.UserRole,
			l.Action,
			l.Resource,
			strconv.FormatUint(uint64(l.ResourceID), 10),
			l.IPAddress,
			l.UserAgent,
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			details,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf, nil
}

func (s *LogArchiveService) ListArchives(ctx context.Context) ([]models.LogArchive, error) {
	var out []models.LogArchive
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list log archives: %w", err)
	}
	return out, nil
}

// OpenArchive streams a stored archive. The caller closes the reader.
func (s *LogArchiveService) OpenArchive(ctx context.Context, id uint) (io.ReadCloser, string, error) {
	var archive models.LogArchive
	if err := s.db.WithContext(ctx).First(&archive, id).Error; err != nil {
		return nil, "", lookupErr(err, "log archive", id)
	}
	if s.store == nil {
		return nil, "", fmt.Errorf("archive storage not configured")
	}
	r, err := s.store.Open(ctx, archive.S3Key)
	if err != nil {
		return nil, "", fmt.Errorf("download log archive %d: %w", id, err)
	}
	return r, archive.FileName, nil
}

// RunMaintenance flushes the Redis buffer, then archives logs older than
// archiveDays. Failures are logged, not returned.
func (s *LogArchiveService) RunMaintenance(ctx context.Context, archiveDays int) {
	if s.redis != nil {
		if _, err := s.FlushCachedLogs(ctx, 0); err != nil {
			logrus.WithError(err).Warn("Log flush failed")
		}
	}
	if s.store != nil {
		if _, err := s.ArchiveOldLogs(ctx, archiveDays); err != nil {
			logrus.WithError(err).Warn("Log archiving failed")
		}
	}
}
