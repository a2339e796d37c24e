package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"schoolcore/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusDisabled = "disabled"

	defaultServiceName = "School Core API"
	defaultVersion     = "1.0.0"
	defaultTimeout     = 1500 * time.Millisecond
)

var statusRank = map[string]int{
	overallStatusOK:       0,
	overallStatusDegraded: 1,
	overallStatusCritical: 2,
}

// HealthService probes the store and the log buffer and reports whether the
// school data needed for day to day work is in place.
type HealthService struct {
	db          *gorm.DB
	redis       *redis.Client
	environment string
	serviceName string
	version     string
	startTime   time.Time
	timeout     time.Duration
}

type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	UptimeHuman   string             `json:"uptime_human"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	School        *SchoolReadiness   `json:"school,omitempty"`
}

type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// SchoolReadiness is a snapshot of the records every workflow depends on.
// A missing current academic year degrades the report.
type SchoolReadiness struct {
	CurrentAcademicYear string `json:"current_academic_year,omitempty"`
	ActiveEnrollments   int64  `json:"active_enrollments"`
	OpenInvoices        int64  `json:"open_invoices"`
}

// NewHealthService probes db and, when not nil, redis. Redis only buffers
// activity logs, so a failing Redis degrades the report instead of failing it.
func NewHealthService(db *gorm.DB, rdb *redis.Client, environment, serviceName, version string) *HealthService {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultServiceName
	}
	if strings.TrimSpace(version) == "" {
		version = defaultVersion
	}
	return &HealthService{
		db:          db,
		redis:       rdb,
		environment: environment,
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		timeout:     defaultTimeout,
	}
}

func (s *HealthService) SetStartTime(t time.Time) {
	if !t.IsZero() {
		s.startTime = t
	}
}

func (s *HealthService) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

func (s *HealthService) GetHealthReport(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	env := strings.TrimSpace(s.environment)
	if env == "" {
		env = "unknown"
	}
	uptime := time.Since(s.startTime)
	if uptime < 0 {
		uptime = 0
	}
	report := HealthReport{
		Status:        overallStatusOK,
		Service:       s.serviceName,
		Version:       s.version,
		Environment:   env,
		Time:          time.Now().UTC(),
		UptimeSeconds: uptime.Seconds(),
		UptimeHuman:   humanizeDuration(uptime),
	}

	dbDep := s.checkDatabase(ctx)
	report.Dependencies = append(report.Dependencies, dbDep)
	if dbDep.Status != dependencyStatusUp {
		report.Status = combineStatus(report.Status, overallStatusCritical)
	}

	redisDep := s.checkRedis(ctx)
	report.Dependencies = append(report.Dependencies, redisDep)
	if redisDep.Status == dependencyStatusDown {
		report.Status = combineStatus(report.Status, overallStatusDegraded)
	}

	if dbDep.Status == dependencyStatusUp {
		school, err := s.schoolReadiness(ctx)
		if err != nil || school.CurrentAcademicYear == "" {
			report.Status = combineStatus(report.Status, overallStatusDegraded)
		}
		report.School = school
	}
	return report
}

// HTTPStatusForOverall answers 503 only when the store is unreachable.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	if status == overallStatusCritical {
		return 503
	}
	return 200
}

func (s *HealthService) checkDatabase(ctx context.Context) DependencyStatus {
	dep := DependencyStatus{Name: "database", Status: dependencyStatusDown}
	if s.db == nil {
		dep.Error = "database connection not initialised"
		return dep
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		dep.Error = fmt.Sprintf("sql DB handle error: %v", err)
		return dep
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Error = err.Error()
		return dep
	}

	stats := sqlDB.Stats()
	dep.Status = dependencyStatusUp
	dep.Details = map[string]interface{}{
		"driver":           s.db.Dialector.Name(),
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
	}
	return dep
}

func (s *HealthService) checkRedis(ctx context.Context) DependencyStatus {
	dep := DependencyStatus{Name: "redis", Status: dependencyStatusDisabled}
	if s.redis == nil {
		return dep
	}

	pingCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.redis.Ping(pingCtx).Err()
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep
	}

	queued, _ := s.redis.ZCard(pingCtx, LogQueueKey).Result()
	dep.Status = dependencyStatusUp
	dep.Details = map[string]interface{}{
		"address":     s.redis.Options().Addr,
		"queued_logs": queued,
	}
	return dep
}

func (s *HealthService) schoolReadiness(ctx context.Context) (*SchoolReadiness, error) {
	db := s.db.WithContext(ctx)
	out := &SchoolReadiness{}

	var year models.AcademicYear
	if err := db.Select("year_name").Where("is_current = ?", true).Limit(1).Find(&year).Error; err != nil {
		return out, err
	}
	out.CurrentAcademicYear = year.YearName

	if err := db.Model(&models.Enrollment{}).
		Where("status = ?", models.EnrollmentActive).
		Count(&out.ActiveEnrollments).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.Invoice{}).
		Where("status IN ?", []string{models.InvoiceUnpaid, models.InvoicePartial}).
		Count(&out.OpenInvoices).Error; err != nil {
		return out, err
	}
	return out, nil
}

func combineStatus(current, candidate string) string {
	if _, ok := statusRank[current]; !ok {
		current = overallStatusOK
	}
	if r, ok := statusRank[candidate]; ok && r > statusRank[current] {
		return candidate
	}
	return current
}

// humanizeDuration renders whole seconds as "1d 2h 3m 4s", leaving out zero units.
func humanizeDuration(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs <= 0 {
		return "0s"
	}
	units := []struct {
		size   int64
		suffix string
	}{{86400, "d"}, {3600, "h"}, {60, "m"}, {1, "s"}}

	var parts []string
	for _, u := range units {
		if n := secs / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			secs %= u.size
		}
	}
	return strings.Join(parts, " ")
}
