package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"schoolcore/database"
	"schoolcore/middleware"
	"schoolcore/models"
	"schoolcore/services"
	"schoolcore/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var dbCounter int64

type fixture struct {
	app *fiber.App
	db  *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:routes_%d?mode=memory&cache=shared", atomic.AddInt64(&dbCounter, 1))
	db, err := database.OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	deps := Dependencies{
		DB:          db,
		Auth:        middleware.NewAuthenticator(db, nil, "test-secret-0123456789", time.Hour),
		Activity:    services.NewActivityLogService(db, nil),
		Archive:     services.NewLogArchiveService(db, nil, nil),
		Health:      services.NewHealthService(db, nil, "test", "School Core API", "test"),
		Grades:      services.NewGradeService(db, nil),
		Rankings:    services.NewRankingService(db),
		Students:    services.NewStudentService(db),
		Enrollment:  services.NewEnrollmentService(db),
		Academic:    services.NewAcademicService(db),
		Ledger:      services.NewLedgerService(db, 30),
		Payroll:     services.NewPayrollService(db, 10),
		Timetable:   services.NewTimetableService(db),
		MaxFileSize: 1 << 20,
	}
	app := fiber.New()
	app.Use(middleware.RequestID())
	app.Use(middleware.LogActivityMiddleware(deps.Activity))
	SetupRoutes(app, deps)
	return &fixture{app: app, db: db}
}

func (f *fixture) user(t *testing.T, name string, role models.Role) {
	t.Helper()
	hash, err := utils.HashPassword("password123")
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&models.User{Username: name, Password: hash, Role: role, Status: "active"}).Error)
}

func (f *fixture) login(t *testing.T, name string, role models.Role) string {
	t.Helper()
	f.user(t, name, role)
	status, body := f.do(t, "POST", "/api/auth/login", "", map[string]string{"username": name, "password": "password123"})
	require.Equal(t, fiber.StatusOK, status, body)
	return body["token"].(string)
}

func (f *fixture) do(t *testing.T, method, path, token string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

// school seeds a year, a class, a subject and one enrolled student.
func (f *fixture) school(t *testing.T) (year models.AcademicYear, class models.Class, subject models.Subject, student models.Student) {
	t.Helper()
	year = models.AcademicYear{YearName: "2025/2026", StartDate: time.Now().AddDate(0, -1, 0), EndDate: time.Now().AddDate(0, 10, 0), IsCurrent: true}
	require.NoError(t, f.db.Create(&year).Error)
	class = models.Class{ClassName: "JSS1A", GradeLevel: 7, AcademicYearID: year.ID, Capacity: 30}
	require.NoError(t, f.db.Create(&class).Error)
	subject = models.Subject{SubjectName: "Mathematics", SubjectCode: "MTH"}
	require.NoError(t, f.db.Create(&subject).Error)
	student = models.Student{AdmissionNumber: "ADM001", FirstName: "Ada", LastName: "Obi", Status: models.StudentStatusActive, AdmissionDate: time.Now()}
	require.NoError(t, f.db.Create(&student).Error)
	require.NoError(t, f.db.Create(&models.Enrollment{StudentID: student.ID, ClassID: class.ID, RollNumber: 1, Status: models.EnrollmentActive, EnrollmentDate: time.Now()}).Error)
	return
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, "GET", "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "degraded", body["status"])

	f.school(t)
	status, body = f.do(t, "GET", "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	school := body["school"].(map[string]interface{})
	assert.Equal(t, "2025/2026", school["current_academic_year"])
	assert.Equal(t, float64(1), school["active_enrollments"])
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.user(t, "admin", models.RoleAdmin)

	status, _ := f.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong-password"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := f.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Contains(t, body["fields"], "password")

	status, body = f.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "password123"})
	require.Equal(t, fiber.StatusOK, status)
	token := body["token"].(string)

	status, body = f.do(t, "GET", "/api/auth/profile", token, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "admin", body["user"].(map[string]interface{})["username"])

	var logins int64
	require.NoError(t, f.db.Model(&models.ActivityLog{}).Where("action = ?", "LOGIN").Count(&logins).Error)
	assert.Equal(t, int64(1), logins)
}

func TestRoleGuards(t *testing.T) {
	f := newFixture(t)
	bursar := f.login(t, "bursar", models.RoleBursar)
	teacher := f.login(t, "teacher", models.RoleTeacher)

	status, _ := f.do(t, "GET", "/api/invoices", teacher, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = f.do(t, "GET", "/api/invoices", bursar, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = f.do(t, "GET", "/api/grades", bursar, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = f.do(t, "GET", "/api/grades", teacher, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = f.do(t, "GET", "/api/logs", teacher, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = f.do(t, "GET", "/api/grades", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestGradeEntry(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "teacher", models.RoleTeacher)
	_, class, subject, student := f.school(t)

	status, body := f.do(t, "POST", "/api/grades", token, map[string]interface{}{
		"class_id": class.ID, "subject_id": subject.ID, "term": "first",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Contains(t, body["fields"], "student_id")

	payload := map[string]interface{}{
		"student_id": student.ID, "class_id": class.ID, "subject_id": subject.ID, "term": "first",
		"assessment_score": 80, "assessment_total": 100,
		"test_score": 70, "test_total": 100,
		"exam_score": 90, "exam_total": 100,
	}
	status, body = f.do(t, "POST", "/api/grades", token, payload)
	require.Equal(t, fiber.StatusCreated, status, body)
	grade := body["grade"].(map[string]interface{})
	assert.InDelta(t, 82.0, grade["total_score"], 0.001)

	status, _ = f.do(t, "POST", "/api/grades", token, payload)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	path := fmt.Sprintf("/api/grades/by-params?student_id=%d&class_id=%d&subject_id=%d&academic_year_id=%d&term=first",
		student.ID, class.ID, subject.ID, class.AcademicYearID)
	status, body = f.do(t, "GET", path, token, nil)
	assert.Equal(t, fiber.StatusOK, status, body)

	status, body = f.do(t, "GET", fmt.Sprintf("/api/transcripts/%d", student.ID), token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotNil(t, body["transcript"])

	var created int64
	require.NoError(t, f.db.Model(&models.ActivityLog{}).Where("action = ? AND resource = ?", "CREATE", "grades").Count(&created).Error)
	assert.Equal(t, int64(1), created)
}

func TestTranscriptOfUnenrolledStudent(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "teacher", models.RoleTeacher)
	f.school(t)
	loner := models.Student{AdmissionNumber: "ADM002", FirstName: "Ngozi", LastName: "Eze", Status: models.StudentStatusActive, AdmissionDate: time.Now()}
	require.NoError(t, f.db.Create(&loner).Error)

	status, body := f.do(t, "GET", fmt.Sprintf("/api/transcripts/%d", loner.ID), token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Contains(t, body, "transcript")
	assert.Nil(t, body["transcript"])

	status, _ = f.do(t, "GET", "/api/transcripts/9999", token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestInvoiceAndPaymentFlow(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "bursar", models.RoleBursar)
	year, _, _, student := f.school(t)

	status, body := f.do(t, "POST", "/api/fee-structures", token, map[string]interface{}{
		"academic_year_id": year.ID, "category_name": "Tuition", "amount": 50000, "term": "first",
	})
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = f.do(t, "POST", "/api/invoices/generate", token, map[string]interface{}{
		"student_id": student.ID, "academic_year_id": year.ID, "term": "first",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	invoice := body["invoice"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(invoice["invoice_number"].(string), "INV/"))
	assert.Equal(t, models.InvoiceUnpaid, invoice["status"])
	invoiceID := uint(invoice["id"].(float64))

	status, _ = f.do(t, "POST", "/api/invoices/generate", token, map[string]interface{}{
		"student_id": student.ID, "academic_year_id": year.ID, "term": "first",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, body = f.do(t, "POST", "/api/payments", token, map[string]interface{}{
		"invoice_id": invoiceID, "amount_paid": 20000, "payment_method": "bank_transfer",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	updated := body["invoice"].(map[string]interface{})
	assert.Equal(t, models.InvoicePartial, updated["status"])
	assert.InDelta(t, 30000.0, updated["balance"], 0.001)

	status, body = f.do(t, "POST", "/api/payments", token, map[string]interface{}{
		"invoice_id": invoiceID, "amount_paid": 40000,
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status, body)

	status, body = f.do(t, "GET", fmt.Sprintf("/api/invoices/%d/payments", invoiceID), token, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, _ = f.do(t, "GET", "/api/invoices/9999", token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestPayrollAndLeaveFlow(t *testing.T) {
	f := newFixture(t)
	head := f.login(t, "head", models.RoleHeadmaster)
	teacher := f.login(t, "mr.okafor", models.RoleTeacher)

	var user models.User
	require.NoError(t, f.db.Where("username = ?", "mr.okafor").First(&user).Error)
	staff := models.Teacher{UserID: &user.ID, StaffNumber: "T-100", FirstName: "Chidi", LastName: "Okafor", Active: true}
	require.NoError(t, f.db.Create(&staff).Error)
	colleague := models.Teacher{StaffNumber: "T-101", FirstName: "Amaka", LastName: "Nwosu", Active: true}
	require.NoError(t, f.db.Create(&colleague).Error)

	status, body := f.do(t, "POST", "/api/salary-structures", head, map[string]interface{}{
		"teacher_id": staff.ID, "base_salary": 2000, "housing_allowance": 500, "effective_from": "2025-09-01",
	})
	require.Equal(t, fiber.StatusCreated, status, body)

	status, _ = f.do(t, "POST", "/api/salary-payments/process_salary", teacher, map[string]interface{}{
		"teacher_id": staff.ID, "payment_period": "2025-10",
	})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = f.do(t, "POST", "/api/salary-payments/process_salary", head, map[string]interface{}{
		"teacher_id": staff.ID, "payment_period": "2025-10",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	salary := body["salary_payment"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(salary["payment_number"].(string), "SAL/"))
	assert.InDelta(t, 200.0, salary["tax"], 0.001)
	assert.InDelta(t, 2300.0, salary["net_salary"], 0.001)
	salaryID := uint(salary["id"].(float64))

	status, body = f.do(t, "POST", fmt.Sprintf("/api/salary-payments/%d/mark_as_paid", salaryID), head, map[string]interface{}{})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status, body)
	assert.Contains(t, body["fields"], "payment_method")

	status, body = f.do(t, "POST", fmt.Sprintf("/api/salary-payments/%d/mark_as_paid", salaryID), head, map[string]interface{}{"payment_method": "bank_transfer"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, models.SalaryPaid, body["salary_payment"].(map[string]interface{})["status"])

	status, body = f.do(t, "GET", fmt.Sprintf("/api/teachers/%d/salary_history", staff.ID), head, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total"])

	// A teacher files for themselves whatever teacher_id says.
	status, body = f.do(t, "POST", "/api/leave-requests", teacher, map[string]interface{}{
		"teacher_id": colleague.ID, "leave_type": "casual", "start_date": "2026-03-02", "end_date": "2026-03-03",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	leave := body["leave_request"].(map[string]interface{})
	assert.EqualValues(t, staff.ID, leave["teacher_id"])
	assert.EqualValues(t, 2, leave["total_days"])
	leaveID := uint(leave["id"].(float64))

	status, _ = f.do(t, "POST", fmt.Sprintf("/api/leave-requests/%d/approve_reject", leaveID), teacher, map[string]interface{}{"action": "approve"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = f.do(t, "POST", fmt.Sprintf("/api/leave-requests/%d/approve_reject", leaveID), head, map[string]interface{}{"action": "maybe"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status, body)

	status, body = f.do(t, "POST", fmt.Sprintf("/api/leave-requests/%d/approve_reject", leaveID), head, map[string]interface{}{"action": "approve"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, models.LeaveApproved, body["leave_request"].(map[string]interface{})["status"])

	status, body = f.do(t, "GET", "/api/staff-attendance?status=on_leave&start_date=2026-03-01&end_date=2026-03-31", head, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 2, body["pagination"].(map[string]interface{})["total"])

	require.NoError(t, f.db.Create(&models.LeaveRequest{
		TeacherID: colleague.ID, LeaveType: "sick", StartDate: time.Now(), EndDate: time.Now(), TotalDays: 1, Status: models.LeavePending,
	}).Error)
	status, body = f.do(t, "GET", "/api/leave-requests", teacher, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total"])
	status, body = f.do(t, "GET", "/api/leave-requests", head, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 2, body["pagination"].(map[string]interface{})["total"])
}

func TestReceiptUploadWithoutStorage(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "bursar", models.RoleBursar)
	status, _ := f.do(t, "POST", "/api/expenditures/1/receipt", token, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

func TestTimetableConflicts(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "head", models.RoleHeadmaster)
	year, class, subject, _ := f.school(t)

	slot := map[string]interface{}{
		"class_id": class.ID, "subject_id": subject.ID, "day_of_week": "monday",
		"start_time": "08:00", "end_time": "09:00", "room_number": "b12",
		"term": "first", "academic_year_id": year.ID,
	}
	status, body := f.do(t, "POST", "/api/timetable", token, slot)
	require.Equal(t, fiber.StatusCreated, status, body)

	slot["start_time"], slot["end_time"] = "08:30", "09:30"
	status, body = f.do(t, "POST", "/api/timetable", token, slot)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.NotEmpty(t, body["conflicts"])

	status, body = f.do(t, "POST", "/api/timetable/check_conflicts", token, map[string]interface{}{
		"room_number": "B12", "day_of_week": "Monday", "start_time": "09:00", "end_time": "10:00",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, false, body["has_conflicts"])
	assert.Empty(t, body["conflicts"])

	status, body = f.do(t, "GET", fmt.Sprintf("/api/timetable/class_schedule?class_id=%d", class.ID), token, nil)
	assert.Equal(t, fiber.StatusOK, status, body)
}

func TestLogsEndpoint(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "admin", models.RoleAdmin)

	status, body := f.do(t, "GET", "/api/logs?action=login", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	logs := body["logs"].([]interface{})
	require.Len(t, logs, 1)
	assert.Equal(t, "admin", logs[0].(map[string]interface{})["user"].(map[string]interface{})["username"])

	status, _ = f.do(t, "POST", "/api/logs/flush-cache", token, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}
