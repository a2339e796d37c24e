package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"schoolcore/models"
	"schoolcore/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayrollService owns salary structures, monthly salary payments, staff
// attendance and leave requests. Staff members are the teacher records.
type PayrollService struct {
	db      *gorm.DB
	taxRate float64
	now     func() time.Time
}

// NewPayrollService withholds taxRate percent of the base salary on every payment.
func NewPayrollService(db *gorm.DB, taxRate float64) *PayrollService {
	if taxRate < 0 {
		taxRate = 0
	}
	return &PayrollService{db: db, taxRate: taxRate, now: time.Now}
}

// dayOf keeps the calendar day of t, at midnight UTC.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parseDay accepts YYYY-MM-DD or RFC 3339.
func parseDay(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return dayOf(t), true
	}
	return time.Time{}, false
}

// ParsePeriod reads a YYYY-MM pay period and returns its first day and the
// first day of the next month.
func ParsePeriod(period string) (time.Time, time.Time, bool) {
	start, err := time.Parse("2006-01", strings.TrimSpace(period))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, start.AddDate(0, 1, 0), true
}

func lockTeacher(tx *gorm.DB, id uint) (*models.Teacher, error) {
	var t models.Teacher
	if err := lockForUpdate(tx).First(&t, id).Error; err != nil {
		return nil, lookupErr(err, "staff member", id)
	}
	return &t, nil
}

type SalaryStructureInput struct {
	TeacherID          uint    `json:"teacher_id" validate:"required"`
	BaseSalary         float64 `json:"base_salary" validate:"required"`
	HousingAllowance   float64 `json:"housing_allowance" validate:"gte=0"`
	TransportAllowance float64 `json:"transport_allowance" validate:"gte=0"`
	OtherAllowances    float64 `json:"other_allowances" validate:"gte=0"`
	EffectiveFrom      string  `json:"effective_from"`
}

// SetSalaryStructure starts a new structure and closes the one in force the
// day before. A structure may not start on or before the latest existing one.
func (s *PayrollService) SetSalaryStructure(ctx context.Context, in SalaryStructureInput) (*models.SalaryStructure, error) {
	fe := fieldErrors{}
	if utils.Round2(in.BaseSalary) <= 0 {
		fe.add("base_salary", "must be greater than zero")
	}
	for field, v := range map[string]float64{
		"housing_allowance":   in.HousingAllowance,
		"transport_allowance": in.TransportAllowance,
		"other_allowances":    in.OtherAllowances,
	} {
		if v < 0 {
			fe.add(field, "must not be negative")
		}
	}
	from := dayOf(s.now())
	if strings.TrimSpace(in.EffectiveFrom) != "" {
		d, ok := parseDay(in.EffectiveFrom)
		if !ok {
			fe.add("effective_from", "must be YYYY-MM-DD")
		}
		from = d
	}
	if err := fe.err("invalid salary structure"); err != nil {
		return nil, err
	}

	out := models.SalaryStructure{
		TeacherID:          in.TeacherID,
		BaseSalary:         utils.Round2(in.BaseSalary),
		HousingAllowance:   utils.Round2(in.HousingAllowance),
		TransportAllowance: utils.Round2(in.TransportAllowance),
		OtherAllowances:    utils.Round2(in.OtherAllowances),
		EffectiveFrom:      from,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockTeacher(tx, in.TeacherID); err != nil {
			return err
		}
		var later int64
		if err := tx.Model(&models.SalaryStructure{}).
			Where("teacher_id = ? AND effective_from >= ?", in.TeacherID, from).
			Count(&later).Error; err != nil {
			return fmt.Errorf("check salary structures: %w", err)
		}
		if later > 0 {
			return &ValidationError{
				Message: "a salary structure already starts on or after " + from.Format("2006-01-02"),
				Fields:  map[string]string{"effective_from": "must be after the latest structure"},
			}
		}
		if err := tx.Model(&models.SalaryStructure{}).
			Where("teacher_id = ? AND effective_to IS NULL", in.TeacherID).
			Update("effective_to", from.AddDate(0, 0, -1)).Error; err != nil {
			return fmt.Errorf("close salary structure: %w", err)
		}
		if err := tx.Create(&out).Error; err != nil {
			return fmt.Errorf("create salary structure: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"teacher_id":     out.TeacherID,
		"base_salary":    out.BaseSalary,
		"effective_from": out.EffectiveFrom.Format("2006-01-02"),
	}).Info("Salary structure set")
	return &out, nil
}

// ListSalaryStructures returns structures newest first. Zero teacherID lists all.
func (s *PayrollService) ListSalaryStructures(ctx context.Context, teacherID uint) ([]models.SalaryStructure, error) {
	q := s.db.WithContext(ctx).Preload("Teacher")
	if teacherID != 0 {
		q = q.Where("teacher_id = ?", teacherID)
	}
	var out []models.SalaryStructure
	if err := q.Order("teacher_id, effective_from DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list salary structures: %w", err)
	}
	return out, nil
}

// structureFor picks the structure in force during [start, end), the latest
// one when a change falls inside the month.
func structureFor(tx *gorm.DB, teacherID uint, start, end time.Time) (*models.SalaryStructure, error) {
	var rows []models.SalaryStructure
	if err := tx.Where("teacher_id = ? AND effective_from < ? AND (effective_to IS NULL OR effective_to >= ?)", teacherID, end, start).
		Order("effective_from DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load salary structure of staff member %d: %w", teacherID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

type ProcessSalaryInput struct {
	TeacherID     uint    `json:"teacher_id" validate:"required"`
	PaymentPeriod string  `json:"payment_period" validate:"required"`
	Deductions    float64 `json:"deductions" validate:"gte=0"`
	Remarks       string  `json:"remarks"`
	ProcessedBy   *uint   `json:"-"`
}

// ProcessSalary books the pending salary of one staff member for a month.
// net = base + allowances - tax - deductions, where tax is the configured
// share of the base salary.
func (s *PayrollService) ProcessSalary(ctx context.Context, in ProcessSalaryInput) (*models.SalaryPayment, error) {
	fe := fieldErrors{}
	start, end, ok := ParsePeriod(in.PaymentPeriod)
	if !ok {
		fe.add("payment_period", "must be YYYY-MM")
	}
	if in.Deductions < 0 {
		fe.add("deductions", "must not be negative")
	}
	if err := fe.err("invalid salary run"); err != nil {
		return nil, err
	}
	period := start.Format("2006-01")

	var out models.SalaryPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		teacher, err := lockTeacher(tx, in.TeacherID)
		if err != nil {
			return err
		}
		if !teacher.Active {
			return NewValidationError("staff member %s is inactive", teacher.StaffNumber)
		}

		var dup int64
		if err := tx.Model(&models.SalaryPayment{}).
			Where("teacher_id = ? AND payment_period = ?", in.TeacherID, period).
			Count(&dup).Error; err != nil {
			return fmt.Errorf("check salary payments: %w", err)
		}
		if dup > 0 {
			return NewValidationError("salary of %s for %s is already processed", teacher.StaffNumber, period)
		}

		structure, err := structureFor(tx, in.TeacherID, start, end)
		if err != nil {
			return err
		}
		if structure == nil {
			return NewValidationError("staff member %s has no salary structure for %s", teacher.StaffNumber, period)
		}

		base := utils.Round2(structure.BaseSalary)
		allowances := utils.Round2(structure.Allowances())
		tax := utils.Round2(base * s.taxRate / 100)
		deductions := utils.Round2(in.Deductions)
		net := utils.Round2(base + allowances - tax - deductions)
		if net < 0 {
			return &ValidationError{
				Message: fmt.Sprintf("deductions exceed pay of %.2f", base+allowances-tax),
				Fields:  map[string]string{"deductions": "exceed pay"},
			}
		}

		number, err := NextDocumentNumber(tx, PrefixSalary, s.now())
		if err != nil {
			return err
		}
		out = models.SalaryPayment{
			PaymentNumber: number,
			TeacherID:     in.TeacherID,
			PaymentPeriod: period,
			BaseSalary:    base,
			Allowances:    allowances,
			Deductions:    deductions,
			Tax:           tax,
			NetSalary:     net,
			Status:        models.SalaryPending,
			ProcessedBy:   in.ProcessedBy,
			Remarks:       in.Remarks,
		}
		if err := tx.Create(&out).Error; err != nil {
			return fmt.Errorf("create salary payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"payment_number": out.PaymentNumber,
		"teacher_id":     out.TeacherID,
		"period":         out.PaymentPeriod,
		"net":            out.NetSalary,
	}).Info("Salary processed")
	return &out, nil
}

type MarkSalaryPaidInput struct {
	PaymentDate   *time.Time `json:"payment_date"`
	PaymentMethod string     `json:"payment_method" validate:"required"`
	PaidBy        *uint      `json:"-"`
}

// MarkSalaryPaid settles a pending salary and books its net amount as a
// salaries expenditure in the same transaction.
func (s *PayrollService) MarkSalaryPaid(ctx context.Context, id uint, in MarkSalaryPaidInput) (*models.SalaryPayment, error) {
	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if !models.IsValidPaymentMethod(method) {
		return nil, &ValidationError{Message: "invalid salary payment", Fields: map[string]string{"payment_method": "unknown payment method"}}
	}
	now := s.now()
	paidAt := now
	if in.PaymentDate != nil {
		paidAt = *in.PaymentDate
	}

	var out models.SalaryPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&out, id).Error; err != nil {
			return lookupErr(err, "salary payment", id)
		}
		if out.Status == models.SalaryPaid {
			return NewValidationError("salary payment %s is already paid", out.PaymentNumber)
		}
		var teacher models.Teacher
		if err := tx.First(&teacher, out.TeacherID).Error; err != nil {
			return lookupErr(err, "staff member", out.TeacherID)
		}
		out.Teacher = &teacher

		number, err := NextDocumentNumber(tx, PrefixExpenditure, now)
		if err != nil {
			return err
		}
		exp := models.Expenditure{
			ExpenditureNumber: number,
			ItemName:          fmt.Sprintf("Salary %s %s", out.PaymentPeriod, out.Teacher.StaffNumber),
			Category:          "salaries",
			Amount:            out.NetSalary,
			VendorName:        strings.TrimSpace(out.Teacher.FirstName + " " + out.Teacher.LastName),
			TransactionDate:   paidAt,
			PaymentMethod:     method,
			Description:       "Salary payment " + out.PaymentNumber,
			ProcessedBy:       in.PaidBy,
		}
		if err := tx.Create(&exp).Error; err != nil {
			return fmt.Errorf("create salary expenditure: %w", err)
		}

		out.Status = models.SalaryPaid
		out.PaymentDate = &paidAt
		out.PaymentMethod = method
		out.ExpenditureID = &exp.ID
		return tx.Model(&models.SalaryPayment{}).Where("id = ?", out.ID).Updates(map[string]interface{}{
			"status":         out.Status,
			"payment_date":   paidAt,
			"payment_method": method,
			"expenditure_id": exp.ID,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"payment_number": out.PaymentNumber,
		"expenditure_id": *out.ExpenditureID,
		"net":            out.NetSalary,
	}).Info("Salary paid")
	return &out, nil
}

type SalaryPaymentFilter struct {
	TeacherID uint
	Status    string
	Period    string
	Page
}

func (s *PayrollService) ListSalaryPayments(ctx context.Context, f SalaryPaymentFilter) ([]models.SalaryPayment, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.SalaryPayment{})
	if f.TeacherID != 0 {
		q = q.Where("teacher_id = ?", f.TeacherID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Period != "" {
		q = q.Where("payment_period = ?", f.Period)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count salary payments: %w", err)
	}
	var out []models.SalaryPayment
	if err := f.Page.apply(q.Preload("Teacher")).Order("payment_period DESC, id DESC").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list salary payments: %w", err)
	}
	return out, total, nil
}

type AttendanceInput struct {
	TeacherID      uint       `json:"teacher_id" validate:"required"`
	AttendanceDate string     `json:"attendance_date" validate:"required"`
	CheckIn        *time.Time `json:"check_in"`
	CheckOut       *time.Time `json:"check_out"`
	Status         string     `json:"status"`
	Remarks        string     `json:"remarks"`
}

// upsertAttendance writes the row for (teacher, day), replacing any earlier mark.
func upsertAttendance(tx *gorm.DB, row *models.StaffAttendance) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "teacher_id"}, {Name: "attendance_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"check_in", "check_out", "status", "remarks", "updated_at"}),
	}).Create(row).Error
}

// RecordAttendance marks a staff member for a day. Marking the same day
// again overwrites the earlier mark.
func (s *PayrollService) RecordAttendance(ctx context.Context, in AttendanceInput) (*models.StaffAttendance, error) {
	fe := fieldErrors{}
	day, ok := parseDay(in.AttendanceDate)
	if !ok {
		fe.add("attendance_date", "must be YYYY-MM-DD")
	}
	status := strings.ToLower(strings.TrimSpace(in.Status))
	if status == "" {
		status = models.AttendancePresent
	}
	if !models.IsValidAttendanceStatus(status) {
		fe.add("status", "must be present, absent, on_leave or half_day")
	}
	if in.CheckIn != nil && in.CheckOut != nil && !in.CheckOut.After(*in.CheckIn) {
		fe.add("check_out", "must be after check_in")
	}
	if err := fe.err("invalid attendance"); err != nil {
		return nil, err
	}

	var out models.StaffAttendance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var teacher models.Teacher
		if err := tx.Select("id").First(&teacher, in.TeacherID).Error; err != nil {
			return lookupErr(err, "staff member", in.TeacherID)
		}
		row := models.StaffAttendance{
			TeacherID:      in.TeacherID,
			AttendanceDate: day,
			CheckIn:        in.CheckIn,
			CheckOut:       in.CheckOut,
			Status:         status,
			Remarks:        in.Remarks,
		}
		if err := upsertAttendance(tx, &row); err != nil {
			return fmt.Errorf("record attendance: %w", err)
		}
		return tx.Where("teacher_id = ? AND attendance_date = ?", in.TeacherID, day).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type AttendanceFilter struct {
	TeacherID uint
	Status    string
	From      *time.Time
	To        *time.Time
	Page
}

func (s *PayrollService) ListAttendance(ctx context.Context, f AttendanceFilter) ([]models.StaffAttendance, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.StaffAttendance{})
	if f.TeacherID != 0 {
		q = q.Where("teacher_id = ?", f.TeacherID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("attendance_date >= ?", dayOf(*f.From))
	}
	if f.To != nil {
		q = q.Where("attendance_date < ?", dayOf(*f.To))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	var out []models.StaffAttendance
	if err := f.Page.apply(q.Preload("Teacher")).Order("attendance_date DESC, teacher_id").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}
	return out, total, nil
}

type LeaveInput struct {
	TeacherID uint   `json:"teacher_id"`
	LeaveType string `json:"leave_type" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	Reason    string `json:"reason"`
}

// RequestLeave files a pending leave request. It may not overlap another
// pending or approved request of the same staff member.
func (s *PayrollService) RequestLeave(ctx context.Context, in LeaveInput) (*models.LeaveRequest, error) {
	fe := fieldErrors{}
	if in.TeacherID == 0 {
		fe.add("teacher_id", "is required")
	}
	leaveType := strings.ToLower(strings.TrimSpace(in.LeaveType))
	if !models.IsValidLeaveType(leaveType) {
		fe.add("leave_type", "must be one of "+strings.Join(models.LeaveTypes, ", "))
	}
	start, okStart := parseDay(in.StartDate)
	if !okStart {
		fe.add("start_date", "must be YYYY-MM-DD")
	}
	end, okEnd := parseDay(in.EndDate)
	if !okEnd {
		fe.add("end_date", "must be YYYY-MM-DD")
	}
	if okStart && okEnd && end.Before(start) {
		fe.add("end_date", "must not be before start_date")
	}
	if err := fe.err("invalid leave request"); err != nil {
		return nil, err
	}

	out := models.LeaveRequest{
		TeacherID: in.TeacherID,
		LeaveType: leaveType,
		StartDate: start,
		EndDate:   end,
		TotalDays: int(end.Sub(start).Hours()/24) + 1,
		Reason:    in.Reason,
		Status:    models.LeavePending,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockTeacher(tx, in.TeacherID); err != nil {
			return err
		}
		var overlapping int64
		if err := tx.Model(&models.LeaveRequest{}).
			Where("teacher_id = ? AND status IN ? AND start_date <= ? AND end_date >= ?",
				in.TeacherID, []string{models.LeavePending, models.LeaveApproved}, end, start).
			Count(&overlapping).Error; err != nil {
			return fmt.Errorf("check leave requests: %w", err)
		}
		if overlapping > 0 {
			return NewValidationError("leave from %s to %s overlaps an open leave request",
				start.Format("2006-01-02"), end.Format("2006-01-02"))
		}
		if err := tx.Create(&out).Error; err != nil {
			return fmt.Errorf("create leave request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type LeaveReviewInput struct {
	Action     string `json:"action" validate:"required,oneof=approve reject"`
	Remarks    string `json:"remarks"`
	ReviewedBy *uint  `json:"-"`
}

// ReviewLeave approves or rejects a pending request. Approval marks every
// day of the leave on_leave in staff attendance.
func (s *PayrollService) ReviewLeave(ctx context.Context, id uint, in LeaveReviewInput) (*models.LeaveRequest, error) {
	var status string
	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "approve":
		status = models.LeaveApproved
	case "reject":
		status = models.LeaveRejected
	default:
		return nil, &ValidationError{Message: "invalid review", Fields: map[string]string{"action": "must be approve or reject"}}
	}

	var out models.LeaveRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&out, id).Error; err != nil {
			return lookupErr(err, "leave request", id)
		}
		if out.Status != models.LeavePending {
			return NewValidationError("leave request %d is already %s", out.ID, out.Status)
		}

		out.Status = status
		out.ReviewedBy = in.ReviewedBy
		out.ReviewRemarks = in.Remarks
		if err := tx.Model(&models.LeaveRequest{}).Where("id = ?", out.ID).Updates(map[string]interface{}{
			"status":         out.Status,
			"reviewed_by":    out.ReviewedBy,
			"review_remarks": out.ReviewRemarks,
		}).Error; err != nil {
			return fmt.Errorf("update leave request %d: %w", out.ID, err)
		}
		if status != models.LeaveApproved {
			return nil
		}

		remark := fmt.Sprintf("%s leave #%d", out.LeaveType, out.ID)
		for d := dayOf(out.StartDate); !d.After(dayOf(out.EndDate)); d = d.AddDate(0, 0, 1) {
			row := models.StaffAttendance{TeacherID: out.TeacherID, AttendanceDate: d, Status: models.AttendanceOnLeave, Remarks: remark}
			if err := upsertAttendance(tx, &row); err != nil {
				return fmt.Errorf("mark leave day %s: %w", d.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"leave_id":   out.ID,
		"teacher_id": out.TeacherID,
		"status":     out.Status,
	}).Info("Leave request reviewed")
	return &out, nil
}

type LeaveFilter struct {
	TeacherID uint
	Status    string
	Page
}

func (s *PayrollService) ListLeaveRequests(ctx context.Context, f LeaveFilter) ([]models.LeaveRequest, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.LeaveRequest{})
	if f.TeacherID != 0 {
		q = q.Where("teacher_id = ?", f.TeacherID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count leave requests: %w", err)
	}
	var out []models.LeaveRequest
	if err := f.Page.apply(q.Preload("Teacher")).Order("start_date DESC, id DESC").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list leave requests: %w", err)
	}
	return out, total, nil
}

// StaffIDForUser returns the staff record linked to a login.
func (s *PayrollService) StaffIDForUser(ctx context.Context, userID uint) (uint, error) {
	var t models.Teacher
	if err := s.db.WithContext(ctx).Select("id").Where("user_id = ?", userID).First(&t).Error; err != nil {
		return 0, lookupErr(err, "staff profile for user", userID)
	}
	return t.ID, nil
}
