package services

import (
	"context"
	"testing"
	"time"

	"schoolcore/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPayroll(db *gorm.DB, taxRate float64, now time.Time) *PayrollService {
	s := NewPayrollService(db, taxRate)
	s.now = func() time.Time { return now }
	return s
}

func TestParsePeriod(t *testing.T) {
	start, end, ok := ParsePeriod("2026-02")
	require.True(t, ok)
	assert.Equal(t, "2026-02-01", start.Format("2006-01-02"))
	assert.Equal(t, "2026-03-01", end.Format("2006-01-02"))

	_, _, ok = ParsePeriod("February 2026")
	assert.False(t, ok)
}

func TestSetSalaryStructureClosesPrevious(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "T-001")
	payroll := newPayroll(db, 0, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	first, err := payroll.SetSalaryStructure(ctx, SalaryStructureInput{TeacherID: tc.ID, BaseSalary: 1000, HousingAllowance: 200})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", first.EffectiveFrom.Format("2006-01-02"))

	_, err = payroll.SetSalaryStructure(ctx, SalaryStructureInput{TeacherID: tc.ID, BaseSalary: 1200, EffectiveFrom: "2025-07-01"})
	require.NoError(t, err)

	structures, err := payroll.ListSalaryStructures(ctx, tc.ID)
	require.NoError(t, err)
	require.Len(t, structures, 2)
	assert.Equal(t, 1200.0, structures[0].BaseSalary)
	assert.Nil(t, structures[0].EffectiveTo)
	require.NotNil(t, structures[1].EffectiveTo)
	assert.Equal(t, "2025-06-30", structures[1].EffectiveTo.Format("2006-01-02"))

	_, err = payroll.SetSalaryStructure(ctx, SalaryStructureInput{TeacherID: tc.ID, BaseSalary: 900, EffectiveFrom: "2025-03-01"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "effective_from")

	_, err = payroll.SetSalaryStructure(ctx, SalaryStructureInput{TeacherID: tc.ID, BaseSalary: 0, HousingAllowance: -1})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "base_salary")
	assert.Contains(t, ve.Fields, "housing_allowance")

	_, err = payroll.SetSalaryStructure(ctx, SalaryStructureInput{TeacherID: 404, BaseSalary: 500})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestProcessSalary(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "T-001")
	other := seedTeacher(t, db, "T-002")
	payroll := newPayroll(db, 10, time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC))

	_, err := payroll.SetSalaryStructure(ctx, SalaryStructureInput{
		TeacherID: tc.ID, BaseSalary: 1000, HousingAllowance: 200, TransportAllowance: 50, OtherAllowances: 50,
		EffectiveFrom: "2025-09-01",
	})
	require.NoError(t, err)

	pay, err := payroll.ProcessSalary(ctx, ProcessSalaryInput{TeacherID: tc.ID, PaymentPeriod: "2026-02", Deductions: 50})
	require.NoError(t, err)
	assert.Equal(t, "SAL/2026/0001", pay.PaymentNumber)
	assert.Equal(t, "2026-02", pay.PaymentPeriod)
	assert.Equal(t, 1000.0, pay.BaseSalary)
	assert.Equal(t, 300.0, pay.Allowances)
	assert.Equal(t, 100.0, pay.Tax)
	assert.Equal(t, 50.0, pay.Deductions)
	assert.Equal(t, 1150.0, pay.NetSalary)
	assert.Equal(t, models.SalaryPending, pay.Status)

	_, err = payroll.ProcessSalary(ctx, ProcessSalaryInput{TeacherID: tc.ID, PaymentPeriod: "2026-02"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = payroll.ProcessSalary(ctx, ProcessSalaryInput{TeacherID: other.ID, PaymentPeriod: "2026-02"})
	assert.ErrorAs(t, err, &ve)

	_, err = payroll.ProcessSalary(ctx, ProcessSalaryInput{TeacherID: tc.ID, PaymentPeriod: "2025-08"})
	assert.ErrorAs(t, err, &ve)

	_, err = payroll.ProcessSalary(ctx, ProcessSalaryInput{TeacherID: tc.ID, PaymentPeriod: "2026-03", Deductions: 5000})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "deductions")

	_, err = payroll.ProcessSalary(ctx, ProcessSalaryInput{TeacherID: tc.ID, PaymentPeriod: "03/2026"})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "payment_period")

	next, err := payroll.ProcessSalary(ctx, ProcessSalaryInput{TeacherID: tc.ID, PaymentPeriod: "2026-03"})
	require.NoError(t, err)
	assert.Equal(t, "SAL/2026/0002", next.PaymentNumber)
}

func TestProcessSalaryUsesStructureInForce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "T-001")
	payroll := newPayroll(db, 0, time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC))

	_, err := payroll.SetSalaryStructure(ctx, SalaryStructureInput{TeacherID: tc.ID, BaseSalary: 800, EffectiveFrom: "2025-01-01"})
	require.NoError(t, err)
	_, err = payroll.SetSalaryStructure(ctx, SalaryStructureInput{TeacherID: tc.ID, BaseSalary: 900, EffectiveFrom: "2025-06-15"})
	require.NoError(t, err)

	may, err := payroll.ProcessSalary(ctx, ProcessSalaryInput{TeacherID: tc.ID, PaymentPeriod: "2025-05"})
	require.NoError(t, err)
	assert.Equal(t, 800.0, may.NetSalary)

	june, err := payroll.ProcessSalary(ctx, ProcessSalaryInput{TeacherID: tc.ID, PaymentPeriod: "2025-06"})
	require.NoError(t, err)
	assert.Equal(t, 900.0, june.NetSalary)
}

func TestMarkSalaryPaidBooksExpenditure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "T-001")
	now := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	payroll := newPayroll(db, 0, now)

	_, err := payroll.SetSalaryStructure(ctx, SalaryStructureInput{TeacherID: tc.ID, BaseSalary: 1500, EffectiveFrom: "2026-01-01"})
	require.NoError(t, err)
	pay, err := payroll.ProcessSalary(ctx, ProcessSalaryInput{TeacherID: tc.ID, PaymentPeriod: "2026-02"})
	require.NoError(t, err)

	_, err = payroll.MarkSalaryPaid(ctx, pay.ID, MarkSalaryPaidInput{PaymentMethod: "barter"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "payment_method")

	paid, err := payroll.MarkSalaryPaid(ctx, pay.ID, MarkSalaryPaidInput{PaymentMethod: "Bank_Transfer"})
	require.NoError(t, err)
	assert.Equal(t, models.SalaryPaid, paid.Status)
	assert.Equal(t, models.PaymentBankTransfer, paid.PaymentMethod)
	require.NotNil(t, paid.ExpenditureID)

	var exp models.Expenditure
	require.NoError(t, db.First(&exp, *paid.ExpenditureID).Error)
	assert.Equal(t, "salaries", exp.Category)
	assert.Equal(t, 1500.0, exp.Amount)
	assert.Equal(t, "EXP/20260227/0001", exp.ExpenditureNumber)
	assert.Equal(t, "Teacher T-001", exp.VendorName)

	_, err = payroll.MarkSalaryPaid(ctx, pay.ID, MarkSalaryPaidInput{PaymentMethod: "cash"})
	assert.ErrorAs(t, err, &ve)

	var expenditures int64
	require.NoError(t, db.Model(&models.Expenditure{}).Count(&expenditures).Error)
	assert.Equal(t, int64(1), expenditures)

	_, err = payroll.MarkSalaryPaid(ctx, 999, MarkSalaryPaidInput{PaymentMethod: "cash"})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	list, total, err := payroll.ListSalaryPayments(ctx, SalaryPaymentFilter{TeacherID: tc.ID, Status: models.SalaryPaid})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "T-001", list[0].Teacher.StaffNumber)
}

func TestRecordAttendanceOverwritesDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "T-001")
	payroll := NewPayrollService(db, 0)

	checkIn := time.Date(2026, 3, 2, 7, 45, 0, 0, time.UTC)
	row, err := payroll.RecordAttendance(ctx, AttendanceInput{TeacherID: tc.ID, AttendanceDate: "2026-03-02", CheckIn: &checkIn})
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePresent, row.Status)

	row, err = payroll.RecordAttendance(ctx, AttendanceInput{TeacherID: tc.ID, AttendanceDate: "2026-03-02", Status: "ABSENT", Remarks: "sick"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceAbsent, row.Status)
	assert.Nil(t, row.CheckIn)

	var count int64
	require.NoError(t, db.Model(&models.StaffAttendance{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	checkOut := checkIn.Add(-time.Hour)
	_, err = payroll.RecordAttendance(ctx, AttendanceInput{TeacherID: tc.ID, AttendanceDate: "2026-03-03", Status: "late", CheckIn: &checkIn, CheckOut: &checkOut})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "status")
	assert.Contains(t, ve.Fields, "check_out")

	_, err = payroll.RecordAttendance(ctx, AttendanceInput{TeacherID: 404, AttendanceDate: "2026-03-03"})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestLeaveRequestLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tc := seedTeacher(t, db, "T-001")
	payroll := NewPayrollService(db, 0)

	leave, err := payroll.RequestLeave(ctx, LeaveInput{TeacherID: tc.ID, LeaveType: "Sick", StartDate: "2026-03-02", EndDate: "2026-03-04"})
	require.NoError(t, err)
	assert.Equal(t, 3, leave.TotalDays)
	assert.Equal(t, models.LeavePending, leave.Status)
	assert.Equal(t, "sick", leave.LeaveType)

	_, err = payroll.RequestLeave(ctx, LeaveInput{TeacherID: tc.ID, LeaveType: "casual", StartDate: "2026-03-04", EndDate: "2026-03-05"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = payroll.RequestLeave(ctx, LeaveInput{TeacherID: tc.ID, LeaveType: "holiday", StartDate: "2026-03-10", EndDate: "2026-03-09"})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "leave_type")
	assert.Contains(t, ve.Fields, "end_date")

	approved, err := payroll.ReviewLeave(ctx, leave.ID, LeaveReviewInput{Action: "approve", Remarks: "get well"})
	require.NoError(t, err)
	assert.Equal(t, models.LeaveApproved, approved.Status)

	rows, total, err := payroll.ListAttendance(ctx, AttendanceFilter{TeacherID: tc.ID, Status: models.AttendanceOnLeave})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 3)
	assert.Equal(t, "2026-03-04", rows[0].AttendanceDate.Format("2006-01-02"))

	_, err = payroll.ReviewLeave(ctx, leave.ID, LeaveReviewInput{Action: "reject"})
	assert.ErrorAs(t, err, &ve)

	second, err := payroll.RequestLeave(ctx, LeaveInput{TeacherID: tc.ID, LeaveType: "annual", StartDate: "2026-04-06", EndDate: "2026-04-06"})
	require.NoError(t, err)
	rejected, err := payroll.ReviewLeave(ctx, second.ID, LeaveReviewInput{Action: "reject"})
	require.NoError(t, err)
	assert.Equal(t, models.LeaveRejected, rejected.Status)

	_, total, err = payroll.ListAttendance(ctx, AttendanceFilter{TeacherID: tc.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	_, err = payroll.RequestLeave(ctx, LeaveInput{TeacherID: tc.ID, LeaveType: "annual", StartDate: "2026-04-06", EndDate: "2026-04-07"})
	assert.NoError(t, err)

	pending, total, err := payroll.ListLeaveRequests(ctx, LeaveFilter{TeacherID: tc.ID, Status: models.LeavePending})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, 2, pending[0].TotalDays)
}

func TestStaffIDForUser(t *testing.T) {
	db := newTestDB(t)
	user := models.User{Username: "mrs.ade", Password: "x", Role: models.RoleTeacher}
	require.NoError(t, db.Create(&user).Error)
	tc := models.Teacher{UserID: &user.ID, StaffNumber: "T-009", FirstName: "Ade", LastName: "Bello", Active: true}
	require.NoError(t, db.Create(&tc).Error)

	payroll := NewPayrollService(db, 0)
	id, err := payroll.StaffIDForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, tc.ID, id)

	_, err = payroll.StaffIDForUser(context.Background(), user.ID+1)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
