package models

import "time"

// SalaryStructure is a staff member's pay from EffectiveFrom. A nil
// EffectiveTo means it is still in force.
type SalaryStructure struct {
	BaseModel
	TeacherID          uint       `json:"teacher_id" gorm:"not null;index"`
	BaseSalary         float64    `json:"base_salary" gorm:"type:decimal(12,2);not null"`
	HousingAllowance   float64    `json:"housing_allowance" gorm:"type:decimal(12,2);not null;default:0"`
	TransportAllowance float64    `json:"transport_allowance" gorm:"type:decimal(12,2);not null;default:0"`
	OtherAllowances    float64    `json:"other_allowances" gorm:"type:decimal(12,2);not null;default:0"`
	EffectiveFrom      time.Time  `json:"effective_from" gorm:"not null"`
	EffectiveTo        *time.Time `json:"effective_to"`

	Teacher *Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}

// Allowances sums every allowance of the structure.
func (s SalaryStructure) Allowances() float64 {
	return s.HousingAllowance + s.TransportAllowance + s.OtherAllowances
}

const (
	SalaryPending = "pending"
	SalaryPaid    = "paid"
)

// SalaryPayment is one staff member's pay for one month. Amounts are copied
// from the structure in force when it was processed.
type SalaryPayment struct {
	RecordModel
	PaymentNumber string     `json:"payment_number" gorm:"size:30;not null;uniqueIndex"`
	TeacherID     uint       `json:"teacher_id" gorm:"not null;uniqueIndex:idx_salary_period"`
	PaymentPeriod string     `json:"payment_period" gorm:"size:7;not null;uniqueIndex:idx_salary_period"` // YYYY-MM
	BaseSalary    float64    `json:"base_salary" gorm:"type:decimal(12,2);not null"`
	Allowances    float64    `json:"allowances" gorm:"type:decimal(12,2);not null;default:0"`
	Deductions    float64    `json:"deductions" gorm:"type:decimal(12,2);not null;default:0"`
	Tax           float64    `json:"tax" gorm:"type:decimal(12,2);not null;default:0"`
	NetSalary     float64    `json:"net_salary" gorm:"type:decimal(12,2);not null"`
	Status        string     `json:"status" gorm:"size:20;not null;default:'pending';index"` // pending, paid
	PaymentDate   *time.Time `json:"payment_date"`
	PaymentMethod string     `json:"payment_method" gorm:"size:20"`
	ExpenditureID *uint      `json:"expenditure_id"`
	ProcessedBy   *uint      `json:"processed_by"`
	Remarks       string     `json:"remarks" gorm:"type:text"`

	Teacher *Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}

const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceOnLeave = "on_leave"
	AttendanceHalfDay = "half_day"
)

// IsValidAttendanceStatus reports whether s is a known attendance status.
func IsValidAttendanceStatus(s string) bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceOnLeave, AttendanceHalfDay:
		return true
	}
	return false
}

// StaffAttendance holds at most one row per staff member and day.
type StaffAttendance struct {
	RecordModel
	TeacherID      uint       `json:"teacher_id" gorm:"not null;uniqueIndex:idx_staff_day"`
	AttendanceDate time.Time  `json:"attendance_date" gorm:"not null;uniqueIndex:idx_staff_day"`
	CheckIn        *time.Time `json:"check_in"`
	CheckOut       *time.Time `json:"check_out"`
	Status         string     `json:"status" gorm:"size:20;not null;default:'present';index"`
	Remarks        string     `json:"remarks" gorm:"type:text"`

	Teacher *Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}

var LeaveTypes = []string{"sick", "casual", "annual", "maternity", "emergency", "unpaid"}

// IsValidLeaveType reports whether t is a known leave type.
func IsValidLeaveType(t string) bool {
	for _, v := range LeaveTypes {
		if v == t {
			return true
		}
	}
	return false
}

const (
	LeavePending  = "pending"
	LeaveApproved = "approved"
	LeaveRejected = "rejected"
)

// LeaveRequest spans StartDate to EndDate, both days included.
type LeaveRequest struct {
	BaseModel
	TeacherID     uint      `json:"teacher_id" gorm:"not null;index"`
	LeaveType     string    `json:"leave_type" gorm:"size:20;not null"`
	StartDate     time.Time `json:"start_date" gorm:"not null"`
	EndDate       time.Time `json:"end_date" gorm:"not null"`
	TotalDays     int       `json:"total_days" gorm:"not null"`
	Reason        string    `json:"reason" gorm:"type:text"`
	Status        string    `json:"status" gorm:"size:20;not null;default:'pending';index"` // pending, approved, rejected
	ReviewedBy    *uint     `json:"reviewed_by"`
	ReviewRemarks string    `json:"review_remarks" gorm:"type:text"`

	Teacher *Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}
