package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// RecordModel is used by rows that are never soft deleted, so their unique
// indexes stay meaningful.
type RecordModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleHeadmaster Role = "headmaster"
	RoleBursar     Role = "bursar"
	RoleTeacher    Role = "teacher"
	RoleStaff      Role = "staff"
)

// ParseRole returns the role for s and whether it is known.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleHeadmaster, RoleBursar, RoleTeacher, RoleStaff:
		return r, true
	}
	return "", false
}

// User model
type User struct {
	BaseModel
	Username  string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password  string `json:"-" gorm:"size:255;not null"`
	Email     string `json:"email" gorm:"size:255"`
	Phone     string `json:"phone" gorm:"size:20"`
	FirstName string `json:"first_name" gorm:"size:100"`
	LastName  string `json:"last_name" gorm:"size:100"`
	Role      Role   `json:"role" gorm:"size:50;not null;default:'staff'"`   // admin, headmaster, bursar, teacher, staff
	Status    string `json:"status" gorm:"size:50;not null;default:'active'"` // active, inactive, suspended

	Teacher *Teacher `json:"teacher,omitempty" gorm:"foreignKey:UserID"`
}

const (
	StudentStatusActive      = "active"
	StudentStatusGraduated   = "graduated"
	StudentStatusSuspended   = "suspended"
	StudentStatusTransferred = "transferred"
	StudentStatusWithdrawn   = "withdrawn"
)

// Student model
type Student struct {
	BaseModel
	AdmissionNumber string     `json:"admission_number" gorm:"size:50;not null;uniqueIndex"`
	FirstName       string     `json:"first_name" gorm:"size:100;not null"`
	MiddleName      string     `json:"middle_name" gorm:"size:100"`
	LastName        string     `json:"last_name" gorm:"size:100;not null"`
	DateOfBirth     *time.Time `json:"date_of_birth"`
	Gender          string     `json:"gender" gorm:"size:20"`
	Address         string     `json:"address" gorm:"size:500"`
	Nationality     string     `json:"nationality" gorm:"size:100"`
	Status          string     `json:"status" gorm:"size:50;not null;default:'active'"` // active, graduated, suspended, transferred, withdrawn
	AdmissionDate   time.Time  `json:"admission_date"`
	CreatedBy       *uint      `json:"created_by"`

	Enrollments []Enrollment `json:"enrollments,omitempty" gorm:"foreignKey:StudentID"`
}

// FullName joins first, middle and last names.
func (s Student) FullName() string {
	name := s.FirstName
	if s.MiddleName != "" {
		name += " " + s.MiddleName
	}
	if s.LastName != "" {
		name += " " + s.LastName
	}
	return name
}

// Teacher model
type Teacher struct {
	BaseModel
	UserID         *uint  `json:"user_id"`
	StaffNumber    string `json:"staff_number" gorm:"size:50;not null;uniqueIndex"`
	FirstName      string `json:"first_name" gorm:"size:100;not null"`
	LastName       string `json:"last_name" gorm:"size:100;not null"`
	Email          string `json:"email" gorm:"size:255"`
	Phone          string `json:"phone" gorm:"size:20"`
	Specialization string `json:"specialization" gorm:"size:255"`
	Active         bool   `json:"active" gorm:"default:true"`
}

// ActivityLog model
type ActivityLog struct {
	BaseModel
	UserID     uint           `json:"user_id"`
	Action     string         `json:"action" gorm:"size:100;not null"`
	Resource   string         `json:"resource" gorm:"size:100;not null"`
	ResourceID uint           `json:"resource_id"`
	Details    datatypes.JSON `json:"details"`
	IPAddress  string         `json:"ip_address" gorm:"size:45"`
	UserAgent  string         `json:"user_agent" gorm:"size:500"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// LogArchive model for tracking archived logs
type LogArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:50;not null;default:'pending'"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Teacher{},
		&Student{},
		&AcademicYear{},
		&Class{},
		&Subject{},
		&Enrollment{},
		&Grade{},
		&TimetableSlot{},
		&FeeStructure{},
		&Invoice{},
		&InvoiceItem{},
		&Payment{},
		&Expenditure{},
		&DocumentSequence{},
		&SalaryStructure{},
		&SalaryPayment{},
		&StaffAttendance{},
		&LeaveRequest{},
		&ActivityLog{},
		&LogArchive{},
	}
}
