package models

import (
	"strings"
	"time"
)

type Term string

const (
	TermFirst  Term = "first"
	TermSecond Term = "second"
	TermThird  Term = "third"
	// TermAnnual is only valid on invoices.
	TermAnnual Term = "annual"
	// TermAll is only valid on fee structures.
	TermAll Term = "all"
)

// ParseTerm normalizes a school term. Numeric aliases "1".."3" are accepted.
func ParseTerm(s string) (Term, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "1":
		return TermFirst, true
	case "second", "2":
		return TermSecond, true
	case "third", "3":
		return TermThird, true
	}
	return "", false
}

// Order gives the chronological position of a school term, 0 for anything else.
func (t Term) Order() int {
	switch t {
	case TermFirst:
		return 1
	case TermSecond:
		return 2
	case TermThird:
		return 3
	}
	return 0
}

// AcademicYear model
type AcademicYear struct {
	BaseModel
	YearName  string    `json:"year_name" gorm:"size:20;not null;uniqueIndex"`
	StartDate time.Time `json:"start_date" gorm:"not null"`
	EndDate   time.Time `json:"end_date" gorm:"not null"`
	IsCurrent bool      `json:"is_current" gorm:"default:false;index"`
}

// Class model
type Class struct {
	BaseModel
	ClassName      string `json:"class_name" gorm:"size:100;not null;uniqueIndex:idx_class_year"`
	GradeLevel     int    `json:"grade_level" gorm:"not null"`
	Section        string `json:"section" gorm:"size:20"`
	AcademicYearID uint   `json:"academic_year_id" gorm:"not null;uniqueIndex:idx_class_year"`
	ClassTeacherID *uint  `json:"class_teacher_id"`
	Capacity       int    `json:"capacity" gorm:"not null;default:40"`
	RoomNumber     string `json:"room_number" gorm:"size:50"`

	AcademicYear AcademicYear `json:"academic_year,omitempty" gorm:"foreignKey:AcademicYearID"`
	ClassTeacher *Teacher     `json:"class_teacher,omitempty" gorm:"foreignKey:ClassTeacherID"`
}

// Subject model
type Subject struct {
	BaseModel
	SubjectName string `json:"subject_name" gorm:"size:100;not null"`
	SubjectCode string `json:"subject_code" gorm:"size:20;not null;uniqueIndex"`
	GradeLevel  *int   `json:"grade_level"`
	Description string `json:"description" gorm:"type:text"`
}

const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentWithdrawn = "withdrawn"
)

// Enrollment links a student to a class. Roll numbers are unique within a class.
type Enrollment struct {
	RecordModel
	StudentID      uint      `json:"student_id" gorm:"not null;uniqueIndex:idx_enrollment_student_class;index"`
	ClassID        uint      `json:"class_id" gorm:"not null;uniqueIndex:idx_enrollment_student_class;uniqueIndex:idx_enrollment_roll"`
	RollNumber     int       `json:"roll_number" gorm:"not null;uniqueIndex:idx_enrollment_roll"`
	Status         string    `json:"status" gorm:"size:20;not null;default:'active';index"` // active, completed, withdrawn
	EnrollmentDate time.Time `json:"enrollment_date"`

	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Class   Class   `json:"class,omitempty" gorm:"foreignKey:ClassID"`
}

// Grade is one score record per (student, class, subject, year, term). The
// weighted fields, total and letter are derived and never accepted from input.
type Grade struct {
	RecordModel
	StudentID      uint   `json:"student_id" gorm:"not null;uniqueIndex:idx_grade_scope"`
	ClassID        uint   `json:"class_id" gorm:"not null;uniqueIndex:idx_grade_scope;index"`
	SubjectID      uint   `json:"subject_id" gorm:"not null;uniqueIndex:idx_grade_scope"`
	AcademicYearID uint   `json:"academic_year_id" gorm:"not null;uniqueIndex:idx_grade_scope"`
	Term           Term   `json:"term" gorm:"size:10;not null;uniqueIndex:idx_grade_scope"`
	GradeType      string `json:"grade_type" gorm:"size:20;default:'final'"`
	Remarks        string `json:"remarks" gorm:"type:text"`
	EnteredBy      *uint  `json:"entered_by"`

	AssessmentScore float64 `json:"assessment_score" gorm:"type:decimal(6,2);not null;default:0"`
	AssessmentTotal float64 `json:"assessment_total" gorm:"type:decimal(6,2);not null;default:100"`
	TestScore       float64 `json:"test_score" gorm:"type:decimal(6,2);not null;default:0"`
	TestTotal       float64 `json:"test_total" gorm:"type:decimal(6,2);not null;default:100"`
	ExamScore       float64 `json:"exam_score" gorm:"type:decimal(6,2);not null;default:0"`
	ExamTotal       float64 `json:"exam_total" gorm:"type:decimal(6,2);not null;default:100"`

	WeightedAssessment float64 `json:"weighted_assessment" gorm:"type:decimal(6,2);not null;default:0"`
	WeightedTest       float64 `json:"weighted_test" gorm:"type:decimal(6,2);not null;default:0"`
	WeightedExam       float64 `json:"weighted_exam" gorm:"type:decimal(6,2);not null;default:0"`
	TotalScore         float64 `json:"total_score" gorm:"type:decimal(6,2);not null;default:0"`
	GradeLetter        string  `json:"grade_letter" gorm:"size:2"`

	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Subject Subject `json:"subject,omitempty" gorm:"foreignKey:SubjectID"`
}

// TimetableSlot is a weekly lesson. Times are zero padded "HH:MM" strings so
// they compare lexically.
type TimetableSlot struct {
	RecordModel
	ClassID        uint   `json:"class_id" gorm:"not null;index"`
	SubjectID      uint   `json:"subject_id" gorm:"not null"`
	TeacherID      *uint  `json:"teacher_id" gorm:"index"`
	DayOfWeek      string `json:"day_of_week" gorm:"size:10;not null;index"`
	StartTime      string `json:"start_time" gorm:"size:5;not null"`
	EndTime        string `json:"end_time" gorm:"size:5;not null"`
	RoomNumber     string `json:"room_number" gorm:"size:50"`
	Term           Term   `json:"term" gorm:"size:10;not null"`
	AcademicYearID uint   `json:"academic_year_id" gorm:"not null;index"`

	Class   Class    `json:"class,omitempty" gorm:"foreignKey:ClassID"`
	Subject Subject  `json:"subject,omitempty" gorm:"foreignKey:SubjectID"`
	Teacher *Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}
