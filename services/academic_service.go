package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"schoolcore/models"
	"schoolcore/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AcademicService manages years, classes, subjects and teachers.
type AcademicService struct {
	db *gorm.DB
}

func NewAcademicService(db *gorm.DB) *AcademicService {
	return &AcademicService{db: db}
}

type YearInput struct {
	YearName  string    `json:"year_name" validate:"required,max=20"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	IsCurrent bool      `json:"is_current"`
}

// markCurrent makes yearID the only current year. It must run inside tx.
func markCurrent(tx *gorm.DB, yearID uint) error {
	if err := tx.Model(&models.AcademicYear{}).
		Where("is_current = ? AND id <> ?", true, yearID).
		Update("is_current", false).Error; err != nil {
		return fmt.Errorf("clear current year: %w", err)
	}
	return tx.Model(&models.AcademicYear{}).Where("id = ?", yearID).Update("is_current", true).Error
}

func (s *AcademicService) CreateYear(ctx context.Context, in YearInput) (*models.AcademicYear, error) {
	fe := fieldErrors{}
	name := utils.SanitizeString(in.YearName)
	if name == "" {
		fe.add("year_name", "is required")
	}
	if !in.EndDate.After(in.StartDate) {
		fe.add("end_date", "must be after start_date")
	}
	if err := fe.err("invalid academic year"); err != nil {
		return nil, err
	}

	year := models.AcademicYear{YearName: name, StartDate: in.StartDate, EndDate: in.EndDate}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.AcademicYear{}).Where("year_name = ?", name).Count(&n).Error; err != nil {
			return fmt.Errorf("check academic year: %w", err)
		}
		if n > 0 {
			return NewValidationError("academic year %s already exists", name)
		}
		if err := tx.Create(&year).Error; err != nil {
			return fmt.Errorf("create academic year: %w", err)
		}
		if in.IsCurrent {
			year.IsCurrent = true
			return markCurrent(tx, year.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &year, nil
}

func (s *AcademicService) ListYears(ctx context.Context) ([]models.AcademicYear, error) {
	var out []models.AcademicYear
	if err := s.db.WithContext(ctx).Order("start_date DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return out, nil
}

// SetCurrent switches the current academic year in a single transaction, so
// at most one year is ever current.
func (s *AcademicService) SetCurrent(ctx context.Context, id uint) (*models.AcademicYear, error) {
	var year models.AcademicYear
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&year, id).Error; err != nil {
			return lookupErr(err, "academic year", id)
		}
		if err := markCurrent(tx, id); err != nil {
			return err
		}
		year.IsCurrent = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithField("year", year.YearName).Info("Current academic year changed")
	return &year, nil
}

func (s *AcademicService) Current(ctx context.Context) (*models.AcademicYear, error) {
	var year models.AcademicYear
	err := s.db.WithContext(ctx).Where("is_current = ?", true).First(&year).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "current academic year"}
	}
	if err != nil {
		return nil, fmt.Errorf("load current academic year: %w", err)
	}
	return &year, nil
}

type ClassInput struct {
	ClassName      string `json:"class_name" validate:"required,max=100"`
	GradeLevel     int    `json:"grade_level" validate:"required,gte=1"`
	Section        string `json:"section" validate:"max=20"`
	AcademicYearID uint   `json:"academic_year_id"`
	ClassTeacherID *uint  `json:"class_teacher_id"`
	Capacity       int    `json:"capacity" validate:"gte=0"`
	RoomNumber     string `json:"room_number" validate:"max=50"`
}

// ClassSummary is a class with its number of active students.
type ClassSummary struct {
	models.Class
	ActiveStudents int64 `json:"active_students"`
}

func (s *AcademicService) CreateClass(ctx context.Context, in ClassInput) (*models.Class, error) {
	name := utils.SanitizeString(in.ClassName)
	if name == "" {
		return nil, &ValidationError{Message: "invalid class", Fields: map[string]string{"class_name": "is required"}}
	}
	class := models.Class{
		ClassName:      name,
		GradeLevel:     in.GradeLevel,
		Section:        in.Section,
		AcademicYearID: in.AcademicYearID,
		ClassTeacherID: in.ClassTeacherID,
		Capacity:       in.Capacity,
		RoomNumber:     normalizeRoom(in.RoomNumber),
	}
	if class.Capacity == 0 {
		class.Capacity = 40
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if class.AcademicYearID == 0 {
			var current models.AcademicYear
			if err := tx.Where("is_current = ?", true).First(&current).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return NewValidationError("academic_year_id is required when no year is current")
				}
				return fmt.Errorf("load current academic year: %w", err)
			}
			class.AcademicYearID = current.ID
		} else {
			var year models.AcademicYear
			if err := tx.First(&year, class.AcademicYearID).Error; err != nil {
				return lookupErr(err, "academic year", class.AcademicYearID)
			}
		}
		if class.ClassTeacherID != nil {
			var t models.Teacher
			if err := tx.First(&t, *class.ClassTeacherID).Error; err != nil {
				return lookupErr(err, "teacher", *class.ClassTeacherID)
			}
		}

		var n int64
		if err := tx.Model(&models.Class{}).
			Where("class_name = ? AND academic_year_id = ?", class.ClassName, class.AcademicYearID).
			Count(&n).Error; err != nil {
			return fmt.Errorf("check class: %w", err)
		}
		if n > 0 {
			return NewValidationError("class %s already exists in this academic year", class.ClassName)
		}
		if err := tx.Omit(clause.Associations).Create(&class).Error; err != nil {
			return fmt.Errorf("create class: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &class, nil
}

func activeCounts(db *gorm.DB, classIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(classIDs))
	if len(classIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ClassID uint
		N       int64
	}
	if err := db.Model(&models.Enrollment{}).
		Select("class_id, COUNT(*) AS n").
		Where("class_id IN ? AND status = ?", classIDs, models.EnrollmentActive).
		Group("class_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count active enrollments: %w", err)
	}
	for _, r := range rows {
		out[r.ClassID] = r.N
	}
	return out, nil
}

func (s *AcademicService) ListClasses(ctx context.Context, yearID uint) ([]ClassSummary, error) {
	db := s.db.WithContext(ctx)
	q := db.Preload("ClassTeacher")
	if yearID != 0 {
		q = q.Where("academic_year_id = ?", yearID)
	}
	var classes []models.Class
	if err := q.Order("grade_level, class_name").Find(&classes).Error; err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	ids := make([]uint, len(classes))
	for i, c := range classes {
		ids[i] = c.ID
	}
	counts, err := activeCounts(db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ClassSummary, len(classes))
	for i, c := range classes {
		out[i] = ClassSummary{Class: c, ActiveStudents: counts[c.ID]}
	}
	return out, nil
}

func (s *AcademicService) GetClass(ctx context.Context, id uint) (*ClassSummary, error) {
	db := s.db.WithContext(ctx)
	var class models.Class
	if err := db.Preload("AcademicYear").Preload("ClassTeacher").First(&class, id).Error; err != nil {
		return nil, lookupErr(err, "class", id)
	}
	counts, err := activeCounts(db, []uint{id})
	if err != nil {
		return nil, err
	}
	return &ClassSummary{Class: class, ActiveStudents: counts[id]}, nil
}

type SubjectInput struct {
	SubjectName string `json:"subject_name" validate:"required,max=100"`
	SubjectCode string `json:"subject_code" validate:"required,max=20"`
	GradeLevel  *int   `json:"grade_level"`
	Description string `json:"description"`
}

func (s *AcademicService) CreateSubject(ctx context.Context, in SubjectInput) (*models.Subject, error) {
	fe := fieldErrors{}
	name := utils.SanitizeString(in.SubjectName)
	code := strings.ToUpper(utils.SanitizeString(in.SubjectCode))
	if name == "" {
		fe.add("subject_name", "is required")
	}
	if code == "" {
		fe.add("subject_code", "is required")
	}
	if err := fe.err("invalid subject"); err != nil {
		return nil, err
	}

	subject := models.Subject{SubjectName: name, SubjectCode: code, GradeLevel: in.GradeLevel, Description: in.Description}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Subject{}).Where("subject_code = ?", code).Count(&n).Error; err != nil {
			return fmt.Errorf("check subject: %w", err)
		}
		if n > 0 {
			return NewValidationError("subject code %s is already used", code)
		}
		return tx.Create(&subject).Error
	})
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

func (s *AcademicService) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	var out []models.Subject
	if err := s.db.WithContext(ctx).Order("subject_name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return out, nil
}

type TeacherInput struct {
	UserID         *uint  `json:"user_id"`
	StaffNumber    string `json:"staff_number" validate:"required,max=50"`
	FirstName      string `json:"first_name" validate:"required,max=100"`
	LastName       string `json:"last_name" validate:"required,max=100"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone" validate:"max=20"`
	Specialization string `json:"specialization"`
}

func (s *AcademicService) CreateTeacher(ctx context.Context, in TeacherInput) (*models.Teacher, error) {
	staff := strings.ToUpper(utils.SanitizeString(in.StaffNumber))
	if staff == "" {
		return nil, &ValidationError{Message: "invalid teacher", Fields: map[string]string{"staff_number": "is required"}}
	}
	teacher := models.Teacher{
		UserID:         in.UserID,
		StaffNumber:    staff,
		FirstName:      utils.SanitizeString(in.FirstName),
		LastName:       utils.SanitizeString(in.LastName),
		Email:          strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:          in.Phone,
		Specialization: in.Specialization,
		Active:         true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Teacher{}).Where("staff_number = ?", staff).Count(&n).Error; err != nil {
			return fmt.Errorf("check teacher: %w", err)
		}
		if n > 0 {
			return NewValidationError("staff number %s is already used", staff)
		}
		if in.UserID != nil {
			var u models.User
			if err := tx.Select("id").First(&u, *in.UserID).Error; err != nil {
				return lookupErr(err, "user", *in.UserID)
			}
		}
		return tx.Create(&teacher).Error
	})
	if err != nil {
		return nil, err
	}
	return &teacher, nil
}

func (s *AcademicService) ListTeachers(ctx context.Context, activeOnly bool) ([]models.Teacher, error) {
	q := s.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []models.Teacher
	if err := q.Order("last_name, first_name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return out, nil
}
