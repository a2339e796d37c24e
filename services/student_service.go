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

type StudentService struct {
	db *gorm.DB
}

func NewStudentService(db *gorm.DB) *StudentService {
	return &StudentService{db: db}
}

type StudentInput struct {
	AdmissionNumber string     `json:"admission_number" validate:"required,max=50"`
	FirstName       string     `json:"first_name" validate:"required,max=100"`
	MiddleName      string     `json:"middle_name" validate:"max=100"`
	LastName        string     `json:"last_name" validate:"required,max=100"`
	DateOfBirth     *time.Time `json:"date_of_birth"`
	Gender          string     `json:"gender" validate:"omitempty,oneof=male female other"`
	Address         string     `json:"address" validate:"max=500"`
	Nationality     string     `json:"nationality" validate:"max=100"`
	AdmissionDate   *time.Time `json:"admission_date"`
	ClassID         *uint      `json:"class_id"`
	CreatedBy       *uint      `json:"-"`
}

// StudentDetail is a student with the enrollment they currently sit in.
type StudentDetail struct {
	models.Student
	CurrentEnrollment *models.Enrollment `json:"current_enrollment"`
}

// RegisterStudent admits a student and, when ClassID is set, enrolls them in
// the same transaction. A failed enrollment leaves no student behind.
func (s *StudentService) RegisterStudent(ctx context.Context, in StudentInput) (*StudentDetail, error) {
	fe := fieldErrors{}
	admission := strings.ToUpper(utils.SanitizeString(in.AdmissionNumber))
	if admission == "" {
		fe.add("admission_number", "is required")
	}
	if utils.SanitizeString(in.FirstName) == "" {
		fe.add("first_name", "is required")
	}
	if utils.SanitizeString(in.LastName) == "" {
		fe.add("last_name", "is required")
	}
	if err := fe.err("invalid student"); err != nil {
		return nil, err
	}

	student := models.Student{
		AdmissionNumber: admission,
		FirstName:       utils.SanitizeString(in.FirstName),
		MiddleName:      utils.SanitizeString(in.MiddleName),
		LastName:        utils.SanitizeString(in.LastName),
		DateOfBirth:     in.DateOfBirth,
		Gender:          strings.ToLower(in.Gender),
		Address:         in.Address,
		Nationality:     in.Nationality,
		Status:          models.StudentStatusActive,
		AdmissionDate:   time.Now(),
		CreatedBy:       in.CreatedBy,
	}
	if in.AdmissionDate != nil {
		student.AdmissionDate = *in.AdmissionDate
	}

	out := &StudentDetail{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Unscoped().Model(&models.Student{}).Where("admission_number = ?", admission).Count(&n).Error; err != nil {
			return fmt.Errorf("check admission number: %w", err)
		}
		if n > 0 {
			return &ValidationError{
				Message: fmt.Sprintf("admission number %s is already used", admission),
				Fields:  map[string]string{"admission_number": "already used"},
			}
		}
		if err := tx.Omit(clause.Associations).Create(&student).Error; err != nil {
			return fmt.Errorf("create student: %w", err)
		}
		if in.ClassID != nil {
			e, err := enrollTx(tx, student.ID, *in.ClassID)
			if err != nil {
				return err
			}
			out.CurrentEnrollment = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Student = student

	logrus.WithFields(logrus.Fields{
		"student_id":       student.ID,
		"admission_number": student.AdmissionNumber,
	}).Info("Student registered")
	return out, nil
}

func (s *StudentService) GetStudent(ctx context.Context, id uint) (*StudentDetail, error) {
	db := s.db.WithContext(ctx)
	var student models.Student
	if err := db.First(&student, id).Error; err != nil {
		return nil, lookupErr(err, "student", id)
	}
	out := &StudentDetail{Student: student}

	var e models.Enrollment
	err := db.Preload("Class").Where("student_id = ? AND status = ?", id, models.EnrollmentActive).First(&e).Error
	switch {
	case err == nil:
		out.CurrentEnrollment = &e
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("load enrollment of student %d: %w", id, err)
	}
	return out, nil
}

type StudentFilter struct {
	Search  string
	Status  string
	ClassID uint
	Page
}

func (s *StudentService) ListStudents(ctx context.Context, f StudentFilter) ([]models.Student, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Student{})
	if v := strings.TrimSpace(f.Search); v != "" {
		like := "%" + strings.ToLower(v) + "%"
		q = q.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(admission_number) LIKE ?", like, like, like)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ClassID != 0 {
		q = q.Where("id IN (?)", s.db.Model(&models.Enrollment{}).
			Select("student_id").
			Where("class_id = ? AND status = ?", f.ClassID, models.EnrollmentActive))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	var out []models.Student
	if err := f.Page.apply(q).Order("last_name, first_name, id").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	return out, total, nil
}
