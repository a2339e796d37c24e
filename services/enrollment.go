package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schoolcore/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EnrollmentService allocates class seats and roll numbers.
type EnrollmentService struct {
	db *gorm.DB
}

func NewEnrollmentService(db *gorm.DB) *EnrollmentService {
	return &EnrollmentService{db: db}
}

// Enroll places a student in a class with the next free roll number.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID, classID uint) (*models.Enrollment, error) {
	var out *models.Enrollment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := enrollTx(tx, studentID, classID)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"student_id":  studentID,
		"class_id":    classID,
		"roll_number": out.RollNumber,
	}).Info("Student enrolled")
	return out, nil
}

// enrollTx runs the enrollment checks with the class row locked, so the
// capacity check and roll number allocation cannot race.
func enrollTx(tx *gorm.DB, studentID, classID uint) (*models.Enrollment, error) {
	var class models.Class
	if err := lockForUpdate(tx).First(&class, classID).Error; err != nil {
		return nil, lookupErr(err, "class", classID)
	}

	var student models.Student
	if err := tx.First(&student, studentID).Error; err != nil {
		return nil, lookupErr(err, "student", studentID)
	}
	if student.Status != models.StudentStatusActive {
		return nil, NewValidationError("student %s is %s and cannot be enrolled", student.AdmissionNumber, student.Status)
	}

	var existing int64
	if err := tx.Model(&models.Enrollment{}).
		Where("student_id = ? AND class_id = ?", studentID, classID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if existing > 0 {
		return nil, &DuplicateEnrollmentError{StudentID: studentID, ClassID: classID}
	}

	var activeElsewhere int64
	if err := tx.Model(&models.Enrollment{}).
		Where("student_id = ? AND status = ?", studentID, models.EnrollmentActive).
		Count(&activeElsewhere).Error; err != nil {
		return nil, fmt.Errorf("check active enrollment: %w", err)
	}
	if activeElsewhere > 0 {
		return nil, NewValidationError("student %s already has an active enrollment; use transfer", student.AdmissionNumber)
	}

	var active int64
	if err := tx.Model(&models.Enrollment{}).
		Where("class_id = ? AND status = ?", classID, models.EnrollmentActive).
		Count(&active).Error; err != nil {
		return nil, fmt.Errorf("count class enrollments: %w", err)
	}
	if active >= int64(class.Capacity) {
		return nil, &CapacityExceededError{ClassID: classID, Capacity: class.Capacity}
	}

	var maxRoll int
	if err := tx.Model(&models.Enrollment{}).
		Where("class_id = ?", classID).
		Select("COALESCE(MAX(roll_number), 0)").
		Scan(&maxRoll).Error; err != nil {
		return nil, fmt.Errorf("read roll numbers: %w", err)
	}

	e := &models.Enrollment{
		StudentID:      studentID,
		ClassID:        classID,
		RollNumber:     maxRoll + 1,
		Status:         models.EnrollmentActive,
		EnrollmentDate: time.Now(),
	}
	if err := tx.Create(e).Error; err != nil {
		return nil, fmt.Errorf("create enrollment: %w", err)
	}
	return e, nil
}

// Transfer completes the student's active enrollment and enrolls them in
// newClassID. Both happen or neither does.
func (s *EnrollmentService) Transfer(ctx context.Context, studentID, newClassID uint) (*models.Enrollment, error) {
	var out *models.Enrollment
	var fromClass uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Enrollment
		err := lockForUpdate(tx).
			Where("student_id = ? AND status = ?", studentID, models.EnrollmentActive).
			First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewValidationError("student %d has no active enrollment to transfer", studentID)
		}
		if err != nil {
			return fmt.Errorf("load active enrollment: %w", err)
		}
		if current.ClassID == newClassID {
			return NewValidationError("student %d is already in class %d", studentID, newClassID)
		}
		fromClass = current.ClassID

		if err := tx.Model(&models.Enrollment{}).
			Where("id = ?", current.ID).
			Update("status", models.EnrollmentCompleted).Error; err != nil {
			return fmt.Errorf("complete enrollment %d: %w", current.ID, err)
		}

		e, err := enrollTx(tx, studentID, newClassID)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"student_id":    studentID,
		"from_class_id": fromClass,
		"to_class_id":   newClassID,
	}).Info("Student transferred")
	return out, nil
}

// Roster lists a class's enrollments by roll number.
func (s *EnrollmentService) Roster(ctx context.Context, classID uint, includeInactive bool) ([]models.Enrollment, error) {
	q := s.db.WithContext(ctx).Preload("Student").Where("class_id = ?", classID)
	if !includeInactive {
		q = q.Where("status = ?", models.EnrollmentActive)
	}
	var out []models.Enrollment
	if err := q.Order("roll_number").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load roster of class %d: %w", classID, err)
	}
	return out, nil
}
