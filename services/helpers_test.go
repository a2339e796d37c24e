package services

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"schoolcore/database"
	"schoolcore/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var dbCounter int64

// newTestDB returns a private in-memory database with every table migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, atomic.AddInt64(&dbCounter, 1))
	db, err := database.OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedYear(t *testing.T, db *gorm.DB, name string, current bool) models.AcademicYear {
	t.Helper()
	y := models.AcademicYear{
		YearName:  name,
		StartDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		IsCurrent: current,
	}
	require.NoError(t, db.Create(&y).Error)
	return y
}

func seedClass(t *testing.T, db *gorm.DB, name string, yearID uint, capacity int) models.Class {
	t.Helper()
	c := models.Class{ClassName: name, GradeLevel: 7, AcademicYearID: yearID, Capacity: capacity}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func seedStudent(t *testing.T, db *gorm.DB, admission string) models.Student {
	t.Helper()
	s := models.Student{
		AdmissionNumber: admission,
		FirstName:       "Student",
		LastName:        admission,
		Status:          models.StudentStatusActive,
		AdmissionDate:   time.Now(),
	}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func seedSubject(t *testing.T, db *gorm.DB, name, code string) models.Subject {
	t.Helper()
	s := models.Subject{SubjectName: name, SubjectCode: code}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func seedTeacher(t *testing.T, db *gorm.DB, staffNumber string) models.Teacher {
	t.Helper()
	tc := models.Teacher{StaffNumber: staffNumber, FirstName: "Teacher", LastName: staffNumber, Active: true}
	require.NoError(t, db.Create(&tc).Error)
	return tc
}

func seedEnrollment(t *testing.T, db *gorm.DB, studentID, classID uint, roll int) models.Enrollment {
	t.Helper()
	e := models.Enrollment{StudentID: studentID, ClassID: classID, RollNumber: roll, Status: models.EnrollmentActive, EnrollmentDate: time.Now()}
	require.NoError(t, db.Create(&e).Error)
	return e
}

// seedGrade stores a grade whose total equals total, using exam only weighting.
func seedGrade(t *testing.T, db *gorm.DB, studentID, classID, subjectID, yearID uint, term models.Term, total float64) models.Grade {
	t.Helper()
	g := models.Grade{
		StudentID: studentID, ClassID: classID, SubjectID: subjectID, AcademicYearID: yearID, Term: term,
		AssessmentTotal: 100, TestTotal: 100, ExamScore: total, ExamTotal: 100,
	}
	NewScoreEngine(Weights{Exam: 100}).Apply(&g)
	require.NoError(t, db.Create(&g).Error)
	return g
}
