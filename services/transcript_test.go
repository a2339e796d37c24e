package services

import (
	"context"
	"testing"

	"schoolcore/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleTranscript(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	class := seedClass(t, db, "JSS2B", year.ID, 40)
	math := seedSubject(t, db, "Mathematics", "MTH")
	eng := seedSubject(t, db, "English", "ENG")
	a := seedStudent(t, db, "A1")
	b := seedStudent(t, db, "B1")
	seedEnrollment(t, db, a.ID, class.ID, 1)
	seedEnrollment(t, db, b.ID, class.ID, 2)

	seedGrade(t, db, a.ID, class.ID, math.ID, year.ID, models.TermFirst, 95)
	seedGrade(t, db, a.ID, class.ID, eng.ID, year.ID, models.TermFirst, 65)
	seedGrade(t, db, b.ID, class.ID, math.ID, year.ID, models.TermFirst, 75)
	seedGrade(t, db, b.ID, class.ID, eng.ID, year.ID, models.TermFirst, 85)
	seedGrade(t, db, a.ID, class.ID, math.ID, year.ID, models.TermSecond, 55)

	asm := NewAssembler(db)

	tr, err := asm.Assemble(context.Background(), a.ID, TranscriptOptions{Term: models.TermFirst})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "A1", tr.StudentInfo.AdmissionNumber)
	assert.Equal(t, 1, tr.RollNumber)
	assert.Equal(t, "JSS2B", tr.Summary.ClassName)
	assert.Equal(t, "2025/2026", tr.Summary.AcademicYear)
	assert.Equal(t, 2, tr.Summary.TotalSubjects)
	assert.Equal(t, 2, tr.Summary.TotalStudents)
	assert.Equal(t, 80.0, tr.Summary.AverageScore)
	assert.Equal(t, 1, tr.Summary.Rank) // 80 vs 80, lower id first
	assert.Equal(t, 80.0, tr.Summary.ClassAverage)
	assert.Equal(t, 3.0, tr.Summary.GPA) // A+ and C
	assert.Equal(t, 1, tr.Summary.GradeDistribution["A+"])
	assert.Equal(t, 1, tr.Summary.GradeDistribution["C"])

	require.Len(t, tr.Grades, 2)
	assert.Equal(t, "English", tr.Grades[0].SubjectName)
	assert.Equal(t, 2, tr.Grades[0].SubjectRank)
	assert.Equal(t, 75.0, tr.Grades[0].ClassAverage)
	assert.Equal(t, "Mathematics", tr.Grades[1].SubjectName)
	assert.Equal(t, 1, tr.Grades[1].SubjectRank)
	assert.Equal(t, 85.0, tr.Grades[1].ClassAverage)
}

func TestAssembleTranscriptDefaultsToLatestTerm(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	class := seedClass(t, db, "JSS2B", year.ID, 40)
	math := seedSubject(t, db, "Mathematics", "MTH")
	a := seedStudent(t, db, "A1")
	seedEnrollment(t, db, a.ID, class.ID, 1)
	seedGrade(t, db, a.ID, class.ID, math.ID, year.ID, models.TermFirst, 40)
	seedGrade(t, db, a.ID, class.ID, math.ID, year.ID, models.TermSecond, 88)

	tr, err := NewAssembler(db).Assemble(context.Background(), a.ID, TranscriptOptions{})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, models.TermSecond, tr.Summary.Term)
	require.Len(t, tr.Grades, 1)
	assert.Equal(t, 88.0, tr.Grades[0].TotalScore)
	assert.Equal(t, "A", tr.Grades[0].GradeLetter)
}

func TestAssembleTranscriptWithoutEnrollment(t *testing.T) {
	db := newTestDB(t)
	a := seedStudent(t, db, "A1")

	tr, err := NewAssembler(db).Assemble(context.Background(), a.ID, TranscriptOptions{})
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestAssembleTranscriptForPastYear(t *testing.T) {
	db := newTestDB(t)
	past := seedYear(t, db, "2024/2025", false)
	now := seedYear(t, db, "2025/2026", true)
	oldClass := seedClass(t, db, "JSS1A", past.ID, 40)
	newClass := seedClass(t, db, "JSS2A", now.ID, 40)
	math := seedSubject(t, db, "Mathematics", "MTH")
	a := seedStudent(t, db, "A1")

	old := seedEnrollment(t, db, a.ID, oldClass.ID, 4)
	require.NoError(t, db.Model(&old).Update("status", models.EnrollmentCompleted).Error)
	seedEnrollment(t, db, a.ID, newClass.ID, 1)
	seedGrade(t, db, a.ID, oldClass.ID, math.ID, past.ID, models.TermThird, 71)

	tr, err := NewAssembler(db).Assemble(context.Background(), a.ID, TranscriptOptions{AcademicYearID: past.ID})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "JSS1A", tr.Summary.ClassName)
	assert.Equal(t, 4, tr.RollNumber)
	assert.Equal(t, models.TermThird, tr.Summary.Term)
	assert.Len(t, tr.Grades, 1)
}

func TestAssembleClassSharesRankings(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	class := seedClass(t, db, "JSS2B", year.ID, 40)
	math := seedSubject(t, db, "Mathematics", "MTH")
	a := seedStudent(t, db, "A1")
	b := seedStudent(t, db, "B1")
	seedEnrollment(t, db, a.ID, class.ID, 1)
	seedEnrollment(t, db, b.ID, class.ID, 2)
	seedGrade(t, db, a.ID, class.ID, math.ID, year.ID, models.TermFirst, 60)
	seedGrade(t, db, b.ID, class.ID, math.ID, year.ID, models.TermFirst, 90)

	asm := NewAssembler(db)
	list, err := asm.AssembleClass(context.Background(), class.ID, models.TermFirst)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].Summary.Rank)
	assert.Equal(t, 1, list[1].Summary.Rank)
	assert.Len(t, asm.grades, 1)
}

func TestAssembleTranscriptCountsUngradedClassmates(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	class := seedClass(t, db, "JSS2B", year.ID, 40)
	math := seedSubject(t, db, "Mathematics", "MTH")
	a := seedStudent(t, db, "A1")
	b := seedStudent(t, db, "B1")
	seedEnrollment(t, db, a.ID, class.ID, 1)
	seedEnrollment(t, db, b.ID, class.ID, 2)
	seedGrade(t, db, b.ID, class.ID, math.ID, year.ID, models.TermFirst, 64)

	asm := NewAssembler(db)
	tr, err := asm.Assemble(context.Background(), a.ID, TranscriptOptions{Term: models.TermFirst})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, 2, tr.Summary.TotalStudents)
	assert.Equal(t, 2, tr.Summary.Rank)
	assert.Equal(t, 32.0, tr.Summary.ClassAverage)
	assert.Empty(t, tr.Grades)
}
