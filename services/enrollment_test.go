package services

import (
	"context"
	"fmt"
	"testing"

	"schoolcore/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollAssignsSequentialRollNumbers(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	class := seedClass(t, db, "JSS1A", year.ID, 40)
	svc := NewEnrollmentService(db)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		s := seedStudent(t, db, fmt.Sprintf("ADM%03d", i))
		e, err := svc.Enroll(ctx, s.ID, class.ID)
		require.NoError(t, err)
		assert.Equal(t, i, e.RollNumber)
		assert.Equal(t, models.EnrollmentActive, e.Status)
	}
}

func TestEnrollRollNumberFollowsMaxNotCount(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	class := seedClass(t, db, "JSS1A", year.ID, 40)
	a := seedStudent(t, db, "A")
	left := seedEnrollment(t, db, a.ID, class.ID, 7)
	require.NoError(t, db.Model(&left).Update("status", models.EnrollmentWithdrawn).Error)

	b := seedStudent(t, db, "B")
	e, err := NewEnrollmentService(db).Enroll(context.Background(), b.ID, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, e.RollNumber)
}

func TestEnrollCapacityExceeded(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	class := seedClass(t, db, "JSS1A", year.ID, 30)
	svc := NewEnrollmentService(db)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		s := seedStudent(t, db, fmt.Sprintf("ADM%03d", i))
		_, err := svc.Enroll(ctx, s.ID, class.ID)
		require.NoError(t, err)
	}

	extra := seedStudent(t, db, "ADM999")
	_, err := svc.Enroll(ctx, extra.ID, class.ID)
	var capErr *CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 30, capErr.Capacity)

	var active int64
	db.Model(&models.Enrollment{}).Where("class_id = ? AND status = ?", class.ID, models.EnrollmentActive).Count(&active)
	assert.Equal(t, int64(30), active)
}

func TestEnrollRejectsDuplicatesAndSecondActive(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	classA := seedClass(t, db, "JSS1A", year.ID, 40)
	classB := seedClass(t, db, "JSS1B", year.ID, 40)
	s := seedStudent(t, db, "ADM001")
	svc := NewEnrollmentService(db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, s.ID, classA.ID)
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, s.ID, classA.ID)
	var dup *DuplicateEnrollmentError
	assert.ErrorAs(t, err, &dup)

	_, err = svc.Enroll(ctx, s.ID, classB.ID)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestEnrollUnknownClassOrStudent(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	class := seedClass(t, db, "JSS1A", year.ID, 40)
	s := seedStudent(t, db, "ADM001")
	svc := NewEnrollmentService(db)
	ctx := context.Background()

	var nf *NotFoundError
	_, err := svc.Enroll(ctx, s.ID, 999)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "class", nf.Resource)

	_, err = svc.Enroll(ctx, 999, class.ID)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "student", nf.Resource)
}

func TestTransfer(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	from := seedClass(t, db, "JSS1A", year.ID, 40)
	to := seedClass(t, db, "JSS1B", year.ID, 40)
	other := seedStudent(t, db, "OTHER")
	seedEnrollment(t, db, other.ID, to.ID, 1)
	s := seedStudent(t, db, "ADM001")
	svc := NewEnrollmentService(db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, s.ID, from.ID)
	require.NoError(t, err)

	e, err := svc.Transfer(ctx, s.ID, to.ID)
	require.NoError(t, err)
	assert.Equal(t, to.ID, e.ClassID)
	assert.Equal(t, 2, e.RollNumber)

	var old models.Enrollment
	require.NoError(t, db.Where("student_id = ? AND class_id = ?", s.ID, from.ID).First(&old).Error)
	assert.Equal(t, models.EnrollmentCompleted, old.Status)

	var student models.Student
	require.NoError(t, db.First(&student, s.ID).Error)
	assert.Equal(t, models.StudentStatusActive, student.Status)
}

func TestTransferRollsBackWhenTargetIsFull(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	from := seedClass(t, db, "JSS1A", year.ID, 40)
	full := seedClass(t, db, "JSS1B", year.ID, 1)
	occupant := seedStudent(t, db, "OCC")
	seedEnrollment(t, db, occupant.ID, full.ID, 1)
	s := seedStudent(t, db, "ADM001")
	svc := NewEnrollmentService(db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, s.ID, from.ID)
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, s.ID, full.ID)
	var capErr *CapacityExceededError
	require.ErrorAs(t, err, &capErr)

	var current models.Enrollment
	require.NoError(t, db.Where("student_id = ? AND class_id = ?", s.ID, from.ID).First(&current).Error)
	assert.Equal(t, models.EnrollmentActive, current.Status)
}

func TestTransferWithoutActiveEnrollment(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	to := seedClass(t, db, "JSS1B", year.ID, 40)
	s := seedStudent(t, db, "ADM001")

	_, err := NewEnrollmentService(db).Transfer(context.Background(), s.ID, to.ID)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRoster(t *testing.T) {
	db := newTestDB(t)
	year := seedYear(t, db, "2025/2026", true)
	class := seedClass(t, db, "JSS1A", year.ID, 40)
	a := seedStudent(t, db, "A")
	b := seedStudent(t, db, "B")
	seedEnrollment(t, db, b.ID, class.ID, 2)
	gone := seedEnrollment(t, db, a.ID, class.ID, 1)
	require.NoError(t, db.Model(&gone).Update("status", models.EnrollmentWithdrawn).Error)

	svc := NewEnrollmentService(db)
	active, err := svc.Roster(context.Background(), class.ID, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "B", active[0].Student.AdmissionNumber)

	all, err := svc.Roster(context.Background(), class.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].RollNumber)
}
