package utils

import (
	"testing"

	"schoolcore/models"

	"github.com/stretchr/testify/assert"
)

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 33.333333, want: 33.33},
		{in: 66.666666, want: 66.67},
		{in: 0.125, want: 0.13},
		{in: 100, want: 100},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Round2(tc.in))
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	assert.NoError(t, err)
	assert.NoError(t, CheckPassword("s3cret", hash))
	assert.Error(t, CheckPassword("wrong", hash))
}

func TestIsValidFileExtension(t *testing.T) {
	allowed := []string{"xlsx", "CSV", "pdf"}
	assert.True(t, IsValidFileExtension("grades.xlsx", allowed))
	assert.True(t, IsValidFileExtension("grades.csv", allowed))
	assert.False(t, IsValidFileExtension("grades.exe", allowed))
	assert.False(t, IsValidFileExtension("noext", allowed))
}

func TestToRoster(t *testing.T) {
	roster := ToRoster([]models.Enrollment{
		{RecordModel: models.RecordModel{ID: 7}, RollNumber: 2, Status: models.EnrollmentActive,
			Student: models.Student{BaseModel: models.BaseModel{ID: 3}, AdmissionNumber: "ADM-3", FirstName: "Ada", LastName: "Okafor"}},
	})
	assert.Len(t, roster, 1)
	assert.Equal(t, 2, roster[0].RollNumber)
	assert.Equal(t, "Ada Okafor", roster[0].Student.FullName)
}
