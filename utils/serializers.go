package utils

import (
	"schoolcore/models"
)

// Compact representations used across APIs
type StudentShort struct {
	ID              uint   `json:"id"`
	AdmissionNumber string `json:"admission_number"`
	FullName        string `json:"full_name"`
	Status          string `json:"status"`
}

type ClassShort struct {
	ID         uint   `json:"id"`
	ClassName  string `json:"class_name"`
	GradeLevel int    `json:"grade_level"`
	Section    string `json:"section,omitempty"`
}

type RosterEntry struct {
	EnrollmentID uint         `json:"enrollment_id"`
	RollNumber   int          `json:"roll_number"`
	Status       string       `json:"status"`
	Student      StudentShort `json:"student"`
}

// ToStudentShort maps a student to the compact DTO.
func ToStudentShort(s models.Student) StudentShort {
	return StudentShort{
		ID:              s.ID,
		AdmissionNumber: s.AdmissionNumber,
		FullName:        s.FullName(),
		Status:          s.Status,
	}
}

// ToClassShort maps a class to the compact DTO.
func ToClassShort(c models.Class) ClassShort {
	return ClassShort{
		ID:         c.ID,
		ClassName:  c.ClassName,
		GradeLevel: c.GradeLevel,
		Section:    c.Section,
	}
}

// ToRoster maps enrollments (with Student preloaded) to roster rows.
func ToRoster(enrollments []models.Enrollment) []RosterEntry {
	out := make([]RosterEntry, 0, len(enrollments))
	for _, e := range enrollments {
		out = append(out, RosterEntry{
			EnrollmentID: e.ID,
			RollNumber:   e.RollNumber,
			Status:       e.Status,
			Student:      ToStudentShort(e.Student),
		})
	}
	return out
}
