package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// ValidationError is returned when input breaks a business rule. Fields maps
// a field name to what is wrong with it.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// NewValidationError builds a ValidationError without field details.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// fieldErrors collects per-field problems before turning them into a ValidationError.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

func (f fieldErrors) err(message string) error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Message: message, Fields: f}
}

type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// CapacityExceededError is returned when a class has no free seat left.
type CapacityExceededError struct {
	ClassID  uint
	Capacity int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("class %d is at full capacity (%d)", e.ClassID, e.Capacity)
}

type DuplicateEnrollmentError struct {
	StudentID uint
	ClassID   uint
}

func (e *DuplicateEnrollmentError) Error() string {
	return fmt.Sprintf("student %d is already enrolled in class %d", e.StudentID, e.ClassID)
}

// ConflictDetectedError carries the clashes that blocked a timetable write.
type ConflictDetectedError struct {
	Conflicts []Conflict
}

func (e *ConflictDetectedError) Error() string {
	types := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		types = append(types, c.Type)
	}
	return "timetable conflict: " + strings.Join(types, ", ")
}

// BatchFailedError is returned by batch operations when no item succeeded.
type BatchFailedError struct {
	Errors []BatchItemError
}

type BatchItemError struct {
	StudentID       uint   `json:"student_id"`
	AdmissionNumber string `json:"admission_number,omitempty"`
	Error           string `json:"error"`
}

func (e *BatchFailedError) Error() string {
	return fmt.Sprintf("all %d items failed", len(e.Errors))
}

// lookupErr turns gorm.ErrRecordNotFound into a NotFoundError and wraps anything else.
func lookupErr(err error, resource string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return fmt.Errorf("load %s %d: %w", resource, id, err)
}
