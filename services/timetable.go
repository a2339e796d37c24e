package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"schoolcore/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ConflictTeacher = "teacher"
	ConflictClass   = "class"
	ConflictRoom    = "room"
)

var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// NormalizeDay returns the canonical weekday name, case insensitive.
func NormalizeDay(day string) (string, bool) {
	d := strings.TrimSpace(day)
	for _, w := range Weekdays {
		if strings.EqualFold(w, d) {
			return w, true
		}
	}
	return "", false
}

var timePattern = regexp.MustCompile(`\d{1,2}:\d{2}(?::\d{2})?`)

// parseHourMinute reads the clock time out of "08:30", "08:30:00", RFC3339 or
// MySQL datetime strings.
func parseHourMinute(value string) (int, int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, 0, fmt.Errorf("time value cannot be empty")
	}

	layout := "15:04"
	if strings.Count(value, ":") >= 2 {
		layout = "15:04:05"
	}

	t, err := time.Parse(layout, value)
	if err == nil {
		return t.Hour(), t.Minute(), nil
	}

	fallbackLayouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04",
	}
	for _, l := range fallbackLayouts {
		if parsed, altErr := time.Parse(l, value); altErr == nil {
			return parsed.Hour(), parsed.Minute(), nil
		}
	}

	if match := timePattern.FindString(value); match != "" && match != value {
		return parseHourMinute(match)
	}

	return 0, 0, fmt.Errorf("invalid time format %q: %w", value, err)
}

// NormalizeClock converts any accepted time format to zero padded "HH:MM".
func NormalizeClock(value string) (string, error) {
	h, m, err := parseHourMinute(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// TimeRange is a half open [Start, End) interval in minutes after midnight.
type TimeRange struct {
	Start int
	End   int
}

// RangeOf parses a slot's times. Invalid times yield an empty range.
func RangeOf(start, end string) TimeRange {
	sh, sm, err1 := parseHourMinute(start)
	eh, em, err2 := parseHourMinute(end)
	if err1 != nil || err2 != nil {
		return TimeRange{}
	}
	return TimeRange{Start: sh*60 + sm, End: eh*60 + em}
}

// Overlaps reports whether two half open ranges intersect. Touching ranges do not.
func Overlaps(a, b TimeRange) bool {
	return a.Start < b.End && b.Start < a.End
}

type Conflict struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Entries []models.TimetableSlot `json:"entries"`
}

func normalizeRoom(room string) string {
	return strings.ToUpper(strings.TrimSpace(room))
}

func sameRoom(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// DetectConflicts checks candidate against existing slots on each dimension
// separately. The candidate's own ID, other days and other terms or years are
// ignored. A zero ClassID or nil TeacherID skips that dimension.
func DetectConflicts(candidate models.TimetableSlot, existing []models.TimetableSlot) []Conflict {
	cr := RangeOf(candidate.StartTime, candidate.EndTime)
	var teacher, class, room []models.TimetableSlot

	for _, e := range existing {
		if candidate.ID != 0 && e.ID == candidate.ID {
			continue
		}
		if !strings.EqualFold(e.DayOfWeek, candidate.DayOfWeek) {
			continue
		}
		if candidate.Term != "" && e.Term != candidate.Term {
			continue
		}
		if candidate.AcademicYearID != 0 && e.AcademicYearID != candidate.AcademicYearID {
			continue
		}
		if !Overlaps(cr, RangeOf(e.StartTime, e.EndTime)) {
			continue
		}
		if candidate.TeacherID != nil && e.TeacherID != nil && *candidate.TeacherID == *e.TeacherID {
			teacher = append(teacher, e)
		}
		if candidate.ClassID != 0 && e.ClassID == candidate.ClassID {
			class = append(class, e)
		}
		if sameRoom(candidate.RoomNumber, e.RoomNumber) {
			room = append(room, e)
		}
	}

	var out []Conflict
	if len(teacher) > 0 {
		out = append(out, Conflict{Type: ConflictTeacher, Message: "Teacher is already scheduled at this time", Entries: teacher})
	}
	if len(class) > 0 {
		out = append(out, Conflict{Type: ConflictClass, Message: "Class already has a lesson at this time", Entries: class})
	}
	if len(room) > 0 {
		out = append(out, Conflict{Type: ConflictRoom, Message: "Room " + strings.TrimSpace(candidate.RoomNumber) + " is already booked at this time", Entries: room})
	}
	return out
}

// SlotInput is a timetable slot as submitted by a client.
type SlotInput struct {
	ClassID        uint   `json:"class_id" validate:"required"`
	SubjectID      uint   `json:"subject_id" validate:"required"`
	TeacherID      *uint  `json:"teacher_id"`
	DayOfWeek      string `json:"day_of_week" validate:"required"`
	StartTime      string `json:"start_time" validate:"required"`
	EndTime        string `json:"end_time" validate:"required"`
	RoomNumber     string `json:"room_number"`
	Term           string `json:"term" validate:"required"`
	AcademicYearID uint   `json:"academic_year_id" validate:"required"`
}

// ConflictQuery is an advisory check, every scope field is optional.
type ConflictQuery struct {
	ClassID        uint   `json:"class_id"`
	TeacherID      *uint  `json:"teacher_id"`
	RoomNumber     string `json:"room_number"`
	DayOfWeek      string `json:"day_of_week" validate:"required"`
	StartTime      string `json:"start_time" validate:"required"`
	EndTime        string `json:"end_time" validate:"required"`
	Term           string `json:"term"`
	AcademicYearID uint   `json:"academic_year_id"`
	ExcludeID      uint   `json:"exclude_id"`
}

type TimetableService struct {
	db *gorm.DB
}

func NewTimetableService(db *gorm.DB) *TimetableService {
	return &TimetableService{db: db}
}

// normalizeWindow validates the day and times shared by slots and queries.
func normalizeWindow(fe fieldErrors, day, start, end string) (string, string, string) {
	d, ok := NormalizeDay(day)
	if !ok {
		fe.add("day_of_week", "must be a weekday name (Monday to Sunday)")
	}
	s, err := NormalizeClock(start)
	if err != nil {
		fe.add("start_time", "invalid time")
	}
	e, err := NormalizeClock(end)
	if err != nil {
		fe.add("end_time", "invalid time")
	}
	if s != "" && e != "" && s >= e {
		fe.add("end_time", "must be after start_time")
	}
	return d, s, e
}

func (in SlotInput) toSlot() (models.TimetableSlot, error) {
	fe := fieldErrors{}
	day, start, end := normalizeWindow(fe, in.DayOfWeek, in.StartTime, in.EndTime)
	term, ok := models.ParseTerm(in.Term)
	if !ok {
		fe.add("term", "must be first, second or third")
	}
	if in.ClassID == 0 {
		fe.add("class_id", "is required")
	}
	if in.SubjectID == 0 {
		fe.add("subject_id", "is required")
	}
	if in.AcademicYearID == 0 {
		fe.add("academic_year_id", "is required")
	}
	if err := fe.err("invalid timetable slot"); err != nil {
		return models.TimetableSlot{}, err
	}
	return models.TimetableSlot{
		ClassID:        in.ClassID,
		SubjectID:      in.SubjectID,
		TeacherID:      in.TeacherID,
		DayOfWeek:      day,
		StartTime:      start,
		EndTime:        end,
		RoomNumber:     normalizeRoom(in.RoomNumber),
		Term:           term,
		AcademicYearID: in.AcademicYearID,
	}, nil
}

// candidates loads same-day slots that share the candidate's teacher, class
// or room, within its term and year when those are set.
func candidates(tx *gorm.DB, slot models.TimetableSlot, excludeID uint) ([]models.TimetableSlot, error) {
	q := tx.Model(&models.TimetableSlot{}).Where("day_of_week = ?", slot.DayOfWeek)
	if slot.Term != "" {
		q = q.Where("term = ?", slot.Term)
	}
	if slot.AcademicYearID != 0 {
		q = q.Where("academic_year_id = ?", slot.AcademicYearID)
	}
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}

	var dims []clause.Expression
	if slot.TeacherID != nil {
		dims = append(dims, clause.Eq{Column: clause.Column{Name: "teacher_id"}, Value: *slot.TeacherID})
	}
	if slot.ClassID != 0 {
		dims = append(dims, clause.Eq{Column: clause.Column{Name: "class_id"}, Value: slot.ClassID})
	}
	if slot.RoomNumber != "" {
		dims = append(dims, clause.Eq{Column: clause.Column{Name: "room_number"}, Value: slot.RoomNumber})
	}
	if len(dims) == 0 {
		return nil, nil
	}
	q = q.Where(clause.Or(dims...))

	var out []models.TimetableSlot
	if err := q.Order("start_time").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load timetable slots: %w", err)
	}
	return out, nil
}

// Check reports clashes for a proposed slot without writing anything.
func (s *TimetableService) Check(ctx context.Context, q ConflictQuery) ([]Conflict, error) {
	fe := fieldErrors{}
	day, start, end := normalizeWindow(fe, q.DayOfWeek, q.StartTime, q.EndTime)
	var term models.Term
	if q.Term != "" {
		t, ok := models.ParseTerm(q.Term)
		if !ok {
			fe.add("term", "must be first, second or third")
		}
		term = t
	}
	if err := fe.err("invalid conflict query"); err != nil {
		return nil, err
	}

	slot := models.TimetableSlot{
		RecordModel:    models.RecordModel{ID: q.ExcludeID},
		ClassID:        q.ClassID,
		TeacherID:      q.TeacherID,
		DayOfWeek:      day,
		StartTime:      start,
		EndTime:        end,
		RoomNumber:     normalizeRoom(q.RoomNumber),
		Term:           term,
		AcademicYearID: q.AcademicYearID,
	}
	existing, err := candidates(s.db.WithContext(ctx), slot, q.ExcludeID)
	if err != nil {
		return nil, err
	}
	return DetectConflicts(slot, existing), nil
}

// lockYear serializes timetable writes of one academic year.
func lockYear(tx *gorm.DB, yearID uint) error {
	var year models.AcademicYear
	if err := lockForUpdate(tx).First(&year, yearID).Error; err != nil {
		return lookupErr(err, "academic year", yearID)
	}
	return nil
}

func (s *TimetableService) CreateSlot(ctx context.Context, in SlotInput) (*models.TimetableSlot, error) {
	slot, err := in.toSlot()
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockYear(tx, slot.AcademicYearID); err != nil {
			return err
		}
		existing, err := candidates(tx, slot, 0)
		if err != nil {
			return err
		}
		if conflicts := DetectConflicts(slot, existing); len(conflicts) > 0 {
			return &ConflictDetectedError{Conflicts: conflicts}
		}
		if err := tx.Create(&slot).Error; err != nil {
			return fmt.Errorf("create timetable slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"slot_id":  slot.ID,
		"class_id": slot.ClassID,
		"day":      slot.DayOfWeek,
		"start":    slot.StartTime,
	}).Info("Timetable slot created")
	return &slot, nil
}

func (s *TimetableService) UpdateSlot(ctx context.Context, id uint, in SlotInput) (*models.TimetableSlot, error) {
	slot, err := in.toSlot()
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.TimetableSlot
		if err := tx.First(&current, id).Error; err != nil {
			return lookupErr(err, "timetable slot", id)
		}
		if err := lockYear(tx, slot.AcademicYearID); err != nil {
			return err
		}
		slot.ID = current.ID
		slot.CreatedAt = current.CreatedAt

		existing, err := candidates(tx, slot, id)
		if err != nil {
			return err
		}
		if conflicts := DetectConflicts(slot, existing); len(conflicts) > 0 {
			return &ConflictDetectedError{Conflicts: conflicts}
		}
		if err := tx.Omit(clause.Associations).Save(&slot).Error; err != nil {
			return fmt.Errorf("update timetable slot %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (s *TimetableService) DeleteSlot(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.TimetableSlot{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete timetable slot %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Resource: "timetable slot", ID: id}
	}
	return nil
}

type SlotFilter struct {
	ClassID        uint
	TeacherID      uint
	DayOfWeek      string
	Term           models.Term
	AcademicYearID uint
}

func (s *TimetableService) ListSlots(ctx context.Context, f SlotFilter) ([]models.TimetableSlot, error) {
	q := s.db.WithContext(ctx).Preload("Subject").Preload("Teacher")
	if f.ClassID != 0 {
		q = q.Where("class_id = ?", f.ClassID)
	}
	if f.TeacherID != 0 {
		q = q.Where("teacher_id = ?", f.TeacherID)
	}
	if f.DayOfWeek != "" {
		if d, ok := NormalizeDay(f.DayOfWeek); ok {
			q = q.Where("day_of_week = ?", d)
		}
	}
	if f.Term != "" {
		q = q.Where("term = ?", f.Term)
	}
	if f.AcademicYearID != 0 {
		q = q.Where("academic_year_id = ?", f.AcademicYearID)
	}
	var out []models.TimetableSlot
	if err := q.Order("day_of_week").Order("start_time").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return out, nil
}

// DaySchedule is one weekday of a weekly schedule.
type DaySchedule struct {
	Day   string                 `json:"day"`
	Slots []models.TimetableSlot `json:"slots"`
}

// GroupByDay orders slots Monday to Sunday and by start time within a day.
// Days without slots are left out.
func GroupByDay(slots []models.TimetableSlot) []DaySchedule {
	byDay := make(map[string][]models.TimetableSlot)
	for _, sl := range slots {
		byDay[sl.DayOfWeek] = append(byDay[sl.DayOfWeek], sl)
	}
	out := make([]DaySchedule, 0, len(byDay))
	for _, d := range Weekdays {
		day := byDay[d]
		if len(day) == 0 {
			continue
		}
		sort.SliceStable(day, func(i, j int) bool { return day[i].StartTime < day[j].StartTime })
		out = append(out, DaySchedule{Day: d, Slots: day})
	}
	return out
}

func (s *TimetableService) ClassSchedule(ctx context.Context, classID uint, term models.Term, yearID uint) ([]DaySchedule, error) {
	slots, err := s.ListSlots(ctx, SlotFilter{ClassID: classID, Term: term, AcademicYearID: yearID})
	if err != nil {
		return nil, err
	}
	return GroupByDay(slots), nil
}

func (s *TimetableService) TeacherSchedule(ctx context.Context, teacherID uint, term models.Term, yearID uint) ([]DaySchedule, error) {
	slots, err := s.ListSlots(ctx, SlotFilter{TeacherID: teacherID, Term: term, AcademicYearID: yearID})
	if err != nil {
		return nil, err
	}
	return GroupByDay(slots), nil
}
