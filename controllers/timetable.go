package controllers

import (
	"schoolcore/models"
	"schoolcore/services"

	"github.com/gofiber/fiber/v2"
)

type TimetableController struct {
	timetable *services.TimetableService
}

func NewTimetableController(timetable *services.TimetableService) *TimetableController {
	return &TimetableController{timetable: timetable}
}

// CreateSlot stores a slot; clashes answer 409 with the conflicting entries.
func (tc *TimetableController) CreateSlot(c *fiber.Ctx) error {
	var in services.SlotInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	slot, err := tc.timetable.CreateSlot(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Timetable slot created successfully",
		"slot":    slot,
	})
}

func (tc *TimetableController) UpdateSlot(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in services.SlotInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	slot, err := tc.timetable.UpdateSlot(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Timetable slot updated successfully",
		"slot":    slot,
	})
}

func (tc *TimetableController) DeleteSlot(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := tc.timetable.DeleteSlot(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Timetable slot deleted successfully"})
}

func (tc *TimetableController) GetSlots(c *fiber.Ctx) error {
	f := services.SlotFilter{DayOfWeek: c.Query("day_of_week")}
	var err error
	if f.ClassID, err = queryUint(c, "class_id"); err != nil {
		return respondError(c, err)
	}
	if f.TeacherID, err = queryUint(c, "teacher_id"); err != nil {
		return respondError(c, err)
	}
	if f.AcademicYearID, err = queryUint(c, "academic_year_id"); err != nil {
		return respondError(c, err)
	}
	if f.Term, err = queryTerm(c, "term"); err != nil {
		return respondError(c, err)
	}
	slots, err := tc.timetable.ListSlots(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"slots": slots, "total": len(slots)})
}

// CheckConflicts is advisory: it reports clashes without writing.
func (tc *TimetableController) CheckConflicts(c *fiber.Ctx) error {
	var q services.ConflictQuery
	if err := bind(c, &q); err != nil {
		return respondError(c, err)
	}
	conflicts, err := tc.timetable.Check(c.UserContext(), q)
	if err != nil {
		return respondError(c, err)
	}
	if conflicts == nil {
		conflicts = []services.Conflict{}
	}
	return c.JSON(fiber.Map{
		"has_conflicts": len(conflicts) > 0,
		"conflicts":     conflicts,
	})
}

func (tc *TimetableController) ClassSchedule(c *fiber.Ctx) error {
	classID, err := queryUint(c, "class_id")
	if err != nil {
		return respondError(c, err)
	}
	if classID == 0 {
		return respondError(c, badRequest("class_id is required"))
	}
	term, yearID, err := scheduleScope(c)
	if err != nil {
		return respondError(c, err)
	}
	days, err := tc.timetable.ClassSchedule(c.UserContext(), classID, term, yearID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"class_id": classID, "schedule": days})
}

func (tc *TimetableController) TeacherSchedule(c *fiber.Ctx) error {
	teacherID, err := queryUint(c, "teacher_id")
	if err != nil {
		return respondError(c, err)
	}
	if teacherID == 0 {
		return respondError(c, badRequest("teacher_id is required"))
	}
	term, yearID, err := scheduleScope(c)
	if err != nil {
		return respondError(c, err)
	}
	days, err := tc.timetable.TeacherSchedule(c.UserContext(), teacherID, term, yearID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"teacher_id": teacherID, "schedule": days})
}

func scheduleScope(c *fiber.Ctx) (models.Term, uint, error) {
	term, err := queryTerm(c, "term")
	if err != nil {
		return "", 0, err
	}
	yearID, err := queryUint(c, "academic_year_id")
	if err != nil {
		return "", 0, err
	}
	return term, yearID, nil
}
