package controllers

import (
	"schoolcore/middleware"
	"schoolcore/services"

	"github.com/gofiber/fiber/v2"
)

type StudentController struct {
	students   *services.StudentService
	enrollment *services.EnrollmentService
}

func NewStudentController(students *services.StudentService, enrollment *services.EnrollmentService) *StudentController {
	return &StudentController{students: students, enrollment: enrollment}
}

// CreateStudent admits a student, enrolling them when class_id is given.
func (sc *StudentController) CreateStudent(c *fiber.Ctx) error {
	var in services.StudentInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.CreatedBy = middleware.CurrentUserID(c)

	student, err := sc.students.RegisterStudent(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Student registered successfully",
		"student": student,
	})
}

// GetStudents returns paginated students filtered by search, status or class.
func (sc *StudentController) GetStudents(c *fiber.Ctx) error {
	f := services.StudentFilter{
		Search: c.Query("search"),
		Status: c.Query("status"),
		Page:   pageOf(c),
	}
	var err error
	if f.ClassID, err = queryUint(c, "class_id"); err != nil {
		return respondError(c, err)
	}

	students, total, err := sc.students.ListStudents(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"students":   students,
		"pagination": pagination(f.Page, total),
	})
}

func (sc *StudentController) GetStudent(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	student, err := sc.students.GetStudent(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"student": student})
}

type classRequest struct {
	ClassID uint `json:"class_id" validate:"required"`
}

// TransferClass completes the active enrollment and enrolls into class_id.
func (sc *StudentController) TransferClass(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req classRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	enrollment, err := sc.enrollment.Transfer(c.UserContext(), id, req.ClassID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":    "Student transferred successfully",
		"enrollment": enrollment,
	})
}
