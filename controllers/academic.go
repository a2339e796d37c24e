package controllers

import (
	"schoolcore/services"
	"schoolcore/utils"

	"github.com/gofiber/fiber/v2"
)

// AcademicController manages years, classes, subjects, teachers and enrollment.
type AcademicController struct {
	academic   *services.AcademicService
	enrollment *services.EnrollmentService
}

func NewAcademicController(academic *services.AcademicService, enrollment *services.EnrollmentService) *AcademicController {
	return &AcademicController{academic: academic, enrollment: enrollment}
}

func (ac *AcademicController) CreateYear(c *fiber.Ctx) error {
	var in services.YearInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	year, err := ac.academic.CreateYear(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":       "Academic year created successfully",
		"academic_year": year,
	})
}

func (ac *AcademicController) GetYears(c *fiber.Ctx) error {
	years, err := ac.academic.ListYears(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"academic_years": years, "total": len(years)})
}

// SetCurrentYear makes the year the only current one.
func (ac *AcademicController) SetCurrentYear(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	year, err := ac.academic.SetCurrent(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":       "Current academic year updated",
		"academic_year": year,
	})
}

func (ac *AcademicController) CreateClass(c *fiber.Ctx) error {
	var in services.ClassInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	class, err := ac.academic.CreateClass(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Class created successfully",
		"class":   class,
	})
}

func (ac *AcademicController) GetClasses(c *fiber.Ctx) error {
	yearID, err := queryUint(c, "academic_year_id")
	if err != nil {
		return respondError(c, err)
	}
	classes, err := ac.academic.ListClasses(c.UserContext(), yearID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"classes": classes, "total": len(classes)})
}

func (ac *AcademicController) GetClass(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	class, err := ac.academic.GetClass(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"class": class})
}

// GetRoster lists the class members by roll number. include_inactive=true adds
// completed and withdrawn enrollments.
func (ac *AcademicController) GetRoster(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	enrollments, err := ac.enrollment.Roster(c.UserContext(), id, c.QueryBool("include_inactive"))
	if err != nil {
		return respondError(c, err)
	}
	roster := utils.ToRoster(enrollments)
	return c.JSON(fiber.Map{"roster": roster, "total": len(roster)})
}

type studentRequest struct {
	StudentID uint `json:"student_id" validate:"required"`
}

func (ac *AcademicController) EnrollStudent(c *fiber.Ctx) error {
	classID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req studentRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	enrollment, err := ac.enrollment.Enroll(c.UserContext(), req.StudentID, classID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Student enrolled successfully",
		"enrollment": enrollment,
	})
}

func (ac *AcademicController) CreateSubject(c *fiber.Ctx) error {
	var in services.SubjectInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	subject, err := ac.academic.CreateSubject(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Subject created successfully",
		"subject": subject,
	})
}

func (ac *AcademicController) GetSubjects(c *fiber.Ctx) error {
	subjects, err := ac.academic.ListSubjects(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"subjects": subjects, "total": len(subjects)})
}

func (ac *AcademicController) CreateTeacher(c *fiber.Ctx) error {
	var in services.TeacherInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	teacher, err := ac.academic.CreateTeacher(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Teacher created successfully",
		"teacher": teacher,
	})
}

func (ac *AcademicController) GetTeachers(c *fiber.Ctx) error {
	teachers, err := ac.academic.ListTeachers(c.UserContext(), c.QueryBool("active_only"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"teachers": teachers, "total": len(teachers)})
}
