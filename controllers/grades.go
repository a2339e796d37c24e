package controllers

import (
	"strconv"
	"strings"

	"schoolcore/middleware"
	"schoolcore/models"
	"schoolcore/services"
	"schoolcore/utils"

	"github.com/gofiber/fiber/v2"
)

type GradeController struct {
	grades      *services.GradeService
	maxFileSize int64
}

func NewGradeController(grades *services.GradeService, maxFileSize int64) *GradeController {
	return &GradeController{grades: grades, maxFileSize: maxFileSize}
}

// CreateGrade scores and stores one grade.
func (gc *GradeController) CreateGrade(c *fiber.Ctx) error {
	var in services.GradeInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.EnteredBy = middleware.CurrentUserID(c)

	grade, err := gc.grades.CreateGrade(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Grade recorded successfully",
		"grade":   grade,
	})
}

// UpdateGrade merges the given raw scores and recomputes the grade.
func (gc *GradeController) UpdateGrade(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var up services.GradeUpdate
	if err := bind(c, &up); err != nil {
		return respondError(c, err)
	}
	grade, err := gc.grades.UpdateGrade(c.UserContext(), id, up)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Grade updated successfully",
		"grade":   grade,
	})
}

func (gc *GradeController) GetGrade(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	grade, err := gc.grades.GetGrade(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"grade": grade})
}

func (gc *GradeController) GetGrades(c *fiber.Ctx) error {
	var f services.GradeFilter
	var err error
	if f.StudentID, err = queryUint(c, "student_id"); err != nil {
		return respondError(c, err)
	}
	if f.ClassID, err = queryUint(c, "class_id"); err != nil {
		return respondError(c, err)
	}
	if f.SubjectID, err = queryUint(c, "subject_id"); err != nil {
		return respondError(c, err)
	}
	if f.AcademicYearID, err = queryUint(c, "academic_year_id"); err != nil {
		return respondError(c, err)
	}
	if f.Term, err = queryTerm(c, "term"); err != nil {
		return respondError(c, err)
	}
	f.Page = pageOf(c)

	grades, total, err := gc.grades.ListGrades(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"grades":     grades,
		"pagination": pagination(f.Page, total),
	})
}

// GetByParams finds the grade of one (student, class, subject, year, term).
func (gc *GradeController) GetByParams(c *fiber.Ctx) error {
	var k services.GradeKey
	var err error
	if k.StudentID, err = queryUint(c, "student_id"); err != nil {
		return respondError(c, err)
	}
	if k.ClassID, err = queryUint(c, "class_id"); err != nil {
		return respondError(c, err)
	}
	if k.SubjectID, err = queryUint(c, "subject_id"); err != nil {
		return respondError(c, err)
	}
	if k.AcademicYearID, err = queryUint(c, "academic_year_id"); err != nil {
		return respondError(c, err)
	}
	if k.Term, err = queryTerm(c, "term"); err != nil {
		return respondError(c, err)
	}
	if k.StudentID == 0 || k.ClassID == 0 || k.SubjectID == 0 || k.AcademicYearID == 0 || k.Term == "" {
		return respondError(c, badRequest("student_id, class_id, subject_id, academic_year_id and term are required"))
	}

	grade, err := gc.grades.GetByParams(c.UserContext(), k)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"grade": grade})
}

func (gc *GradeController) DeleteGrade(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := gc.grades.DeleteGrade(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Grade deleted successfully"})
}

// ImportGrades accepts a csv or xlsx upload in the "file" form field plus
// class_id, term and an optional academic_year_id.
func (gc *GradeController) ImportGrades(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return respondError(c, badRequest("File is required"))
	}
	if gc.maxFileSize > 0 && file.Size > gc.maxFileSize {
		return respondError(c, badRequest("File is too large"))
	}

	classID, err := strconv.ParseUint(strings.TrimSpace(c.FormValue("class_id")), 10, 32)
	if err != nil || classID == 0 {
		return respondError(c, badRequest("Invalid class_id"))
	}
	term, ok := models.ParseTerm(c.FormValue("term"))
	if !ok {
		return respondError(c, &services.ValidationError{Message: "invalid term", Fields: map[string]string{"term": "must be first, second or third"}})
	}
	scope := services.ImportScope{ClassID: uint(classID), Term: term, EnteredBy: middleware.CurrentUserID(c)}
	if v := strings.TrimSpace(c.FormValue("academic_year_id")); v != "" {
		yearID, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return respondError(c, badRequest("Invalid academic_year_id"))
		}
		scope.AcademicYearID = uint(yearID)
	}

	src, err := file.Open()
	if err != nil {
		return respondError(c, badRequest("Unable to read file"))
	}
	defer src.Close()
	rows, err := utils.ReadRows(file.Filename, src)
	if err != nil {
		return respondError(c, badRequest(err.Error()))
	}

	res, err := gc.grades.ImportGrades(c.UserContext(), scope, rows)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Grade import finished",
		"result":  res,
	})
}
