package controllers

import (
	"schoolcore/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ReportController serves transcripts, rankings and class performance.
type ReportController struct {
	db       *gorm.DB
	rankings *services.RankingService
}

func NewReportController(db *gorm.DB, rankings *services.RankingService) *ReportController {
	return &ReportController{db: db, rankings: rankings}
}

// GetTranscript builds a student's transcript. Without a term the latest term
// with grades is used. A student with no matching enrollment gets a null
// transcript, an unknown student a 404.
func (rc *ReportController) GetTranscript(c *fiber.Ctx) error {
	studentID, err := parseID(c, "student_id")
	if err != nil {
		return respondError(c, err)
	}
	var opts services.TranscriptOptions
	if opts.AcademicYearID, err = queryUint(c, "academic_year_id"); err != nil {
		return respondError(c, err)
	}
	if opts.Term, err = queryTerm(c, "term"); err != nil {
		return respondError(c, err)
	}

	t, err := services.NewAssembler(rc.db).Assemble(c.UserContext(), studentID, opts)
	if err != nil {
		return respondError(c, err)
	}
	if t == nil {
		return c.JSON(fiber.Map{"transcript": nil, "message": "No enrollment found for the requested academic year"})
	}
	return c.JSON(fiber.Map{"transcript": t})
}

// GetClassTranscripts returns the transcript of every active class member.
func (rc *ReportController) GetClassTranscripts(c *fiber.Ctx) error {
	classID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	term, err := queryTerm(c, "term")
	if err != nil {
		return respondError(c, err)
	}
	out, err := services.NewAssembler(rc.db).AssembleClass(c.UserContext(), classID, term)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"transcripts": out, "total": len(out)})
}

func (rc *ReportController) GetClassRankings(c *fiber.Ctx) error {
	classID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	yearID, err := queryUint(c, "academic_year_id")
	if err != nil {
		return respondError(c, err)
	}
	term, err := queryTerm(c, "term")
	if err != nil {
		return respondError(c, err)
	}
	if term == "" {
		return respondError(c, &services.ValidationError{Message: "term is required", Fields: map[string]string{"term": "is required"}})
	}

	report, err := rc.rankings.ClassRankings(c.UserContext(), classID, yearID, term)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

func (rc *ReportController) GetClassPerformance(c *fiber.Ctx) error {
	classID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	yearID, err := queryUint(c, "academic_year_id")
	if err != nil {
		return respondError(c, err)
	}
	perf, err := rc.rankings.ClassPerformance(c.UserContext(), classID, yearID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(perf)
}
