package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"schoolcore/models"
	"schoolcore/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GradeService stores score records. Derived fields always come from the
// ScoreEngine, never from the caller.
type GradeService struct {
	db     *gorm.DB
	engine *ScoreEngine
}

func NewGradeService(db *gorm.DB, engine *ScoreEngine) *GradeService {
	if engine == nil {
		engine = NewScoreEngine(DefaultWeights())
	}
	return &GradeService{db: db, engine: engine}
}

// RawInput carries optional raw scores. Nil fields keep their current value,
// or the default (score 0, total 100) on create.
type RawInput struct {
	AssessmentScore *float64 `json:"assessment_score"`
	AssessmentTotal *float64 `json:"assessment_total"`
	TestScore       *float64 `json:"test_score"`
	TestTotal       *float64 `json:"test_total"`
	ExamScore       *float64 `json:"exam_score"`
	ExamTotal       *float64 `json:"exam_total"`
}

func (in RawInput) applyTo(g *models.Grade) {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&g.AssessmentScore, in.AssessmentScore)
	set(&g.AssessmentTotal, in.AssessmentTotal)
	set(&g.TestScore, in.TestScore)
	set(&g.TestTotal, in.TestTotal)
	set(&g.ExamScore, in.ExamScore)
	set(&g.ExamTotal, in.ExamTotal)
}

type GradeInput struct {
	StudentID      uint   `json:"student_id" validate:"required"`
	ClassID        uint   `json:"class_id" validate:"required"`
	SubjectID      uint   `json:"subject_id" validate:"required"`
	AcademicYearID uint   `json:"academic_year_id"`
	Term           string `json:"term" validate:"required"`
	GradeType      string `json:"grade_type" validate:"max=20"`
	Remarks        string `json:"remarks"`
	RawInput
	EnteredBy *uint `json:"-"`
}

type GradeUpdate struct {
	RawInput
	GradeType *string `json:"grade_type"`
	Remarks   *string `json:"remarks"`
}

// GradeKey identifies the single grade of a student in a subject per term.
type GradeKey struct {
	StudentID      uint
	ClassID        uint
	SubjectID      uint
	AcademicYearID uint
	Term           models.Term
}

func newGrade() models.Grade {
	return models.Grade{AssessmentTotal: 100, TestTotal: 100, ExamTotal: 100, GradeType: "final"}
}

// saveGrade writes g. Totals of zero are written explicitly because the
// columns default to 100.
func saveGrade(tx *gorm.DB, g *models.Grade) error {
	if g.ID == 0 {
		if err := tx.Omit(clause.Associations).Create(g).Error; err != nil {
			return err
		}
		zeros := map[string]interface{}{}
		if g.AssessmentTotal == 0 {
			zeros["assessment_total"] = 0
		}
		if g.TestTotal == 0 {
			zeros["test_total"] = 0
		}
		if g.ExamTotal == 0 {
			zeros["exam_total"] = 0
		}
		if len(zeros) == 0 {
			return nil
		}
		return tx.Model(&models.Grade{}).Where("id = ?", g.ID).Updates(zeros).Error
	}
	return tx.Omit(clause.Associations).Save(g).Error
}

func (s *GradeService) findByKey(tx *gorm.DB, k GradeKey) (*models.Grade, error) {
	var g models.Grade
	err := tx.Where("student_id = ? AND class_id = ? AND subject_id = ? AND academic_year_id = ? AND term = ?",
		k.StudentID, k.ClassID, k.SubjectID, k.AcademicYearID, k.Term).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load grade: %w", err)
	}
	return &g, nil
}

// resolveScope checks the references of a new grade and fills the academic
// year from the class when omitted.
func resolveScope(tx *gorm.DB, k *GradeKey) error {
	var class models.Class
	if err := tx.First(&class, k.ClassID).Error; err != nil {
		return lookupErr(err, "class", k.ClassID)
	}
	if k.AcademicYearID == 0 {
		k.AcademicYearID = class.AcademicYearID
	}
	var student models.Student
	if err := tx.Select("id").First(&student, k.StudentID).Error; err != nil {
		return lookupErr(err, "student", k.StudentID)
	}
	var subject models.Subject
	if err := tx.Select("id").First(&subject, k.SubjectID).Error; err != nil {
		return lookupErr(err, "subject", k.SubjectID)
	}
	return nil
}

func (s *GradeService) CreateGrade(ctx context.Context, in GradeInput) (*models.Grade, error) {
	term, ok := models.ParseTerm(in.Term)
	if !ok {
		return nil, &ValidationError{Message: "invalid grade", Fields: map[string]string{"term": "must be first, second or third"}}
	}
	g := newGrade()
	in.RawInput.applyTo(&g)
	if err := ValidateRaw(RawScoresOf(&g)); err != nil {
		return nil, err
	}

	key := GradeKey{StudentID: in.StudentID, ClassID: in.ClassID, SubjectID: in.SubjectID, AcademicYearID: in.AcademicYearID, Term: term}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := resolveScope(tx, &key); err != nil {
			return err
		}
		existing, err := s.findByKey(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return NewValidationError("a %s term grade already exists for this student and subject", term)
		}

		g.StudentID, g.ClassID, g.SubjectID = key.StudentID, key.ClassID, key.SubjectID
		g.AcademicYearID, g.Term = key.AcademicYearID, key.Term
		if in.GradeType != "" {
			g.GradeType = in.GradeType
		}
		g.Remarks = in.Remarks
		g.EnteredBy = in.EnteredBy
		s.engine.Apply(&g)
		if err := saveGrade(tx, &g); err != nil {
			return fmt.Errorf("create grade: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"grade_id":   g.ID,
		"student_id": g.StudentID,
		"subject_id": g.SubjectID,
		"total":      g.TotalScore,
		"letter":     g.GradeLetter,
	}).Info("Grade created")
	return &g, nil
}

// UpdateGrade merges the supplied raw fields and recomputes the derived ones.
func (s *GradeService) UpdateGrade(ctx context.Context, id uint, up GradeUpdate) (*models.Grade, error) {
	var g models.Grade
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&g, id).Error; err != nil {
			return lookupErr(err, "grade", id)
		}
		up.RawInput.applyTo(&g)
		if err := ValidateRaw(RawScoresOf(&g)); err != nil {
			return err
		}
		if up.GradeType != nil {
			g.GradeType = *up.GradeType
		}
		if up.Remarks != nil {
			g.Remarks = *up.Remarks
		}
		s.engine.Apply(&g)
		if err := saveGrade(tx, &g); err != nil {
			return fmt.Errorf("update grade %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"grade_id": g.ID,
		"total":    g.TotalScore,
		"letter":   g.GradeLetter,
	}).Info("Grade updated")
	return &g, nil
}

func (s *GradeService) GetGrade(ctx context.Context, id uint) (*models.Grade, error) {
	var g models.Grade
	if err := s.db.WithContext(ctx).Preload("Student").Preload("Subject").First(&g, id).Error; err != nil {
		return nil, lookupErr(err, "grade", id)
	}
	return &g, nil
}

func (s *GradeService) GetByParams(ctx context.Context, k GradeKey) (*models.Grade, error) {
	g, err := s.findByKey(s.db.WithContext(ctx).Preload("Subject"), k)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &NotFoundError{Resource: "grade"}
	}
	return g, nil
}

type GradeFilter struct {
	StudentID      uint
	ClassID        uint
	SubjectID      uint
	AcademicYearID uint
	Term           models.Term
	Page
}

func (s *GradeService) ListGrades(ctx context.Context, f GradeFilter) ([]models.Grade, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Grade{})
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.ClassID != 0 {
		q = q.Where("class_id = ?", f.ClassID)
	}
	if f.SubjectID != 0 {
		q = q.Where("subject_id = ?", f.SubjectID)
	}
	if f.AcademicYearID != 0 {
		q = q.Where("academic_year_id = ?", f.AcademicYearID)
	}
	if f.Term != "" {
		q = q.Where("term = ?", f.Term)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	var out []models.Grade
	if err := f.Page.apply(q.Preload("Student").Preload("Subject")).
		Order("student_id, subject_id, id").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}
	return out, total, nil
}

func (s *GradeService) DeleteGrade(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Grade{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete grade %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Resource: "grade", ID: id}
	}
	logrus.WithField("grade_id", id).Info("Grade deleted")
	return nil
}

// ImportScope is the class, year and term every imported row belongs to.
type ImportScope struct {
	ClassID        uint
	AcademicYearID uint
	Term           models.Term
	EnteredBy      *uint
}

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportResult struct {
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Failed  int              `json:"failed"`
	Errors  []ImportRowError `json:"errors"`
}

var rawColumns = []string{"assessment_score", "assessment_total", "test_score", "test_total", "exam_score", "exam_total"}

// ImportGrades upserts one grade per spreadsheet row. A bad row is reported
// and skipped; the rest of the file still imports.
func (s *GradeService) ImportGrades(ctx context.Context, scope ImportScope, rows [][]string) (*ImportResult, error) {
	if scope.Term.Order() == 0 {
		return nil, &ValidationError{Message: "invalid import", Fields: map[string]string{"term": "must be first, second or third"}}
	}
	if len(rows) < 2 {
		return nil, NewValidationError("file has no data rows")
	}
	col := utils.HeaderIndex(rows[0])
	_, hasAdm := col["admission_number"]
	_, hasSID := col["student_id"]
	_, hasCode := col["subject_code"]
	_, hasSubID := col["subject_id"]
	if !hasAdm && !hasSID {
		return nil, NewValidationError("missing column: admission_number or student_id")
	}
	if !hasCode && !hasSubID {
		return nil, NewValidationError("missing column: subject_code or subject_id")
	}

	db := s.db.WithContext(ctx)
	var class models.Class
	if err := db.First(&class, scope.ClassID).Error; err != nil {
		return nil, lookupErr(err, "class", scope.ClassID)
	}
	if scope.AcademicYearID == 0 {
		scope.AcademicYearID = class.AcademicYearID
	}

	res := &ImportResult{Errors: []ImportRowError{}}
	for i, row := range rows[1:] {
		line := i + 2
		if isBlankRow(row) {
			continue
		}
		created, err := s.importRow(db, scope, col, row)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, ImportRowError{Row: line, Error: err.Error()})
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	logrus.WithFields(logrus.Fields{
		"class_id": scope.ClassID,
		"term":     scope.Term,
		"created":  res.Created,
		"updated":  res.Updated,
		"failed":   res.Failed,
	}).Info("Grade import finished")
	return res, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (s *GradeService) importRow(db *gorm.DB, scope ImportScope, col map[string]int, row []string) (bool, error) {
	var raw RawInput
	targets := []**float64{&raw.AssessmentScore, &raw.AssessmentTotal, &raw.TestScore, &raw.TestTotal, &raw.ExamScore, &raw.ExamTotal}
	for i, name := range rawColumns {
		v, err := utils.ParseFloatPtr(utils.Cell(row, col, name))
		if err != nil {
			return false, fmt.Errorf("%s: %v", name, err)
		}
		*targets[i] = v
	}

	created := false
	err := db.Transaction(func(tx *gorm.DB) error {
		studentID, err := lookupImportID(tx, &models.Student{}, "admission_number", utils.Cell(row, col, "admission_number"), utils.Cell(row, col, "student_id"))
		if err != nil {
			return fmt.Errorf("student: %w", err)
		}
		subjectID, err := lookupImportID(tx, &models.Subject{}, "subject_code", utils.Cell(row, col, "subject_code"), utils.Cell(row, col, "subject_id"))
		if err != nil {
			return fmt.Errorf("subject: %w", err)
		}

		key := GradeKey{StudentID: studentID, ClassID: scope.ClassID, SubjectID: subjectID, AcademicYearID: scope.AcademicYearID, Term: scope.Term}
		g, err := s.findByKey(tx, key)
		if err != nil {
			return err
		}
		if g == nil {
			fresh := newGrade()
			fresh.StudentID, fresh.ClassID, fresh.SubjectID = key.StudentID, key.ClassID, key.SubjectID
			fresh.AcademicYearID, fresh.Term = key.AcademicYearID, key.Term
			fresh.EnteredBy = scope.EnteredBy
			g = &fresh
			created = true
		}
		raw.applyTo(g)
		if err := ValidateRaw(RawScoresOf(g)); err != nil {
			return err
		}
		s.engine.Apply(g)
		return saveGrade(tx, g)
	})
	return created, err
}

// lookupImportID resolves a row reference by its natural key, falling back
// to a numeric id column.
func lookupImportID(tx *gorm.DB, model interface{}, keyColumn, keyValue, idValue string) (uint, error) {
	var row struct{ ID uint }
	q := tx.Model(model).Select("id")
	switch {
	case keyValue != "":
		q = q.Where(keyColumn+" = ?", keyValue)
	case idValue != "":
		id, err := strconv.ParseUint(idValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid id %q", idValue)
		}
		q = q.Where("id = ?", id)
	default:
		return 0, fmt.Errorf("missing %s", keyColumn)
	}
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%s not found", strings.TrimSpace(keyValue+idValue))
		}
		return 0, err
	}
	return row.ID, nil
}
