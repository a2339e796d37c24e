package services

import (
	"context"
	"fmt"
	"sort"

	"schoolcore/models"
	"schoolcore/utils"

	"gorm.io/gorm"
)

type TranscriptOptions struct {
	AcademicYearID uint
	Term           models.Term
}

type TranscriptGrade struct {
	models.Grade
	SubjectName  string  `json:"subject_name"`
	SubjectCode  string  `json:"subject_code"`
	SubjectRank  int     `json:"subject_rank"`
	ClassAverage float64 `json:"class_average"`
	ClassSize    int     `json:"class_size"`
}

type TranscriptSummary struct {
	ClassName         string         `json:"class_name"`
	AcademicYear      string         `json:"academic_year"`
	Term              models.Term    `json:"term"`
	GPA               float64        `json:"gpa"`
	Rank              int            `json:"rank"`
	ClassAverage      float64        `json:"class_average"`
	AverageScore      float64        `json:"average_score"`
	TotalStudents     int            `json:"total_students"`
	TotalSubjects     int            `json:"total_subjects"`
	GradeDistribution map[string]int `json:"grade_distribution"`
}

type Transcript struct {
	StudentInfo utils.StudentShort `json:"student_info"`
	RollNumber  int                `json:"roll_number"`
	Summary     TranscriptSummary  `json:"summary"`
	Grades      []TranscriptGrade  `json:"grades"`
}

type scopeKey struct {
	classID uint
	yearID  uint
}

type termScopeKey struct {
	scopeKey
	term models.Term
}

// Assembler builds transcripts. Rankings of a (class, year) are computed once
// per Assembler, so create one per request.
type Assembler struct {
	db        *gorm.DB
	grades    map[scopeKey][]models.Grade
	subjects  map[scopeKey]SubjectRanking
	rosters   map[uint][]uint
	standings map[termScopeKey][]ClassStanding
}

func NewAssembler(db *gorm.DB) *Assembler {
	return &Assembler{
		db:        db,
		grades:    make(map[scopeKey][]models.Grade),
		subjects:  make(map[scopeKey]SubjectRanking),
		rosters:   make(map[uint][]uint),
		standings: make(map[termScopeKey][]ClassStanding),
	}
}

func (a *Assembler) scopeGrades(ctx context.Context, k scopeKey) ([]models.Grade, error) {
	if g, ok := a.grades[k]; ok {
		return g, nil
	}
	g, err := loadScopeGrades(ctx, a.db, k.classID, k.yearID, "")
	if err != nil {
		return nil, err
	}
	a.grades[k] = g
	a.subjects[k] = RankSubjects(g)
	return g, nil
}

func (a *Assembler) classStandings(ctx context.Context, k scopeKey, term models.Term) ([]ClassStanding, error) {
	tk := termScopeKey{scopeKey: k, term: term}
	if s, ok := a.standings[tk]; ok {
		return s, nil
	}
	all, err := a.scopeGrades(ctx, k)
	if err != nil {
		return nil, err
	}
	inTerm := make([]models.Grade, 0, len(all))
	for _, g := range all {
		if g.Term == term {
			inTerm = append(inTerm, g)
		}
	}
	roster, ok := a.rosters[k.classID]
	if !ok {
		if roster, err = loadRoster(ctx, a.db, k.classID); err != nil {
			return nil, err
		}
		a.rosters[k.classID] = roster
	}
	s := RankClass(inTerm, roster)
	a.standings[tk] = s
	return s, nil
}

// resolveEnrollment picks the enrollment a transcript is built from. Without
// a year it is the active enrollment; with one it is the enrollment whose class
// belongs to that year, active first.
func (a *Assembler) resolveEnrollment(ctx context.Context, studentID, yearID uint) (*models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := a.db.WithContext(ctx).
		Preload("Class.AcademicYear").
		Where("student_id = ?", studentID).
		Order("id DESC").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("load enrollments of student %d: %w", studentID, err)
	}

	var fallback *models.Enrollment
	for i := range enrollments {
		e := &enrollments[i]
		if yearID == 0 {
			if e.Status == models.EnrollmentActive {
				return e, nil
			}
			continue
		}
		if e.Class.AcademicYearID != yearID {
			continue
		}
		if e.Status == models.EnrollmentActive {
			return e, nil
		}
		if fallback == nil {
			fallback = e
		}
	}
	return fallback, nil
}

// Assemble returns nil without error when the student has no matching enrollment.
func (a *Assembler) Assemble(ctx context.Context, studentID uint, opts TranscriptOptions) (*Transcript, error) {
	var student models.Student
	if err := a.db.WithContext(ctx).First(&student, studentID).Error; err != nil {
		return nil, lookupErr(err, "student", studentID)
	}

	enrollment, err := a.resolveEnrollment(ctx, studentID, opts.AcademicYearID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, nil
	}

	k := scopeKey{classID: enrollment.ClassID, yearID: enrollment.Class.AcademicYearID}
	all, err := a.scopeGrades(ctx, k)
	if err != nil {
		return nil, err
	}

	term := opts.Term
	if term == "" {
		term = latestTerm(all, studentID)
	}

	own := make([]models.Grade, 0)
	for _, g := range all {
		if g.StudentID == studentID && g.Term == term {
			own = append(own, g)
		}
	}

	subjectNames, err := a.subjectLookup(ctx, own)
	if err != nil {
		return nil, err
	}

	ranking := a.subjects[k]
	standings, err := a.classStandings(ctx, k, term)
	if err != nil {
		return nil, err
	}

	t := &Transcript{
		StudentInfo: utils.ToStudentShort(student),
		RollNumber:  enrollment.RollNumber,
		Summary: TranscriptSummary{
			ClassName:     enrollment.Class.ClassName,
			AcademicYear:  enrollment.Class.AcademicYear.YearName,
			Term:          term,
			ClassAverage:  averageOf(standings),
			TotalStudents: len(standings),
			TotalSubjects: len(own),
		},
		Grades: make([]TranscriptGrade, 0, len(own)),
	}

	letters := make([]string, 0, len(own))
	var sum float64
	for _, g := range own {
		sk := SubjectKey{SubjectID: g.SubjectID, Term: g.Term}
		subj := subjectNames[g.SubjectID]
		t.Grades = append(t.Grades, TranscriptGrade{
			Grade:        g,
			SubjectName:  subj.SubjectName,
			SubjectCode:  subj.SubjectCode,
			SubjectRank:  ranking.Ranks[StudentSubjectKey{StudentID: studentID, SubjectID: g.SubjectID, Term: g.Term}],
			ClassAverage: ranking.Averages[sk],
			ClassSize:    ranking.Counts[sk],
		})
		letters = append(letters, g.GradeLetter)
		sum += g.TotalScore
	}
	sort.Slice(t.Grades, func(i, j int) bool { return t.Grades[i].SubjectName < t.Grades[j].SubjectName })

	t.Summary.GPA = GPA(letters)
	t.Summary.GradeDistribution = Distribution(letters)
	if len(own) > 0 {
		t.Summary.AverageScore = utils.Round2(sum / float64(len(own)))
	}
	for _, st := range standings {
		if st.StudentID == studentID {
			t.Summary.Rank = st.Rank
			break
		}
	}
	return t, nil
}

// AssembleClass builds transcripts of every active member of a class, sharing
// one ranking computation.
func (a *Assembler) AssembleClass(ctx context.Context, classID uint, term models.Term) ([]Transcript, error) {
	var class models.Class
	if err := a.db.WithContext(ctx).First(&class, classID).Error; err != nil {
		return nil, lookupErr(err, "class", classID)
	}
	var enrollments []models.Enrollment
	if err := a.db.WithContext(ctx).
		Where("class_id = ? AND status = ?", classID, models.EnrollmentActive).
		Order("roll_number").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("load roster of class %d: %w", classID, err)
	}

	out := make([]Transcript, 0, len(enrollments))
	for _, e := range enrollments {
		t, err := a.Assemble(ctx, e.StudentID, TranscriptOptions{AcademicYearID: class.AcademicYearID, Term: term})
		if err != nil {
			return nil, err
		}
		if t != nil {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (a *Assembler) subjectLookup(ctx context.Context, grades []models.Grade) (map[uint]models.Subject, error) {
	out := make(map[uint]models.Subject)
	if len(grades) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(grades))
	for _, g := range grades {
		ids = append(ids, g.SubjectID)
	}
	var subjects []models.Subject
	if err := a.db.WithContext(ctx).Where("id IN ?", ids).Find(&subjects).Error; err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	for _, s := range subjects {
		out[s.ID] = s
	}
	return out, nil
}

// latestTerm is the most advanced term the student has grades for, first term otherwise.
func latestTerm(grades []models.Grade, studentID uint) models.Term {
	best := models.TermFirst
	for _, g := range grades {
		if g.StudentID == studentID && g.Term.Order() > best.Order() {
			best = g.Term
		}
	}
	return best
}
