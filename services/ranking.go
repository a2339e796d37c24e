package services

import (
	"context"
	"fmt"
	"sort"

	"schoolcore/models"
	"schoolcore/utils"

	"gorm.io/gorm"
)

type SubjectKey struct {
	SubjectID uint
	Term      models.Term
}

type StudentSubjectKey struct {
	StudentID uint
	SubjectID uint
	Term      models.Term
}

// SubjectRanking holds competition ranks and averages per (subject, term) for
// one (class, year).
type SubjectRanking struct {
	Ranks    map[StudentSubjectKey]int
	Averages map[SubjectKey]float64
	Counts   map[SubjectKey]int
}

// RankSubjects ranks records by total score within each (subject, term).
// Equal totals share a rank and the next distinct total skips ahead.
func RankSubjects(records []models.Grade) SubjectRanking {
	groups := make(map[SubjectKey][]models.Grade)
	for _, g := range records {
		k := SubjectKey{SubjectID: g.SubjectID, Term: g.Term}
		groups[k] = append(groups[k], g)
	}

	out := SubjectRanking{
		Ranks:    make(map[StudentSubjectKey]int, len(records)),
		Averages: make(map[SubjectKey]float64, len(groups)),
		Counts:   make(map[SubjectKey]int, len(groups)),
	}
	for k, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].TotalScore != group[j].TotalScore {
				return group[i].TotalScore > group[j].TotalScore
			}
			return group[i].StudentID < group[j].StudentID
		})

		totals := make([]float64, len(group))
		var sum float64
		for i, g := range group {
			totals[i] = g.TotalScore
			sum += g.TotalScore
		}
		for i, rank := range competitionRanks(totals) {
			out.Ranks[StudentSubjectKey{StudentID: group[i].StudentID, SubjectID: k.SubjectID, Term: k.Term}] = rank
		}
		out.Averages[k] = utils.Round2(sum / float64(len(group)))
		out.Counts[k] = len(group)
	}
	return out
}

// competitionRanks assigns 1224 style ranks to values sorted descending.
func competitionRanks(sorted []float64) []int {
	ranks := make([]int, len(sorted))
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1] {
			ranks[i] = ranks[i-1]
			continue
		}
		ranks[i] = i + 1
	}
	return ranks
}

// ClassStanding is one student's position in a class for a term.
type ClassStanding struct {
	StudentID    uint    `json:"student_id"`
	Average      float64 `json:"average"`
	SubjectCount int     `json:"subject_count"`
	Rank         int     `json:"rank"`
}

// RankClass averages each student's totals and numbers the averages 1..n,
// compared after rounding to two decimals. Equal averages keep distinct
// positions, listed by student id. Roster members without grades stand at 0.
func RankClass(records []models.Grade, roster []uint) []ClassStanding {
	type acc struct {
		sum   float64
		count int
	}
	per := make(map[uint]*acc, len(roster))
	for _, id := range roster {
		per[id] = &acc{}
	}
	for _, g := range records {
		a, ok := per[g.StudentID]
		if !ok {
			a = &acc{}
			per[g.StudentID] = a
		}
		a.sum += g.TotalScore
		a.count++
	}

	standings := make([]ClassStanding, 0, len(per))
	for id, a := range per {
		st := ClassStanding{StudentID: id, SubjectCount: a.count}
		if a.count > 0 {
			st.Average = utils.Round2(a.sum / float64(a.count))
		}
		standings = append(standings, st)
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Average != standings[j].Average {
			return standings[i].Average > standings[j].Average
		}
		return standings[i].StudentID < standings[j].StudentID
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

// RankingService reads grades from the store and ranks them. Nothing is cached
// between calls.
type RankingService struct {
	db *gorm.DB
}

func NewRankingService(db *gorm.DB) *RankingService {
	return &RankingService{db: db}
}

func loadScopeGrades(ctx context.Context, db *gorm.DB, classID, yearID uint, term models.Term) ([]models.Grade, error) {
	q := db.WithContext(ctx).Where("class_id = ? AND academic_year_id = ?", classID, yearID)
	if term != "" {
		q = q.Where("term = ?", term)
	}
	var grades []models.Grade
	if err := q.Find(&grades).Error; err != nil {
		return nil, fmt.Errorf("load grades for class %d: %w", classID, err)
	}
	return grades, nil
}

// loadRoster lists the students sitting in a class, past members included.
// Withdrawn enrollments are left out.
func loadRoster(ctx context.Context, db *gorm.DB, classID uint) ([]uint, error) {
	var ids []uint
	if err := db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("class_id = ? AND status IN ?", classID, []string{models.EnrollmentActive, models.EnrollmentCompleted}).
		Distinct().
		Pluck("student_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load roster of class %d: %w", classID, err)
	}
	return ids, nil
}

type RankedStudent struct {
	ClassStanding
	Student utils.StudentShort `json:"student"`
	GPA     float64            `json:"gpa"`
}

type ClassRankingReport struct {
	Class          utils.ClassShort `json:"class"`
	AcademicYearID uint             `json:"academic_year_id"`
	Term           models.Term      `json:"term"`
	ClassAverage   float64          `json:"class_average"`
	Rankings       []RankedStudent  `json:"rankings"`
}

// ClassRankings ranks the class roster plus anyone else graded in (class, year, term).
func (s *RankingService) ClassRankings(ctx context.Context, classID, yearID uint, term models.Term) (*ClassRankingReport, error) {
	var class models.Class
	if err := s.db.WithContext(ctx).First(&class, classID).Error; err != nil {
		return nil, lookupErr(err, "class", classID)
	}
	if yearID == 0 {
		yearID = class.AcademicYearID
	}

	grades, err := loadScopeGrades(ctx, s.db, classID, yearID, term)
	if err != nil {
		return nil, err
	}
	roster, err := loadRoster(ctx, s.db, classID)
	if err != nil {
		return nil, err
	}
	standings := RankClass(grades, roster)

	letters := make(map[uint][]string)
	for _, g := range grades {
		letters[g.StudentID] = append(letters[g.StudentID], g.GradeLetter)
	}

	ids := make([]uint, 0, len(standings))
	for _, st := range standings {
		ids = append(ids, st.StudentID)
	}
	students := make(map[uint]models.Student, len(ids))
	if len(ids) > 0 {
		var rows []models.Student
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load students: %w", err)
		}
		for _, st := range rows {
			students[st.ID] = st
		}
	}

	report := &ClassRankingReport{
		Class:          utils.ToClassShort(class),
		AcademicYearID: yearID,
		Term:           term,
		ClassAverage:   averageOf(standings),
		Rankings:       make([]RankedStudent, 0, len(standings)),
	}
	for _, st := range standings {
		report.Rankings = append(report.Rankings, RankedStudent{
			ClassStanding: st,
			Student:       utils.ToStudentShort(students[st.StudentID]),
			GPA:           GPA(letters[st.StudentID]),
		})
	}
	return report, nil
}

func averageOf(standings []ClassStanding) float64 {
	if len(standings) == 0 {
		return 0
	}
	var sum float64
	for _, s := range standings {
		sum += s.Average
	}
	return utils.Round2(sum / float64(len(standings)))
}

type SubjectPerformance struct {
	SubjectID    uint        `json:"subject_id"`
	Term         models.Term `json:"term"`
	Average      float64     `json:"average"`
	StudentCount int         `json:"student_count"`
}

type ClassPerformance struct {
	Class             utils.ClassShort     `json:"class"`
	AcademicYearID    uint                 `json:"academic_year_id"`
	TotalStudents     int64                `json:"total_students"`
	ActiveStudents    int64                `json:"active_students"`
	AverageScore      float64              `json:"average_score"`
	GradeDistribution map[string]int       `json:"grade_distribution"`
	Subjects          []SubjectPerformance `json:"subjects"`
}

// ClassPerformance summarizes enrollment counts and grade results of a class.
func (s *RankingService) ClassPerformance(ctx context.Context, classID, yearID uint) (*ClassPerformance, error) {
	var class models.Class
	if err := s.db.WithContext(ctx).First(&class, classID).Error; err != nil {
		return nil, lookupErr(err, "class", classID)
	}
	if yearID == 0 {
		yearID = class.AcademicYearID
	}

	out := &ClassPerformance{Class: utils.ToClassShort(class), AcademicYearID: yearID}
	if err := s.db.WithContext(ctx).Model(&models.Enrollment{}).Where("class_id = ?", classID).Count(&out.TotalStudents).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("class_id = ? AND status = ?", classID, models.EnrollmentActive).
		Count(&out.ActiveStudents).Error; err != nil {
		return nil, err
	}

	grades, err := loadScopeGrades(ctx, s.db, classID, yearID, "")
	if err != nil {
		return nil, err
	}
	letters := make([]string, 0, len(grades))
	var sum float64
	for _, g := range grades {
		letters = append(letters, g.GradeLetter)
		sum += g.TotalScore
	}
	if len(grades) > 0 {
		out.AverageScore = utils.Round2(sum / float64(len(grades)))
	}
	out.GradeDistribution = Distribution(letters)

	ranking := RankSubjects(grades)
	for k, avg := range ranking.Averages {
		out.Subjects = append(out.Subjects, SubjectPerformance{SubjectID: k.SubjectID, Term: k.Term, Average: avg, StudentCount: ranking.Counts[k]})
	}
	sort.Slice(out.Subjects, func(i, j int) bool {
		if out.Subjects[i].SubjectID != out.Subjects[j].SubjectID {
			return out.Subjects[i].SubjectID < out.Subjects[j].SubjectID
		}
		return out.Subjects[i].Term.Order() < out.Subjects[j].Term.Order()
	})
	return out, nil
}
