package services

import (
	"schoolcore/config"
	"schoolcore/models"
	"schoolcore/utils"
)

// Weights are the percentage contribution of each score category. They sum to 100.
type Weights struct {
	Assessment float64 `json:"assessment"`
	Test       float64 `json:"test"`
	Exam       float64 `json:"exam"`
}

// DefaultWeights is the 20/30/50 split used when nothing is configured.
func DefaultWeights() Weights {
	return Weights{Assessment: 20, Test: 30, Exam: 50}
}

// WeightsFromConfig reads the configured split, falling back to the default.
func WeightsFromConfig(c *config.Config) Weights {
	if c == nil {
		return DefaultWeights()
	}
	w := Weights{Assessment: c.GradeWeightAssessment, Test: c.GradeWeightTest, Exam: c.GradeWeightExam}
	if config.CheckGradeWeights(w.Assessment, w.Test, w.Exam) != nil {
		return DefaultWeights()
	}
	return w
}

// RawScores are the six user supplied values of a score record.
type RawScores struct {
	AssessmentScore float64 `json:"assessment_score"`
	AssessmentTotal float64 `json:"assessment_total"`
	TestScore       float64 `json:"test_score"`
	TestTotal       float64 `json:"test_total"`
	ExamScore       float64 `json:"exam_score"`
	ExamTotal       float64 `json:"exam_total"`
}

// RawScoresOf extracts the raw fields of g.
func RawScoresOf(g *models.Grade) RawScores {
	return RawScores{
		AssessmentScore: g.AssessmentScore,
		AssessmentTotal: g.AssessmentTotal,
		TestScore:       g.TestScore,
		TestTotal:       g.TestTotal,
		ExamScore:       g.ExamScore,
		ExamTotal:       g.ExamTotal,
	}
}

type ScoreResult struct {
	WeightedAssessment float64 `json:"weighted_assessment"`
	WeightedTest       float64 `json:"weighted_test"`
	WeightedExam       float64 `json:"weighted_exam"`
	TotalScore         float64 `json:"total_score"`
	Letter             string  `json:"grade_letter"`
}

// ScoreEngine turns raw scores into weighted parts, a total and a letter.
type ScoreEngine struct {
	weights Weights
}

func NewScoreEngine(w Weights) *ScoreEngine {
	return &ScoreEngine{weights: w}
}

func (e *ScoreEngine) Weights() Weights {
	return e.weights
}

// Compute never divides by zero: a category with a zero total contributes 0.
func (e *ScoreEngine) Compute(raw RawScores) ScoreResult {
	assessment := weighted(raw.AssessmentScore, raw.AssessmentTotal, e.weights.Assessment)
	test := weighted(raw.TestScore, raw.TestTotal, e.weights.Test)
	exam := weighted(raw.ExamScore, raw.ExamTotal, e.weights.Exam)
	res := ScoreResult{
		WeightedAssessment: utils.Round2(assessment),
		WeightedTest:       utils.Round2(test),
		WeightedExam:       utils.Round2(exam),
	}
	// The total comes from the exact parts, so it can differ from the sum of
	// the rounded parts by a cent.
	total := utils.Round2(assessment + test + exam)
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	res.TotalScore = total
	res.Letter = LetterFor(total)
	return res
}

// Apply recomputes every derived field of g from its raw scores.
func (e *ScoreEngine) Apply(g *models.Grade) {
	res := e.Compute(RawScoresOf(g))
	g.WeightedAssessment = res.WeightedAssessment
	g.WeightedTest = res.WeightedTest
	g.WeightedExam = res.WeightedExam
	g.TotalScore = res.TotalScore
	g.GradeLetter = res.Letter
}

func weighted(score, total, weight float64) float64 {
	if total <= 0 {
		return 0
	}
	return score / total * weight
}

// LetterBands is the grading scale in descending order of lower bound.
var LetterBands = []struct {
	Min    float64
	Letter string
}{
	{90, "A+"},
	{80, "A"},
	{70, "B"},
	{60, "C"},
	{50, "D"},
	{0, "F"},
}

// LetterFor maps a total score to its letter.
func LetterFor(total float64) string {
	for _, b := range LetterBands {
		if total >= b.Min {
			return b.Letter
		}
	}
	return "F"
}

// GradePoints maps letters to grade points. It also carries the +/- letters
// still present on older records.
var GradePoints = map[string]float64{
	"A+": 4.0, "A": 4.0, "A-": 3.7,
	"B+": 3.3, "B": 3.0, "B-": 2.7,
	"C+": 2.3, "C": 2.0, "C-": 1.7,
	"D+": 1.3, "D": 1.0,
	"F": 0.0,
}

// GPA is the mean grade point of letters, rounded to two decimals. Unknown
// letters count as zero. An empty list yields 0.
func GPA(letters []string) float64 {
	if len(letters) == 0 {
		return 0
	}
	var sum float64
	for _, l := range letters {
		sum += GradePoints[l]
	}
	return utils.Round2(sum / float64(len(letters)))
}

// Distribution counts letters on the grading scale. Every band is present.
func Distribution(letters []string) map[string]int {
	out := make(map[string]int, len(LetterBands))
	for _, b := range LetterBands {
		out[b.Letter] = 0
	}
	for _, l := range letters {
		if _, ok := out[l]; ok {
			out[l]++
		}
	}
	return out
}

// ValidateRaw rejects negative values and scores above their totals.
func ValidateRaw(raw RawScores) error {
	fe := fieldErrors{}
	check := func(name string, score, total float64) {
		if score < 0 {
			fe.add(name+"_score", "must not be negative")
		}
		if total < 0 {
			fe.add(name+"_total", "must not be negative")
		}
		if score > total {
			fe.add(name+"_score", "cannot exceed "+name+"_total")
		}
	}
	check("assessment", raw.AssessmentScore, raw.AssessmentTotal)
	check("test", raw.TestScore, raw.TestTotal)
	check("exam", raw.ExamScore, raw.ExamTotal)
	return fe.err("invalid scores")
}
