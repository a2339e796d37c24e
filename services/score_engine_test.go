package services

import (
	"errors"
	"testing"

	"schoolcore/config"
	"schoolcore/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreEngineCompute(t *testing.T) {
	engine := NewScoreEngine(DefaultWeights())

	tests := []struct {
		name string
		raw  RawScores
		want ScoreResult
	}{
		{
			name: "default weights",
			raw:  RawScores{AssessmentScore: 20, AssessmentTotal: 20, TestScore: 0, TestTotal: 30, ExamScore: 50, ExamTotal: 50},
			want: ScoreResult{WeightedAssessment: 20, WeightedTest: 0, WeightedExam: 50, TotalScore: 70, Letter: "B"},
		},
		{
			name: "zero totals contribute nothing",
			raw:  RawScores{AssessmentScore: 5, AssessmentTotal: 0, TestScore: 30, TestTotal: 30, ExamScore: 0, ExamTotal: 0},
			want: ScoreResult{WeightedAssessment: 0, WeightedTest: 30, WeightedExam: 0, TotalScore: 30, Letter: "F"},
		},
		{
			name: "perfect score",
			raw:  RawScores{AssessmentScore: 10, AssessmentTotal: 10, TestScore: 40, TestTotal: 40, ExamScore: 100, ExamTotal: 100},
			want: ScoreResult{WeightedAssessment: 20, WeightedTest: 30, WeightedExam: 50, TotalScore: 100, Letter: "A+"},
		},
		{
			name: "total is rounded once from exact parts",
			raw:  RawScores{AssessmentScore: 1, AssessmentTotal: 3, TestScore: 1, TestTotal: 3, ExamScore: 1, ExamTotal: 3},
			want: ScoreResult{WeightedAssessment: 6.67, WeightedTest: 10, WeightedExam: 16.67, TotalScore: 33.33, Letter: "F"},
		},
		{
			name: "cents dropped from rounded parts stay in the total",
			raw:  RawScores{AssessmentScore: 2, AssessmentTotal: 3, TestScore: 0, TestTotal: 30, ExamScore: 124.99, ExamTotal: 150},
			want: ScoreResult{WeightedAssessment: 13.33, WeightedTest: 0, WeightedExam: 41.66, TotalScore: 55, Letter: "D"},
		},
		{
			name: "over full marks is clamped",
			raw:  RawScores{AssessmentScore: 40, AssessmentTotal: 20, TestScore: 30, TestTotal: 30, ExamScore: 50, ExamTotal: 50},
			want: ScoreResult{WeightedAssessment: 40, WeightedTest: 30, WeightedExam: 50, TotalScore: 100, Letter: "A+"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, engine.Compute(tc.raw))
		})
	}
}

func TestLetterFor(t *testing.T) {
	tests := []struct {
		total float64
		want  string
	}{
		{100, "A+"}, {90, "A+"}, {89.99, "A"}, {80, "A"}, {79.5, "B"}, {70, "B"},
		{69.99, "C"}, {60, "C"}, {50, "D"}, {49.99, "F"}, {0, "F"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, LetterFor(tc.total), "total %v", tc.total)
	}
}

func TestGPA(t *testing.T) {
	assert.Equal(t, 0.0, GPA(nil))
	assert.Equal(t, 0.0, GPA([]string{}))
	assert.Equal(t, 4.0, GPA([]string{"A"}))
	assert.Equal(t, 3.0, GPA([]string{"A+", "C"}))
	assert.Equal(t, 2.33, GPA([]string{"A", "B", "F"}))
	assert.Equal(t, 1.65, GPA([]string{"B+", "?"}))
}

func TestDistribution(t *testing.T) {
	d := Distribution([]string{"A", "A", "F", "B-"})
	assert.Equal(t, map[string]int{"A+": 0, "A": 2, "B": 0, "C": 0, "D": 0, "F": 1}, d)
}

func TestValidateRaw(t *testing.T) {
	assert.NoError(t, ValidateRaw(RawScores{AssessmentScore: 10, AssessmentTotal: 20, TestTotal: 30, ExamScore: 50, ExamTotal: 50}))

	err := ValidateRaw(RawScores{AssessmentScore: 25, AssessmentTotal: 20, TestScore: -1, TestTotal: 30, ExamTotal: 50})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "assessment_score")
	assert.Contains(t, verr.Fields, "test_score")
	assert.NotContains(t, verr.Fields, "exam_score")
}

func TestApplySetsDerivedFields(t *testing.T) {
	g := models.Grade{AssessmentScore: 18, AssessmentTotal: 20, TestScore: 27, TestTotal: 30, ExamScore: 45, ExamTotal: 50}
	NewScoreEngine(DefaultWeights()).Apply(&g)
	assert.Equal(t, 18.0, g.WeightedAssessment)
	assert.Equal(t, 27.0, g.WeightedTest)
	assert.Equal(t, 45.0, g.WeightedExam)
	assert.Equal(t, 90.0, g.TotalScore)
	assert.Equal(t, "A+", g.GradeLetter)
}

func TestWeightsFromConfig(t *testing.T) {
	assert.Equal(t, DefaultWeights(), WeightsFromConfig(nil))
	assert.Equal(t, Weights{Assessment: 10, Test: 40, Exam: 50},
		WeightsFromConfig(&config.Config{GradeWeightAssessment: 10, GradeWeightTest: 40, GradeWeightExam: 50}))
	assert.Equal(t, DefaultWeights(),
		WeightsFromConfig(&config.Config{GradeWeightAssessment: 10, GradeWeightTest: 10, GradeWeightExam: 10}))
}
