package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpiresIn(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{name: "go duration", input: "24h", want: 24 * time.Hour},
		{name: "days", input: "7d", want: 7 * 24 * time.Hour},
		{name: "weeks", input: "2w", want: 14 * 24 * time.Hour},
		{name: "upper case days", input: " 3D ", want: 3 * 24 * time.Hour},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseExpiresIn(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := parseExpiresIn("soon")
	assert.Error(t, err)
}

func TestCheckGradeWeights(t *testing.T) {
	assert.NoError(t, CheckGradeWeights(20, 30, 50))
	assert.NoError(t, CheckGradeWeights(0, 0, 100))
	assert.Error(t, CheckGradeWeights(20, 30, 40))
	assert.Error(t, CheckGradeWeights(-10, 60, 50))
}

func TestGetDSN(t *testing.T) {
	c := &Config{DBDriver: "mysql", DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "3306", DBName: "school"}
	assert.Equal(t, "u:p@tcp(h:3306)/school?charset=utf8mb4&parseTime=True&loc=Local", c.GetDSN())

	c.DBDriver = "postgres"
	c.DBPort = "5432"
	assert.Contains(t, c.GetDSN(), "host=h port=5432 user=u password=p dbname=school")

	c.DBDriver = "sqlite"
	c.DBName = "file:school.db"
	assert.Equal(t, "file:school.db", c.GetDSN())
}
