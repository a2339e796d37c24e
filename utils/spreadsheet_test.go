package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadRowsCSV(t *testing.T) {
	rows, err := ReadRows("Scores.CSV", strings.NewReader("admission_number,exam_score\nADM001, 55\nADM002\n"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "55", rows[1][1])
	assert.Len(t, rows[2], 1)
}

func TestReadRowsXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Admission Number", "Exam Score"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"ADM001", 72.5}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ReadRows("scores.xlsx", &buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	col := HeaderIndex(rows[0])
	assert.Equal(t, "ADM001", Cell(rows[1], col, "admission_number"))
	assert.Equal(t, "72.5", Cell(rows[1], col, "exam_score"))
	assert.Equal(t, "", Cell(rows[1], col, "test_score"))
}

func TestReadRowsRejectsOtherFormats(t *testing.T) {
	_, err := ReadRows("scores.pdf", strings.NewReader(""))
	assert.Error(t, err)
}

func TestParseFloatPtr(t *testing.T) {
	v, err := ParseFloatPtr("1,250.50")
	require.NoError(t, err)
	assert.Equal(t, 1250.5, *v)

	v, err = ParseFloatPtr("  ")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = ParseFloatPtr("abc")
	assert.Error(t, err)
}
