package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/botscope/botscope/pkg/validate"
)

func TestWriteReportsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	reports := []validate.Report{
		{
			Table: "tweets.csv",
			Rows:  4,
			Columns: []validate.ColumnReport{
				{Name: "id", Kind: validate.KindInteger, Checked: 4, Invalid: 1},
			},
		},
		{
			Table:   "users.csv",
			Rows:    2,
			Missing: []string{"lang"},
		},
	}
	require.NoError(t, WriteReportsXLSX(path, reports))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file renamed into place")
	assert.Equal(t, "report.xlsx", entries[0].Name())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "tweets.csv", "users.csv"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"tweets.csv", "4", "1", "1", "", "no"}, rows[1])
	assert.Equal(t, []string{"users.csv", "2", "0", "0", "lang", "yes"}, rows[2])

	rows, err = f.GetRows("tweets.csv")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "integer", "4", "1", "25"}, rows[1])

	rows, err = f.GetRows("users.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"lang", "missing"}, rows[1])
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "a_b_c", sheetName("a/b:c"))
	assert.Equal(t, "_Summary", sheetName("Summary"))
	assert.Len(t, sheetName(strings.Repeat("x", 40)), maxSheetName)
}
