package tui

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/botscope/botscope/pkg/validate"
)

func TestFormatters(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))

	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "12.3K", formatNumber(12345))
	assert.Equal(t, "1.2M", formatNumber(1234567))

	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, []validate.Report{
		{
			Table: "users.csv",
			Rows:  10,
			Columns: []validate.ColumnReport{
				{Name: "bot", Kind: validate.KindFlag, Checked: 10, Invalid: 2},
				{Name: "id", Kind: validate.KindPositiveInteger, Checked: 10},
			},
			Missing: []string{"lang"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "users.csv")
	assert.Contains(t, out, "2 (20.00%)")
	assert.Contains(t, out, "missing column")
	assert.Contains(t, out, "lang")
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"n", "name"}, [][]any{{int64(1), "a"}, {int64(2), nil}})
	out := buf.String()
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "(2 rows)")
}

func TestDownloadProgressCountsBytes(t *testing.T) {
	var buf bytes.Buffer
	w := DownloadProgress(&buf)(4)
	n, err := io.WriteString(w, "abcd")
	assert.NoError(t, err)
	assert.Equal(t, 4, n)

	unknown := showDownload(&buf, 0, "x")
	_, err = unknown.Write([]byte("abc"))
	assert.NoError(t, err)
}
