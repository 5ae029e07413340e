package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := New(CodeMissingFile, "dataset file missing").
		WithContext("root", "/data").
		WithContext("file", "users.csv")

	assert.Equal(t, "[E104] dataset file missing (file=users.csv, root=/data)", err.Error())
	assert.NotEmpty(t, err.StackTrace)
	assert.Contains(t, err.FormatStack(), "errors_test.go")
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := FetchFailed(cause, "https://example.com/a.zip")

	assert.Equal(t, CodeFetchFailed, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Nil(t, Wrap(nil, CodeUnknown, "x"))
	assert.Nil(t, FetchFailed(nil, "id"))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("load: %w", StepNotFound("dedup"))

	assert.True(t, errors.Is(err, ErrStepNotFound))
	assert.False(t, errors.Is(err, New(CodeParseFailed, "other")))
	assert.True(t, IsCode(err, CodeStepNotFound))
	assert.False(t, IsCode(errors.New("plain"), CodeStepNotFound))

	var coded *Error
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, "dedup", coded.Context["step"])
}

func TestFileSystem(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here")
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"not exist", statErr, CodeFileNotFound},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, CodeFilePermission},
		{"other", errors.New("disk full"), CodeWriteFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FileSystem(tt.err, "open", "/x")
			assert.Equal(t, tt.want, err.Code)
			assert.Equal(t, "/x", err.Context["path"])
		})
	}
	assert.Nil(t, FileSystem(nil, "open", "/x"))
}
