package executor

import (
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/michaelbrown/rustplay/internal/workspace"
)

func TestClassifyWorkspaceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "directory",
			err:  &workspace.Error{Step: workspace.StepCreateDir, Path: "/r", Err: os.ErrExist},
			want: "Failed to create temporary directory: file already exists",
		},
		{
			name: "create file",
			err:  &workspace.Error{Step: workspace.StepCreateFile, Path: "/r/x/x.rs", Err: os.ErrPermission},
			want: "Failed to create file: permission denied",
		},
		{
			name: "write file",
			err:  &workspace.Error{Step: workspace.StepWriteFile, Path: "/r/x/x.rs", Err: errors.New("no space left on device")},
			want: "Failed to write to file: no space left on device",
		},
		{
			name: "untyped",
			err:  errors.New("boom"),
			want: "Failed to create workspace: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := classifyWorkspaceError(tt.err)

			assert.Equal(t, OutcomeWorkspaceFailed, r.Outcome)
			assert.Equal(t, http.StatusInternalServerError, r.Status())
			assert.Equal(t, Response{Error: tt.want}, r.Response)
		})
	}
}

func TestAppendNote(t *testing.T) {
	assert.Equal(t, "out", appendNote("out", ""))
	assert.Equal(t, "note", appendNote("", "note"))
	assert.Equal(t, "out\nnote", appendNote("out\n", "note"))
	assert.Equal(t, "out\nnote", appendNote("out", "note"))
}
