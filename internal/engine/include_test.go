package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

func TestRenderResolvesInclude(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "footer.txt")
	require.NoError(t, os.WriteFile(inc, []byte("footer for {{name}}"), 0o644))

	e := New(nil)
	out, err := e.Render(`top {{#include "`+inc+`"}} bottom`, template.RenderContext{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "top footer for Ada bottom", out)
}

func TestRenderIncludeCycleFails(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte(`{{#include "`+b+`"}}`), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`{{#include "`+a+`"}}`), 0o644))

	e := New(nil)
	_, err := e.Render(`{{#include "`+a+`"}}`, template.RenderContext{})
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeIncludeCycle, appErr.Code)
}

func TestRenderIncludeNotFound(t *testing.T) {
	e := New(nil)
	_, err := e.Render(`{{#include "/no/such/file.txt"}}`, template.RenderContext{})
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeIncludeNotFound, appErr.Code)
}

func TestRenderIncludeDepthExceeded(t *testing.T) {
	dir := t.TempDir()
	files := make([]string, 12)
	for i := range files {
		files[i] = filepath.Join(dir, filepathName(i))
	}
	for i := 0; i < len(files)-1; i++ {
		require.NoError(t, os.WriteFile(files[i], []byte(`{{#include "`+files[i+1]+`"}}`), 0o644))
	}
	require.NoError(t, os.WriteFile(files[len(files)-1], []byte("leaf"), 0o644))

	e := New(nil)
	_, err := e.Render(`{{#include "`+files[0]+`"}}`, template.RenderContext{})
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeIncludeDepthExceeded, appErr.Code)
}

func filepathName(i int) string {
	return "inc" + string(rune('a'+i)) + ".txt"
}
