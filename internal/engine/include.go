package engine

import (
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

// maxIncludeDepth bounds recursive {{#include}} expansion.
const maxIncludeDepth = 10

// resolveIncludes expands every {{#include "path"}} directive in content,
// recursively, tracking the set of absolute paths currently being expanded
// so a reappearing path fails as a circular dependency rather than
// recursing forever.
func (e *Engine) resolveIncludes(content string, visiting map[string]bool, depth int) (string, error) {
	var out strings.Builder
	remaining := content
	for {
		idx := strings.Index(remaining, "{{#include")
		if idx == -1 {
			out.WriteString(remaining)
			break
		}
		tagEnd := strings.Index(remaining[idx:], "}}")
		if tagEnd == -1 {
			out.WriteString(remaining)
			break
		}
		tagEnd += idx

		inner := strings.TrimSpace(remaining[idx+len("{{#include") : tagEnd])
		path := strings.Trim(inner, `"'`)

		out.WriteString(remaining[:idx])
		resolved, err := e.loadInclude(path, visiting, depth)
		if err != nil {
			return "", err
		}
		out.WriteString(resolved)
		remaining = remaining[tagEnd+2:]
	}
	return out.String(), nil
}

func (e *Engine) loadInclude(path string, visiting map[string]bool, depth int) (string, error) {
	nextDepth := depth + 1
	if nextDepth > maxIncludeDepth {
		return "", apperrors.NewIncludeDepthExceededError(path, nextDepth)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		if wd, err := os.Getwd(); err == nil {
			abs = filepath.Join(wd, path)
		}
	}
	if visiting[abs] {
		return "", apperrors.NewIncludeCycleError(path)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", apperrors.NewIncludeNotFoundError(path)
	}

	visiting[abs] = true
	defer delete(visiting, abs)

	return e.resolveIncludes(string(data), visiting, nextDepth)
}
