package engine

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

// partialStore holds named reusable template fragments registered in
// memory, by name, file, or directory scan.
type partialStore struct {
	mu     sync.RWMutex
	bodies map[string]string
	dir    string
}

func newPartialStore() *partialStore {
	return &partialStore{bodies: make(map[string]string)}
}

func (p *partialStore) Register(name, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies[name] = body
}

func (p *partialStore) RegisterFromFile(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.New(apperrors.CategoryFilesystem, apperrors.CodeFileNotFound,
			apperrors.SeverityMedium, "partial file not found").WithCause(err).WithEntity(path)
	}
	p.Register(name, string(data))
	return nil
}

func (p *partialStore) SetDirectory(dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dir = dir
}

func (p *partialStore) LoadDirectory(dir string) error {
	if dir == "" {
		p.mu.RLock()
		dir = p.dir
		p.mu.RUnlock()
	}
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return apperrors.New(apperrors.CategoryFilesystem, apperrors.CodeFileNotFound,
			apperrors.SeverityMedium, "partials directory not found").WithCause(err).WithEntity(dir)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if err := p.RegisterFromFile(name, filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (p *partialStore) Get(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	body, ok := p.bodies[name]
	return body, ok
}

// resolvePartials expands every {{> name [context]}} directive. An
// unregistered name leaves the directive textually intact.
func (e *Engine) resolvePartials(content string, ctx template.RenderContext) (string, error) {
	var out strings.Builder
	remaining := content
	for {
		idx := strings.Index(remaining, "{{>")
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

		inner := strings.TrimSpace(remaining[idx+3 : tagEnd])
		fields := strings.Fields(inner)
		out.WriteString(remaining[:idx])

		if len(fields) == 0 {
			out.WriteString(remaining[idx : tagEnd+2])
			remaining = remaining[tagEnd+2:]
			continue
		}

		name := fields[0]
		body, ok := e.partials.Get(name)
		if !ok {
			out.WriteString(remaining[idx : tagEnd+2])
			remaining = remaining[tagEnd+2:]
			continue
		}

		subCtx := ctx
		if len(fields) > 1 {
			if v, found := template.Lookup(ctx, fields[1]); found {
				if m, ok := v.(map[string]interface{}); ok {
					subCtx = template.RenderContext(m)
				} else if rc, ok := v.(template.RenderContext); ok {
					subCtx = rc
				}
			}
		}

		rendered, err := e.renderInternal(body, subCtx)
		if err != nil {
			return "", err
		}
		out.WriteString(rendered)
		remaining = remaining[tagEnd+2:]
	}
	return out.String(), nil
}
