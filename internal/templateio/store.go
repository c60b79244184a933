package templateio

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

// DefaultOptimizedDir is where optimized siblings are persisted.
const DefaultOptimizedDir = ".optimized-templates"

// OptimizedDocument is the on-disk JSON form of a persisted optimized
// template: the rendered optimized content, its metrics, and the
// optimization history accumulated across re-optimizations.
type OptimizedDocument struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	OptimizedContent string            `json:"optimized_content"`
	Metadata         template.Metadata `json:"metadata"`
	History          []HistoryEntry    `json:"history"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// HistoryEntry records one optimization pass.
type HistoryEntry struct {
	OptimizedAt time.Time         `json:"optimized_at"`
	Metrics     map[string]string `json:"metrics,omitempty"`
}

// OptimizedStore persists optimized templates as
// <dir>/<id>.optimized.json. It satisfies the pipeline's TemplateSaver.
type OptimizedStore struct {
	dir    string
	logger *zap.Logger
}

// NewOptimizedStore creates a store rooted at dir (DefaultOptimizedDir
// when empty).
func NewOptimizedStore(dir string, logger *zap.Logger) *OptimizedStore {
	if dir == "" {
		dir = DefaultOptimizedDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OptimizedStore{dir: dir, logger: logger.Named("optimized-store")}
}

// SaveTemplate writes tmpl as an optimized document, appending to the
// history when a document for the same id already exists.
func (s *OptimizedStore) SaveTemplate(ctx context.Context, tmpl template.Template) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperrors.New(apperrors.CategoryFilesystem, apperrors.CodeFileWrite,
			apperrors.SeverityMedium, "cannot create optimized-templates directory").WithCause(err)
	}

	doc := OptimizedDocument{
		ID:               tmpl.ID,
		Name:             tmpl.Name,
		Version:          tmpl.Version,
		OptimizedContent: tmpl.Content,
		Metadata:         tmpl.Metadata,
		UpdatedAt:        time.Now().UTC(),
	}

	if existing, err := s.Load(tmpl.ID); err == nil {
		doc.History = existing.History
	}
	doc.History = append(doc.History, HistoryEntry{
		OptimizedAt: doc.UpdatedAt,
		Metrics:     tmpl.Metadata.Extra,
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperrors.NewInternalError("cannot encode optimized template").WithCause(err)
	}

	path := s.path(tmpl.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.New(apperrors.CategoryFilesystem, apperrors.CodeFileWrite,
			apperrors.SeverityMedium, "cannot write optimized template").WithCause(err).WithEntity(tmpl.ID)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperrors.New(apperrors.CategoryFilesystem, apperrors.CodeFileWrite,
			apperrors.SeverityMedium, "cannot finalize optimized template").WithCause(err).WithEntity(tmpl.ID)
	}

	s.logger.Info("optimized template persisted",
		zap.String("template_id", tmpl.ID),
		zap.String("path", path))
	return nil
}

// Load reads the persisted optimized document for id.
func (s *OptimizedStore) Load(id string) (OptimizedDocument, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return OptimizedDocument{}, apperrors.NewTemplateNotFoundError(id).WithCause(err)
	}
	var doc OptimizedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return OptimizedDocument{}, apperrors.NewInternalError("optimized template document is corrupt").WithCause(err).WithEntity(id)
	}
	return doc, nil
}

// List returns the ids of every persisted optimized document.
func (s *OptimizedStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		base := name[:len(name)-len(".json")]
		if filepath.Ext(base) == ".optimized" {
			ids = append(ids, base[:len(base)-len(".optimized")])
		}
	}
	return ids, nil
}

func (s *OptimizedStore) path(id string) string {
	return filepath.Join(s.dir, id+".optimized.json")
}
