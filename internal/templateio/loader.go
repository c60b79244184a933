// Package templateio loads template definitions from disk (JSON, YAML, or
// Markdown with YAML front-matter) and persists optimized siblings as JSON
// documents under the optimized-templates directory.
package templateio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

const frontMatterDelimiter = "---"

// Load reads a template definition from path, dispatching on extension:
// .json, .yaml/.yml, or .md/.markdown (YAML front-matter + body).
func Load(path string) (template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return template.Template{}, apperrors.New(apperrors.CategoryFilesystem, apperrors.CodeFileNotFound,
			apperrors.SeverityMedium, "template file not found").WithCause(err).WithEntity(path)
	}

	var tmpl template.Template
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		tmpl, err = parseJSON(data)
	case ".yaml", ".yml":
		tmpl, err = parseYAML(data)
	case ".md", ".markdown":
		tmpl, err = parseMarkdown(data)
	default:
		// Format-agnostic fallback: treat the whole file as raw content.
		tmpl = template.Template{Content: string(data)}
	}
	if err != nil {
		return template.Template{}, err
	}

	if tmpl.Name == "" {
		tmpl.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if tmpl.Version == "" {
		tmpl.Version = "1.0.0"
	}
	if tmpl.ID == "" {
		tmpl.ID = tmpl.Name
	}
	return tmpl, nil
}

func parseJSON(data []byte) (template.Template, error) {
	var tmpl template.Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return template.Template{}, apperrors.New(apperrors.CategoryTemplate, apperrors.CodeValidationFailed,
			apperrors.SeverityLow, "template JSON is malformed").WithCause(err)
	}
	return tmpl, nil
}

// yamlTemplate mirrors template.Template with yaml tags; yaml.v3 does not
// honor json tags.
type yamlTemplate struct {
	ID          string                 `yaml:"id"`
	Name        string                 `yaml:"name"`
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description"`
	Content     string                 `yaml:"content"`
	Variables   map[string]yamlVar     `yaml:"variables"`
	Author      string                 `yaml:"author"`
	Tags        []string               `yaml:"tags"`
	Category    string                 `yaml:"category"`
}

type yamlVar struct {
	Type        string      `yaml:"type"`
	Description string      `yaml:"description"`
	Default     interface{} `yaml:"default"`
	Required    bool        `yaml:"required"`
	Pattern     string      `yaml:"pattern"`
	Min         *float64    `yaml:"min"`
	Max         *float64    `yaml:"max"`
	Enum        []string    `yaml:"enum"`
	Choices     []string    `yaml:"choices"`
}

func parseYAML(data []byte) (template.Template, error) {
	var raw yamlTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return template.Template{}, apperrors.New(apperrors.CategoryTemplate, apperrors.CodeValidationFailed,
			apperrors.SeverityLow, "template YAML is malformed").WithCause(err)
	}
	return raw.toTemplate(), nil
}

func (y yamlTemplate) toTemplate() template.Template {
	tmpl := template.Template{
		ID:          y.ID,
		Name:        y.Name,
		Version:     y.Version,
		Description: y.Description,
		Content:     y.Content,
		Metadata: template.Metadata{
			Author:   y.Author,
			Tags:     y.Tags,
			Category: y.Category,
		},
	}
	if len(y.Variables) > 0 {
		tmpl.Variables = make(map[string]template.VariableConfig, len(y.Variables))
		for name, v := range y.Variables {
			tmpl.Variables[name] = template.VariableConfig{
				Type:        template.VariableType(v.Type),
				Description: v.Description,
				Default:     v.Default,
				Required:    v.Required,
				Pattern:     v.Pattern,
				Min:         v.Min,
				Max:         v.Max,
				Enum:        v.Enum,
				Choices:     v.Choices,
			}
		}
	}
	return tmpl
}

// parseMarkdown splits a YAML front-matter header from the Markdown body;
// the body becomes the template content. A file without front-matter is
// all content.
func parseMarkdown(data []byte) (template.Template, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontMatterDelimiter+"\n") && !strings.HasPrefix(text, frontMatterDelimiter+"\r\n") {
		return template.Template{Content: text}, nil
	}

	rest := text[len(frontMatterDelimiter):]
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n"+frontMatterDelimiter)
	if end == -1 {
		return template.Template{Content: text}, nil
	}

	header := rest[:end]
	body := rest[end+1+len(frontMatterDelimiter):]
	body = strings.TrimPrefix(body, "\r\n")
	body = strings.TrimPrefix(body, "\n")

	tmpl, err := parseYAML([]byte(header))
	if err != nil {
		return template.Template{}, err
	}
	tmpl.Content = body
	return tmpl, nil
}
