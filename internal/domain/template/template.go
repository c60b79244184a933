// Package template defines the core Template aggregate: a named, versioned
// artifact with variable configuration, files, commands, and metadata.
// A Template is immutable once loaded; rendering produces a new value with
// substituted content rather than mutating the original.
package template

import (
	"errors"
	"time"
)

// VariableType enumerates the accepted VariableConfig.Type values.
type VariableType string

const (
	VariableTypeString  VariableType = "string"
	VariableTypeNumber  VariableType = "number"
	VariableTypeBoolean VariableType = "boolean"
	VariableTypeArray   VariableType = "array"
	VariableTypeObject  VariableType = "object"
	VariableTypeChoice  VariableType = "choice"
)

// VariableConfig describes the declared shape and constraints of one
// template variable.
type VariableConfig struct {
	Type        VariableType  `json:"type" validate:"required,oneof=string number boolean array object choice"`
	Description string        `json:"description,omitempty"`
	Default     interface{}   `json:"default,omitempty"`
	Required    bool          `json:"required,omitempty"`
	Pattern     string        `json:"pattern,omitempty"`
	Min         *float64      `json:"min,omitempty"`
	Max         *float64      `json:"max,omitempty"`
	Enum        []string      `json:"enum,omitempty"`
	Choices     []string      `json:"choices,omitempty"`
}

// FileSpec describes one file the template produces when applied.
type FileSpec struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Content     string `json:"content"`
	Transform   bool   `json:"transform,omitempty"`
	Condition   string `json:"condition,omitempty"`
}

// CommandSpec describes a command the template's scaffold runs.
type CommandSpec struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
}

// Metadata carries free-form descriptive information about a template.
type Metadata struct {
	Author    string            `json:"author,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Category  string            `json:"category,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Template is a named, versioned prompt artifact. Identity is (Name,
// Version). Values are treated as immutable: Render returns a new Template
// rather than mutating the receiver.
type Template struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Version     string                    `json:"version"`
	Description string                    `json:"description,omitempty"`
	Content     string                    `json:"content"`
	Variables   map[string]VariableConfig `json:"variables,omitempty"`
	Files       []FileSpec                `json:"files,omitempty"`
	Commands    []CommandSpec             `json:"commands,omitempty"`
	Metadata    Metadata                  `json:"metadata,omitempty"`
}

// Identity returns the (name, version) pair that identifies a template.
func (t Template) Identity() (string, string) {
	return t.Name, t.Version
}

// WithContent returns a copy of t with its content replaced, used by the
// renderer and the pipeline's template-update stage to produce derived
// templates without mutating the original.
func (t Template) WithContent(content string) Template {
	clone := t
	clone.Content = content
	return clone
}

// Validate checks structural invariants of a template definition.
func (t Template) Validate() error {
	if t.Name == "" {
		return errors.New("template name is required")
	}
	if t.Version == "" {
		return errors.New("template version is required")
	}
	return nil
}
