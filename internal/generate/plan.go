package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelRef names the model element a node is generated for.
type ModelRef struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`
}

// Append adds Node to the slot Variable of its parent.
type Append struct {
	Variable string `json:"variable" yaml:"variable"`
	Once     bool   `json:"once,omitempty" yaml:"once,omitempty"`
	Node     Node   `json:"node" yaml:"node"`
}

// Node is one template instantiation.
type Node struct {
	// ID of the template segment. Roots default to the file path; appended
	// children default to "<parent>:<variable>:<model id or index>".
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// Template names an entry of Plan.Templates; Source is inline text.
	Template    string            `json:"template,omitempty" yaml:"template,omitempty"`
	Source      string            `json:"source,omitempty" yaml:"source,omitempty"`
	Model       *ModelRef         `json:"model,omitempty" yaml:"model,omitempty"`
	Set         map[string]string `json:"set,omitempty" yaml:"set,omitempty"`
	SetIfNotSet map[string]string `json:"setIfNotSet,omitempty" yaml:"setIfNotSet,omitempty"`
	Append      []Append          `json:"append,omitempty" yaml:"append,omitempty"`
}

// File is one generated file.
type File struct {
	Path string `json:"path" yaml:"path"`
	Root Node   `json:"root" yaml:"root"`
}

// Plan describes everything one generation run produces.
type Plan struct {
	Templates map[string]string `json:"templates,omitempty" yaml:"templates,omitempty"`
	Files     []File            `json:"files" yaml:"files"`
}

// ParsePlan decodes a YAML or JSON plan. YAML is a superset of JSON, but
// .json plans go through encoding/json for exact error positions.
func ParsePlan(data []byte, name string) (*Plan, error) {
	var p Plan
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse plan %s: %w", name, err)
		}
	default:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse plan %s: %w", name, err)
		}
	}
	return &p, nil
}

// LoadPlan reads the plan at path. Templates referenced by name but not
// defined inline are read from files relative to the plan's directory.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := ParsePlan(data, path)
	if err != nil {
		return nil, err
	}
	if p.Templates == nil {
		p.Templates = make(map[string]string)
	}
	dir := filepath.Dir(path)
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if n.Template != "" {
			if _, ok := p.Templates[n.Template]; !ok {
				src, err := os.ReadFile(filepath.Join(dir, n.Template))
				if err != nil {
					return fmt.Errorf("template %s: %w", n.Template, err)
				}
				p.Templates[n.Template] = string(src)
			}
		}
		for i := range n.Append {
			if err := walk(&n.Append[i].Node); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range p.Files {
		if err := walk(&p.Files[i].Root); err != nil {
			return nil, err
		}
	}
	return p, p.Validate()
}

// Validate checks the plan's structure. Template syntax is checked per file
// during the run.
func (p *Plan) Validate() error {
	seen := make(map[string]bool, len(p.Files))
	var errs []error
	for i, f := range p.Files {
		if f.Path == "" {
			errs = append(errs, fmt.Errorf("file %d: empty path", i))
			continue
		}
		if seen[f.Path] {
			errs = append(errs, fmt.Errorf("file %s: listed twice", f.Path))
		}
		seen[f.Path] = true
		errs = append(errs, p.validateNode(f.Path, f.Root))
	}
	return errors.Join(errs...)
}

func (p *Plan) validateNode(where string, n Node) error {
	var errs []error
	switch {
	case n.Template == "" && n.Source == "":
		errs = append(errs, fmt.Errorf("%s: node has neither template nor source", where))
	case n.Template != "" && n.Source != "":
		errs = append(errs, fmt.Errorf("%s: node has both template and source", where))
	case n.Template != "":
		if _, ok := p.Templates[n.Template]; !ok {
			errs = append(errs, fmt.Errorf("%s: unknown template %q", where, n.Template))
		}
	}
	if n.Model != nil && (n.Model.ID == "" || n.Model.Type == "") {
		errs = append(errs, fmt.Errorf("%s: model needs id and type", where))
	}
	for _, a := range n.Append {
		if a.Variable == "" {
			errs = append(errs, fmt.Errorf("%s: append without variable", where))
		}
		errs = append(errs, p.validateNode(where+" > "+a.Variable, a.Node))
	}
	return errors.Join(errs...)
}

func (p *Plan) source(n Node) string {
	if n.Source != "" {
		return n.Source
	}
	return p.Templates[n.Template]
}
