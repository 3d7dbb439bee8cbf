// Package guidance checks the hand-written regions of generated files against
// a catalog of per-model-type regex rules.
package guidance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/tracegen/api"
)

// RuleError describes a catalog rule that was skipped.
type RuleError struct {
	Index  int    // position in the catalog
	Type   string // model type the rule was written for
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("guidance %d (type %q): %s", e.Index, e.Type, e.Reason)
}

// Rule is a validated guidance with its compiled regex.
type Rule struct {
	api.Guidance
	re *regexp.Regexp
}

// Catalog indexes rules by model type.
type Catalog struct {
	rules map[string][]Rule
	n     int
}

// NewCatalog validates guidances and keeps the usable ones. Every skipped
// rule is reported; the rest of the catalog still loads.
func NewCatalog(guidances []api.Guidance) (*Catalog, []*RuleError) {
	c := &Catalog{rules: make(map[string][]Rule)}
	var skipped []*RuleError
	for i, g := range guidances {
		r, reason := compile(g)
		if reason != "" {
			re := &RuleError{Index: i, Type: g.Type, Reason: reason}
			log.Warn().Int("index", i).Str("type", g.Type).Str("reason", reason).Msg("skipping guidance rule")
			skipped = append(skipped, re)
			continue
		}
		c.rules[g.Type] = append(c.rules[g.Type], r)
		c.n++
	}
	return c, skipped
}

func compile(g api.Guidance) (Rule, string) {
	if strings.TrimSpace(g.Type) == "" {
		return Rule{}, "empty type"
	}
	if g.Group < 0 {
		return Rule{}, fmt.Sprintf("negative group %d", g.Group)
	}
	re, err := regexp.Compile("(?s)" + g.Regex)
	if err != nil {
		return Rule{}, fmt.Sprintf("invalid regex: %v", err)
	}
	if g.Group > re.NumSubexp() {
		return Rule{}, fmt.Sprintf("group %d exceeds %d capture groups", g.Group, re.NumSubexp())
	}
	return Rule{Guidance: g, re: re}, ""
}

// Rules returns the rules for typ in catalog order.
func (c *Catalog) Rules(typ string) []Rule {
	return c.rules[typ]
}

// Len returns the number of usable rules.
func (c *Catalog) Len() int { return c.n }

// Format of a catalog document.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	HCL  Format = "hcl"
)

// FormatOf picks the catalog format from a file extension. JSON is the
// default.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	case ".hcl":
		return HCL
	default:
		return JSON
	}
}

type hclCatalog struct {
	Guidances []hclGuidance `hcl:"guidance,block"`
}

type hclGuidance struct {
	Type    string   `hcl:"type,label"`
	Regex   string   `hcl:"regex"`
	Group   int      `hcl:"group,optional"`
	Message string   `hcl:"message"`
	Helps   []string `hcl:"helps,optional"`
}

// ParseCatalog decodes a catalog document. A document that does not decode
// is an error; individual bad rules are skipped and returned.
func ParseCatalog(data []byte, format Format) (*Catalog, []*RuleError, error) {
	var doc api.GuidanceCatalog
	switch format {
	case JSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, nil, fmt.Errorf("parse json catalog: %w", err)
		}
	case YAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, nil, fmt.Errorf("parse yaml catalog: %w", err)
		}
	case HCL:
		var hc hclCatalog
		if err := hclsimple.Decode("catalog.hcl", data, nil, &hc); err != nil {
			return nil, nil, fmt.Errorf("parse hcl catalog: %w", err)
		}
		for _, g := range hc.Guidances {
			doc.Guidances = append(doc.Guidances, api.Guidance(g))
		}
	default:
		return nil, nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	c, skipped := NewCatalog(doc.Guidances)
	return c, skipped, nil
}

// LoadCatalog reads and parses the catalog at path.
func LoadCatalog(path string) (*Catalog, []*RuleError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data, FormatOf(path))
}
