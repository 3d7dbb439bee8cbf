package guidance

import (
	"context"
	"runtime"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/tracegen/api"
	"github.com/agentic-research/tracegen/internal/segment"
	"github.com/agentic-research/tracegen/internal/trace"
)

// FileInput is one generated file together with its trace document.
type FileInput struct {
	Path    string
	Content string
	Traces  api.FileTraces
}

// SegmentRange is the part of one unprotected segment a match covers, in
// segment-local byte offsets.
type SegmentRange struct {
	ID    string `json:"id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Violation is one rule match attributed back to its model element.
type Violation struct {
	File     string         `json:"file"`
	ModelID  string         `json:"modelId"`
	Type     string         `json:"type"`
	Segments []SegmentRange `json:"segments"`
	Message  string         `json:"message"`
	Helps    []string       `json:"helps,omitempty"`
}

// FileResult holds the outcome for one input file. Err is set when the
// file's trace could not be reconstructed.
type FileResult struct {
	Path       string
	Violations []Violation
	Err        error
}

// Checker runs a catalog over generated files.
type Checker struct {
	catalog *Catalog
	workers int
}

// NewChecker returns a checker using at most workers goroutines; workers <= 0
// means GOMAXPROCS.
func NewChecker(catalog *Catalog, workers int) *Checker {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Checker{catalog: catalog, workers: workers}
}

// Check checks files in parallel. Results are in input order. A file that
// fails to reconstruct gets its own error and does not affect the others;
// the returned error is only set when ctx is cancelled.
func (c *Checker) Check(ctx context.Context, files []FileInput) ([]FileResult, error) {
	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, in := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.checkInput(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (c *Checker) checkInput(in FileInput) FileResult {
	f, err := trace.ReconstructFile(in.Path, in.Content, in.Traces)
	if err != nil {
		log.Warn().Err(err).Str("file", in.Path).Msg("skipping file with corrupt trace")
		return FileResult{Path: in.Path, Err: err}
	}
	return FileResult{Path: in.Path, Violations: c.CheckFile(f)}
}

// CheckFile checks one reconstructed file. Composites owned by a model
// element whose type has rules are checked against the concatenation of
// their unprotected descendants, once per composite even when the tree
// references it more than once.
func (c *Checker) CheckFile(f *trace.FileTraceModel) []Violation {
	owners := f.Owners()
	a := f.Tree.Arena
	checked := roaring.New()
	var out []Violation
	a.Walk(f.Tree.Root, func(h segment.Handle, s *segment.Segment) bool {
		switch s.Kind {
		case segment.Protected, segment.Unprotected:
			return false
		case segment.Composite, segment.Appendable:
		default:
			return false
		}
		owner, ok := owners[s.ID]
		if !ok {
			return true
		}
		rules := c.catalog.Rules(owner.Type)
		if len(rules) == 0 {
			return true
		}
		if !checked.CheckedAdd(uint32(h)) {
			return false
		}
		parts := collect(a, h)
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(p.text)
		}
		text := b.String()
		for _, r := range rules {
			for _, m := range r.re.FindAllStringSubmatchIndex(text, -1) {
				start, end := m[2*r.Group], m[2*r.Group+1]
				if start < 0 {
					continue
				}
				out = append(out, Violation{
					File:     f.Path,
					ModelID:  owner.ModelID,
					Type:     owner.Type,
					Segments: attribute(parts, start, end),
					Message:  r.Message,
					Helps:    r.Helps,
				})
			}
		}
		return true
	})
	return out
}

type part struct {
	id   string
	text string
}

// collect returns the unprotected descendants of h in document order,
// recursing through nested composites.
func collect(a *segment.Arena, h segment.Handle) []part {
	var parts []part
	a.Walk(h, func(_ segment.Handle, s *segment.Segment) bool {
		if s.Kind == segment.Unprotected {
			parts = append(parts, part{id: s.ID, text: s.Text})
		}
		return true
	})
	return parts
}

// attribute maps [start, end) of the concatenated text onto the parts it
// covers, splitting at part boundaries. An empty match is attributed to the
// part it sits in.
func attribute(parts []part, start, end int) []SegmentRange {
	var out []SegmentRange
	off := 0
	for _, p := range parts {
		lo, hi := off, off+len(p.text)
		off = hi
		if start == end {
			if start >= lo && start <= hi && len(out) == 0 {
				out = append(out, SegmentRange{ID: p.id, Start: start - lo, End: start - lo})
			}
			continue
		}
		if hi > lo && start < hi && end > lo {
			out = append(out, SegmentRange{ID: p.id, Start: max(start, lo) - lo, End: min(end, hi) - lo})
		}
	}
	return out
}

// Violations flattens results in order.
func Violations(results []FileResult) []Violation {
	var out []Violation
	for _, r := range results {
		out = append(out, r.Violations...)
	}
	return out
}
