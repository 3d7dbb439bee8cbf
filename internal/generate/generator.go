// Package generate runs a declarative plan through the template engine and
// produces the trace model of one generation run.
package generate

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentic-research/tracegen/internal/engine"
	"github.com/agentic-research/tracegen/internal/segment"
	"github.com/agentic-research/tracegen/internal/trace"
	"github.com/agentic-research/tracegen/internal/writeback"
)

// Mode selects the reuse strategy of a run.
type Mode string

const (
	Initial Mode = "initial"
	Sync    Mode = "sync"
	Ordered Mode = "ordered"
)

// ParseMode validates s.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case Initial, Sync, Ordered:
		return m, nil
	default:
		return "", fmt.Errorf("unknown generation mode %q", s)
	}
}

// Request is one generation run.
type Request struct {
	Repository string
	Plan       *Plan
	// Prior is the trace model of the previous run; nil for a fresh
	// repository. Ignored in Initial mode.
	Prior *trace.TraceModel
	// PriorErrors holds, by path, the files whose prior trace could not be
	// loaded. Outside Initial mode they fail with that error and are not
	// regenerated, so hand edits on disk are never overwritten.
	PriorErrors  map[string]error
	Mode         Mode
	OrderedSlots []string
	// GenerationID defaults to a random UUID.
	GenerationID string
	// Validate attaches syntax and formatting diagnostics to each file.
	Validate bool
	// Strict fails files whose output does not parse.
	Strict bool
}

// FileReport describes what happened to one planned file.
type FileReport struct {
	Path        string
	Reused      bool // root template came from the prior run
	Outcomes    []engine.Outcome
	Diagnostics []writeback.Diagnostic
	// Err is set when the file could not be generated. The prior version of
	// the file, if any, is carried into the new model unchanged.
	Err error
}

// Result is the outcome of a run.
type Result struct {
	Model *trace.TraceModel
	Files []FileReport
}

// Failed returns the reports with an error.
func (r *Result) Failed() []FileReport {
	var out []FileReport
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// FailedPaths returns the paths of the failed files. Persisting with these
// kept leaves any failed file without a prior version untouched on disk.
func (r *Result) FailedPaths() []string {
	var out []string
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f.Path)
		}
	}
	return out
}

// Generator runs plans. It is safe for concurrent use; runs against the same
// repository are serialized.
type Generator struct {
	locks *Locker
}

// NewGenerator returns a generator with its own Locker.
func NewGenerator() *Generator {
	return &Generator{locks: NewLocker()}
}

// Run builds every file of req.Plan. Nothing is written anywhere; persisting
// the returned model is up to the caller.
func (g *Generator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Plan == nil {
		return nil, fmt.Errorf("generate %s: no plan", req.Repository)
	}
	if err := req.Plan.Validate(); err != nil {
		return nil, fmt.Errorf("generate %s: %w", req.Repository, err)
	}
	mode := req.Mode
	if mode == "" {
		mode = Sync
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	unlock := g.locks.Lock(req.Repository)
	defer unlock()

	id := req.GenerationID
	if id == "" {
		id = uuid.NewString()
	}
	res := &Result{Model: trace.NewTraceModel(id)}
	logger := log.With().Str("repository", req.Repository).Str("generation", id).Str("mode", string(mode)).Logger()

	for _, f := range req.Plan.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var prior *trace.FileTraceModel
		if mode != Initial {
			if err := req.PriorErrors[f.Path]; err != nil {
				logger.Error().Err(err).Str("file", f.Path).Msg("file not generated, prior trace unusable")
				res.Files = append(res.Files, FileReport{Path: f.Path, Err: err})
				continue
			}
			prior, _ = req.Prior.File(f.Path)
		}
		report, file := g.runFile(req, mode, f, prior)
		if report.Err != nil {
			logger.Error().Err(report.Err).Str("file", f.Path).Msg("file not generated")
			if prior != nil {
				file = prior
			}
		}
		if file != nil {
			res.Model.Add(file)
		}
		res.Files = append(res.Files, report)
	}
	logger.Info().Int("files", len(res.Files)).Int("failed", len(res.Failed())).Msg("generation finished")
	return res, nil
}

func strategyFor(mode Mode, prior *trace.FileTraceModel, slots []string) engine.Strategy {
	var old *segment.Tree
	if prior != nil {
		old = prior.Tree
	}
	switch mode {
	case Initial:
		return engine.Initial{}
	case Sync:
		return engine.NewSynchronization(old)
	case Ordered:
		return engine.NewSynchronizationOrdered(old, slots...)
	default:
		return engine.Initial{}
	}
}

func (g *Generator) runFile(req Request, mode Mode, f File, prior *trace.FileTraceModel) (FileReport, *trace.FileTraceModel) {
	report := FileReport{Path: f.Path}
	e := engine.New(f.Path, strategyFor(mode, prior, req.OrderedSlots))
	b := &builder{plan: req.Plan, engine: e}

	rootID := f.Root.ID
	if rootID == "" {
		rootID = f.Path
	}
	root, err := b.build(rootID, f.Root)
	if err != nil {
		report.Err = fmt.Errorf("%s: %w", f.Path, err)
		return report, nil
	}
	root = e.AddTemplate(root)
	report.Reused = root.Reused()

	file, err := e.File()
	if err != nil {
		report.Err = err
		return report, nil
	}
	report.Outcomes = e.Outcomes()
	if req.Strict {
		if err := writeback.Validate([]byte(file.Content()), f.Path); err != nil {
			report.Err = err
			return report, nil
		}
	}
	if req.Validate {
		report.Diagnostics = writeback.Diagnose([]byte(file.Content()), f.Path)
	}
	return report, file
}

type builder struct {
	plan   *Plan
	engine *engine.Engine
}

func (b *builder) build(id string, n Node) (*engine.Template, error) {
	t, err := b.engine.CreateTemplate(id, b.plan.source(n))
	if err != nil {
		return nil, err
	}
	if n.Model != nil {
		if err := t.Trace(n.Model.ID, n.Model.Type); err != nil {
			return nil, err
		}
	}
	for _, k := range sortedKeys(n.Set) {
		t.SetVariable(k, n.Set[k])
	}
	for _, k := range sortedKeys(n.SetIfNotSet) {
		t.SetVariableIfNotSet(k, n.SetIfNotSet[k])
	}
	for i, a := range n.Append {
		childID := a.Node.ID
		if childID == "" {
			suffix := strconv.Itoa(i)
			if a.Node.Model != nil {
				suffix = a.Node.Model.ID
			}
			childID = id + ":" + a.Variable + ":" + suffix
		}
		child, err := b.build(childID, a.Node)
		if err != nil {
			return nil, err
		}
		if a.Once {
			t.AppendVariableOnce(a.Variable, child)
		} else {
			t.AppendVariable(a.Variable, child)
		}
	}
	return t, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
