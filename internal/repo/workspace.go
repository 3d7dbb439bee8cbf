// Package repo persists generated files and their traces in a repository
// directory: every file next to a `traces/<path>.traces` document, plus the
// `traces/tracedFiles.json` index.
package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog/log"

	"github.com/agentic-research/tracegen/api"
	"github.com/agentic-research/tracegen/internal/segment"
	"github.com/agentic-research/tracegen/internal/trace"
	"github.com/agentic-research/tracegen/internal/writeback"
)

const (
	// DefaultTracesDir holds the index and the per-file documents.
	DefaultTracesDir = "traces"
	// IndexFile is the repository index inside the traces dir.
	IndexFile = "tracedFiles.json"
	// TracesExt is appended to a file path to name its trace document.
	TracesExt = ".traces"
)

// ErrNotTraced is returned for paths the index does not list.
var ErrNotTraced = errors.New("file is not traced")

// Document is one generated file as stored on disk.
type Document struct {
	Path    string
	Content string
	Traces  api.FileTraces
}

// Workspace is a repository checkout on a billy filesystem.
type Workspace struct {
	fs        billy.Filesystem
	tracesDir string
}

// NewWorkspace returns a workspace rooted at fs. An empty tracesDir means
// DefaultTracesDir.
func NewWorkspace(fs billy.Filesystem, tracesDir string) *Workspace {
	if tracesDir == "" {
		tracesDir = DefaultTracesDir
	}
	return &Workspace{fs: fs, tracesDir: tracesDir}
}

// Filesystem returns the underlying filesystem.
func (w *Workspace) Filesystem() billy.Filesystem { return w.fs }

func (w *Workspace) indexPath() string { return path.Join(w.tracesDir, IndexFile) }

// TracesPath returns where the trace document of file is stored.
func (w *Workspace) TracesPath(file string) string {
	return path.Join(w.tracesDir, file+TracesExt)
}

// Index reads the repository index. ok is false when the repository has
// never been generated into.
func (w *Workspace) Index() (idx api.TracedFiles, ok bool, err error) {
	data, err := writeback.ReadFile(w.fs, w.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return api.TracedFiles{}, false, nil
	}
	if err != nil {
		return api.TracedFiles{}, false, fmt.Errorf("read index: %w", err)
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		return api.TracedFiles{}, false, fmt.Errorf("parse %s: %w", w.indexPath(), err)
	}
	return idx, true, nil
}

// Document reads a traced file and its trace document.
func (w *Workspace) Document(file string) (Document, error) {
	content, err := writeback.ReadFile(w.fs, file)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", file, err)
	}
	raw, err := writeback.ReadFile(w.fs, w.TracesPath(file))
	if err != nil {
		return Document{}, fmt.Errorf("read traces of %s: %w", file, err)
	}
	doc := Document{Path: file, Content: string(content)}
	if err := json.Unmarshal(raw, &doc.Traces); err != nil {
		return Document{}, &trace.CorruptError{Path: file, Reason: err.Error()}
	}
	return doc, nil
}

// Documents reads every traced file in index order. Unreadable files are
// reported in errs and left out.
func (w *Workspace) Documents() (docs []Document, errs []error, err error) {
	idx, _, err := w.Index()
	if err != nil {
		return nil, nil, err
	}
	for _, p := range idx.TracedFiles {
		d, err := w.Document(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, d)
	}
	return docs, errs, nil
}

// Load reconstructs the trace model of the last generation. Files whose
// trace cannot be read or reconstructed are left out of the model and
// reported in failed, keyed by path; they must not be regenerated over, as
// the file on disk may hold hand edits the trace no longer describes. A
// traced file that was deleted from disk is neither loaded nor failed. A
// repository without an index yields an empty model.
func (w *Workspace) Load() (m *trace.TraceModel, failed map[string]error, err error) {
	idx, _, err := w.Index()
	if err != nil {
		return nil, nil, err
	}
	m = trace.NewTraceModel(idx.ID)
	failed = make(map[string]error)
	for _, p := range idx.TracedFiles {
		if !writeback.Exists(w.fs, p) {
			log.Info().Str("file", p).Msg("traced file missing, generating it afresh")
			continue
		}
		d, err := w.Document(p)
		if err == nil {
			var f *trace.FileTraceModel
			if f, err = trace.ReconstructFile(d.Path, d.Content, d.Traces); err == nil {
				m.Add(f)
				continue
			}
		}
		log.Warn().Err(err).Str("file", p).Msg("prior trace unusable, file left untouched")
		failed[p] = err
	}
	return m, failed, nil
}

type rendered struct {
	path   string
	text   []byte
	traces []byte
}

// Persist writes every file of m with its trace document and then the index.
// Everything is serialized before the first write. Paths in keep that m does
// not contain are left on disk as they are and stay in the index; other files
// the previous index listed but m does not are deleted and returned.
func (w *Workspace) Persist(m *trace.TraceModel, keep ...string) (removed []string, err error) {
	files := m.Files()
	out := make([]rendered, 0, len(files))
	for _, f := range files {
		text, doc := trace.SerializeFile(f)
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode traces of %s: %w", f.Path, err)
		}
		out = append(out, rendered{path: f.Path, text: []byte(text), traces: raw})
	}

	prev, _, err := w.Index()
	if err != nil {
		return nil, err
	}
	kept := make(map[string]bool, len(keep))
	for _, p := range keep {
		kept[p] = true
	}
	var untouched []string
	for _, p := range prev.TracedFiles {
		if _, ok := m.File(p); !ok && kept[p] {
			untouched = append(untouched, p)
		}
	}

	rawIdx, err := json.MarshalIndent(index(m, prev, untouched), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}

	for _, r := range out {
		if err := writeback.WriteFileAtomic(w.fs, r.path, r.text); err != nil {
			return nil, err
		}
		if err := writeback.WriteFileAtomic(w.fs, w.TracesPath(r.path), r.traces); err != nil {
			return nil, err
		}
	}

	for _, p := range prev.TracedFiles {
		if _, ok := m.File(p); ok || kept[p] {
			continue
		}
		for _, name := range []string{p, w.TracesPath(p)} {
			if !writeback.Exists(w.fs, name) {
				continue
			}
			if err := w.fs.Remove(name); err != nil {
				return removed, fmt.Errorf("remove stale %s: %w", name, err)
			}
		}
		log.Info().Str("file", p).Msg("removed file no longer generated")
		removed = append(removed, p)
	}

	if err := writeback.WriteFileAtomic(w.fs, w.indexPath(), rawIdx); err != nil {
		return removed, err
	}
	log.Debug().Int("files", len(out)).Int("untouched", len(untouched)).Str("generation", m.GenerationID).Msg("persisted traces")
	return removed, nil
}

// index lists the files of m plus the untouched files of prev, which keep
// their previous model mapping.
func index(m *trace.TraceModel, prev api.TracedFiles, untouched []string) api.TracedFiles {
	idx := api.TracedFiles{
		TracedFiles:  append(m.Paths(), untouched...),
		ModelsToFile: make(map[string]api.ModelFiles),
		ID:           m.GenerationID,
	}
	sort.Strings(idx.TracedFiles)
	files := m.ModelsToFile()
	if len(untouched) > 0 {
		stay := make(map[string]bool, len(untouched))
		for _, p := range untouched {
			stay[p] = true
		}
		for id, mf := range prev.ModelsToFile {
			for _, p := range mf.Files {
				if stay[p] {
					files[id] = append(files[id], p)
				}
			}
		}
	}
	for id, paths := range files {
		sort.Strings(paths)
		idx.ModelsToFile[id] = api.ModelFiles{Files: paths}
	}
	return idx
}

// Edit applies a hand edit to the unprotected segment segmentID of file:
// the file bytes are spliced on disk and the trace document is rewritten
// with the new lengths. The integrity hash is untouched, so the next
// synchronizing run keeps the edit.
func (w *Workspace) Edit(m *trace.TraceModel, file, segmentID, content string) error {
	f, ok := m.File(file)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotTraced, file)
	}
	start, end, ok := f.Span(segmentID)
	if !ok {
		return fmt.Errorf("edit %s: %w: %s", file, segment.ErrNotFound, segmentID)
	}
	if err := f.Edit(segmentID, content); err != nil {
		return err
	}

	text, doc := trace.SerializeFile(f)
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode traces of %s: %w", file, err)
	}
	if occurrences(f, segmentID) == 1 {
		err = writeback.Splice(w.fs, file, start, end, []byte(content))
	} else {
		err = writeback.WriteFileAtomic(w.fs, file, []byte(text))
	}
	if err != nil {
		return err
	}
	return writeback.WriteFileAtomic(w.fs, w.TracesPath(file), raw)
}

func occurrences(f *trace.FileTraceModel, id string) int {
	n := 0
	f.Tree.Arena.Walk(f.Tree.Root, func(_ segment.Handle, s *segment.Segment) bool {
		if s.ID == id {
			n++
		}
		return true
	})
	return n
}
