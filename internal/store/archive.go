// Package store archives generation runs in SQLite so any earlier run can
// serve as the prior state of a synchronizing regeneration.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/tracegen/api"
	"github.com/agentic-research/tracegen/internal/trace"
)

// ErrNotFound is returned for unknown generation ids.
var ErrNotFound = errors.New("generation not found")

const schema = `
CREATE TABLE IF NOT EXISTS generations (
	id TEXT PRIMARY KEY,
	repository TEXT NOT NULL,
	strategy TEXT NOT NULL,
	created INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generations_repo ON generations(repository, created);

CREATE TABLE IF NOT EXISTS files (
	generation_id TEXT NOT NULL REFERENCES generations(id),
	path TEXT NOT NULL,
	content TEXT NOT NULL,
	traces JSON NOT NULL,
	PRIMARY KEY (generation_id, path)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS elements (
	generation_id TEXT NOT NULL REFERENCES generations(id),
	model_id TEXT NOT NULL,
	type TEXT NOT NULL,
	path TEXT NOT NULL,
	PRIMARY KEY (generation_id, model_id, path)
) WITHOUT ROWID;
`

// Generation summarizes one archived run.
type Generation struct {
	ID         string
	Repository string
	Strategy   string
	Created    time.Time
	Files      int
}

// Archive is a SQLite-backed history of generation runs.
type Archive struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at dbPath.
func Open(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One writer at a time; the archive is append-mostly.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Record stores every file of m as generation m.GenerationID in one
// transaction.
func (a *Archive) Record(ctx context.Context, repository, strategy string, m *trace.TraceModel) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() // the original error matters more
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO generations (id, repository, strategy, created) VALUES (?, ?, ?, ?)`,
		m.GenerationID, repository, strategy, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("insert generation %s: %w", m.GenerationID, err)
	}

	stmtFile, err := tx.PrepareContext(ctx, `INSERT INTO files (generation_id, path, content, traces) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmtFile.Close() }() // closed with the tx
	stmtElem, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO elements (generation_id, model_id, type, path) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmtElem.Close() }() // closed with the tx

	for _, f := range m.Files() {
		text, doc := trace.SerializeFile(f)
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode traces of %s: %w", f.Path, err)
		}
		if _, err := stmtFile.ExecContext(ctx, m.GenerationID, f.Path, text, string(raw)); err != nil {
			return fmt.Errorf("insert file %s: %w", f.Path, err)
		}
		for _, el := range f.Elements() {
			if _, err := stmtElem.ExecContext(ctx, m.GenerationID, el.ID, el.Type, f.Path); err != nil {
				return fmt.Errorf("insert element %s: %w", el.ID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	log.Debug().Str("generation", m.GenerationID).Str("repository", repository).Msg("archived generation")
	return nil
}

// List returns the runs of repository, newest first.
func (a *Archive) List(ctx context.Context, repository string) ([]Generation, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT g.id, g.repository, g.strategy, g.created, COUNT(f.path)
		FROM generations g LEFT JOIN files f ON f.generation_id = g.id
		WHERE g.repository = ?
		GROUP BY g.id
		ORDER BY g.created DESC, g.rowid DESC`, repository)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []Generation
	for rows.Next() {
		var g Generation
		var created int64
		if err := rows.Scan(&g.ID, &g.Repository, &g.Strategy, &created, &g.Files); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		g.Created = time.Unix(0, created)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Latest returns the newest run of repository.
func (a *Archive) Latest(ctx context.Context, repository string) (Generation, error) {
	gens, err := a.List(ctx, repository)
	if err != nil {
		return Generation{}, err
	}
	if len(gens) == 0 {
		return Generation{}, fmt.Errorf("%w: repository %s", ErrNotFound, repository)
	}
	return gens[0], nil
}

// Snapshot reconstructs the trace model of generationID. A file whose stored
// trace no longer reconstructs fails the whole snapshot.
func (a *Archive) Snapshot(ctx context.Context, generationID string) (*trace.TraceModel, error) {
	var exists int
	err := a.db.QueryRowContext(ctx, `SELECT 1 FROM generations WHERE id = ?`, generationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, generationID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, `SELECT path, content, traces FROM files WHERE generation_id = ? ORDER BY path`, generationID)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	m := trace.NewTraceModel(generationID)
	for rows.Next() {
		var path, content, raw string
		if err := rows.Scan(&path, &content, &raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var doc api.FileTraces
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, &trace.CorruptError{Path: path, Reason: err.Error()}
		}
		f, err := trace.ReconstructFile(path, content, doc)
		if err != nil {
			return nil, err
		}
		m.Add(f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return m, nil
}

// FilesForModel returns the sorted paths model element modelID contributed
// to in generationID.
func (a *Archive) FilesForModel(ctx context.Context, generationID, modelID string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT path FROM elements WHERE generation_id = ? AND model_id = ?`, generationID, modelID)
	if err != nil {
		return nil, fmt.Errorf("query elements: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	sort.Strings(out)
	return out, nil
}
