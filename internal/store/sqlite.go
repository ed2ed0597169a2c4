package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/bfftrace/internal/grid"
	"github.com/nvandessel/bfftrace/internal/lineage"
	"github.com/nvandessel/bfftrace/internal/program"
	"github.com/nvandessel/bfftrace/internal/snapshot"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteStore opens the store at projectRoot/.bfftrace/bfftrace.db,
// creating the directory and schema as needed.
func NewSQLiteStore(projectRoot string) (*SQLiteStore, error) {
	dir := LocalPath(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", DirName, err)
	}
	return OpenSQLiteStore(filepath.Join(dir, DBFile))
}

// OpenSQLiteStore opens the database at dbPath.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.dbPath }

// ImportSnapshot stores snap, replacing any earlier import of the same epoch.
func (s *SQLiteStore) ImportSnapshot(ctx context.Context, snap *snapshot.Snapshot, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE epoch = ?`, snap.Epoch); err != nil {
		return fmt.Errorf("failed to clear epoch %d: %w", snap.Epoch, err)
	}

	b := snap.Bounds()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (epoch, linked, width, height, cell_count, source, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Epoch, boolToInt(snap.Linked), b.Width, b.Height, snap.Len(), source,
		s.now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to insert snapshot %d: %w", snap.Epoch, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cells (epoch, x, y, program, origin_x, origin_y) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cell insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range snap.Positions() {
		c, _ := snap.Lookup(p)
		if _, err := stmt.ExecContext(ctx, snap.Epoch, p.X, p.Y, c.Program.String(), c.Origin.X, c.Origin.Y); err != nil {
			return fmt.Errorf("failed to insert cell %v: %w", p, err)
		}
	}

	return tx.Commit()
}

// Load implements snapshot.Source over ingested cells.
func (s *SQLiteStore) Load(ctx context.Context, epoch int) (*snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var linked int
	err := s.db.QueryRowContext(ctx, `SELECT linked FROM snapshots WHERE epoch = ?`, epoch).Scan(&linked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("epoch %d in %s: %w", epoch, s.dbPath, snapshot.ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot %d: %w", epoch, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT x, y, program, origin_x, origin_y FROM cells WHERE epoch = ? ORDER BY y, x`, epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to query cells: %w", err)
	}
	defer rows.Close()

	snap := snapshot.New(epoch, linked != 0)
	for rows.Next() {
		var x, y, ox, oy int
		var prog string
		if err := rows.Scan(&x, &y, &prog, &ox, &oy); err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		cell := snapshot.Cell{Program: program.Program(prog), Origin: grid.Position{X: ox, Y: oy}}
		if err := snap.Set(grid.Position{X: x, Y: y}, cell); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cells: %w", err)
	}
	return snap, nil
}

// Epochs lists the ingested epochs, ascending.
func (s *SQLiteStore) Epochs(ctx context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT epoch FROM snapshots ORDER BY epoch`)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var e int
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveRun stores run and its records and returns the run ID. An empty
// run.ID is derived from the run parameters and creation time.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run, records []lineage.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	if run.ID == "" {
		run.ID = runID(run)
	}
	run.Nodes = len(records)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, source, start_epoch, end_epoch, root_x, root_y, mode, threshold, max_iterations, node_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.StartEpoch, run.EndEpoch, run.Root.X, run.Root.Y,
		run.Mode, run.Threshold, run.MaxIterations, run.Nodes,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lineage_nodes (run_id, node_id, parent_id, epoch, x, y, program, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, run.ID, r.ID, r.ParentID, r.Epoch, r.X, r.Y, r.Program.String(), string(r.Status)); err != nil {
			return "", fmt.Errorf("failed to insert node %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

const runColumns = `id, source, start_epoch, end_epoch, root_x, root_y, mode, threshold, max_iterations, node_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var source sql.NullString
	var created string
	if err := row.Scan(&r.ID, &source, &r.StartEpoch, &r.EndEpoch, &r.Root.X, &r.Root.Y,
		&r.Mode, &r.Threshold, &r.MaxIterations, &r.Nodes, &created); err != nil {
		return Run{}, err
	}
	r.Source = source.String
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: bad created_at %q: %w", r.ID, created, err)
	}
	r.CreatedAt = t
	return r, nil
}

// ListRuns returns all runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns the run with the given ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// RunRecords returns a run's nodes in creation order.
func (s *SQLiteStore) RunRecords(ctx context.Context, id string) ([]lineage.Record, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, parent_id, epoch, x, y, program, status
		FROM lineage_nodes WHERE run_id = ? ORDER BY node_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var out []lineage.Record
	for rows.Next() {
		var r lineage.Record
		var prog, status string
		if err := rows.Scan(&r.ID, &r.ParentID, &r.Epoch, &r.X, &r.Y, &prog, &status); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		r.Program = program.Program(prog)
		r.Status = lineage.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its nodes.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Helper functions

func runID(r Run) string {
	key := r.Source + "|" +
		strconv.Itoa(r.StartEpoch) + "|" + strconv.Itoa(r.EndEpoch) + "|" +
		r.Root.String() + "|" + r.Mode + "|" +
		r.CreatedAt.UTC().Format(time.RFC3339Nano)
	hash := sha256.Sum256([]byte(key))
	return "run-" + hex.EncodeToString(hash[:6])
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
