package manifest

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notionclean/internal/apperr"
	"github.com/starford/notionclean/internal/models"
)

// BeginRun inserts a new run and returns its id.
func (db *DB) BeginRun(sourceRoot, destRoot string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(`
		INSERT INTO runs (id, source_root, dest_root, started_at)
		VALUES (?, ?, ?, ?)
	`, id, sourceRoot, destRoot, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("manifest: begin run: %w", err)
	}
	return id, nil
}

// RecordFile stores the outcome for one source file and replaces the links
// recorded for its destination, within a transaction.
func (db *DB) RecordFile(runID string, rec models.FileRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO files (run_id, source, dest, kind, checksum, status, error, title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, source) DO UPDATE SET
			dest     = excluded.dest,
			kind     = excluded.kind,
			checksum = excluded.checksum,
			status   = excluded.status,
			error    = excluded.error,
			title    = excluded.title
	`, runID, rec.Source, rec.Dest, string(rec.Kind), rec.Checksum, string(rec.Status), rec.Error, rec.Title)
	if err != nil {
		return fmt.Errorf("manifest: record file: %w", err)
	}

	if rec.Status != models.StatusWritten {
		return tx.Commit()
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE run_id = ? AND dest = ?`, runID, rec.Dest); err != nil {
		return fmt.Errorf("manifest: clear links: %w", err)
	}
	if len(rec.Links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (run_id, dest, target) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("manifest: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range rec.Links {
			if _, err := stmt.Exec(runID, rec.Dest, target); err != nil {
				return fmt.Errorf("manifest: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// RecordCollisions stores the collisions resolved while planning a run.
func (db *DB) RecordCollisions(runID string, cs []models.Collision) error {
	if len(cs) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range cs {
		losers, _ := json.Marshal(c.Losers)
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO collisions (run_id, dest, winner, losers) VALUES (?, ?, ?, ?)
		`, runID, c.Dest, c.Winner, string(losers)); err != nil {
			return fmt.Errorf("manifest: record collision: %w", err)
		}
	}
	return tx.Commit()
}

// FinishRun stamps the run with its end time and totals.
func (db *DB) FinishRun(runID string, written, skipped, failed int) error {
	res, err := db.conn.Exec(`
		UPDATE runs SET finished_at = ?, written = ?, skipped = ?, failed = ? WHERE id = ?
	`, time.Now().UTC(), written, skipped, failed, runID)
	if err != nil {
		return fmt.Errorf("manifest: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

const runColumns = `id, source_root, dest_root, started_at, finished_at, written, skipped, failed`

// LatestRun returns the most recently started run.
func (db *DB) LatestRun() (*models.Run, error) {
	return db.scanRun(db.conn.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT 1`))
}

// GetRun returns the run with the given id.
func (db *DB) GetRun(id string) (*models.Run, error) {
	return db.scanRun(db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

func (db *DB) scanRun(row *sql.Row) (*models.Run, error) {
	var r models.Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.SourceRoot, &r.DestRoot, &r.StartedAt, &finished, &r.Written, &r.Skipped, &r.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: scan run: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// Files returns the file records of a run ordered by source path.
func (db *DB) Files(runID string) ([]models.FileRecord, error) {
	rows, err := db.conn.Query(`
		SELECT source, dest, kind, checksum, status, error, title
		FROM files WHERE run_id = ? ORDER BY source
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("manifest: files: %w", err)
	}
	defer rows.Close()

	var out []models.FileRecord
	for rows.Next() {
		var rec models.FileRecord
		var kind, status string
		if err := rows.Scan(&rec.Source, &rec.Dest, &kind, &rec.Checksum, &status, &rec.Error, &rec.Title); err != nil {
			return nil, err
		}
		rec.Kind = models.Kind(kind)
		rec.Status = models.Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Collisions returns the collisions recorded for a run.
func (db *DB) Collisions(runID string) ([]models.Collision, error) {
	rows, err := db.conn.Query(`SELECT dest, winner, losers FROM collisions WHERE run_id = ? ORDER BY dest`, runID)
	if err != nil {
		return nil, fmt.Errorf("manifest: collisions: %w", err)
	}
	defer rows.Close()

	var out []models.Collision
	for rows.Next() {
		var c models.Collision
		var losers string
		if err := rows.Scan(&c.Dest, &c.Winner, &losers); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(losers), &c.Losers)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DanglingLinks returns every rewritten link of a run whose target does not
// resolve to a destination written by the same run. Targets are resolved
// relative to the directory of the linking document; a leading "/" anchors
// them at the destination root.
func (db *DB) DanglingLinks(runID string) ([]models.DanglingLink, error) {
	written := make(map[string]struct{})
	dests, err := db.conn.Query(`SELECT dest FROM files WHERE run_id = ? AND status = ?`, runID, string(models.StatusWritten))
	if err != nil {
		return nil, fmt.Errorf("manifest: dangling: %w", err)
	}
	for dests.Next() {
		var d string
		if err := dests.Scan(&d); err != nil {
			dests.Close()
			return nil, err
		}
		written[d] = struct{}{}
	}
	dests.Close()
	if err := dests.Err(); err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(`SELECT dest, target FROM links WHERE run_id = ? ORDER BY dest, target`, runID)
	if err != nil {
		return nil, fmt.Errorf("manifest: dangling: %w", err)
	}
	defer rows.Close()

	var out []models.DanglingLink
	for rows.Next() {
		var l models.DanglingLink
		if err := rows.Scan(&l.Source, &l.Target); err != nil {
			return nil, err
		}
		if _, ok := written[Resolve(l.Source, l.Target)]; !ok {
			out = append(out, l)
		}
	}
	return out, rows.Err()
}

// Resolve returns the destination a link target points at when it appears
// in the document at dest.
func Resolve(dest, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return path.Join(path.Dir(dest), target)
}
