package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/playgen/internal/models"
	"github.com/desertthunder/playgen/internal/shared"
)

const DefaultListLimit = 20

// RunRepository stores the summary of each created playlist.
//
// Implements tasks.RunRecorder.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run and its tracks with a generated ID.
func (r *RunRepository) Create(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	id := shared.GenerateID()

	err := inTx(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, mode, playlist_id, playlist_name, playlist_uri, requested, resolved, unresolved, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id,
			run.Mode,
			run.PlaylistID,
			run.PlaylistName,
			run.PlaylistURI,
			run.Requested,
			run.Resolved,
			run.Unresolved,
			run.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO run_tracks (run_id, position, track_id, uri, name, artist)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare track insert: %w", err)
		}
		defer stmt.Close()

		for _, t := range run.Tracks {
			if _, err := stmt.Exec(id, t.Position, t.TrackID, t.URI, t.Name, t.Artist); err != nil {
				return fmt.Errorf("failed to insert track %d: %w", t.Position, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	run.ID = id
	return nil
}

// Get retrieves a run and its tracks by ID.
func (r *RunRepository) Get(id string) (*models.Run, error) {
	query := `
		SELECT id, mode, playlist_id, playlist_name, playlist_uri, requested, resolved, unresolved, created_at
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	run.Tracks, err = r.tracks(id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs, newest first, without their tracks.
// A limit of zero or less uses [DefaultListLimit].
func (r *RunRepository) List(limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, mode, playlist_id, playlist_name, playlist_uri, requested, resolved, unresolved, created_at
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// Delete removes a run and its tracks.
func (r *RunRepository) Delete(id string) error {
	return inTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM run_tracks WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete run tracks: %w", err)
		}

		result, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: run %s", ErrNotFound, id)
		}
		return nil
	})
}

func (r *RunRepository) tracks(runID string) ([]models.RunTrack, error) {
	rows, err := r.db.Query(`
		SELECT position, track_id, uri, name, artist
		FROM run_tracks
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.RunTrack
	for rows.Next() {
		var t models.RunTrack
		if err := rows.Scan(&t.Position, &t.TrackID, &t.URI, &t.Name, &t.Artist); err != nil {
			return nil, fmt.Errorf("failed to scan run track: %w", err)
		}
		tracks = append(tracks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

// scanRun scans a single row into a [models.Run]. [sql.ErrNoRows] is returned unwrapped.
func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run

	err := row.Scan(
		&run.ID,
		&run.Mode,
		&run.PlaylistID,
		&run.PlaylistName,
		&run.PlaylistURI,
		&run.Requested,
		&run.Resolved,
		&run.Unresolved,
		&run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return &run, nil
}
