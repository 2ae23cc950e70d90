package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/shared"
)

// DefaultRecentLimit is used by [PlayRepository.Recent] when limit is not positive.
const DefaultRecentLimit = 20

var ErrPlayNotFound = errors.New("play not found")

const playColumns = `id, sequence, track_id, name, artist, album, image_url, color_hex, started_at`

// PlayRepository stores one [models.Play] per observed track change.
type PlayRepository struct {
	db *sql.DB
}

func NewPlayRepository(db *sql.DB) *PlayRepository {
	return &PlayRepository{db: db}
}

// Create inserts play with a generated ID (unless one is set) and the next sequence number.
func (r *PlayRepository) Create(play *models.Play) error {
	if play.TrackID == "" {
		return fmt.Errorf("%w: play requires a track id", shared.ErrInvalidArgument)
	}

	sequence, err := NextSequence(r.db, "plays")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if play.ID == "" {
		play.ID = shared.GenerateID()
	}
	play.Sequence = sequence

	query := `
		INSERT INTO plays (` + playColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		play.ID,
		play.Sequence,
		play.TrackID,
		play.Name,
		play.Artist,
		play.Album,
		play.ImageURL,
		play.ColorHex,
		play.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert play: %w", err)
	}
	return nil
}

func (r *PlayRepository) Get(id string) (*models.Play, error) {
	query := `SELECT ` + playColumns + ` FROM plays WHERE id = ?`

	play, err := scanPlay(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPlayNotFound, id)
	}
	return play, err
}

// Recent returns up to limit plays, newest first.
func (r *PlayRepository) Recent(limit int) ([]*models.Play, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `SELECT ` + playColumns + ` FROM plays ORDER BY sequence DESC LIMIT ?`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var plays []*models.Play
	for rows.Next() {
		play, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		plays = append(plays, play)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return plays, nil
}

// UpdateColor sets the artwork color of an existing play.
func (r *PlayRepository) UpdateColor(id, hex string) error {
	result, err := r.db.Exec(`UPDATE plays SET color_hex = ? WHERE id = ?`, hex, id)
	if err != nil {
		return fmt.Errorf("failed to update play color: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrPlayNotFound, id)
	}
	return nil
}

// Count returns the number of recorded plays.
func (r *PlayRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM plays`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanPlay reads one row selected with playColumns from either [sql.Row] or [sql.Rows].
func scanPlay(s scanner) (*models.Play, error) {
	var play models.Play
	err := s.Scan(
		&play.ID,
		&play.Sequence,
		&play.TrackID,
		&play.Name,
		&play.Artist,
		&play.Album,
		&play.ImageURL,
		&play.ColorHex,
		&play.StartedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan play: %w", err)
	}
	return &play, nil
}
