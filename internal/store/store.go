package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andresmejia3/hyperredact/internal/types"
	"github.com/jackc/pgx/v5"
)

// Store keeps hyperframe checkpoints in PostgreSQL, keyed by video ID.
type Store struct {
	conn *pgx.Conn
}

// VideoSummary describes one checkpointed video.
type VideoSummary struct {
	ID        string
	Path      string
	Frames    int
	Faces     int
	IndexedAt time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS hyperframes (
			video_id TEXT NOT NULL REFERENCES video_metadata(id) ON DELETE CASCADE,
			frame_number INT NOT NULL,
			faces JSONB NOT NULL,
			PRIMARY KEY (video_id, frame_number)
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureVideoMetadata registers the video in the database. If it exists, it updates the timestamp.
func (s *Store) EnsureVideoMetadata(ctx context.Context, videoID, path string) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, videoID, path)
	return err
}

// SaveHyperframes replaces the stored checkpoint for videoID with frames.
func (s *Store) SaveHyperframes(ctx context.Context, videoID string, frames []types.Hyperframe) error {
	rows := make([][]any, 0, len(frames))
	for _, f := range frames {
		faces := f.Faces
		if faces == nil {
			faces = []types.FaceBox{}
		}
		raw, err := json.Marshal(faces)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", f.FrameIndex, err)
		}
		rows = append(rows, []any{videoID, f.FrameIndex, json.RawMessage(raw)})
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Clean up old data to ensure idempotency (prevent duplicate frames on re-scan)
	if _, err := tx.Exec(ctx, "DELETE FROM hyperframes WHERE video_id = $1", videoID); err != nil {
		return err
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"hyperframes"},
		[]string{"video_id", "frame_number", "faces"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy hyperframes: %w", err)
	}
	return tx.Commit(ctx)
}

// LoadHyperframes returns the checkpoint for videoID in frame order. A video
// with no stored frames yields an empty slice.
func (s *Store) LoadHyperframes(ctx context.Context, videoID string) ([]types.Hyperframe, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT frame_number, faces FROM hyperframes
		WHERE video_id = $1 ORDER BY frame_number ASC
	`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	frames := []types.Hyperframe{}
	for rows.Next() {
		var (
			idx int
			raw []byte
		)
		if err := rows.Scan(&idx, &raw); err != nil {
			return nil, err
		}
		var faces []types.FaceBox
		if err := json.Unmarshal(raw, &faces); err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", idx, err)
		}
		if faces == nil {
			faces = []types.FaceBox{}
		}
		frames = append(frames, types.Hyperframe{FrameIndex: idx, Faces: faces})
	}
	return frames, rows.Err()
}

// ListVideos returns every checkpointed video, most recent first.
func (s *Store) ListVideos(ctx context.Context) ([]VideoSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT v.id, v.path, v.indexed_at,
			COUNT(h.frame_number),
			COALESCE(SUM(jsonb_array_length(h.faces)), 0)
		FROM video_metadata v
		LEFT JOIN hyperframes h ON h.video_id = v.id
		GROUP BY v.id, v.path, v.indexed_at
		ORDER BY v.indexed_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []VideoSummary
	for rows.Next() {
		var v VideoSummary
		if err := rows.Scan(&v.ID, &v.Path, &v.IndexedAt, &v.Frames, &v.Faces); err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS hyperframes CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}
