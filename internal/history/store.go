// Package history stores finished recognition sessions in sqlite and
// serves them to the UI through a polling cache and a full-text search
// index.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mleroy/texlens/internal/recognition"
)

// Record is one saved recognition session.
type Record struct {
	ID                 string                    `json:"id"`
	Latex              string                    `json:"latex"`
	Title              string                    `json:"title"`
	Analysis           recognition.Analysis      `json:"analysis"`
	IsFavorite         bool                      `json:"is_favorite"`
	CreatedAt          time.Time                 `json:"created_at"`
	ConfidenceScore    int                       `json:"confidence_score"`
	OriginalImage      string                    `json:"original_image"`
	ModelName          string                    `json:"model_name,omitempty"`
	Verification       *recognition.Verification `json:"verification,omitempty"`
	VerificationReport string                    `json:"verification_report,omitempty"`
}

// FromSession converts a finished session into a history record.
func FromSession(s recognition.Session) Record {
	return Record{
		ID:                 s.ID,
		Latex:              s.Latex,
		Title:              s.Title,
		Analysis:           s.Analysis,
		IsFavorite:         s.IsFavorite,
		CreatedAt:          s.CreatedAt,
		ConfidenceScore:    s.ConfidenceScore,
		OriginalImage:      s.OriginalImage,
		ModelName:          s.ModelName,
		Verification:       s.Verification,
		VerificationReport: s.VerificationReport,
	}
}

// Store provides sqlite-backed persistence for history records.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the history database at dbPath.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	// WAL mode allows a reader while the writer is active.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite does not handle multiple writers well.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id                  TEXT PRIMARY KEY,
		latex               TEXT NOT NULL,
		title               TEXT NOT NULL DEFAULT '',
		analysis            TEXT NOT NULL DEFAULT '{}',
		is_favorite         INTEGER NOT NULL DEFAULT 0,
		created_at          INTEGER NOT NULL,
		confidence_score    INTEGER NOT NULL DEFAULT 0,
		original_image      TEXT NOT NULL DEFAULT '',
		model_name          TEXT NOT NULL DEFAULT '',
		verification        TEXT,
		verification_report TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_records_created_at ON records (created_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// Add inserts or replaces a record. Saving the same session again after
// a stage retry overwrites the previous row.
func (s *Store) Add(ctx context.Context, rec Record) error {
	analysisJSON, err := json.Marshal(rec.Analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	var verificationJSON sql.NullString
	if rec.Verification != nil {
		data, err := json.Marshal(rec.Verification)
		if err != nil {
			return fmt.Errorf("failed to marshal verification: %w", err)
		}
		verificationJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO records
			(id, latex, title, analysis, is_favorite, created_at, confidence_score,
			 original_image, model_name, verification, verification_report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Latex, rec.Title, string(analysisJSON),
		boolToInt(rec.IsFavorite), rec.CreatedAt.Unix(), rec.ConfidenceScore,
		rec.OriginalImage, rec.ModelName, verificationJSON, rec.VerificationReport,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// GetAll returns every record, newest first.
func (s *Store) GetAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, latex, title, analysis, is_favorite, created_at, confidence_score,
		       original_image, model_name, verification, verification_report
		FROM records
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetByID returns a single record, or sql.ErrNoRows if absent.
func (s *Store) GetByID(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, latex, title, analysis, is_favorite, created_at, confidence_score,
		       original_image, model_name, verification, verification_report
		FROM records WHERE id = ?`, id)
	return scanRecord(row)
}

// UpdateTitle renames a record.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	return s.update(ctx, "UPDATE records SET title = ? WHERE id = ?", title, id)
}

// UpdateLatex stores an edited LaTeX body.
func (s *Store) UpdateLatex(ctx context.Context, id, latex string) error {
	return s.update(ctx, "UPDATE records SET latex = ? WHERE id = ?", latex, id)
}

// UpdateFavorite toggles the favorite flag.
func (s *Store) UpdateFavorite(ctx context.Context, id string, favorite bool) error {
	return s.update(ctx, "UPDATE records SET is_favorite = ? WHERE id = ?", boolToInt(favorite), id)
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.update(ctx, "DELETE FROM records WHERE id = ?", id)
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var analysisJSON string
	var verificationJSON sql.NullString
	var favorite int
	var createdAt int64

	err := row.Scan(&rec.ID, &rec.Latex, &rec.Title, &analysisJSON, &favorite,
		&createdAt, &rec.ConfidenceScore, &rec.OriginalImage, &rec.ModelName,
		&verificationJSON, &rec.VerificationReport)
	if err != nil {
		return Record{}, err
	}

	rec.IsFavorite = favorite != 0
	rec.CreatedAt = time.Unix(createdAt, 0)

	if err := json.Unmarshal([]byte(analysisJSON), &rec.Analysis); err != nil {
		return Record{}, fmt.Errorf("failed to parse analysis for %s: %w", rec.ID, err)
	}
	if verificationJSON.Valid {
		var v recognition.Verification
		if err := json.Unmarshal([]byte(verificationJSON.String), &v); err != nil {
			return Record{}, fmt.Errorf("failed to parse verification for %s: %w", rec.ID, err)
		}
		rec.Verification = &v
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveResult implements recognition.ResultSink.
func (s *Store) SaveResult(ctx context.Context, session recognition.Session) error {
	return s.Add(ctx, FromSession(session))
}
