package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/task-telemetry/internal/model"
)

// Outcome is the delivery result of an emission
type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeFailed Outcome = "failed"
)

// Entry represents one recorded emission
type Entry struct {
	ID        string             `json:"id"`
	Kind      model.EmissionKind `json:"kind"`
	Name      string             `json:"name"`
	Value     float64            `json:"value,omitempty"`
	Tags      []string           `json:"tags,omitempty"`
	Outcome   Outcome            `json:"outcome"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// Filter narrows List and Count. Zero fields match everything.
type Filter struct {
	Kind    model.EmissionKind
	Outcome Outcome
	Since   time.Time
}

// Journal defines the interface for emission journal storage
type Journal interface {
	// Record stores the outcome of one emission
	Record(ctx context.Context, emission *model.Emission, sendErr error) error

	// List retrieves entries, newest first, with pagination
	List(ctx context.Context, filter Filter, offset, limit int) ([]*Entry, error)

	// Count returns the number of entries matching the filter
	Count(ctx context.Context, filter Filter) (int, error)

	// DeleteBefore deletes entries recorded before the given time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)

	// Close closes the underlying storage
	Close() error
}

// SQLiteJournal implements Journal using SQLite
type SQLiteJournal struct {
	logger *zap.Logger
	db     *sql.DB
	now    func() time.Time
}

var _ Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens or creates the journal database at dbPath
func NewSQLiteJournal(logger *zap.Logger, dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	journal := &SQLiteJournal{
		logger: logger.Named("journal"),
		db:     db,
		now:    time.Now,
	}

	if err := journal.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return journal, nil
}

// initialize creates the necessary tables if they don't exist
func (j *SQLiteJournal) initialize() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS emission_journal (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL,
			tags TEXT,
			outcome TEXT NOT NULL,
			error TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_emission_journal_kind ON emission_journal(kind);
		CREATE INDEX IF NOT EXISTS idx_emission_journal_outcome ON emission_journal(outcome);
		CREATE INDEX IF NOT EXISTS idx_emission_journal_created_at ON emission_journal(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Record implements Journal.Record
func (j *SQLiteJournal) Record(ctx context.Context, emission *model.Emission, sendErr error) error {
	entryTags := emission.Tags
	if emission.Kind == model.EmissionEvent && emission.Event != nil {
		entryTags = emission.Event.Tags
	}
	tagsJSON, err := json.Marshal(entryTags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	outcome := OutcomeSent
	var errStr sql.NullString
	if sendErr != nil {
		outcome = OutcomeFailed
		errStr = sql.NullString{String: sendErr.Error(), Valid: true}
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO emission_journal (
			id, kind, name, value, tags, outcome, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		string(emission.Kind),
		emission.Name,
		emission.Value,
		string(tagsJSON),
		string(outcome),
		errStr,
		j.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record emission: %w", err)
	}
	return nil
}

func (f Filter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.Since.UnixNano())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List implements Journal.List
func (j *SQLiteJournal) List(ctx context.Context, filter Filter, offset, limit int) ([]*Entry, error) {
	where, args := filter.where()
	query := `
		SELECT id, kind, name, value, tags, outcome, error, created_at
		FROM emission_journal` + where + `
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emission journal: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var kind, outcome string
		var tagsJSON, errStr sql.NullString
		var value sql.NullFloat64
		var createdAt int64

		if err := rows.Scan(
			&entry.ID,
			&kind,
			&entry.Name,
			&value,
			&tagsJSON,
			&outcome,
			&errStr,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan emission journal: %w", err)
		}

		entry.Kind = model.EmissionKind(kind)
		entry.Outcome = Outcome(outcome)
		entry.Value = value.Float64
		entry.Error = errStr.String
		entry.CreatedAt = time.Unix(0, createdAt)
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &entry.Tags); err != nil {
				j.logger.Warn("Failed to unmarshal journal tags",
					zap.String("id", entry.ID),
					zap.Error(err))
			}
		}

		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emission journal: %w", err)
	}

	return entries, nil
}

// Count implements Journal.Count
func (j *SQLiteJournal) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := filter.where()

	var count int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM emission_journal"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count emission journal: %w", err)
	}
	return count, nil
}

// DeleteBefore implements Journal.DeleteBefore
func (j *SQLiteJournal) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx, "DELETE FROM emission_journal WHERE created_at < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return deleted, nil
}

// Close implements Journal.Close
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
