package consultation

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/oops"
)

type sqliteRepo struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) a SQLite session store and applies
// its schema. The returned closer releases the database.
func NewSQLiteRepository(dsn string) (Repository, func() error, error) {
	errb := oops.In("session-store").With("driver", "sqlite3")

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, errb.Wrapf(err, "failed to open database")
	}
	// Every connection to an in-memory database is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	r := &sqliteRepo{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, nil, errb.Wrapf(err, "failed to migrate database")
	}

	return r, db.Close, nil
}

func (r *sqliteRepo) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			stage TEXT NOT NULL DEFAULT 'initial',
			analysis_complete BOOLEAN NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at)`,
	}

	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (r *sqliteRepo) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT id, user_id, title, stage, analysis_complete, state, created_at, updated_at FROM sessions WHERE id = ?`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *sqliteRepo) Save(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO sessions (id, user_id, title, stage, analysis_complete, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			stage = excluded.stage,
			analysis_complete = excluded.analysis_complete,
			state = excluded.state,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID.String(), s.UserID, s.Title, s.Stage.String(), s.AnalysisComplete, stateJSON(s.State),
		s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	return err
}

func (r *sqliteRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *sqliteRepo) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	query := `SELECT id, user_id, title, stage, analysis_complete, state, created_at, updated_at
		FROM sessions WHERE user_id = ? ORDER BY updated_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessions(rows)
}
