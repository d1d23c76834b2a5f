package consultation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the session store. Implementations return ErrSessionNotFound
// for unknown ids; every call is atomic and the last write wins.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByUser returns the user's sessions, most recently updated first.
	ListByUser(ctx context.Context, userID string) ([]Session, error)
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT id, user_id, title, stage, analysis_complete, state, created_at, updated_at FROM sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *postgresRepo) Save(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO sessions (id, user_id, title, stage, analysis_complete, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = $3,
			stage = $4,
			analysis_complete = $5,
			state = $6,
			updated_at = $8
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.Title, s.Stage.String(), s.AnalysisComplete, stateJSON(s.State), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *postgresRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *postgresRepo) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	query := `SELECT id, user_id, title, stage, analysis_complete, state, created_at, updated_at
		FROM sessions WHERE user_id = $1 ORDER BY updated_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession reads the column order shared by every session query.
func scanSession(row rowScanner) (*Session, error) {
	var (
		s     Session
		stage string
		state []byte
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Title, &stage, &s.AnalysisComplete, &state, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}

	// An unknown stage name leaves the envelope at initial; the state
	// document itself is validated by the engine.
	s.Stage, _ = ParseStage(stage)
	s.State = state
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// stateJSON renders the state document as text; lib/pq would send a []byte
// as bytea, which a jsonb column rejects.
func stateJSON(state []byte) string {
	if len(state) == 0 {
		return "{}"
	}
	return string(state)
}
