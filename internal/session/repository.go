package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `id, name, capacity, enrolled, price, start_date, is_force_closed, refund_policy`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetSessionByID(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListUpcoming(ctx context.Context, after time.Time, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}

	sessions := []Session{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE start_date > $1 AND NOT is_force_closed
		ORDER BY start_date ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
