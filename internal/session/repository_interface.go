package session

import (
	"context"
	"time"
)

type Repository interface {
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	ListUpcoming(ctx context.Context, after time.Time, limit int) ([]Session, error)
}
