package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jluzny/hag/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// EventRepo is the append-only decision/transition log.
type EventRepo interface {
	Append(ctx context.Context, e models.HvacEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.HvacEvent, error)
}

type Repository struct {
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		EventRepo: NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}
