// Package neighborhood resolves the neighborhood references accounts register against.
package neighborhood

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("neighborhood not found")

// Neighborhood is a selectable residential area.
type Neighborhood struct {
	ID       string
	Name     string
	District string
	IsActive bool
}

// Repository looks up neighborhoods.
type Repository interface {
	FindByID(ctx context.Context, id string) (Neighborhood, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed neighborhood repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindByID fetches a neighborhood by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Neighborhood, error) {
	nid, err := uuid.Parse(id)
	if err != nil {
		return Neighborhood{}, ErrNotFound
	}
	var n Neighborhood
	var scanned uuid.UUID
	err = r.db.QueryRow(ctx, `SELECT id, name, district, is_active FROM neighborhoods WHERE id = $1`, nid).
		Scan(&scanned, &n.Name, &n.District, &n.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Neighborhood{}, ErrNotFound
		}
		return Neighborhood{}, fmt.Errorf("select neighborhood: %w", err)
	}
	n.ID = scanned.String()
	return n, nil
}

type memoryRepository struct {
	mu    sync.RWMutex
	items map[string]Neighborhood
}

// NewMemoryRepository builds an in-memory neighborhood store seeded with items.
func NewMemoryRepository(items ...Neighborhood) Repository {
	r := &memoryRepository{items: make(map[string]Neighborhood, len(items))}
	for _, n := range items {
		r.items[n.ID] = n
	}
	return r
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Neighborhood, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[id]
	if !ok {
		return Neighborhood{}, ErrNotFound
	}
	return n, nil
}
