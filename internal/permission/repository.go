package permission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound means no grant row exists for the account and module.
var ErrNotFound = errors.New("permission grant not found")

// Repository stores moderator grants keyed by (account, module).
type Repository interface {
	Find(ctx context.Context, accountID, module string) (Grant, error)
	List(ctx context.Context, accountID string) ([]Grant, error)
	Upsert(ctx context.Context, g Grant) error
	Delete(ctx context.Context, accountID, module string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed permission repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const grantColumns = `account_id, module, can_read, can_create, can_update, can_delete, can_approve, updated_at`

func (r *PostgresRepository) Find(ctx context.Context, accountID, module string) (Grant, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return Grant{}, ErrNotFound
	}
	g, err := scanGrant(r.db.QueryRow(ctx, `SELECT `+grantColumns+` FROM permission_grants
        WHERE account_id = $1 AND module = $2`, id, module))
	if errors.Is(err, pgx.ErrNoRows) {
		return Grant{}, ErrNotFound
	}
	if err != nil {
		return Grant{}, fmt.Errorf("select grant: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) List(ctx context.Context, accountID string) ([]Grant, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+grantColumns+` FROM permission_grants
        WHERE account_id = $1 ORDER BY module`, id)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *PostgresRepository) Upsert(ctx context.Context, g Grant) error {
	id, err := uuid.Parse(g.AccountID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO permission_grants (`+grantColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (account_id, module) DO UPDATE SET
            can_read = EXCLUDED.can_read,
            can_create = EXCLUDED.can_create,
            can_update = EXCLUDED.can_update,
            can_delete = EXCLUDED.can_delete,
            can_approve = EXCLUDED.can_approve,
            updated_at = EXCLUDED.updated_at`,
		id, g.Module, g.CanRead, g.CanCreate, g.CanUpdate, g.CanDelete, g.CanApprove, g.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, accountID, module string) error {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM permission_grants WHERE account_id = $1 AND module = $2`, id, module)
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanGrant(row pgx.Row) (Grant, error) {
	var (
		g  Grant
		id uuid.UUID
	)
	if err := row.Scan(&id, &g.Module, &g.CanRead, &g.CanCreate, &g.CanUpdate, &g.CanDelete, &g.CanApprove, &g.UpdatedAt); err != nil {
		return Grant{}, err
	}
	g.AccountID = id.String()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, nil
}

type grantKey struct {
	accountID string
	module    string
}

type memoryRepository struct {
	mu     sync.RWMutex
	grants map[grantKey]Grant
}

// NewMemoryRepository builds an in-memory grant store seeded with grants.
func NewMemoryRepository(seed ...Grant) Repository {
	r := &memoryRepository{grants: make(map[grantKey]Grant)}
	for _, g := range seed {
		r.grants[grantKey{g.AccountID, g.Module}] = g
	}
	return r
}

func (r *memoryRepository) Find(_ context.Context, accountID, module string) (Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grants[grantKey{accountID, module}]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func (r *memoryRepository) List(_ context.Context, accountID string) ([]Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Grant
	for k, g := range r.grants {
		if k.accountID == accountID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out, nil
}

func (r *memoryRepository) Upsert(_ context.Context, g Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[grantKey{g.AccountID, g.Module}] = g
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, accountID, module string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := grantKey{accountID, module}
	if _, ok := r.grants[k]; !ok {
		return ErrNotFound
	}
	delete(r.grants, k)
	return nil
}
