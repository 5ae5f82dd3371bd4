package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrPhoneTaken    = errors.New("phone already registered")
	ErrUsernameTaken = errors.New("username already taken")
)

const uniqueViolation = "23505"

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, acc Account) error
	FindByID(ctx context.Context, id string) (Account, error)
	FindByPhone(ctx context.Context, phone string) (Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	// ClearPushToken removes token from the account if it is the stored one.
	ClearPushToken(ctx context.Context, id, token string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `SELECT id, phone, COALESCE(username, ''), full_name, role, is_active, is_banned,
        COALESCE(neighborhood_id::text, ''), COALESCE(fcm_token, ''), created_at, updated_at FROM accounts`

// Create inserts a new account. Unique violations map to ErrPhoneTaken or ErrUsernameTaken.
func (r *PostgresRepository) Create(ctx context.Context, acc Account) error {
	accountID, err := uuid.Parse(acc.ID)
	if err != nil {
		return err
	}
	var neighborhoodID *uuid.UUID
	if acc.NeighborhoodID != "" {
		id, err := uuid.Parse(acc.NeighborhoodID)
		if err != nil {
			return err
		}
		neighborhoodID = &id
	}

	_, err = r.db.Exec(ctx, `INSERT INTO accounts
        (id, phone, username, full_name, role, is_active, is_banned, neighborhood_id, fcm_token, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		accountID, acc.Phone, nullable(acc.Username), acc.FullName, string(acc.Role), acc.IsActive, acc.IsBanned,
		neighborhoodID, nullable(acc.FCMToken), acc.CreatedAt.UTC(), acc.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case "accounts_phone_key":
				return ErrPhoneTaken
			case "accounts_username_key":
				return ErrUsernameTaken
			}
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// FindByID fetches an account by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return r.findOne(ctx, selectColumns+` WHERE id = $1`, accountID)
}

// FindByPhone fetches an account by canonical phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (Account, error) {
	return r.findOne(ctx, selectColumns+` WHERE phone = $1`, phone)
}

// UsernameExists reports whether username is taken, case-insensitively.
func (r *PostgresRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(username) = lower($1))`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

// ClearPushToken removes the device push token if it matches.
func (r *PostgresRepository) ClearPushToken(ctx context.Context, id, token string) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	_, err = r.db.Exec(ctx, `UPDATE accounts SET fcm_token = NULL, updated_at = $3 WHERE id = $1 AND fcm_token = $2`,
		accountID, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear push token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (Account, error) {
	var (
		id   uuid.UUID
		role string
		acc  Account
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(&id, &acc.Phone, &acc.Username, &acc.FullName, &role,
		&acc.IsActive, &acc.IsBanned, &acc.NeighborhoodID, &acc.FCMToken, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("select account: %w", err)
	}
	acc.ID = id.String()
	acc.Role = Role(role)
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return acc, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
