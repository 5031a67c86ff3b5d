package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	getStateSQL    = `SELECT value FROM client_state WHERE namespace = $1 AND key = $2`
	upsertStateSQL = `INSERT INTO client_state (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	deleteStateSQL = `DELETE FROM client_state WHERE namespace = $1 AND key = $2`
)

// PgStorage stores values in the client_state table.
type PgStorage struct {
	db *pgxpool.Pool
}

func NewPgStorage(dbp *pgxpool.Pool) *PgStorage {
	return &PgStorage{db: dbp}
}

func (p *PgStorage) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := p.db.QueryRow(ctx, getStateSQL, namespace, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client state: %w", err)
	}
	return value, nil
}

func (p *PgStorage) Put(ctx context.Context, namespace, key string, value []byte) error {
	if _, err := p.db.Exec(ctx, upsertStateSQL, namespace, key, value); err != nil {
		return fmt.Errorf("failed to put client state: %w", err)
	}
	return nil
}

func (p *PgStorage) Delete(ctx context.Context, namespace, key string) error {
	if _, err := p.db.Exec(ctx, deleteStateSQL, namespace, key); err != nil {
		return fmt.Errorf("failed to delete client state: %w", err)
	}
	return nil
}
