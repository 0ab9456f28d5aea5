package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openhie/shr/internal/platform/db"
)

type storePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *storePG) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn(ctx).QueryRow(ctx, `SELECT value FROM global_property WHERE property = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get global property %s: %w", key, err)
	}
	return value, true, nil
}

func (s *storePG) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	if _, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO global_property (property, value) VALUES ($1, $2)
		ON CONFLICT (property) DO NOTHING`, key, value); err != nil {
		return "", fmt.Errorf("set global property %s: %w", key, err)
	}
	stored, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("global property %s vanished after insert", key)
	}
	return stored, nil
}

func (s *storePG) Set(ctx context.Context, key, value string) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO global_property (property, value) VALUES ($1, $2)
		ON CONFLICT (property) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	if err != nil {
		return fmt.Errorf("set global property %s: %w", key, err)
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
