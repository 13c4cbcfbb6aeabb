package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptslots/libs/db"
)

//go:embed schema/postgres.sql
var postgresSchema string

// Postgres runs every transaction at READ COMMITTED. Racing claims on the same
// window serialize on its row lock and the loser sees zero affected rows.
type Postgres struct {
	queries
	pool *db.Pool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{
		queries: queries{c: pgConn{q: pool}, d: dialect{lockSkipLocked: " FOR UPDATE SKIP LOCKED"}},
		pool:    pool,
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

func (p *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	return p.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(queries{c: pgConn{q: tx}, d: p.d})
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	return db.ReadyCheck(p.pool)(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
