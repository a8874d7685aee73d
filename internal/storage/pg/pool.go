package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PoolConfig struct {
	ConnStr string
}

// ConnectionPool is the single pgx pool both binaries share between the
// news store and the job queue.
type ConnectionPool struct {
	conn *pgxpool.Pool
}

func NewConnectionPool(ctx context.Context, cfg PoolConfig) (*ConnectionPool, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &ConnectionPool{conn: pool}, nil
}

func (p *ConnectionPool) GetConn() *pgxpool.Pool {
	return p.conn
}

func (p *ConnectionPool) Close() {
	p.conn.Close()
}

// Healthy reports whether the database answers a ping. It backs the
// /health route of both binaries.
func (p *ConnectionPool) Healthy(ctx context.Context) bool {
	if p == nil || p.conn == nil {
		return false
	}
	return p.conn.Ping(ctx) == nil
}
