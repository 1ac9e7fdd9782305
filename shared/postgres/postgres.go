package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Marcusng88/FraudGuard/shared/database"
	_ "github.com/lib/pq"
)

type PostgresConfig struct {
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresSSLMode  string
}

type Postgres struct {
	conn *sql.DB
}

// NewPostgres opens a tuned connection pool via shared/database's
// connection-pool helper (statement-cache mode, idle/lifetime limits)
// rather than a bare sql.Open.
func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	poolCfg := database.DefaultPoolConfig("fraudguard-service")
	poolCfg.Host = cfg.PostgresHost
	poolCfg.Port = cfg.PostgresPort
	poolCfg.User = cfg.PostgresUser
	poolCfg.Password = cfg.PostgresPassword
	poolCfg.Database = cfg.PostgresDatabase
	if cfg.PostgresSSLMode != "" {
		poolCfg.SSLMode = cfg.PostgresSSLMode
	}

	db, err := database.NewConnectionPool(poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Postgres{conn: db}, nil
}

func (p *Postgres) HealthCheck(ctx context.Context) error {
	return p.conn.PingContext(ctx)
}

func (p *Postgres) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.conn.PingContext(ctx)
}

func (p *Postgres) GetClient() *sql.DB {
	return p.conn
}

// NewPostgresWithDB creates a Postgres instance with an existing database connection
// This is useful for testing with sqlmock
func NewPostgresWithDB(db *sql.DB) *Postgres {
	return &Postgres{conn: db}
}
