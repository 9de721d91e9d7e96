package sagedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DBApi combines the sql.DB methods the Manager and Queries use.
type DBApi interface {
	DBTX
	PingContext(ctx context.Context) error
	Close() error
}

// DefaultLifetime keeps pools well below the server's wait_timeout so idle
// batch runs do not hold dead connections.
const DefaultLifetime = 30 * time.Minute

const (
	dialTimeout  = 10 * time.Second
	maxOpenConns = 4
)

// NewOpener returns an Opener for the SAGE database at dsn. Pools are retired
// after lifetime, and each connection is recycled on the same schedule.
func NewOpener(dsn string, lifetime time.Duration) Opener {
	return func() (DBApi, time.Time, error) {
		now := time.Now()
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, now, fmt.Errorf("invalid SAGE DSN: %w", err)
		}
		cfg.ParseTime = true
		if cfg.Timeout == 0 {
			cfg.Timeout = dialTimeout
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, now, err
		}
		db := sql.OpenDB(connector)
		db.SetConnMaxLifetime(lifetime)
		db.SetMaxOpenConns(maxOpenConns)
		return db, now.Add(lifetime), nil
	}
}
