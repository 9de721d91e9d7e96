package sagedb

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
)

// Opener opens a SAGE pool and says when it must be retired.
type Opener func() (DBApi, time.Time, error)

// pool is one open SAGE connection pool and the queries bound to it.
type pool struct {
	db       DBApi
	queries  *Queries
	retireAt time.Time
}

// Manager hands out read-only SAGE queries. MySQL drops connections idle
// longer than wait_timeout, so a pool is retired at its deadline and, with
// pingBeforeUse, as soon as a ping fails.
type Manager struct {
	mutex         sync.Mutex
	open          Opener
	current       *pool
	pingBeforeUse bool
}

// New opens the first pool.
func New(open Opener, pingBeforeUse bool) (*Manager, error) {
	m := &Manager{open: open, pingBeforeUse: pingBeforeUse}
	p, err := m.openPool()
	if err != nil {
		return nil, fmt.Errorf("error opening SAGE pool: %w", err)
	}
	m.current = p
	return m, nil
}

// Queries returns queries bound to a live pool.
func (m *Manager) Queries(ctx context.Context) (*Queries, error) {
	p, err := m.live(ctx)
	if err != nil {
		return nil, err
	}
	return p.queries, nil
}

// DB returns the live pool itself.
func (m *Manager) DB(ctx context.Context) (DBApi, error) {
	p, err := m.live(ctx)
	if err != nil {
		return nil, err
	}
	return p.db, nil
}

func (m *Manager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.current.db.Close()
}

func (m *Manager) live(ctx context.Context) (*pool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	reason := m.retireReason(ctx)
	if reason == "" {
		return m.current, nil
	}
	log.WithField("reason", reason).Info("reopening SAGE pool")

	p, err := m.openPool()
	if err != nil {
		return nil, fmt.Errorf("error reopening SAGE pool: %w", err)
	}
	if err := p.db.PingContext(ctx); err != nil {
		_ = p.db.Close()
		return nil, fmt.Errorf("SAGE is unreachable: %w", err)
	}
	// Close waits for queries already running on the old pool.
	if err := m.current.db.Close(); err != nil {
		log.Warn("error closing retired SAGE pool: ", err)
	}
	m.current = p
	return p, nil
}

// retireReason is empty while the current pool may still be used.
func (m *Manager) retireReason(ctx context.Context) string {
	if !time.Now().Before(m.current.retireAt) {
		return "lifetime reached"
	}
	if !m.pingBeforeUse {
		return ""
	}
	err := m.current.db.PingContext(ctx)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, mysql.ErrInvalidConn), errors.Is(err, driver.ErrBadConn):
		return "connection dropped by server"
	default:
		return "ping failed: " + err.Error()
	}
}

func (m *Manager) openPool() (*pool, error) {
	db, retireAt, err := m.open()
	if err != nil {
		return nil, err
	}
	return &pool{db: db, queries: NewQueries(db), retireAt: retireAt}, nil
}
