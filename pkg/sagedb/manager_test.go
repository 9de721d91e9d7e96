package sagedb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initialLifetime = 500 * time.Millisecond

type testSupplierWrapper struct {
	callCount atomic.Int32
}

// supply returns a short lifetime on the first call so the test can wait for
// it to lapse, and long lifetimes afterwards.
func (t *testSupplierWrapper) supply() (DBApi, time.Time, error) {
	time.Sleep(time.Duration(rand.Int63n(100)+1) * time.Millisecond)
	lifetime := initialLifetime
	if t.callCount.Add(1) > 1 {
		lifetime = 10 * time.Second
	}
	return &MockDBApi{}, time.Now().Add(lifetime), nil
}

func TestManager_Locking(t *testing.T) {
	for scenario, alwaysPing := range map[string]bool{
		"ping as part of check":       true,
		"don't ping as part of check": false,
	} {
		t.Run(scenario, func(t *testing.T) {
			supplierWrapper := &testSupplierWrapper{}
			manager, err := New(supplierWrapper.supply, alwaysPing)
			require.NoError(t, err)

			time.Sleep(initialLifetime)

			var wg sync.WaitGroup
			for i := 0; i < 1_000; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					db, err := manager.DB(context.Background())
					if assert.NoError(t, err) {
						assert.False(t, db.(*MockDBApi).IsExpired())
					}
					queries, err := manager.Queries(context.Background())
					if assert.NoError(t, err) {
						assert.NotNil(t, queries)
					}
				}()
			}
			wg.Wait()
			// One pool on creation and one after the first expires.
			assert.Equal(t, int32(2), supplierWrapper.callCount.Load())
		})
	}
}

func TestManager_ReplacesOnPingFailure(t *testing.T) {
	supplierWrapper := &testSupplierWrapper{}
	supplierWrapper.callCount.Store(1)
	manager, err := New(supplierWrapper.supply, true)
	require.NoError(t, err)

	first, err := manager.DB(context.Background())
	require.NoError(t, err)
	first.(*MockDBApi).Expire()

	second, err := manager.DB(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(3), supplierWrapper.callCount.Load())
}

func TestManager_ReopensDroppedConnection(t *testing.T) {
	for scenario, pingErr := range map[string]error{
		"invalid connection": mysql.ErrInvalidConn,
		"bad connection":     driver.ErrBadConn,
	} {
		t.Run(scenario, func(t *testing.T) {
			opened := 0
			var pools []*MockDBApi
			manager, err := New(func() (DBApi, time.Time, error) {
				opened++
				db := &MockDBApi{}
				pools = append(pools, db)
				return db, time.Now().Add(time.Hour), nil
			}, true)
			require.NoError(t, err)

			pools[0].pingErr = pingErr
			queries, err := manager.Queries(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, queries)
			assert.Equal(t, 2, opened)
			assert.True(t, pools[0].IsExpired(), "retired pool is closed")

			db, err := manager.DB(context.Background())
			require.NoError(t, err)
			assert.Same(t, pools[1], db)
		})
	}
}

func TestManager_UnreachableReplacement(t *testing.T) {
	first := &MockDBApi{}
	calls := 0
	manager, err := New(func() (DBApi, time.Time, error) {
		calls++
		if calls == 1 {
			return first, time.Now(), nil
		}
		return &MockDBApi{pingErr: errors.New("connection refused")}, time.Now().Add(time.Hour), nil
	}, false)
	require.NoError(t, err)

	_, err = manager.Queries(context.Background())
	require.Error(t, err)
	assert.False(t, first.IsExpired(), "current pool stays until a replacement answers")
}

func TestNewOpener_InvalidDSN(t *testing.T) {
	_, err := New(NewOpener("not a dsn", DefaultLifetime), false)
	assert.Error(t, err)
}

type MockDBApi struct {
	isExpired bool
	pingErr   error
	mutex     sync.RWMutex
}

func (m *MockDBApi) Expire() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.isExpired = true
}

func (m *MockDBApi) IsExpired() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.isExpired
}

func (m *MockDBApi) QueryContext(ctx context.Context, s string, i ...any) (*sql.Rows, error) {
	if m.IsExpired() {
		return nil, errors.New("expired")
	}
	return nil, nil
}

func (m *MockDBApi) QueryRowContext(ctx context.Context, s string, i ...any) *sql.Row {
	return &sql.Row{}
}

func (m *MockDBApi) PingContext(ctx context.Context) error {
	if m.pingErr != nil {
		return m.pingErr
	}
	if m.IsExpired() {
		return errors.New("expired")
	}
	return nil
}

func (m *MockDBApi) Close() error {
	m.Expire()
	return nil
}
