// Package advisory provides named, non-blocking mutual exclusion backed by
// Postgres advisory locks.
//
// Session locks are held on a dedicated connection until Release; if that
// connection dies, Postgres drops the lock server-side.
package advisory

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// Well-known lock names for singleton loops.
const (
	OutboxDispatcher = "outbox_dispatcher"
	RegenRunner      = "regen_runner"
	AlertEvaluator   = "alert_evaluator"
	Reconciler       = "job_reconciler"
)

// Key hashes a namespaced name into a 64-bit advisory lock key.
func Key(name string, parts ...string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	for _, p := range parts {
		_, _ = h.Write([]byte{':'})
		_, _ = h.Write([]byte(p))
	}
	return int64(h.Sum64())
}

type Locker interface {
	// TryAcquire never waits. It reports false when another holder owns key.
	TryAcquire(ctx context.Context, key int64) (bool, error)
	Release(ctx context.Context, key int64) error
}

// WithLock runs fn while holding key. ran is false when the lock was busy and
// fn was skipped.
func WithLock(ctx context.Context, l Locker, key int64, fn func(ctx context.Context) error) (ran bool, err error) {
	ok, err := l.TryAcquire(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		// Release must outlive a cancelled caller context.
		if rerr := l.Release(context.WithoutCancel(ctx), key); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return true, fn(ctx)
}

// XactLock takes a transaction-scoped lock that Postgres releases at commit or
// rollback. Other dialects have no advisory locks and skip it.
func XactLock(tx *gorm.DB, key int64) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", key).Error
}

type PostgresLocker struct {
	db  *sql.DB
	log *logger.Logger

	mu    sync.Mutex
	conns map[int64]*sql.Conn
}

func NewPostgresLocker(db *sql.DB, baseLog *logger.Logger) *PostgresLocker {
	return &PostgresLocker{
		db:    db,
		log:   baseLog.With("component", "PostgresLocker"),
		conns: make(map[int64]*sql.Conn),
	}
}

func (l *PostgresLocker) TryAcquire(ctx context.Context, key int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.conns[key]; held {
		return false, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory: dedicated conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("advisory: try lock %d: %w", key, err)
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}
	l.conns[key] = conn
	l.log.Debug("advisory lock acquired", "key", key)
	return true, nil
}

func (l *PostgresLocker) Release(ctx context.Context, key int64) error {
	l.mu.Lock()
	conn, ok := l.conns[key]
	delete(l.conns, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	defer conn.Close()

	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&released); err != nil {
		return fmt.Errorf("advisory: unlock %d: %w", key, err)
	}
	if !released {
		l.log.Warn("advisory lock was not held at release", "key", key)
	}
	return nil
}

// MemoryLocker is an in-process Locker for tests and single-node dev runs.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[int64]struct{})}
}

func (m *MemoryLocker) TryAcquire(_ context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return false, nil
	}
	m.held[key] = struct{}{}
	return true, nil
}

func (m *MemoryLocker) Release(_ context.Context, key int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
	return nil
}

func (m *MemoryLocker) Held(key int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}
