package advisory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos/testutil"
)

func TestKeyIsStableAndNamespaced(t *testing.T) {
	require.Equal(t, Key(OutboxDispatcher), Key(OutboxDispatcher))
	require.NotEqual(t, Key(OutboxDispatcher), Key(AlertEvaluator))
	require.NotEqual(t, Key("job", "a", "b"), Key("job", "ab"))
}

func TestWithLockSkipsWhenHeld(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	key := Key(RegenRunner)

	ran, err := WithLock(ctx, l, key, func(ctx context.Context) error {
		inner, err := WithLock(ctx, l, key, func(context.Context) error {
			t.Fatal("nested holder must not run")
			return nil
		})
		require.NoError(t, err)
		require.False(t, inner)
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.False(t, l.Held(key))
}

func TestWithLockReleasesOnError(t *testing.T) {
	l := NewMemoryLocker()
	key := Key(AlertEvaluator)
	boom := errors.New("boom")

	ran, err := WithLock(context.Background(), l, key, func(context.Context) error { return boom })
	require.True(t, ran)
	require.ErrorIs(t, err, boom)
	require.False(t, l.Held(key))
}

func TestPostgresLockerExclusive(t *testing.T) {
	gdb := testutil.PostgresDB(t)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	ctx := context.Background()
	log := testutil.Logger(t)

	a := NewPostgresLocker(sqlDB, log)
	b := NewPostgresLocker(sqlDB, log)
	key := Key("advisory_test", t.Name())

	ok, err := a.TryAcquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryAcquire(ctx, key)
	require.NoError(t, err)
	require.False(t, ok, "second session must not acquire")

	require.NoError(t, a.Release(ctx, key))

	ok, err = b.TryAcquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, b.Release(ctx, key))
}

func TestXactLockIsNoopOutsidePostgres(t *testing.T) {
	gdb := testutil.DB(t)
	require.NoError(t, XactLock(nil, Key("x")))
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		return XactLock(tx, Key("published_output", "LESSON", "L1"))
	}))
}
