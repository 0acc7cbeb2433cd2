//go:build integration

package migration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erp/invoicing/migrations"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("invoicing_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))
	return db
}

func TestMigrator_UpDown(t *testing.T) {
	db := startPostgres(t)

	m, err := NewEmbedded(db, migrations.FS, zap.NewNop())
	require.NoError(t, err)

	state, err := m.State()
	require.NoError(t, err)
	assert.False(t, state.Applied)

	require.NoError(t, m.Up())
	// second run is a no-op
	require.NoError(t, m.Up())

	files, err := ListMigrations(migrations.FS)
	require.NoError(t, err)

	state, err = m.State()
	require.NoError(t, err)
	assert.True(t, state.Applied)
	assert.False(t, state.Dirty)
	assert.Equal(t, files[len(files)-1].Version, state.Version)

	for _, table := range []string{"customers", "invoices", "installments", "payments", "notification_logs"} {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	require.NoError(t, m.Steps(-1))
	var exists bool
	require.NoError(t, db.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'notification_logs')`).Scan(&exists))
	assert.False(t, exists)

	require.NoError(t, m.Down())
	state, err = m.State()
	require.NoError(t, err)
	assert.False(t, state.Applied)
}
