package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverFor(t *testing.T) {
	assert.Equal(t, "postgres", DriverFor("postgres://u:p@localhost:5432/widget"))
	assert.Equal(t, "postgres", DriverFor("postgresql://localhost/widget"))
	assert.Equal(t, "sqlite", DriverFor("/var/lib/widget/session.db"))
	assert.Equal(t, "sqlite", DriverFor("file:session.db?cache=shared"))
}

func TestWithTx(t *testing.T) {
	db, err := Connect(filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE items (name TEXT NOT NULL)`)
	require.NoError(t, err)

	t.Run("commits on success", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO items (name) VALUES ('kept')`)
			return err
		})
		require.NoError(t, err)

		var count int
		require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM items`))
		assert.Equal(t, 1, count)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO items (name) VALUES ('dropped')`); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var count int
		require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM items`))
		assert.Equal(t, 1, count)
	})
}
