package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreOrdered(t *testing.T) {
	migrations := Migrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	t.Run("applies pending migrations", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT version FROM schema_migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS assets`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO schema_migrations`).
			WithArgs(2, "Create assets table").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, Migrate(ctx, db, nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing to do", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT version FROM schema_migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(2))

		require.NoError(t, Migrate(ctx, db, nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed migration rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT version FROM schema_migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}))
		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnError(errors.New("permission denied"))
		mock.ExpectRollback()

		err = Migrate(ctx, db, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migration 1")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
