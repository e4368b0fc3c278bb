package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestDatabase_Ping(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	db := &Database{DB: gormDB}

	t.Run("healthy", func(t *testing.T) {
		mock.ExpectPing()
		assert.NoError(t, db.Ping(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		assert.Error(t, db.Ping(context.Background()))
	})

	t.Run("close", func(t *testing.T) {
		mock.ExpectClose()
		assert.NoError(t, db.Close())
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
