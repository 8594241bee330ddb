package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"carwash-ops-server/models"
)

// dryRunStore builds SQL without a server and hands back every statement
// the store would have executed.
func dryRunStore(t *testing.T) (*Store, *[]*gorm.Statement) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=carwash dbname=carwash sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	var statements []*gorm.Statement
	err = db.Callback().Create().After("gorm:create").Register("test:capture", func(tx *gorm.DB) {
		statements = append(statements, tx.Statement)
	})
	require.NoError(t, err)
	return NewStore(db), &statements
}

func TestInsertWorkerWritesInactiveFlag(t *testing.T) {
	store, statements := dryRunStore(t)

	worker := &models.Worker{PrincipalID: models.NewID(), Name: "Idle", Email: "idle@wash.test", IsActive: false}
	require.NoError(t, store.InsertWorker(context.Background(), worker))

	require.Len(t, *statements, 1)
	stmt := (*statements)[0]
	assert.Contains(t, stmt.SQL.String(), `"is_active"`)
	assert.Contains(t, stmt.Vars, false, "an inactive worker is inserted as inactive")
	assert.NotEmpty(t, worker.ID)
}
