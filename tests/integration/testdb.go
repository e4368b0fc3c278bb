// Package integration runs the settlement stack against real PostgreSQL and
// Redis containers started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/propledger/backend/internal/infrastructure/migration"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
	"github.com/propledger/backend/migrations"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// Shared container for all tests in a package
	sharedContainer    testcontainers.Container
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string
)

// TestDB represents a test database connection
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	t         *testing.T
}

func runPostgres(ctx context.Context, dbName string) (*tcpostgres.PostgresContainer, error) {
	return tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
}

// NewTestDB creates a fresh PostgreSQL container with the embedded
// migrations applied.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := runPostgres(ctx, "propledger_test")
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	runMigrations(t, dsn)
	db, sqlDB := connectToDatabase(t, dsn)

	testDB := &TestDB{
		DB:        db,
		SqlDB:     sqlDB,
		Container: container,
		DSN:       dsn,
		t:         t,
	}
	t.Cleanup(testDB.Close)
	return testDB
}

// NewSharedTestDB returns a connection to a container shared by the package.
// Tests using it must scope their rows by a fresh tenant ID.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	ctx := context.Background()

	if sharedContainer == nil {
		container, err := runPostgres(ctx, "propledger_shared_test")
		require.NoError(t, err, "Failed to start shared PostgreSQL container")

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err, "Failed to get connection string")

		runMigrations(t, dsn)
		sharedContainer = container
		sharedContainerDSN = dsn
	}

	db, sqlDB := connectToDatabase(t, sharedContainerDSN)
	testDB := &TestDB{
		DB:        db,
		SqlDB:     sqlDB,
		Container: sharedContainer,
		DSN:       sharedContainerDSN,
		t:         t,
	}
	// the shared container outlives the test; only the connection is closed
	t.Cleanup(func() {
		_ = testDB.SqlDB.Close()
	})
	return testDB
}

// Close closes the database connection and terminates the container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil && tdb.Container != sharedContainer {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// CleanupSharedContainer terminates the shared container. Call it from TestMain.
func CleanupSharedContainer() {
	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = sharedContainer.Terminate(ctx)
		sharedContainer = nil
		sharedContainerDSN = ""
	}
}

func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

// runMigrations applies the embedded migrations on a dedicated connection,
// which the migrator closes
func runMigrations(t *testing.T, dsn string) {
	t.Helper()

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err, "Failed to open migration connection")

	m, err := migration.NewFromFS(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	defer func() { _ = m.Close() }()

	require.NoError(t, m.Up(), "Failed to run migrations")
}

// SeedReport stores a financial report and its ledger lines. Entry positions
// follow argument order.
func (tdb *TestDB) SeedReport(tenantID uuid.UUID, propertyID string, year, month int, income, expenses string, entries ...models.LedgerEntryModel) {
	tdb.t.Helper()
	for i := range entries {
		entries[i].Position = i
	}
	report := models.FinancialReportModel{
		TenantModel:   models.TenantModel{TenantID: tenantID},
		PropertyID:    propertyID,
		Year:          year,
		Month:         month,
		TotalIncome:   decimal.RequireFromString(income),
		TotalExpenses: decimal.RequireFromString(expenses),
		Entries:       entries,
	}
	require.NoError(tdb.t, tdb.DB.Create(&report).Error, "Failed to seed report")
}

// SeedOwnership stores investor shares of a property in argument order.
// shares alternates investor ID and percentage.
func (tdb *TestDB) SeedOwnership(tenantID uuid.UUID, propertyID string, shares ...string) {
	tdb.t.Helper()
	require.Zero(tdb.t, len(shares)%2, "shares must be investor/percentage pairs")
	for i := 0; i < len(shares); i += 2 {
		require.NoError(tdb.t, tdb.DB.Create(&models.OwnershipModel{
			TenantModel: models.TenantModel{TenantID: tenantID},
			PropertyID:  propertyID,
			InvestorID:  shares[i],
			Position:    i / 2,
			Percentage:  decimal.RequireFromString(shares[i+1]),
		}).Error, "Failed to seed ownership")
	}
}

// SeedPrior stores what an investor already paid and received for a property-month
func (tdb *TestDB) SeedPrior(tenantID uuid.UUID, investorID, propertyID string, year, month int, paid, received string) {
	tdb.t.Helper()
	require.NoError(tdb.t, tdb.DB.Create(&models.PriorSettlementModel{
		TenantModel:     models.TenantModel{TenantID: tenantID},
		InvestorID:      investorID,
		PropertyID:      propertyID,
		Year:            year,
		Month:           month,
		AlreadyPaid:     decimal.RequireFromString(paid),
		AlreadyReceived: decimal.RequireFromString(received),
	}).Error, "Failed to seed prior settlement")
}

// Income builds an income ledger line
func Income(amount, person string) models.LedgerEntryModel {
	return models.LedgerEntryModel{
		Kind:           models.LedgerEntryIncome,
		Amount:         decimal.RequireFromString(amount),
		PersonInCharge: person,
	}
}

// Expense builds an expense ledger line
func Expense(amount, person string) models.LedgerEntryModel {
	return models.LedgerEntryModel{
		Kind:           models.LedgerEntryExpense,
		Amount:         decimal.RequireFromString(amount),
		PersonInCharge: person,
	}
}
