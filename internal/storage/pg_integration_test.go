package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/bootstrap"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const skipIntegrationTests = "STOREFRONT_SKIP_INTEGRATION_TESTS"

// PgStorageSuite runs the storage contract against PostgreSQL.
type PgStorageSuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	logger      *slog.Logger
	ctx         context.Context
}

func (s *PgStorageSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var err error
	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	s.dbPool, err = bootstrap.NewDbPool(s.ctx, connStr, 30*time.Second)
	require.NoError(s.T(), err, "Failed to connect to PostgreSQL")

	wd, _ := os.Getwd()
	migrationsPath := filepath.Join(wd, "..", "..", "deploy", "migrations", "storefront")
	require.NoError(s.T(), bootstrap.Migrate(connStr, migrationsPath), "Failed to apply migrations")
	s.logger.Info("Initialization complete for PgStorageSuite")
}

func (s *PgStorageSuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := testcontainers.TerminateContainer(s.pgContainer); err != nil {
			s.logger.Warn("failed to terminate PostgreSQL container", "error", err)
		}
	}
}

func (s *PgStorageSuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE client_state")
	require.NoError(s.T(), err, "Failed to truncate client_state table")
}

func TestPgStorageIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(PgStorageSuite))
}

func (s *PgStorageSuite) TestContract() {
	runContract(s.T(), NewPgStorage(s.dbPool))
}

func (s *PgStorageSuite) TestOpaqueBytes() {
	store := NewPgStorage(s.dbPool)
	junk := []byte{0xff, 0x00, '{'}

	require.NoError(s.T(), store.Put(s.ctx, "ns", "cart", junk))
	got, err := store.Get(s.ctx, "ns", "cart")

	require.NoError(s.T(), err)
	s.Equal(junk, got)
}
