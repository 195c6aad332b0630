package loyalty

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/logger"
	"github.com/asgared/elarcabeer/internal/orders"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db, logger.Discard()), mock
}

func testEvent(total int64) domain.OrderCreatedEvent {
	return domain.OrderCreatedEvent{OrderID: uuid.NewString(), UserID: "u1", Total: total, Currency: "usd"}
}

func TestPoints(t *testing.T) {
	assert.Equal(t, int64(300), Points(30000))
	assert.Equal(t, int64(18), Points(1899))
	assert.Equal(t, int64(0), Points(99))
	assert.Equal(t, int64(0), Points(-500))
}

func TestAwardPoints_CreditsOnce(t *testing.T) {
	repo, mock := newMockRepo(t)
	ev := testEvent(30000)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO loyalty_ledger").
		WithArgs(sqlmock.AnyArg(), "u1", int64(300)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO loyalty_accounts").
		WithArgs("u1", int64(300)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	awarded, err := repo.AwardPoints(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, awarded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwardPoints_RedeliveryIsNoop(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO loyalty_ledger").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	awarded, err := repo.AwardPoints(context.Background(), testEvent(30000))
	require.NoError(t, err)
	assert.False(t, awarded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwardPoints_AccountFailureRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO loyalty_ledger").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO loyalty_accounts").WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := repo.AwardPoints(context.Background(), testEvent(30000))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwardPoints_InvalidEvent(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.AwardPoints(context.Background(), domain.OrderCreatedEvent{OrderID: "not-a-uuid", UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = repo.AwardPoints(context.Background(), domain.OrderCreatedEvent{OrderID: uuid.NewString()})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	// the consumer commits these instead of retrying forever
	assert.ErrorIs(t, err, orders.ErrUnprocessable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalance(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT points FROM loyalty_accounts").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(int64(420)))
	mock.ExpectQuery("SELECT points FROM loyalty_accounts").
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	points, err := repo.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(420), points)

	points, err = repo.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, points)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOrderCreated_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	ordersRepo, err := orders.NewRepository(&orders.Credentials{
		Host: host, Port: port.Int(), User: "testuser", Password: "testpass", DBName: "testdb",
	})
	require.NoError(t, err)
	defer ordersRepo.Close()

	repo := NewRepository(ordersRepo.DB(), logger.Discard())
	require.NoError(t, repo.RunMigrations("./migrations"))

	first, second := testEvent(30000), testEvent(1899)
	require.NoError(t, repo.HandleOrderCreated(ctx, first))
	require.NoError(t, repo.HandleOrderCreated(ctx, first))
	require.NoError(t, repo.HandleOrderCreated(ctx, second))

	points, err := repo.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(318), points)
}
