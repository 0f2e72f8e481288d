package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/wa-crm-bot/internal/models"
	"go.uber.org/zap/zaptest"
)

func newMockStorage(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newPostgresStorage(db, zaptest.NewLogger(t)), mock
}

func TestPostgresStorage_FindUserByPhone(t *testing.T) {
	s, mock := newMockStorage(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs("1555000").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "phone", "language", "created_at", "intent_identified"}).
			AddRow(int64(7), "Ana", "1555000", "auto", created, false))

	user, ok, err := s.FindUserByPhone(context.Background(), "1555000")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, created, user.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_FindUserByPhone_Missing(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs("404").
		WillReturnError(sql.ErrNoRows)

	user, ok, err := s.FindUserByPhone(context.Background(), "404")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, user)
}

func TestPostgresStorage_CreateUser(t *testing.T) {
	s, mock := newMockStorage(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("Ana", "1555000", "auto").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "language", "created_at", "intent_identified"}).
			AddRow(int64(3), "Ana", "auto", created, false))

	user := &models.User{Name: "Ana", Phone: "1555000", Language: "auto"}
	require.NoError(t, s.CreateUser(context.Background(), user))
	assert.Equal(t, int64(3), user.ID)
	assert.Equal(t, created, user.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_LoadHistory(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY timestamp, id")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"role", "content"}).
			AddRow("user", "hola").
			AddRow("assistant", "hello"))

	history, err := s.LoadHistory(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []models.Turn{
		{Role: models.RoleUser, Text: "hola"},
		{Role: models.RoleAssistant, Text: "hello"},
	}, history)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SaveTurn(t *testing.T) {
	s, mock := newMockStorage(t)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)
	s.now = func() time.Time { return fixed }
	userTS := fixed.Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WithArgs(int64(3), "user", "hola", userTS).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WithArgs(int64(3), "assistant", "hello", userTS.Add(time.Microsecond)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveTurn(context.Background(), 3, "hola", "hello"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SaveTurnRollsBack(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveTurn(context.Background(), 3, "hola", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_LastLead(t *testing.T) {
	s, mock := newMockStorage(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "intent", "status", "created_at"}).
			AddRow(int64(9), int64(3), "design request", "new", created))

	lead, ok, err := s.LastLead(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.IntentDesign, lead.Intent)
	assert.Equal(t, "new", lead.Status)
}

func TestPostgresStorage_RecordLeadIfChanged(t *testing.T) {
	s, mock := newMockStorage(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM leads")).
		WithArgs(int64(3)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO leads")).
		WithArgs(int64(3), "website request", "new").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), created))

	lead, err := RecordLeadIfChanged(context.Background(), s, 3, models.IntentWebsite)
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, int64(1), lead.ID)
	assert.Equal(t, created, lead.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_RecordLeadIfChanged_SameIntent(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM leads")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "intent", "status", "created_at"}).
			AddRow(int64(9), int64(3), "website request", "new", time.Now()))

	lead, err := RecordLeadIfChanged(context.Background(), s, 3, models.IntentWebsite)
	require.NoError(t, err)
	assert.Nil(t, lead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5433, User: "crm", Password: "secret", DBName: "leads", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=crm password=secret dbname=leads sslmode=disable", cfg.DSN())
}
