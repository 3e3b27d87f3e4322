package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/database"
)

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *SQLStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return mock, NewSQL(database.New(db, database.DialectPostgres), zap.NewNop())
}

func TestSQLStore_PostgresAppend(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectExec(`INSERT INTO readings \(person_id, received_at, payload\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs("H-01", "2026-10-19T09:00:00+03:00", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ts := time.Date(2026, 10, 19, 9, 0, 0, 0, time.FixedZone("EAT", 3*60*60))
	err := s.Append(context.Background(), mustReading(t, `{"person_id":"H-01","mq7":1}`, ts))

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresAppendFailure(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectExec(`INSERT INTO readings`).
		WillReturnError(errors.New("connection reset by peer"))

	err := s.Append(context.Background(), mustReading(t, `{"person_id":"H-01"}`, time.Now()))

	assert.ErrorIs(t, err, ErrWrite)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresReadAllSkipsMalformedRows(t *testing.T) {
	mock, s := setupMockStore(t)

	rows := sqlmock.NewRows([]string{"payload"}).
		AddRow([]byte(`{"person_id":"a","timestamp":"2026-10-19T09:00:00+03:00"}`)).
		AddRow([]byte(`not json`)).
		AddRow([]byte(`{"person_id":"b","timestamp":"2026-10-19T09:00:05+03:00"}`))
	mock.ExpectQuery(`SELECT payload FROM readings ORDER BY seq`).WillReturnRows(rows)

	readings, err := s.ReadAll(context.Background())

	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "a", readings[0].PersonID)
	assert.Equal(t, "b", readings[1].PersonID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresQueryFailureReadsEmpty(t *testing.T) {
	mock, s := setupMockStore(t)

	mock.ExpectQuery(`SELECT payload FROM readings`).WillReturnError(errors.New("relation does not exist"))

	readings, err := s.ReadAll(context.Background())

	require.NoError(t, err)
	assert.Empty(t, readings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "helmet.db"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.InitSchema(ctx))

	s := Serialize(NewSQL(db, zap.NewNop()))
	defer s.Close()

	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, mustReading(t, `{"person_id":"a","mq2":1,"note":"first"}`, base)))
	require.NoError(t, s.Append(ctx, mustReading(t, `{"person_id":"b","mq7":1}`, base.Add(time.Second))))

	readings, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, "a", readings[0].PersonID)
	assert.True(t, readings[0].MQ2.Set())
	assert.True(t, readings[0].Timestamp.Equal(base))
	note, ok := readings[0].Field("note")
	require.True(t, ok)
	assert.JSONEq(t, `"first"`, string(note))

	assert.Equal(t, "b", readings[1].PersonID)
}
