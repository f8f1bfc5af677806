package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docuflow/internal/console"
	"docuflow/internal/platform"
	"docuflow/internal/storage"
	storeMocks "docuflow/internal/storage/mocks"
)

type mockRPC struct {
	mock.Mock
}

func (m *mockRPC) CallRPC(ctx context.Context, fn string, params any) (json.RawMessage, error) {
	args := m.Called(ctx, fn, params)
	if raw, ok := args.Get(0).(json.RawMessage); ok {
		return raw, args.Error(1)
	}
	return nil, args.Error(1)
}

func sampleMigration() *Migration {
	return &Migration{
		Name:     "document-requests-delete",
		Path:     "supabase/migrations/document_requests_delete.sql",
		SQL:      "ALTER TABLE document_requests ADD COLUMN deleted_at timestamptz;\n",
		Checksum: "0123456789abcdef0123456789abcdef",
	}
}

func TestRunner_RPCSuccess(t *testing.T) {
	ctx := context.Background()
	m := sampleMigration()
	rpc := new(mockRPC)
	rpc.On("CallRPC", ctx, "exec_sql", map[string]string{"sql": m.SQL}).
		Return(json.RawMessage(`null`), nil).Once()

	var out bytes.Buffer
	r := NewRunner(Options{RPC: rpc, Printer: console.New(&out), RunID: "run-1"})

	res, err := r.Run(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, MethodRPC, res.Method)
	assert.False(t, res.Skipped)
	assert.Empty(t, out.String(), "no fallback output on success")
	rpc.AssertExpectations(t)
}

func TestRunner_RPCUnavailablePrintsFallback(t *testing.T) {
	ctx := context.Background()
	m := sampleMigration()
	rpc := new(mockRPC)
	rpc.On("CallRPC", ctx, "exec_sql", mock.Anything).
		Return(nil, platform.ErrRPCUnavailable).Once()

	var out bytes.Buffer
	r := NewRunner(Options{
		RPC:          rpc,
		Printer:      console.New(&out),
		DashboardURL: "https://supabase.com/dashboard/project/abc/sql/new",
	})

	res, err := r.Run(ctx, m)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManualRequired)
	assert.ErrorIs(t, err, platform.ErrRPCUnavailable)

	printed := out.String()
	assert.Contains(t, printed, "Automatic execution failed")
	assert.Contains(t, printed, m.SQL)
	assert.Contains(t, printed, "https://supabase.com/dashboard/project/abc/sql/new")
}

func TestRunner_CustomRPCFunction(t *testing.T) {
	ctx := context.Background()
	rpc := new(mockRPC)
	rpc.On("CallRPC", ctx, "run_sql", mock.Anything).Return(json.RawMessage(`{}`), nil).Once()

	_, err := NewRunner(Options{RPC: rpc, RPCFunction: "run_sql"}).Run(ctx, sampleMigration())
	require.NoError(t, err)
	rpc.AssertExpectations(t)
}

func TestRunner_ArchivesAfterSuccess(t *testing.T) {
	ctx := context.Background()
	m := sampleMigration()
	rpc := new(mockRPC)
	rpc.On("CallRPC", ctx, "exec_sql", mock.Anything).Return(json.RawMessage(`null`), nil).Once()

	store := new(storeMocks.MockStorage)
	fixed := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	key := "migrations/document-requests-delete/20261018T093000Z.sql"
	store.On("Put", ctx, key, mock.Anything, mock.MatchedBy(func(o storage.PutObjectOptions) bool {
		return o.Size == int64(len(m.SQL)) &&
			o.Metadata["checksum"] == m.Checksum &&
			o.Metadata["method"] == "rpc" &&
			o.Metadata["run-id"] == "run-9"
	})).Return(storage.ObjectInfo{Key: key}, nil).Once()
	store.On("PresignGet", ctx, key, 24*time.Hour).Return("https://minio.local/presigned", nil).Once()

	r := NewRunner(Options{RPC: rpc, Archive: store, RunID: "run-9"})
	r.now = func() time.Time { return fixed }

	res, err := r.Run(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, key, res.ArchiveKey)
	assert.Equal(t, "https://minio.local/presigned", res.ArchiveURL)
	store.AssertExpectations(t)
}

func TestRunner_ArchiveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	rpc := new(mockRPC)
	rpc.On("CallRPC", ctx, "exec_sql", mock.Anything).Return(json.RawMessage(`null`), nil).Once()

	store := new(storeMocks.MockStorage)
	store.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, errors.New("bucket gone")).Once()

	res, err := NewRunner(Options{RPC: rpc, Archive: store}).Run(ctx, sampleMigration())
	require.NoError(t, err)
	assert.Empty(t, res.ArchiveKey)
	store.AssertExpectations(t)
}

func TestRunner_Direct(t *testing.T) {
	ctx := context.Background()
	m := sampleMigration()
	lookup := regexp.QuoteMeta(`SELECT checksum FROM docuflow_schema_migrations WHERE name = $1`)

	t.Run("applies", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		dbMock.ExpectQuery(regexp.QuoteMeta(existsQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		dbMock.ExpectQuery(lookup).WithArgs(m.Name).
			WillReturnRows(sqlmock.NewRows([]string{"checksum"}))
		dbMock.ExpectBegin()
		dbMock.ExpectExec(regexp.QuoteMeta(m.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
		dbMock.ExpectExec("INSERT INTO docuflow_schema_migrations").
			WithArgs(m.Name, m.Checksum, "direct", "run-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		res, err := NewRunner(Options{Ledger: NewLedger(db, nil, "db"), RunID: "run-2"}).Run(ctx, m)
		require.NoError(t, err)
		assert.Equal(t, MethodDirect, res.Method)
		assert.False(t, res.Skipped)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("skips already applied", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		dbMock.ExpectQuery(regexp.QuoteMeta(existsQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		dbMock.ExpectQuery(lookup).WithArgs(m.Name).
			WillReturnRows(sqlmock.NewRows([]string{"checksum"}).AddRow(m.Checksum))

		res, err := NewRunner(Options{Ledger: NewLedger(db, nil, "db")}).Run(ctx, m)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("checksum mismatch does not print fallback", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		dbMock.ExpectQuery(regexp.QuoteMeta(existsQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		dbMock.ExpectQuery(lookup).WithArgs(m.Name).
			WillReturnRows(sqlmock.NewRows([]string{"checksum"}).AddRow("ffffffffffffffffffff"))

		var out bytes.Buffer
		_, err = NewRunner(Options{Ledger: NewLedger(db, nil, "db"), Printer: console.New(&out)}).Run(ctx, m)
		assert.ErrorIs(t, err, ErrChecksumMismatch)
		assert.NotErrorIs(t, err, ErrManualRequired)
		assert.Empty(t, out.String())
	})

	t.Run("sql error falls back to manual", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		dbMock.ExpectQuery(regexp.QuoteMeta(existsQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		dbMock.ExpectQuery(lookup).WithArgs(m.Name).
			WillReturnRows(sqlmock.NewRows([]string{"checksum"}))
		dbMock.ExpectBegin()
		dbMock.ExpectExec(regexp.QuoteMeta(m.SQL)).WillReturnError(errors.New("column already exists"))
		dbMock.ExpectRollback()

		var out bytes.Buffer
		_, err = NewRunner(Options{Ledger: NewLedger(db, nil, "db"), Printer: console.New(&out)}).Run(ctx, m)
		assert.ErrorIs(t, err, ErrManualRequired)
		assert.Contains(t, out.String(), m.SQL)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestArchiveKey(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	assert.Equal(t, "migrations/employee-directory/20260102T020405Z.sql", ArchiveKey("employee-directory", at))
}
