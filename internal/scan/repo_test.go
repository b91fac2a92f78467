package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"admission/internal/errs"
	"admission/internal/store"
)

func newDB(t *testing.T) (*store.DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &store.DB{Pool: mock}, mock
}

const selectLast = `SELECT seq, kind, scanned_at FROM scan_records`

func TestAppend_FirstScanIsEntry(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRepository(db)

	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(selectLast).
		WithArgs("REG-100", "E1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO scan_records`).
		WithArgs(pgxmock.AnyArg(), "REG-100", "E1", "V1", int64(1), KindEntry, at, (*int64)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(at))
	mock.ExpectExec(`INSERT INTO attendance_totals`).
		WithArgs("REG-100", "E1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rec, err := r.Append(ctx, "REG-100", "E1", "V1", at)
	require.NoError(t, err)
	require.Equal(t, KindEntry, rec.Kind)
	require.Equal(t, int64(1), rec.Seq)
	require.Nil(t, rec.DurationSeconds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_SecondScanIsExitWithDuration(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRepository(db)

	ctx := context.Background()
	entry := time.Unix(1_700_000_000, 0).UTC()
	exit := entry.Add(125 * time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(selectLast).
		WithArgs("REG-100", "E1").
		WillReturnRows(pgxmock.NewRows([]string{"seq", "kind", "scanned_at"}).
			AddRow(int64(1), KindEntry, entry))
	mock.ExpectQuery(`INSERT INTO scan_records`).
		WithArgs(pgxmock.AnyArg(), "REG-100", "E1", "V1", int64(2), KindExit, exit, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(exit))
	mock.ExpectExec(`INSERT INTO attendance_totals`).
		WithArgs("REG-100", "E1", int64(125)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rec, err := r.Append(ctx, "REG-100", "E1", "V1", exit)
	require.NoError(t, err)
	require.Equal(t, KindExit, rec.Kind)
	require.Equal(t, int64(2), rec.Seq)
	require.NotNil(t, rec.DurationSeconds)
	require.Equal(t, int64(125), *rec.DurationSeconds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_ThirdScanTogglesBackToEntry(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRepository(db)

	ctx := context.Background()
	exit := time.Unix(1_700_000_125, 0).UTC()
	again := time.Unix(1_700_000_400, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(selectLast).
		WithArgs("REG-100", "E1").
		WillReturnRows(pgxmock.NewRows([]string{"seq", "kind", "scanned_at"}).
			AddRow(int64(2), KindExit, exit))
	mock.ExpectQuery(`INSERT INTO scan_records`).
		WithArgs(pgxmock.AnyArg(), "REG-100", "E1", "V1", int64(3), KindEntry, again, (*int64)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(again))
	mock.ExpectCommit()

	rec, err := r.Append(ctx, "REG-100", "E1", "V1", again)
	require.NoError(t, err)
	require.Equal(t, KindEntry, rec.Kind)
	require.Nil(t, rec.DurationSeconds, "re-entry carries no duration")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_UniqueViolationIsOrderingConflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRepository(db)

	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(selectLast).
		WithArgs("REG-100", "E1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO scan_records`).
		WithArgs(pgxmock.AnyArg(), "REG-100", "E1", "V1", int64(1), KindEntry, at, (*int64)(nil)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := r.Append(ctx, "REG-100", "E1", "V1", at)
	require.ErrorIs(t, err, errs.ErrOrderingConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAllowsWalkIn_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRepository(db)

	mock.ExpectQuery(`SELECT allow_walk_in FROM events`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.EventAllowsWalkIn(context.Background(), "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestVolunteerAssigned(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRepository(db)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("E1", "V1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := r.VolunteerAssigned(context.Background(), "E1", "V1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSaveStallCredential(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRepository(db)

	mock.ExpectExec(`INSERT INTO stalls`).
		WithArgs("CS-001", "STALL_CS-001_1693000000_aa").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := r.SaveStallCredential(context.Background(), "CS-001", "STALL_CS-001_1693000000_aa")
	require.NoError(t, err)
}

func TestAppend_QueryErrorRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectLast).
		WithArgs("REG-100", "E1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := r.Append(context.Background(), "REG-100", "E1", "V1", time.Now())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
