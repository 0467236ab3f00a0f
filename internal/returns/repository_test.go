package returns

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/selivandex/crypto-index/pkg/models"
)

func mockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// A re-run over already-written dates must report zero inserts: the conflict
// clause swallows the duplicate and RowsAffected drives the return value.
func TestInsertLogReturnReportsDuplicates(t *testing.T) {
	repo, mock := mockRepository(t)

	lr := &models.LogReturn{
		AssetID: 1,
		Date:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Value:   0.0123,
	}

	mock.ExpectExec("INSERT INTO log_returns").
		WithArgs(lr.AssetID, lr.Date, lr.Value).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := repo.InsertLogReturn(context.Background(), lr)
	if err != nil {
		t.Fatalf("InsertLogReturn() error = %v", err)
	}
	if !inserted {
		t.Error("first write reported no insert, want true")
	}

	mock.ExpectExec("INSERT INTO log_returns").
		WithArgs(lr.AssetID, lr.Date, lr.Value).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err = repo.InsertLogReturn(context.Background(), lr)
	if err != nil {
		t.Fatalf("InsertLogReturn() repeat error = %v", err)
	}
	if inserted {
		t.Error("duplicate write reported an insert, want false")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInsertMovingAverageReportsDuplicates(t *testing.T) {
	repo, mock := mockRepository(t)

	ma := &models.MovingAverage{
		AssetID:    1,
		Date:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		WindowDays: 30,
		Value:      101.5,
	}

	mock.ExpectExec("INSERT INTO moving_averages").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertMovingAverage(context.Background(), ma)
	if err != nil {
		t.Fatalf("InsertMovingAverage() error = %v", err)
	}
	if inserted {
		t.Error("duplicate write reported an insert, want false")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
