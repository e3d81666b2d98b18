package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmailRepoWithMock(t *testing.T) (EmailRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewEmailRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// The claim must be conditional on the row still being unsent so two
// overlapping runs cannot both dispatch it.
func TestEmailRepository_ClaimIsConditional(t *testing.T) {
	repo, mock := newEmailRepoWithMock(t)

	q := `(?s)UPDATE\s+emails\s+SET\s+ready\s*=\s*\$1,\s*sent\s*=\s*\$2,\s*sent_to\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$4\s+AND\s+ready\s*=\s*\$5\s+AND\s+sent\s*=\s*\$6`
	mock.ExpectExec(q).
		WithArgs(false, true, 12, int64(7), true, false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.Claim(context.Background(), 7, 12)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepository_ClaimDBError(t *testing.T) {
	repo, mock := newEmailRepoWithMock(t)

	mock.ExpectExec(`UPDATE\s+emails`).WillReturnError(errors.New("db down"))

	_, err := repo.Claim(context.Background(), 1, 1)
	assert.EqualError(t, err, "db down")
}
