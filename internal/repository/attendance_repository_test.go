package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-attendance-api/internal/models"
)

func TestAttendanceRepositoryInsertPresentGuarded(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance (id, session_id, student_id, status, marked_at)")).
		WithArgs(sqlmock.AnyArg(), "s-1", "st-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance (id, session_id, student_id, status, marked_at)")).
		WithArgs(sqlmock.AnyArg(), "s-2", "st-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := &models.AttendanceRecord{SessionID: "s-1", StudentID: "st-1"}
	inserted, err := repo.InsertPresent(context.Background(), rec, now)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, models.AttendanceStatusPresent, rec.Status)
	require.NotNil(t, rec.MarkedAt)

	inserted, err = repo.InsertPresent(context.Background(), &models.AttendanceRecord{SessionID: "s-2", StudentID: "st-1"}, now)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertAbsentIgnoresExisting(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (session_id, student_id) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "s-1", "st-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertAbsent(context.Background(), "s-1", "st-1")
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestAttendanceRepositoryStudentStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total")).
		WithArgs("st-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "present", "absent"}).AddRow(3, 2, 1))

	stats, err := repo.StudentStats(context.Background(), "st-1")
	require.NoError(t, err)
	assert.Equal(t, models.StudentStats{Total: 3, Present: 2, Absent: 1}, stats)
}

func TestAttendanceRepositoryRegisterRowsAppliesRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	mock.ExpectQuery(`s\.created_at >= \$2 AND s\.created_at < \$3`).
		WithArgs("t-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "session_date", "subject", "student_name", "email", "status", "marked_at", "year", "branch", "division"}).
			AddRow("s-1", from, "Maths", "Asha", "asha@college.edu", "present", from, "FE", "CSE", "A"))

	rows, err := repo.RegisterRows(context.Background(), "t-1", &from, &to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Asha", rows[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCountForSessionIncludesAbsences(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance WHERE session_id = $1") + "$").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountForSession(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
