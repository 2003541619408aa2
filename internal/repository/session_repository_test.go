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

var sessionRowColumns = []string{"id", "code", "teacher_id", "active", "status", "created_at", "expires_at", "ended_at",
	"lat", "lng", "radius", "year", "branch", "division", "subject", "topic", "total_students"}

func TestSessionRepositoryCreateMarksActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := &models.Session{Code: "4821", TeacherID: "t-1", ExpiresAt: time.Now().Add(5 * time.Minute), Lat: 18.5, Lng: 73.8, Radius: 50}
	require.NoError(t, repo.Create(context.Background(), s))
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, models.SessionStatusActive, s.Status)
	assert.True(t, s.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByIDMapsMetadata(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(sessionRowColumns).
		AddRow("s-1", "4821", "t-1", true, "ACTIVE", now, now.Add(time.Minute), nil, 18.5, 73.8, 50.0, "FE", "CSE", "A", "Maths", nil, 60)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id, s.code")).
		WithArgs("s-1").
		WillReturnRows(rows)

	s, err := repo.FindByID(context.Background(), "s-1")
	require.NoError(t, err)
	coord, ok := s.Coordinate()
	require.True(t, ok)
	assert.Equal(t, "FE CSE A", coord.String())
	require.NotNil(t, s.TotalStudents)
	assert.Equal(t, 60, *s.TotalStudents)
	assert.Nil(t, s.Topic)
}

func TestSessionRepositoryCloseIsConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	ended := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET status = 'CLOSED'")).
		WithArgs("s-1", ended).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET status = 'CLOSED'")).
		WithArgs("s-1", ended).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.Close(context.Background(), "s-1", ended)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Close(context.Background(), "s-1", ended)
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListExpiredActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM sessions WHERE status = 'ACTIVE' AND expires_at < $1")).
		WithArgs(now, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s-1"))

	ids, err := repo.ListExpiredActive(context.Background(), now, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1"}, ids)
}

func TestSessionRepositoryTeacherStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_sessions", "avg_attendance"}).AddRow(4, 62.5))

	stats, err := repo.TeacherStats(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalSessions)
	assert.Equal(t, 62.5, stats.AvgAttendance)
}

func TestSessionRepositoryListByTeacherTallies(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "code", "status", "created_at", "expires_at", "ended_at",
		"year", "branch", "division", "subject", "topic", "total_students", "present", "absent", "total"}).
		AddRow("s-1", "4821", "CLOSED", now.Add(-time.Hour), now.Add(-55*time.Minute), now.Add(-55*time.Minute),
			"TE", "COMP", "A", "DBMS", nil, 60, 42, 18, 60)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions s LEFT JOIN attendance a")).
		WithArgs("t-1").
		WillReturnRows(rows)

	sessions, err := repo.ListByTeacher(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionStatusClosed, sessions[0].Status)
	assert.Equal(t, 42, sessions[0].Present)
	assert.Equal(t, 18, sessions[0].Absent)
	assert.Equal(t, "COMP", *sessions[0].Branch)
	assert.Nil(t, sessions[0].Topic)
	assert.NoError(t, mock.ExpectationsWereMet())
}
