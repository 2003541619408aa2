package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
	"github.com/noah-isme/campus-attendance-api/pkg/geo"
)

const (
	classLat = 18.5204
	classLng = 73.8567
)

type attendanceFixture struct {
	svc      *AttendanceService
	sessions *SessionService
	store    *memStore
	clock    *fixedClock
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	sessions, store, _, clock := newSessionFixture(t)
	svc := NewAttendanceService(store, store, store, sessions, nil, validator.New(), zap.NewNop())
	svc.now = clock.Now
	return &attendanceFixture{svc: svc, sessions: sessions, store: store, clock: clock}
}

func (f *attendanceFixture) openClassSession(radius float64, meta models.ClassMetadata) *models.Session {
	return f.store.addSession(models.Session{
		TeacherID:     "teacher-1",
		Code:          "4821",
		CreatedAt:     sessionEpoch,
		ExpiresAt:     sessionEpoch.Add(5 * time.Minute),
		Lat:           classLat,
		Lng:           classLng,
		Radius:        radius,
		ClassMetadata: meta,
	})
}

func markReq(studentID, code string, lat, lng float64) models.MarkAttendanceRequest {
	return models.MarkAttendanceRequest{StudentID: studentID, Code: code, Lat: floatPtr(lat), Lng: floatPtr(lng)}
}

func TestAttendanceServiceMarkSuccess(t *testing.T) {
	f := newAttendanceFixture(t)
	s := f.openClassSession(50, *classMeta("FE", "CSE", "A"))
	f.store.enroll("student-1", "FE", "CSE", "A")
	f.clock.Advance(30 * time.Second)

	resp, err := f.svc.Mark(context.Background(), markReq("student-1", "4821", classLat, classLng))
	require.NoError(t, err)
	assert.Equal(t, "Attendance marked successfully", resp.Message)
	assert.Equal(t, s.ID, resp.SessionID)
	assert.Equal(t, sessionEpoch.Add(30*time.Second), resp.Timestamp)

	rows := f.store.rows(s.ID)
	require.Contains(t, rows, "student-1")
	assert.Equal(t, models.AttendanceStatusPresent, rows["student-1"].Status)
	require.NotNil(t, rows["student-1"].MarkedAt)
}

func TestAttendanceServiceMarkValidation(t *testing.T) {
	f := newAttendanceFixture(t)
	cases := map[string]models.MarkAttendanceRequest{
		"short code":      markReq("student-1", "123", classLat, classLng),
		"non numeric":     markReq("student-1", "12a4", classLat, classLng),
		"missing student": markReq("", "1234", classLat, classLng),
		"missing lng":     {StudentID: "student-1", Code: "1234", Lat: floatPtr(classLat)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Mark(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestAttendanceServiceMarkInvalidCode(t *testing.T) {
	f := newAttendanceFixture(t)
	f.openClassSession(50, models.ClassMetadata{})

	_, err := f.svc.Mark(context.Background(), markReq("student-1", "0000", classLat, classLng))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCode.Code, appErr.Code)
	assert.Equal(t, 404, appErr.Status)
}

func TestAttendanceServiceMarkExpiredClosesSession(t *testing.T) {
	f := newAttendanceFixture(t)
	s := f.openClassSession(50, *classMeta("FE", "CSE", "A"))
	f.store.enroll("student-1", "FE", "CSE", "A")
	f.store.enroll("student-2", "FE", "CSE", "A")
	f.clock.Advance(5*time.Minute + time.Second)

	// Far away as well; expiry is reported first.
	_, err := f.svc.Mark(context.Background(), markReq("student-1", "4821", classLat+1, classLng))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionExpired.Code, appErrors.FromError(err).Code)

	assert.Equal(t, models.SessionStatusClosed, f.store.session(s.ID).Status)
	rows := f.store.rows(s.ID)
	assert.Len(t, rows, 2)
	assert.Equal(t, models.AttendanceStatusAbsent, rows["student-1"].Status)
}

func TestAttendanceServiceMarkOutOfRange(t *testing.T) {
	f := newAttendanceFixture(t)
	s := f.openClassSession(50, *classMeta("FE", "CSE", "A"))

	studentLat := classLat + 0.001
	want := geo.RoundMeters(geo.Distance(geo.Point{Lat: classLat, Lng: classLng}, geo.Point{Lat: studentLat, Lng: classLng}))

	// Not enrolled either; distance is checked before enrollment.
	_, err := f.svc.Mark(context.Background(), markReq("student-1", "4821", studentLat, classLng))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrOutOfRange.Code, appErr.Code)
	assert.Equal(t, fmt.Sprintf("You are too far from the class. Distance: %dm", want), appErr.Message)
	assert.Equal(t, want, appErr.Details["distance"])
	assert.Empty(t, f.store.rows(s.ID))
}

func TestAttendanceServiceMarkAcceptsBoundaryDistance(t *testing.T) {
	f := newAttendanceFixture(t)
	studentLat := classLat + 0.0004
	radius := geo.Distance(geo.Point{Lat: classLat, Lng: classLng}, geo.Point{Lat: studentLat, Lng: classLng})
	f.openClassSession(radius, models.ClassMetadata{})

	_, err := f.svc.Mark(context.Background(), markReq("student-1", "4821", studentLat, classLng))
	assert.NoError(t, err)
}

func TestAttendanceServiceMarkEnrollmentMismatch(t *testing.T) {
	f := newAttendanceFixture(t)
	s := f.openClassSession(50, *classMeta("FE", "CSE", "A"))
	f.store.enroll("student-1", "FE", "CSE", "B")

	_, err := f.svc.Mark(context.Background(), markReq("student-1", "4821", classLat, classLng))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrEnrollmentMismatch.Code, appErr.Code)
	assert.Equal(t, 403, appErr.Status)
	assert.Equal(t, "You are not enrolled in this class (FE CSE A).", appErr.Message)
	assert.Empty(t, f.store.rows(s.ID))
}

func TestAttendanceServiceMarkAnyMatchingEnrollment(t *testing.T) {
	f := newAttendanceFixture(t)
	f.openClassSession(50, *classMeta("SE", "IT", "B"))
	f.store.enroll("student-1", "FE", "CSE", "A")
	f.store.enroll("student-1", "SE", "IT", "B")

	_, err := f.svc.Mark(context.Background(), markReq("student-1", "4821", classLat, classLng))
	assert.NoError(t, err)
}

func TestAttendanceServiceMarkWithoutClassSkipsEnrollment(t *testing.T) {
	f := newAttendanceFixture(t)
	f.openClassSession(50, models.ClassMetadata{Subject: strPtr("Maths")})

	_, err := f.svc.Mark(context.Background(), markReq("walk-in", "4821", classLat, classLng))
	assert.NoError(t, err)
}

func TestAttendanceServiceMarkDuplicate(t *testing.T) {
	f := newAttendanceFixture(t)
	f.openClassSession(50, models.ClassMetadata{})

	_, err := f.svc.Mark(context.Background(), markReq("student-1", "4821", classLat, classLng))
	require.NoError(t, err)

	_, err = f.svc.Mark(context.Background(), markReq("student-1", "4821", classLat, classLng))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateMark))
}

func TestAttendanceServiceConcurrentMarksRecordOnce(t *testing.T) {
	f := newAttendanceFixture(t)
	s := f.openClassSession(50, models.ClassMetadata{})

	const attempts = 20
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Mark(context.Background(), markReq("student-1", "4821", classLat, classLng))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, duplicates := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, appErrors.ErrDuplicateMark):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, duplicates)
	assert.Len(t, f.store.rows(s.ID), 1)
}

func TestAttendanceServiceMarkLosesRaceWithClose(t *testing.T) {
	f := newAttendanceFixture(t)
	s := f.openClassSession(50, models.ClassMetadata{})
	f.store.onInsert = func() {
		_, _ = f.store.Close(context.Background(), s.ID, sessionEpoch)
	}

	_, err := f.svc.Mark(context.Background(), markReq("student-1", "4821", classLat, classLng))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSessionExpired))
	assert.Empty(t, f.store.rows(s.ID))
}

func TestAttendanceServiceStats(t *testing.T) {
	f := newAttendanceFixture(t)
	for i, status := range []models.AttendanceStatus{models.AttendanceStatusPresent, models.AttendanceStatusPresent, models.AttendanceStatusAbsent} {
		s := f.store.addSession(models.Session{TeacherID: fmt.Sprintf("teacher-%d", i), Code: fmt.Sprintf("100%d", i), Status: models.SessionStatusClosed})
		f.store.put(models.AttendanceRecord{SessionID: s.ID, StudentID: "student-1", Status: status})
	}

	stats, err := f.svc.Stats(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Present)
	assert.Equal(t, 1, stats.Absent)
	assert.Equal(t, 66.7, stats.Percentage)

	empty, err := f.svc.Stats(context.Background(), "student-2")
	require.NoError(t, err)
	assert.Zero(t, empty.Percentage)
}

func TestAttendanceServiceActiveSession(t *testing.T) {
	f := newAttendanceFixture(t)
	f.store.names["teacher-1"] = "Prof. Rao"
	s := f.openClassSession(50, *classMeta("FE", "CSE", "A"))
	f.store.enroll("student-1", "FE", "CSE", "A")

	active, err := f.svc.ActiveSession(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, active.SessionID)
	assert.Equal(t, "Prof. Rao", active.TeacherName)
	assert.Equal(t, "DBMS", *active.Subject)
	assert.False(t, active.AlreadyMarked)

	_, err = f.svc.Mark(context.Background(), markReq("student-1", "4821", classLat, classLng))
	require.NoError(t, err)
	active, err = f.svc.ActiveSession(context.Background(), "student-1")
	require.NoError(t, err)
	assert.True(t, active.AlreadyMarked)

	_, err = f.svc.ActiveSession(context.Background(), "student-2")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
