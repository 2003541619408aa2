package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/internal/repository"
)

// memStore is an in-memory stand-in for the session, attendance and
// enrollment tables. It enforces the same unique indexes as Postgres.
type memStore struct {
	mu          sync.Mutex
	sessions    map[string]*models.Session
	attendance  map[string]map[string]models.AttendanceRecord
	enrollments map[string][]models.Enrollment
	names       map[string]string

	onCreate       func()
	onInsert       func()
	absentErrs     map[string]error
	absentInserts  int
	storeAccessed  int
	createAttempts int
}

func newMemStore() *memStore {
	return &memStore{
		sessions:    map[string]*models.Session{},
		attendance:  map[string]map[string]models.AttendanceRecord{},
		enrollments: map[string][]models.Enrollment{},
		names:       map[string]string{},
		absentErrs:  map[string]error{},
	}
}

func uniqueViolation(constraint string) error {
	return &pq.Error{Code: "23505", Constraint: constraint}
}

func (m *memStore) addSession(s models.Session) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = models.SessionStatusActive
	}
	s.Active = s.Status == models.SessionStatusActive
	m.sessions[s.ID] = &s
	return &s
}

func (m *memStore) enroll(studentID, year, branch, division string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[studentID] = append(m.enrollments[studentID], models.Enrollment{
		ID:              uuid.NewString(),
		StudentID:       studentID,
		ClassCoordinate: models.ClassCoordinate{Year: year, Branch: branch, Division: division},
	})
}

func (m *memStore) session(id string) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sessions[id]
}

func (m *memStore) rows(sessionID string) map[string]models.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]models.AttendanceRecord{}
	for k, v := range m.attendance[sessionID] {
		out[k] = v
	}
	return out
}

func (m *memStore) Create(_ context.Context, s *models.Session) error {
	if m.onCreate != nil {
		hook := m.onCreate
		m.onCreate = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeAccessed++
	m.createAttempts++
	for _, existing := range m.sessions {
		if existing.Status != models.SessionStatusActive {
			continue
		}
		if existing.TeacherID == s.TeacherID {
			return uniqueViolation(repository.ConstraintOneActivePerTeacher)
		}
		if existing.Code == s.Code {
			return uniqueViolation(repository.ConstraintActiveCode)
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Status = models.SessionStatusActive
	s.Active = true
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *memStore) FindByID(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeAccessed++
	s, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (m *memStore) findActive(match func(*models.Session) bool) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeAccessed++
	for _, s := range m.sessions {
		if s.Status == models.SessionStatusActive && match(s) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) FindActiveByTeacher(_ context.Context, teacherID string) (*models.Session, error) {
	return m.findActive(func(s *models.Session) bool { return s.TeacherID == teacherID })
}

func (m *memStore) FindActiveByCode(_ context.Context, code string) (*models.Session, error) {
	return m.findActive(func(s *models.Session) bool { return s.Code == code })
}

func (m *memStore) Close(_ context.Context, id string, endedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != models.SessionStatusActive {
		return false, nil
	}
	s.Status = models.SessionStatusClosed
	s.Active = false
	s.EndedAt = &endedAt
	return true, nil
}

func (m *memStore) ListExpiredActive(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0)
	for _, s := range m.sessions {
		if s.Status == models.SessionStatusActive && s.ExpiresAt.Before(now) && len(ids) < limit {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (m *memStore) ListByTeacher(_ context.Context, teacherID string) ([]models.TeacherSessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TeacherSessionSummary, 0)
	for _, s := range m.sessions {
		if s.TeacherID != teacherID {
			continue
		}
		summary := models.TeacherSessionSummary{ID: s.ID, Code: s.Code, Status: s.Status, CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt, ClassMetadata: s.ClassMetadata}
		for _, rec := range m.attendance[s.ID] {
			summary.Total++
			if rec.Status == models.AttendanceStatusPresent {
				summary.Present++
			} else {
				summary.Absent++
			}
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) FindActiveForStudent(_ context.Context, studentID string, now time.Time) (*models.SessionWithTeacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		class, ok := s.Coordinate()
		if !ok || s.Status != models.SessionStatusActive || s.ExpiresAt.Before(now) {
			continue
		}
		for _, e := range m.enrollments[studentID] {
			if e.ClassCoordinate == class {
				return &models.SessionWithTeacher{Session: *s, TeacherName: m.names[s.TeacherID]}, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) CountForSession(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attendance[sessionID]), nil
}

func (m *memStore) StudentIDsForSession(_ context.Context, sessionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0)
	for id := range m.attendance[sessionID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) InsertAbsent(_ context.Context, sessionID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.absentErrs[studentID]; err != nil {
		return false, err
	}
	if _, exists := m.attendance[sessionID][studentID]; exists {
		return false, nil
	}
	m.put(models.AttendanceRecord{ID: uuid.NewString(), SessionID: sessionID, StudentID: studentID, Status: models.AttendanceStatusAbsent})
	m.absentInserts++
	return true, nil
}

func (m *memStore) InsertPresent(_ context.Context, rec *models.AttendanceRecord, markedAt time.Time) (bool, error) {
	if m.onInsert != nil {
		m.onInsert()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[rec.SessionID]
	if !ok || s.Status != models.SessionStatusActive || s.ExpiresAt.Before(markedAt) {
		return false, nil
	}
	if _, exists := m.attendance[rec.SessionID][rec.StudentID]; exists {
		return false, uniqueViolation(repository.ConstraintAttendanceSessionStudent)
	}
	rec.ID = uuid.NewString()
	rec.Status = models.AttendanceStatusPresent
	rec.MarkedAt = &markedAt
	m.put(*rec)
	return true, nil
}

func (m *memStore) put(rec models.AttendanceRecord) {
	if m.attendance[rec.SessionID] == nil {
		m.attendance[rec.SessionID] = map[string]models.AttendanceRecord{}
	}
	m.attendance[rec.SessionID][rec.StudentID] = rec
}

func (m *memStore) Exists(_ context.Context, sessionID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.attendance[sessionID][studentID]
	return ok, nil
}

func (m *memStore) StudentStats(_ context.Context, studentID string) (models.StudentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats models.StudentStats
	for _, rows := range m.attendance {
		rec, ok := rows[studentID]
		if !ok {
			continue
		}
		stats.Total++
		if rec.Status == models.AttendanceStatusPresent {
			stats.Present++
		} else {
			stats.Absent++
		}
	}
	return stats, nil
}

func (m *memStore) StudentHistory(_ context.Context, studentID string, _ int) ([]models.StudentHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.StudentHistoryEntry, 0)
	for sessionID, rows := range m.attendance {
		rec, ok := rows[studentID]
		if !ok {
			continue
		}
		s := m.sessions[sessionID]
		out = append(out, models.StudentHistoryEntry{SessionID: sessionID, Status: rec.Status, MarkedAt: rec.MarkedAt, Date: s.CreatedAt, TeacherName: m.names[s.TeacherID]})
	}
	return out, nil
}

func (m *memStore) StudentIDsForClass(_ context.Context, class models.ClassCoordinate) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0)
	for studentID, enrollments := range m.enrollments {
		for _, e := range enrollments {
			if e.ClassCoordinate == class {
				ids = append(ids, studentID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) ListByStudent(_ context.Context, studentID string) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Enrollment(nil), m.enrollments[studentID]...), nil
}

type recordingCache struct {
	mu          sync.Mutex
	values      map[string]interface{}
	invalidated []string
	gets        int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{values: map[string]interface{}{}}
}

func (c *recordingCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	c.invalidated = append(c.invalidated, keys...)
	return nil
}

func (c *recordingCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	if stats, ok := v.(models.TeacherStats); ok {
		*(dest.(*models.TeacherStats)) = stats
	}
	return true, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sessionExpiredAt(expiresAt time.Time, i int) models.Session {
	return models.Session{
		TeacherID: "teacher-" + string(rune('a'+i)),
		Code:      "900" + string(rune('0'+i)),
		ExpiresAt: expiresAt,
	}
}
