package roster

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// attKey is the natural key of an attendance record.
type attKey struct {
	studentID string
	date      string
}

// examKey is the natural key of an exam record.
type examKey struct {
	studentID string
	exam      Exam
}

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for single-session use and testing.
type MemStore struct {
	mu         sync.RWMutex
	students   map[string]Student
	attendance map[attKey]AttendanceRecord
	exams      map[examKey]ExamRecord

	// now is swappable in tests for deterministic timestamps.
	now func() time.Time
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		students:   make(map[string]Student),
		attendance: make(map[attKey]AttendanceRecord),
		exams:      make(map[examKey]ExamRecord),
		now:        time.Now,
	}
}

// ReplaceStudents implements [Store.ReplaceStudents]. Attendance and exam
// records referencing replaced students are dropped with them.
func (s *MemStore) ReplaceStudents(ctx context.Context, students []Student) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.students = make(map[string]Student, len(students))
	s.attendance = make(map[attKey]AttendanceRecord)
	s.exams = make(map[examKey]ExamRecord)
	for _, st := range students {
		s.students[st.ID] = st
	}
	return len(students), nil
}

// ListStudents implements [Store.ListStudents].
func (s *MemStore) ListStudents(ctx context.Context) ([]Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b Student) int {
		return strings.Compare(strings.ToLower(a.USN), strings.ToLower(b.USN))
	})
	return out, nil
}

// GetStudent implements [Store.GetStudent].
func (s *MemStore) GetStudent(ctx context.Context, id string) (Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.students[id]
	if !ok {
		return Student{}, ErrNotFound
	}
	return st, nil
}

// UpsertAttendance implements [Store.UpsertAttendance].
func (s *MemStore) UpsertAttendance(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[rec.StudentID]; !ok {
		return AttendanceRecord{}, ErrUnknownStudent
	}

	rec.RecordedAt = s.now()
	s.attendance[attKey{rec.StudentID, rec.Date}] = rec
	return rec, nil
}

// GetAttendance implements [Store.GetAttendance].
func (s *MemStore) GetAttendance(ctx context.Context, studentID, date string) (AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.attendance[attKey{studentID, date}]
	if !ok {
		return AttendanceRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListAttendance implements [Store.ListAttendance].
func (s *MemStore) ListAttendance(ctx context.Context, date string) ([]AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AttendanceRecord
	for _, rec := range s.attendance {
		if date != "" && rec.Date != date {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b AttendanceRecord) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.StudentID, b.StudentID)
	})
	return out, nil
}

// UpsertExamRecord implements [Store.UpsertExamRecord]. The scores map is
// copied so the caller cannot mutate the stored record afterwards.
func (s *MemStore) UpsertExamRecord(ctx context.Context, rec ExamRecord) (ExamRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[rec.StudentID]; !ok {
		return ExamRecord{}, ErrUnknownStudent
	}

	scores := make(map[int]int, len(rec.Scores))
	for q, m := range rec.Scores {
		scores[q] = m
	}
	rec.Scores = scores
	rec.RecordedAt = s.now()
	s.exams[examKey{rec.StudentID, rec.Exam}] = rec
	return rec, nil
}

// GetExamRecord implements [Store.GetExamRecord].
func (s *MemStore) GetExamRecord(ctx context.Context, studentID string, exam Exam) (ExamRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.exams[examKey{studentID, exam}]
	if !ok {
		return ExamRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListExamRecords implements [Store.ListExamRecords].
func (s *MemStore) ListExamRecords(ctx context.Context, exam Exam) ([]ExamRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ExamRecord
	for _, rec := range s.exams {
		if rec.Exam != exam {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b ExamRecord) int {
		return strings.Compare(a.StudentID, b.StudentID)
	})
	return out, nil
}
