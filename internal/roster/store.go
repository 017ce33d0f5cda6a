package roster

import (
	"context"
	"errors"
)

// ErrNotFound is returned by read operations when the requested record does
// not exist.
var ErrNotFound = errors.New("roster: record not found")

// ErrUnknownStudent is returned by upserts that reference a student ID not
// present in the roster. The write is rejected and no record is created or
// altered.
var ErrUnknownStudent = errors.New("roster: unknown student")

// Store is the record store consumed by the command pipeline.
//
// Upserts implement insert-or-replace semantics keyed by the record's natural
// key: if a record already exists for the key its fields are fully replaced
// and RecordedAt is refreshed, otherwise a new record is created. After a
// successful upsert exactly one record exists for the key. Each call is
// transactional.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// ReplaceStudents atomically replaces the entire roster with the given
	// students. Existing attendance and exam records are removed together
	// with the students they reference. Returns the number of students
	// loaded.
	ReplaceStudents(ctx context.Context, students []Student) (int, error)

	// ListStudents returns all students ordered by USN.
	ListStudents(ctx context.Context) ([]Student, error)

	// GetStudent retrieves a student by internal ID.
	// Returns [ErrNotFound] when no such student exists.
	GetStudent(ctx context.Context, id string) (Student, error)

	// UpsertAttendance creates or fully replaces the attendance record for
	// (rec.StudentID, rec.Date) and returns the stored record with its fresh
	// RecordedAt timestamp. Returns [ErrUnknownStudent] if the student does
	// not exist.
	UpsertAttendance(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error)

	// GetAttendance retrieves the attendance record for (studentID, date).
	// Returns [ErrNotFound] when no record exists for the key.
	GetAttendance(ctx context.Context, studentID, date string) (AttendanceRecord, error)

	// ListAttendance returns all attendance records, optionally filtered by
	// date. An empty date returns every record.
	ListAttendance(ctx context.Context, date string) ([]AttendanceRecord, error)

	// UpsertExamRecord creates or fully replaces the exam record for
	// (rec.StudentID, rec.Exam) and returns the stored record with its fresh
	// RecordedAt timestamp. Returns [ErrUnknownStudent] if the student does
	// not exist.
	UpsertExamRecord(ctx context.Context, rec ExamRecord) (ExamRecord, error)

	// GetExamRecord retrieves the exam record for (studentID, exam).
	// Returns [ErrNotFound] when no record exists for the key.
	GetExamRecord(ctx context.Context, studentID string, exam Exam) (ExamRecord, error)

	// ListExamRecords returns all exam records for the given exam.
	ListExamRecords(ctx context.Context, exam Exam) ([]ExamRecord, error)
}
