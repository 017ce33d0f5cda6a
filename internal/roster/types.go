// Package roster manages the class roster and its records: student identities
// imported in bulk from CSV, per-day attendance, and per-exam itemized marks.
//
// The package defines the [Store] interface with an in-memory implementation
// ([MemStore]) for single-session use and testing, and a PostgreSQL
// implementation ([PostgresStore]) for durable deployments. Both enforce the
// natural-key uniqueness rules: at most one attendance record per
// (student, date) and one exam record per (student, exam); upserts are the
// only write path besides bulk import.
//
// [Resolver] maps spoken or typed student references (full or partial USNs,
// possibly misspelled names) to exactly one known student.
//
// All store operations are safe for concurrent use.
package roster

import "time"

// Student is an immutable student identity. Students are created in bulk by
// CSV import and are never mutated by the voice command pipeline.
type Student struct {
	// ID is the internal identifier (a UUID assigned at import time).
	ID string `json:"id"`

	// USN is the external university serial number. Unique, case-insensitive.
	USN string `json:"usn"`

	// Name is the student's display name.
	Name string `json:"name"`
}

// AttendanceStatus is the recorded presence state for one student on one day.
type AttendanceStatus string

const (
	Present AttendanceStatus = "Present"
	Absent  AttendanceStatus = "Absent"
)

// IsValid reports whether s is a recognised attendance status.
func (s AttendanceStatus) IsValid() bool {
	return s == Present || s == Absent
}

// Exam identifies one of the two internal assessments.
type Exam string

const (
	ExamIA1 Exam = "IA1"
	ExamIA2 Exam = "IA2"
)

// IsValid reports whether e is a recognised exam.
func (e Exam) IsValid() bool {
	return e == ExamIA1 || e == ExamIA2
}

// DateLayout is the wire and storage format for attendance dates.
const DateLayout = "2006-01-02"

// ValidDate reports whether date is a well-formed DateLayout date string.
func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

// AttendanceRecord is one student's presence state for one date.
// Natural key: (StudentID, Date). The store keeps at most one record per key;
// a later upsert fully replaces an earlier one.
type AttendanceRecord struct {
	StudentID  string           `json:"student_id"`
	Date       string           `json:"date"`
	Status     AttendanceStatus `json:"status"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// ExamRecord holds one student's itemized scores for one exam.
// Natural key: (StudentID, Exam). Scores maps question index (1..8) to the
// awarded score; Total is always the sum of Scores and is recomputed by the
// validation layer, never supplied independently.
type ExamRecord struct {
	StudentID  string      `json:"student_id"`
	Exam       Exam        `json:"exam"`
	Scores     map[int]int `json:"scores"`
	Total      int         `json:"total"`
	RecordedAt time.Time   `json:"recorded_at"`
}
