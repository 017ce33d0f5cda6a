package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the roster tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS students (
    id         TEXT PRIMARY KEY,
    usn        TEXT NOT NULL,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_students_usn ON students (lower(usn));

CREATE TABLE IF NOT EXISTS attendance (
    student_id  TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    date        TEXT NOT NULL,
    status      TEXT NOT NULL CHECK (status IN ('Present', 'Absent')),
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (student_id, date)
);

CREATE TABLE IF NOT EXISTS exam_marks (
    student_id  TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    exam        TEXT NOT NULL CHECK (exam IN ('IA1', 'IA2')),
    scores      JSONB NOT NULL,
    total       INTEGER NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (student_id, exam)
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Exam score maps
// are serialised as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the roster
// tables and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("roster: migrate: %w", err)
	}
	return nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("roster: ping: %w", err)
	}
	return nil
}

// ReplaceStudents implements [Store.ReplaceStudents]. The whole roster is
// swapped inside one transaction; dependent attendance and exam records are
// removed by the ON DELETE CASCADE constraints.
func (s *PostgresStore) ReplaceStudents(ctx context.Context, students []Student) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("roster: replace students: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM students`); err != nil {
		return 0, fmt.Errorf("roster: replace students: clear: %w", err)
	}

	const insert = `INSERT INTO students (id, usn, name) VALUES ($1, $2, $3)`
	for _, st := range students {
		if _, err := tx.Exec(ctx, insert, st.ID, st.USN, st.Name); err != nil {
			if isUniqueViolation(err) {
				return 0, fmt.Errorf("roster: replace students: duplicate usn %q", st.USN)
			}
			return 0, fmt.Errorf("roster: replace students: insert %q: %w", st.USN, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("roster: replace students: commit: %w", err)
	}
	return len(students), nil
}

// ListStudents implements [Store.ListStudents].
func (s *PostgresStore) ListStudents(ctx context.Context) ([]Student, error) {
	const query = `SELECT id, usn, name FROM students ORDER BY lower(usn)`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("roster: list students: %w", err)
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.USN, &st.Name); err != nil {
			return nil, fmt.Errorf("roster: list students scan: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: list students: %w", err)
	}
	return out, nil
}

// GetStudent implements [Store.GetStudent].
func (s *PostgresStore) GetStudent(ctx context.Context, id string) (Student, error) {
	const query = `SELECT id, usn, name FROM students WHERE id = $1`
	var st Student
	err := s.db.QueryRow(ctx, query, id).Scan(&st.ID, &st.USN, &st.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, fmt.Errorf("roster: get student %q: %w", id, err)
	}
	return st, nil
}

// UpsertAttendance implements [Store.UpsertAttendance] using
// INSERT ... ON CONFLICT so the replace-on-conflict invariant holds inside the
// database's own transaction guarantees.
func (s *PostgresStore) UpsertAttendance(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error) {
	const query = `
		INSERT INTO attendance (student_id, date, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			recorded_at = now()
		RETURNING recorded_at`

	err := s.db.QueryRow(ctx, query, rec.StudentID, rec.Date, rec.Status).Scan(&rec.RecordedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return AttendanceRecord{}, ErrUnknownStudent
		}
		return AttendanceRecord{}, fmt.Errorf("roster: upsert attendance: %w", err)
	}
	return rec, nil
}

// GetAttendance implements [Store.GetAttendance].
func (s *PostgresStore) GetAttendance(ctx context.Context, studentID, date string) (AttendanceRecord, error) {
	const query = `
		SELECT student_id, date, status, recorded_at
		FROM attendance
		WHERE student_id = $1 AND date = $2`

	var rec AttendanceRecord
	err := s.db.QueryRow(ctx, query, studentID, date).Scan(
		&rec.StudentID, &rec.Date, &rec.Status, &rec.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AttendanceRecord{}, ErrNotFound
		}
		return AttendanceRecord{}, fmt.Errorf("roster: get attendance: %w", err)
	}
	return rec, nil
}

// ListAttendance implements [Store.ListAttendance].
func (s *PostgresStore) ListAttendance(ctx context.Context, date string) ([]AttendanceRecord, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if date == "" {
		const query = `
			SELECT student_id, date, status, recorded_at
			FROM attendance ORDER BY date, student_id`
		rows, err = s.db.Query(ctx, query)
	} else {
		const query = `
			SELECT student_id, date, status, recorded_at
			FROM attendance WHERE date = $1 ORDER BY student_id`
		rows, err = s.db.Query(ctx, query, date)
	}
	if err != nil {
		return nil, fmt.Errorf("roster: list attendance: %w", err)
	}
	defer rows.Close()

	var out []AttendanceRecord
	for rows.Next() {
		var rec AttendanceRecord
		if err := rows.Scan(&rec.StudentID, &rec.Date, &rec.Status, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("roster: list attendance scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: list attendance: %w", err)
	}
	return out, nil
}

// UpsertExamRecord implements [Store.UpsertExamRecord].
func (s *PostgresStore) UpsertExamRecord(ctx context.Context, rec ExamRecord) (ExamRecord, error) {
	scoresJSON, err := json.Marshal(rec.Scores)
	if err != nil {
		return ExamRecord{}, fmt.Errorf("roster: marshal scores: %w", err)
	}

	const query = `
		INSERT INTO exam_marks (student_id, exam, scores, total)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, exam) DO UPDATE SET
			scores = EXCLUDED.scores,
			total = EXCLUDED.total,
			recorded_at = now()
		RETURNING recorded_at`

	err = s.db.QueryRow(ctx, query, rec.StudentID, rec.Exam, scoresJSON, rec.Total).Scan(&rec.RecordedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ExamRecord{}, ErrUnknownStudent
		}
		return ExamRecord{}, fmt.Errorf("roster: upsert exam record: %w", err)
	}
	return rec, nil
}

// GetExamRecord implements [Store.GetExamRecord].
func (s *PostgresStore) GetExamRecord(ctx context.Context, studentID string, exam Exam) (ExamRecord, error) {
	const query = `
		SELECT student_id, exam, scores, total, recorded_at
		FROM exam_marks
		WHERE student_id = $1 AND exam = $2`

	var (
		rec        ExamRecord
		scoresJSON []byte
	)
	err := s.db.QueryRow(ctx, query, studentID, exam).Scan(
		&rec.StudentID, &rec.Exam, &scoresJSON, &rec.Total, &rec.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ExamRecord{}, ErrNotFound
		}
		return ExamRecord{}, fmt.Errorf("roster: get exam record: %w", err)
	}
	if err := json.Unmarshal(scoresJSON, &rec.Scores); err != nil {
		return ExamRecord{}, fmt.Errorf("roster: unmarshal scores: %w", err)
	}
	return rec, nil
}

// ListExamRecords implements [Store.ListExamRecords].
func (s *PostgresStore) ListExamRecords(ctx context.Context, exam Exam) ([]ExamRecord, error) {
	const query = `
		SELECT student_id, exam, scores, total, recorded_at
		FROM exam_marks
		WHERE exam = $1
		ORDER BY student_id`

	rows, err := s.db.Query(ctx, query, exam)
	if err != nil {
		return nil, fmt.Errorf("roster: list exam records: %w", err)
	}
	defer rows.Close()

	var out []ExamRecord
	for rows.Next() {
		var (
			rec        ExamRecord
			scoresJSON []byte
		)
		if err := rows.Scan(&rec.StudentID, &rec.Exam, &scoresJSON, &rec.Total, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("roster: list exam records scan: %w", err)
		}
		if err := json.Unmarshal(scoresJSON, &rec.Scores); err != nil {
			return nil, fmt.Errorf("roster: unmarshal scores: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: list exam records: %w", err)
	}
	return out, nil
}

// isUniqueViolation checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isForeignKeyViolation checks whether a PostgreSQL error is a
// foreign-key-violation (SQLSTATE 23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
