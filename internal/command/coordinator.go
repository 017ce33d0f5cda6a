package command

import (
	"context"
	"errors"
	"sync"

	"github.com/chalkvoice/chalkvoice/internal/grading"
	"github.com/chalkvoice/chalkvoice/internal/roster"
)

// Coordinator is the sole writer of attendance and exam records. Both apply
// operations are idempotent insert-or-replace writes keyed by the record's
// natural key, so repeating a command supersedes the earlier entry — there is
// no separate edit or delete operation in the voice pathway.
//
// Writes for the same natural key are serialised through a per-key mutex.
// The expected deployment is a single operator, but should several share a
// store the replace-on-conflict invariant cannot be broken by interleaved
// writes.
type Coordinator struct {
	store roster.Store

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// NewCoordinator returns a [Coordinator] writing to store.
func NewCoordinator(store roster.Store) *Coordinator {
	return &Coordinator{
		store: store,
		keys:  make(map[string]*sync.Mutex),
	}
}

// lockKey acquires the mutex for one natural key, creating it on first use.
// The returned func releases the key.
func (c *Coordinator) lockKey(key string) func() {
	c.mu.Lock()
	km, ok := c.keys[key]
	if !ok {
		km = &sync.Mutex{}
		c.keys[key] = km
	}
	c.mu.Unlock()

	km.Lock()
	return km.Unlock
}

// ApplyAttendance creates or fully replaces the attendance record for
// (studentID, date). After a successful return exactly one record exists for
// the key, carrying status and a fresh RecordedAt.
//
// A studentID that does not reference an existing student is rejected with an
// [*Error] of kind [KindDanglingReference]; nothing is written.
func (c *Coordinator) ApplyAttendance(ctx context.Context, studentID, date string, status roster.AttendanceStatus) (roster.AttendanceRecord, error) {
	unlock := c.lockKey("attendance/" + studentID + "/" + date)
	defer unlock()

	if _, err := c.store.GetStudent(ctx, studentID); err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			return roster.AttendanceRecord{}, &Error{Kind: KindDanglingReference, err: err}
		}
		return roster.AttendanceRecord{}, err
	}

	rec, err := c.store.UpsertAttendance(ctx, roster.AttendanceRecord{
		StudentID: studentID,
		Date:      date,
		Status:    status,
	})
	if err != nil {
		if errors.Is(err, roster.ErrUnknownStudent) {
			return roster.AttendanceRecord{}, &Error{Kind: KindDanglingReference, err: err}
		}
		return roster.AttendanceRecord{}, err
	}
	return rec, nil
}

// ApplyMarks creates or fully replaces the exam record for (studentID, exam)
// from an already-validated submission. The stored total is the validator's
// recomputed sum, never a caller-supplied value.
//
// A studentID that does not reference an existing student is rejected with an
// [*Error] of kind [KindDanglingReference]; nothing is written.
func (c *Coordinator) ApplyMarks(ctx context.Context, studentID string, exam roster.Exam, validated grading.Result) (roster.ExamRecord, error) {
	unlock := c.lockKey("marks/" + studentID + "/" + string(exam))
	defer unlock()

	if _, err := c.store.GetStudent(ctx, studentID); err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			return roster.ExamRecord{}, &Error{Kind: KindDanglingReference, err: err}
		}
		return roster.ExamRecord{}, err
	}

	rec, err := c.store.UpsertExamRecord(ctx, roster.ExamRecord{
		StudentID: studentID,
		Exam:      exam,
		Scores:    validated.Scores,
		Total:     validated.Total,
	})
	if err != nil {
		if errors.Is(err, roster.ErrUnknownStudent) {
			return roster.ExamRecord{}, &Error{Kind: KindDanglingReference, err: err}
		}
		return roster.ExamRecord{}, err
	}
	return rec, nil
}
