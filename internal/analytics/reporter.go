// Package analytics derives read-only classroom reports from the record
// store: per-student attendance percentages, exam score statistics, and an
// at-risk shortlist combining both.
package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/chalkvoice/chalkvoice/internal/grading"
	"github.com/chalkvoice/chalkvoice/internal/roster"
)

const (
	// DefaultAttendanceFloor is the attendance percentage below which a
	// student is flagged, matching the common university eligibility bar.
	DefaultAttendanceFloor = 75.0

	// DefaultTotalFloor is the exam total below which a student is flagged
	// (half of the maximum achievable total).
	DefaultTotalFloor = grading.MaxTotal / 2
)

// StudentAttendance is one student's attendance tally across all recorded
// sessions.
type StudentAttendance struct {
	Student  roster.Student `json:"student"`
	Sessions int            `json:"sessions"`
	Present  int            `json:"present"`
	Absent   int            `json:"absent"`

	// Percentage is Present over Sessions. 100 when no sessions were
	// recorded, so an empty roster never looks universally at risk.
	Percentage float64 `json:"percentage"`
}

// ExamStats summarises one exam across all students with a recorded total.
type ExamStats struct {
	Exam     roster.Exam `json:"exam"`
	Recorded int         `json:"recorded"`
	Mean     float64     `json:"mean"`
	Min      int         `json:"min"`
	Max      int         `json:"max"`

	// QuestionAverages maps question index to the average score among
	// students who answered that question.
	QuestionAverages map[int]float64 `json:"question_averages"`
}

// RiskFlag names why a student appears on the at-risk list.
type RiskFlag string

const (
	RiskLowAttendance RiskFlag = "low_attendance"
	RiskLowScore      RiskFlag = "low_score"
)

// AtRiskStudent is one flagged student with every reason that applies.
type AtRiskStudent struct {
	Student    roster.Student `json:"student"`
	Flags      []RiskFlag     `json:"flags"`
	Attendance float64        `json:"attendance_percentage"`

	// Totals holds the student's recorded exam totals by exam.
	Totals map[roster.Exam]int `json:"totals,omitempty"`
}

// Reporter computes reports against a record store. It only reads; all
// methods are safe for concurrent use.
type Reporter struct {
	store roster.Store
}

// NewReporter returns a [Reporter] reading from store.
func NewReporter(store roster.Store) *Reporter {
	return &Reporter{store: store}
}

// AttendanceSummary tallies attendance for every student on the roster,
// sorted by USN. Students with no recorded sessions appear with a 100%
// percentage and zero tallies.
func (r *Reporter) AttendanceSummary(ctx context.Context) ([]StudentAttendance, error) {
	students, err := r.store.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics: listing students: %w", err)
	}
	records, err := r.store.ListAttendance(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("analytics: listing attendance: %w", err)
	}

	byStudent := make(map[string][]roster.AttendanceRecord)
	for _, rec := range records {
		byStudent[rec.StudentID] = append(byStudent[rec.StudentID], rec)
	}

	out := make([]StudentAttendance, 0, len(students))
	for _, st := range students {
		sa := StudentAttendance{Student: st, Percentage: 100}
		for _, rec := range byStudent[st.ID] {
			sa.Sessions++
			if rec.Status == roster.Present {
				sa.Present++
			} else {
				sa.Absent++
			}
		}
		if sa.Sessions > 0 {
			sa.Percentage = 100 * float64(sa.Present) / float64(sa.Sessions)
		}
		out = append(out, sa)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Student.USN < out[j].Student.USN
	})
	return out, nil
}

// LowAttendance returns the students whose attendance percentage is strictly
// below floor, sorted by USN. A floor of 0 or less uses
// [DefaultAttendanceFloor]. Students with no recorded sessions are never
// flagged.
func (r *Reporter) LowAttendance(ctx context.Context, floor float64) ([]StudentAttendance, error) {
	if floor <= 0 {
		floor = DefaultAttendanceFloor
	}
	summary, err := r.AttendanceSummary(ctx)
	if err != nil {
		return nil, err
	}
	var out []StudentAttendance
	for _, sa := range summary {
		if sa.Sessions > 0 && sa.Percentage < floor {
			out = append(out, sa)
		}
	}
	return out, nil
}

// ExamReport summarises all recorded totals for exam. A report over zero
// records has zero Mean/Min/Max and an empty QuestionAverages map.
func (r *Reporter) ExamReport(ctx context.Context, exam roster.Exam) (ExamStats, error) {
	if !exam.IsValid() {
		return ExamStats{}, fmt.Errorf("analytics: unknown exam %q", exam)
	}
	records, err := r.store.ListExamRecords(ctx, exam)
	if err != nil {
		return ExamStats{}, fmt.Errorf("analytics: listing %s records: %w", exam, err)
	}

	stats := ExamStats{Exam: exam, QuestionAverages: map[int]float64{}}
	if len(records) == 0 {
		return stats, nil
	}

	sum := 0
	stats.Min = records[0].Total
	stats.Max = records[0].Total
	questionSums := make(map[int]int)
	questionCounts := make(map[int]int)
	for _, rec := range records {
		stats.Recorded++
		sum += rec.Total
		if rec.Total < stats.Min {
			stats.Min = rec.Total
		}
		if rec.Total > stats.Max {
			stats.Max = rec.Total
		}
		for q, score := range rec.Scores {
			questionSums[q] += score
			questionCounts[q]++
		}
	}
	stats.Mean = float64(sum) / float64(stats.Recorded)
	for q, total := range questionSums {
		stats.QuestionAverages[q] = float64(total) / float64(questionCounts[q])
	}
	return stats, nil
}

// AtRisk lists students flagged for low attendance (below
// [DefaultAttendanceFloor]) or a recorded exam total below
// [DefaultTotalFloor], sorted by USN. Each entry carries every flag that
// applies.
func (r *Reporter) AtRisk(ctx context.Context) ([]AtRiskStudent, error) {
	summary, err := r.AttendanceSummary(ctx)
	if err != nil {
		return nil, err
	}

	flagged := make(map[string]*AtRiskStudent)
	for _, sa := range summary {
		if sa.Sessions > 0 && sa.Percentage < DefaultAttendanceFloor {
			flagged[sa.Student.ID] = &AtRiskStudent{
				Student:    sa.Student,
				Flags:      []RiskFlag{RiskLowAttendance},
				Attendance: sa.Percentage,
			}
		}
	}

	attendanceByID := make(map[string]float64, len(summary))
	studentByID := make(map[string]roster.Student, len(summary))
	for _, sa := range summary {
		attendanceByID[sa.Student.ID] = sa.Percentage
		studentByID[sa.Student.ID] = sa.Student
	}

	for _, exam := range []roster.Exam{roster.ExamIA1, roster.ExamIA2} {
		records, err := r.store.ListExamRecords(ctx, exam)
		if err != nil {
			return nil, fmt.Errorf("analytics: listing %s records: %w", exam, err)
		}
		for _, rec := range records {
			if rec.Total >= DefaultTotalFloor {
				continue
			}
			entry, ok := flagged[rec.StudentID]
			if !ok {
				st, known := studentByID[rec.StudentID]
				if !known {
					continue
				}
				entry = &AtRiskStudent{
					Student:    st,
					Attendance: attendanceByID[rec.StudentID],
				}
				flagged[rec.StudentID] = entry
			}
			if !hasFlag(entry.Flags, RiskLowScore) {
				entry.Flags = append(entry.Flags, RiskLowScore)
			}
			if entry.Totals == nil {
				entry.Totals = make(map[roster.Exam]int)
			}
			entry.Totals[rec.Exam] = rec.Total
		}
	}

	out := make([]AtRiskStudent, 0, len(flagged))
	for _, entry := range flagged {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Student.USN < out[j].Student.USN
	})
	return out, nil
}

func hasFlag(flags []RiskFlag, f RiskFlag) bool {
	for _, have := range flags {
		if have == f {
			return true
		}
	}
	return false
}
