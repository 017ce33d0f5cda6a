package command_test

import (
	"errors"
	"testing"

	"github.com/chalkvoice/chalkvoice/internal/command"
	"github.com/chalkvoice/chalkvoice/internal/roster"
)

func extract(t *testing.T, transcript string) command.Intent {
	t.Helper()
	intent, err := command.NewExtractor().Extract(transcript)
	if err != nil {
		t.Fatalf("Extract(%q): unexpected error: %v", transcript, err)
	}
	return intent
}

func extractErr(t *testing.T, transcript string) *command.Error {
	t.Helper()
	_, err := command.NewExtractor().Extract(transcript)
	var cerr *command.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("Extract(%q): err = %v, want *command.Error", transcript, err)
	}
	return cerr
}

func TestExtract_Attendance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transcript string
		ref        string
		status     roster.AttendanceStatus
	}{
		{"john is present", "john", roster.Present},
		{"John is absent.", "john", roster.Absent},
		{"USN 1GA23CI010 is present", "1ga23ci010", roster.Present},
		{"usn two four is absent", "24", roster.Absent},
		{"mary ann is present", "mary ann", roster.Present},
	}
	for _, tt := range tests {
		got, ok := extract(t, tt.transcript).(command.AttendanceIntent)
		if !ok {
			t.Fatalf("Extract(%q): not an AttendanceIntent", tt.transcript)
		}
		if got.Reference != tt.ref {
			t.Errorf("Extract(%q).Reference = %q, want %q", tt.transcript, got.Reference, tt.ref)
		}
		if got.Status != tt.status {
			t.Errorf("Extract(%q).Status = %s, want %s", tt.transcript, got.Status, tt.status)
		}
	}
}

func TestExtract_Marks(t *testing.T) {
	t.Parallel()

	got, ok := extract(t, "john IA1: Q1-8, Q3-7, Q6-9, Q8-8").(command.MarksIntent)
	if !ok {
		t.Fatal("not a MarksIntent")
	}
	if got.Reference != "john" {
		t.Errorf("reference = %q, want %q", got.Reference, "john")
	}
	if got.Exam != roster.ExamIA1 {
		t.Errorf("exam = %s, want IA1", got.Exam)
	}
	want := map[int]int{1: 8, 3: 7, 6: 9, 8: 8}
	for q, score := range want {
		if got.Scores[q] != score {
			t.Errorf("Q%d = %d, want %d", q, got.Scores[q], score)
		}
	}
	if len(got.Scores) != len(want) {
		t.Errorf("got %d scores, want %d", len(got.Scores), len(want))
	}
}

func TestExtract_MarksWithoutExam(t *testing.T) {
	t.Parallel()

	got, ok := extract(t, "john: q1-8, q3-7, q6-9, q8-8").(command.MarksIntent)
	if !ok {
		t.Fatal("not a MarksIntent")
	}
	if got.Exam != "" {
		t.Errorf("exam = %q, want empty for session fallback", got.Exam)
	}
}

func TestExtract_MarksItemSpellings(t *testing.T) {
	t.Parallel()

	// Dash variants, the "question N" long form, spoken digit words after the
	// question marker, and a "marks" suffix all land on the same entries.
	got, ok := extract(t, "john ia 1: Q1–8, question 3 - 7 marks, question six 9, q8 8").(command.MarksIntent)
	if !ok {
		t.Fatal("not a MarksIntent")
	}
	if got.Exam != roster.ExamIA1 {
		t.Errorf("exam = %s, want IA1", got.Exam)
	}
	want := map[int]int{1: 8, 3: 7, 6: 9, 8: 8}
	for q, score := range want {
		if got.Scores[q] != score {
			t.Errorf("Q%d = %d, want %d", q, got.Scores[q], score)
		}
	}
}

func TestExtract_MergedDigitsRepaired(t *testing.T) {
	t.Parallel()

	// "question one eight" often comes back from transcription as
	// "question 18"; it must parse as question 1, score 8.
	got, ok := extract(t, "john ia1: question 18 marks, q3-7, q6-9, q8-8").(command.MarksIntent)
	if !ok {
		t.Fatal("not a MarksIntent")
	}
	if got.Scores[1] != 8 {
		t.Errorf("Q1 = %d, want 8", got.Scores[1])
	}
	if _, merged := got.Scores[18]; merged {
		t.Error("merged token 18 kept as a question index")
	}
}

func TestExtract_RepeatedQuestionLastWins(t *testing.T) {
	t.Parallel()

	got, ok := extract(t, "john ia1: q1-8, q3-7, q3-9, q6-9, q8-8").(command.MarksIntent)
	if !ok {
		t.Fatal("not a MarksIntent")
	}
	if got.Scores[3] != 9 {
		t.Errorf("Q3 = %d, want 9 (last value wins on repetition)", got.Scores[3])
	}
}

func TestExtract_RepeatedQuestionMixedFormsRejected(t *testing.T) {
	t.Parallel()

	cerr := extractErr(t, "john ia1: q3-7, question 3-9, q6-9, q8-8")
	if cerr.Kind != command.KindUnparseable {
		t.Fatalf("kind = %s, want unparseable", cerr.Kind)
	}
	if cerr.Reason != command.ReasonDuplicateItem {
		t.Errorf("reason = %q, want %q", cerr.Reason, command.ReasonDuplicateItem)
	}
}

func TestExtract_UnparseableReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		transcript string
		reason     string
	}{
		{"empty", "", command.ReasonNoCommand},
		{"chatter", "good morning everyone", command.ReasonNoCommand},
		{"unknown exam", "john ia3: q1-8, q3-7, q6-9, q8-8", command.ReasonUnknownExam},
		{"bare assessment token", "john ia: q1-8, q3-7, q6-9, q8-8", command.ReasonAmbiguousExam},
		{"question out of range", "john ia1: q9-8", command.ReasonUnknownItem},
		{"malformed item", "john ia1: q1-8, banana", command.ReasonBadItem},
		{"no items", "john ia1: ,", command.ReasonNoItems},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cerr := extractErr(t, tt.transcript)
			if cerr.Kind != command.KindUnparseable {
				t.Fatalf("kind = %s, want unparseable", cerr.Kind)
			}
			if cerr.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", cerr.Reason, tt.reason)
			}
		})
	}
}
