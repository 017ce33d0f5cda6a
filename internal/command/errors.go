package command

import (
	"errors"
	"fmt"

	"github.com/chalkvoice/chalkvoice/internal/roster"
)

// Kind classifies a command pipeline failure. Every kind is recoverable at
// the caller level: the caller prompts for a corrected command rather than
// treating the failure as fatal.
type Kind string

const (
	// KindUnparseable means the transcript matched neither grammar.
	KindUnparseable Kind = "unparseable"

	// KindNoMatch means no student cleared the resolver's similarity
	// threshold.
	KindNoMatch Kind = "no_match"

	// KindAmbiguousMatch means two or more students tied at or above the
	// threshold; the error names all of them.
	KindAmbiguousMatch Kind = "ambiguous_match"

	// KindWrongItemCount means the marks submission did not contain exactly
	// four questions.
	KindWrongItemCount Kind = "wrong_item_count"

	// KindPairConflict means both members of an either/or question pair were
	// submitted.
	KindPairConflict Kind = "pair_conflict"

	// KindScoreOutOfRange means a submitted score fell outside [0, 10].
	KindScoreOutOfRange Kind = "score_out_of_range"

	// KindDanglingReference means a write referenced a student that does not
	// exist. Resolution precedes every write, so this signals a logic bug
	// rather than operator error.
	KindDanglingReference Kind = "dangling_reference"

	// KindTranscriptionTimeout means the ASR collaborator did not answer
	// within the configured deadline; the caller should offer text input.
	KindTranscriptionTimeout Kind = "transcription_timeout"
)

// Unparseable reason codes, carried in [Error.Reason] so the caller can show
// which part of the command was malformed.
const (
	ReasonNoCommand     = "no recognisable command"
	ReasonMissingExam   = "no assessment named in the command or selected in context"
	ReasonAmbiguousExam = "assessment token matches more than one assessment"
	ReasonUnknownExam   = "assessment token does not name a known assessment"
	ReasonUnknownItem   = "question token outside Q1-Q8"
	ReasonBadItem       = "malformed question-score entry"
	ReasonDuplicateItem = "the same question given twice in different forms"
	ReasonNoItems       = "no question-score entries found"
	ReasonMissingDate   = "no date selected in context"
)

// Error is the typed failure returned by the command pipeline. It wraps the
// underlying cause (resolver, validator, or store error) and carries the
// taxonomy [Kind] plus, for ambiguous matches, the tied candidates.
type Error struct {
	Kind       Kind
	Reason     string
	Candidates []roster.Student
	err        error
}

func (e *Error) Error() string {
	switch {
	case e.err != nil:
		return fmt.Sprintf("command: %s: %v", e.Kind, e.err)
	case e.Reason != "":
		return fmt.Sprintf("command: %s: %s", e.Kind, e.Reason)
	default:
		return fmt.Sprintf("command: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.err }

// KindOf extracts the [Kind] from err. Returns ("", false) when err is not a
// command pipeline [*Error].
func KindOf(err error) (Kind, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind, true
	}
	return "", false
}

func unparseable(reason string) *Error {
	return &Error{Kind: KindUnparseable, Reason: reason}
}
