// Package command turns raw transcripts into validated record updates: the
// extractor parses a normalized transcript into a tagged intent, the
// coordinator applies a resolved and validated intent to the record store
// with insert-or-replace semantics, and the processor wires the whole
// pipeline — transcription, extraction, identifier resolution, score
// validation, and the single upsert — behind one Process call.
package command

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/chalkvoice/chalkvoice/internal/roster"
)

// Intent is the structured meaning extracted from one transcript. It is a
// closed tagged variant: [AttendanceIntent] or [MarksIntent].
type Intent interface{ isIntent() }

// AttendanceIntent records one student's presence state for the session date.
type AttendanceIntent struct {
	// Reference is the raw student reference (USN fragment or name) to be
	// resolved against the roster.
	Reference string

	Status roster.AttendanceStatus
}

func (AttendanceIntent) isIntent() {}

// MarksIntent records one student's itemized scores for one exam.
type MarksIntent struct {
	// Reference is the raw student reference to be resolved.
	Reference string

	// Exam is the assessment named in the transcript. Empty when the command
	// omitted it; the processor then falls back to the exam selected in the
	// session context.
	Exam roster.Exam

	// Scores maps question index to the spoken score. Syntactically shaped
	// only — range and pairing rules are the validator's responsibility.
	Scores map[int]int
}

func (MarksIntent) isIntent() {}

var (
	// dashVariants maps spoken-dash unicode variants onto a plain hyphen so
	// one separator survives normalization.
	dashVariants = strings.NewReplacer(
		"‐", "-", "‒", "-", "–", "-", "—", "-", "―", "-",
	)

	attendanceRe = regexp.MustCompile(`^(?:usn\s+)?([a-z0-9][a-z0-9 .']*?)\s+is\s+(present|absent)\b`)
	marksRe      = regexp.MustCompile(`^(?:usn\s+)?(.+?)(?:\s+(ia(?:\s?\d+)?))?\s*:\s*(.+)$`)

	// itemRe matches one question-score entry: "q1-8", "q1 8", "question 3-7",
	// optionally suffixed with "marks". Backtracking on the two digit groups
	// also repairs the Whisper digit-merge artefact where "one eight" is
	// heard as "18": "question 18 marks" parses as question 1, score 8.
	itemRe = regexp.MustCompile(`^(q|question)\s*(\d+)\s*(?:-\s*)?(\d+)\s*(?:marks?)?$`)
)

// numberWords maps spoken digit words to their digit form. Applied only
// inside identifier-looking tokens (after a "usn", "q", or "question"
// marker), never across the whole transcript.
var numberWords = map[string]string{
	"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
}

// Extractor parses normalized transcripts into intents. It guarantees
// syntactic shape only: score ranges and question-pairing rules are checked
// later by the grading validator. Extractor is stateless and safe for
// concurrent use.
type Extractor struct{}

// NewExtractor returns an [Extractor].
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses transcript into an [AttendanceIntent] or [MarksIntent].
// Transcripts matching neither grammar return an [*Error] of kind
// [KindUnparseable] whose Reason names the malformed part.
func (e *Extractor) Extract(transcript string) (Intent, error) {
	text := normalize(transcript)
	if text == "" {
		return nil, unparseable(ReasonNoCommand)
	}

	if m := attendanceRe.FindStringSubmatch(text); m != nil {
		return AttendanceIntent{
			Reference: strings.TrimSpace(m[1]),
			Status:    roster.AttendanceStatus(capitalize(m[2])),
		}, nil
	}

	if m := marksRe.FindStringSubmatch(text); m != nil {
		exam, err := parseExam(m[2])
		if err != nil {
			return nil, err
		}
		scores, err := parseItems(m[3])
		if err != nil {
			return nil, err
		}
		return MarksIntent{
			Reference: strings.TrimSpace(m[1]),
			Exam:      exam,
			Scores:    scores,
		}, nil
	}

	return nil, unparseable(ReasonNoCommand)
}

// normalize lowercases the transcript, folds dash variants to a plain
// hyphen, collapses whitespace, strips trailing punctuation, and converts
// spoken digit words to digits inside identifier-looking tokens.
func normalize(transcript string) string {
	text := strings.ToLower(strings.TrimSpace(transcript))
	text = dashVariants.Replace(text)
	text = strings.TrimRight(text, ".!?")

	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		out = append(out, tok)
		switch tok {
		case "usn":
			// Consecutive digit words after the marker concatenate into one
			// serial fragment: "usn two four" → "usn 24".
			var digits strings.Builder
			for i+1 < len(tokens) {
				d, ok := numberWords[tokens[i+1]]
				if !ok {
					break
				}
				digits.WriteString(d)
				i++
			}
			if digits.Len() > 0 {
				out = append(out, digits.String())
			}
		case "q", "question":
			if i+1 < len(tokens) {
				if d, ok := numberWords[tokens[i+1]]; ok {
					out = append(out, d)
					i++
				}
			}
		}
	}
	return strings.Join(out, " ")
}

// parseExam maps a raw assessment token (spaces already collapsed by
// normalize) to an exam. An absent token is allowed — the processor falls
// back to the session context. A bare "ia" is ambiguous between the two
// assessments and any other index is unknown; both are reported, never
// guessed.
func parseExam(token string) (roster.Exam, error) {
	token = strings.ReplaceAll(strings.TrimSpace(token), " ", "")
	switch token {
	case "":
		return "", nil
	case "ia1":
		return roster.ExamIA1, nil
	case "ia2":
		return roster.ExamIA2, nil
	case "ia":
		return "", unparseable(ReasonAmbiguousExam)
	default:
		return "", unparseable(ReasonUnknownExam)
	}
}

// parseItems parses the comma-separated question-score list of a marks
// command into a question → score map.
//
// Duplicate handling follows the correction-by-repetition rule: the same
// literal question token twice means the operator corrected themselves and
// the last value wins; the same question through two different spellings
// ("q3" and "question 3") indicates a malformed command and is rejected.
func parseItems(list string) (map[int]int, error) {
	type entry struct {
		form  string
		score int
	}
	entries := make(map[int]entry)

	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		m := itemRe.FindStringSubmatch(part)
		if m == nil {
			return nil, unparseable(ReasonBadItem)
		}
		form := m[1]
		question, _ := strconv.Atoi(m[2])
		score, err := strconv.Atoi(m[3])
		if err != nil {
			return nil, unparseable(ReasonBadItem)
		}

		if question < 1 || question > 8 {
			return nil, unparseable(ReasonUnknownItem)
		}
		if prev, seen := entries[question]; seen && prev.form != form {
			return nil, unparseable(ReasonDuplicateItem)
		}
		entries[question] = entry{form: form, score: score}
	}

	if len(entries) == 0 {
		return nil, unparseable(ReasonNoItems)
	}

	scores := make(map[int]int, len(entries))
	for q, e := range entries {
		scores[q] = e.score
	}
	return scores, nil
}

// capitalize uppercases the first byte of an ASCII word.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
