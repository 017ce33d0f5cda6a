// Package grading enforces the structural scoring contract of the internal
// assessments: eight questions grouped into four either/or pairs, a valid
// submission answering exactly one question from each pair, every score an
// integer in [0, 10], and the total always recomputed as the sum of the
// accepted scores.
//
// Validation is pure: it never reads or mutates stored data.
package grading

import "fmt"

const (
	// MinScore and MaxScore bound a single question's score, inclusive.
	MinScore = 0
	MaxScore = 10

	// ItemsRequired is the number of questions a valid submission answers.
	ItemsRequired = 4

	// MaxTotal is the highest achievable total (ItemsRequired * MaxScore).
	MaxTotal = 40
)

// Pairs lists the four fixed either/or question groups. A submission must
// contain exactly one member of each pair and never both.
var Pairs = [4][2]int{{1, 2}, {3, 4}, {5, 6}, {7, 8}}

// Result is a validated submission: the four accepted scores and their sum.
type Result struct {
	Scores map[int]int
	Total  int
}

// WrongItemCountError reports a submission that does not contain exactly
// [ItemsRequired] questions.
type WrongItemCountError struct {
	Got int
}

func (e *WrongItemCountError) Error() string {
	return fmt.Sprintf("grading: submission has %d questions, want exactly %d (one from each pair)", e.Got, ItemsRequired)
}

// PairConflictError reports a submission containing both members of an
// either/or pair.
type PairConflictError struct {
	Pair [2]int
}

func (e *PairConflictError) Error() string {
	return fmt.Sprintf("grading: questions Q%d and Q%d are an either/or pair; answer only one", e.Pair[0], e.Pair[1])
}

// ScoreOutOfRangeError reports a score outside [MinScore, MaxScore].
type ScoreOutOfRangeError struct {
	Question int
	Score    int
}

func (e *ScoreOutOfRangeError) Error() string {
	return fmt.Sprintf("grading: Q%d score %d is out of range [%d, %d]", e.Question, e.Score, MinScore, MaxScore)
}

// Validate checks scores (question index → score) against the structural and
// range rules and returns the accepted scores with their recomputed total.
//
// Violations are reported distinctly: [*WrongItemCountError] when the
// submission does not hold exactly four questions, [*PairConflictError] when
// both members of a pair are present, and [*ScoreOutOfRangeError] when any
// score falls outside [0, 10]. Pair membership is checked before ranges so a
// structurally broken submission is reported as such even if a score is also
// out of range.
func Validate(scores map[int]int) (Result, error) {
	// Question indexes outside 1..8 do not count as graded items.
	known := 0
	for q := range scores {
		if q >= 1 && q <= 8 {
			known++
		}
	}
	if known != ItemsRequired || len(scores) != ItemsRequired {
		return Result{}, &WrongItemCountError{Got: known}
	}

	for _, pair := range Pairs {
		_, hasA := scores[pair[0]]
		_, hasB := scores[pair[1]]
		if hasA && hasB {
			return Result{}, &PairConflictError{Pair: pair}
		}
	}

	accepted := make(map[int]int, ItemsRequired)
	total := 0
	for q, score := range scores {
		if score < MinScore || score > MaxScore {
			return Result{}, &ScoreOutOfRangeError{Question: q, Score: score}
		}
		accepted[q] = score
		total += score
	}
	return Result{Scores: accepted, Total: total}, nil
}
