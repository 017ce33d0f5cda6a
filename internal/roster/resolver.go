package roster

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// defaultMatchThreshold is the minimum similarity (0-100) an approximate
	// match must reach to be considered at all.
	defaultMatchThreshold = 70

	// defaultAmbiguityMargin is how far (in similarity points) the best
	// candidate must lead the runner-up to be accepted as the sole match.
	// Candidates within the margin of the best are reported as a tie.
	defaultAmbiguityMargin = 10
)

// ErrNoMatch is returned by [Resolver.Resolve] when no candidate clears the
// similarity threshold.
var ErrNoMatch = errors.New("roster: no matching student")

// AmbiguityError is returned by [Resolver.Resolve] when two or more
// candidates tie at or above the threshold. It names every tied candidate so
// the caller can prompt for a more specific reference instead of silently
// picking one.
type AmbiguityError struct {
	Reference  string
	Candidates []Student
}

func (e *AmbiguityError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = fmt.Sprintf("%s (%s)", c.Name, c.USN)
	}
	return fmt.Sprintf("roster: reference %q is ambiguous between %s",
		e.Reference, strings.Join(names, ", "))
}

// ResolverOption is a functional option for configuring a [Resolver].
type ResolverOption func(*Resolver)

// WithMatchThreshold sets the minimum similarity score (0-100) required for
// an approximate match to be accepted. Default: 70.
func WithMatchThreshold(threshold float64) ResolverOption {
	return func(r *Resolver) { r.threshold = threshold }
}

// WithAmbiguityMargin sets the lead (in similarity points) the best candidate
// needs over the runner-up to be the sole match. Default: 10.
func WithAmbiguityMargin(margin float64) ResolverOption {
	return func(r *Resolver) { r.margin = margin }
}

// WithUSNPrefix sets the common USN prefix used to expand bare-digit
// references. With prefix "1GA23CI0" the spoken reference "24" expands to
// "1GA23CI024"; a three-digit reference drops the trailing prefix zero, so
// "106" expands to "1GA23CI106". Empty (the default) disables expansion.
func WithUSNPrefix(prefix string) ResolverOption {
	return func(r *Resolver) { r.usnPrefix = prefix }
}

// Resolver maps a spoken or typed student reference — a full or partial USN,
// or a full, partial, or misspelled display name — to exactly one known
// student.
//
// Matching order:
//
//  1. Exact case-insensitive USN match (after prefix expansion of bare-digit
//     references).
//  2. Prefix match on the USN, for a spoken partial ID.
//  3. Approximate similarity against display names and USNs, on a 0-100
//     Jaro-Winkler scale. The best candidate wins only if it clears the
//     threshold AND leads every other qualifying candidate by the ambiguity
//     margin; otherwise the tie is surfaced as an [AmbiguityError].
//
// Resolution is deterministic for a fixed candidate set and purely a lookup;
// it never touches stored data. Resolver is read-only after construction and
// safe for concurrent use.
type Resolver struct {
	threshold float64
	margin    float64
	usnPrefix string
}

// NewResolver returns a [Resolver] configured with the supplied options.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		threshold: defaultMatchThreshold,
		margin:    defaultAmbiguityMargin,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve finds the single student candidates refers to. It returns
// [ErrNoMatch] when nothing qualifies and an [*AmbiguityError] when the best
// approximate matches tie.
func (r *Resolver) Resolve(reference string, candidates []Student) (Student, error) {
	ref := strings.ToLower(strings.TrimSpace(reference))
	if ref == "" || len(candidates) == 0 {
		return Student{}, ErrNoMatch
	}

	// Sort a copy by USN so scanning order — and therefore tie reporting —
	// is deterministic regardless of the caller's slice order.
	sorted := slices.Clone(candidates)
	slices.SortFunc(sorted, func(a, b Student) int {
		return strings.Compare(strings.ToLower(a.USN), strings.ToLower(b.USN))
	})

	expanded := r.expandUSN(ref)

	// Stage 1: exact USN match.
	for _, st := range sorted {
		usn := strings.ToLower(st.USN)
		if usn == ref || usn == expanded {
			return st, nil
		}
	}

	// Stage 2: USN prefix match. A unique prefix identifies the student; a
	// shared prefix is ambiguous and must not be silently resolved.
	var prefixMatches []Student
	for _, st := range sorted {
		usn := strings.ToLower(st.USN)
		if strings.HasPrefix(usn, ref) || (expanded != ref && strings.HasPrefix(usn, expanded)) {
			prefixMatches = append(prefixMatches, st)
		}
	}
	switch len(prefixMatches) {
	case 0:
		// fall through to approximate matching
	case 1:
		return prefixMatches[0], nil
	default:
		return Student{}, &AmbiguityError{Reference: reference, Candidates: prefixMatches}
	}

	// Stage 3: approximate similarity against names and USNs.
	type scored struct {
		student Student
		score   float64
	}
	var qualifying []scored
	for _, st := range sorted {
		if s := similarity(ref, st); s >= r.threshold {
			qualifying = append(qualifying, scored{student: st, score: s})
		}
	}
	if len(qualifying) == 0 {
		return Student{}, ErrNoMatch
	}

	best := qualifying[0]
	for _, q := range qualifying[1:] {
		if q.score > best.score {
			best = q
		}
	}

	var tied []Student
	for _, q := range qualifying {
		if best.score-q.score < r.margin {
			tied = append(tied, q.student)
		}
	}
	if len(tied) > 1 {
		return Student{}, &AmbiguityError{Reference: reference, Candidates: tied}
	}
	return best.student, nil
}

// expandUSN expands a bare-digit reference using the configured USN prefix.
// References that are not 2-3 digits, or when no prefix is set, are returned
// unchanged.
func (r *Resolver) expandUSN(ref string) string {
	if r.usnPrefix == "" || len(ref) < 2 || len(ref) > 3 {
		return ref
	}
	for _, c := range ref {
		if c < '0' || c > '9' {
			return ref
		}
	}
	prefix := strings.ToLower(r.usnPrefix)
	// Rosters mix 2- and 3-digit serials; a prefix ending in a padding zero
	// drops it when three digits are spoken.
	if strings.HasSuffix(prefix, "0") && len(ref) == 3 {
		return prefix[:len(prefix)-1] + ref
	}
	return prefix + ref
}

// similarity scores how closely ref matches st on a 0-100 scale. It takes the
// best Jaro-Winkler score across the USN, the full display name, and each
// name token, so a spoken first name can match a "First Last" roster entry.
func similarity(ref string, st Student) float64 {
	best := matchr.JaroWinkler(ref, strings.ToLower(st.USN), false)
	name := strings.ToLower(st.Name)
	if s := matchr.JaroWinkler(ref, name, false); s > best {
		best = s
	}
	for _, token := range strings.Fields(name) {
		if s := matchr.JaroWinkler(ref, token, false); s > best {
			best = s
		}
	}
	return best * 100
}
