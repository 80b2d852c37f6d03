package artifact

import (
	"fmt"
	"math/rand"
)

// minOptions is the smallest acceptable option count for a question.
const minOptions = 4

// Validate enforces the artifact invariants: a non-empty stem, at least four
// options with non-empty text, and exactly one option flagged correct.
func Validate(q *Question) error {
	if q.Stem == "" {
		return &ValidationError{Reason: "question stem is empty"}
	}
	if len(q.Options) < minOptions {
		return &ValidationError{Reason: fmt.Sprintf("expected at least %d options, got %d", minOptions, len(q.Options))}
	}

	correct := 0
	for _, opt := range q.Options {
		if opt.Text == "" {
			return &ValidationError{Reason: fmt.Sprintf("option %s has empty text", opt.ID)}
		}
		if opt.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return &ValidationError{Reason: fmt.Sprintf("expected exactly one correct option, got %d", correct)}
	}
	return nil
}

// Shuffle applies a uniform-random permutation to the option order,
// removing the positional bias backends introduce (the correct answer
// clusters toward the first positions otherwise). The IsCorrect association
// travels with its option; OrderIndex is rewritten to the new positions.
//
// rng may be nil, in which case the global source is used. Tests pass a
// seeded source.
func Shuffle(q *Question, rng *rand.Rand) {
	swap := func(i, j int) {
		q.Options[i], q.Options[j] = q.Options[j], q.Options[i]
	}
	if rng != nil {
		rng.Shuffle(len(q.Options), swap)
	} else {
		rand.Shuffle(len(q.Options), swap)
	}
	for i := range q.Options {
		q.Options[i].OrderIndex = i
	}
}
