package search

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/quizd/internal/query"
	"github.com/fyrsmithlabs/quizd/internal/shardstore"
)

// Scoring bonuses and weights. Like the quality thresholds these are tuned
// empirically; their relative ordering (title > lesson > content, exact >
// partial, primary > secondary) is what the algorithm depends on.
const (
	exactTitleBonus   = 100
	exactLessonBonus  = 60
	exactContentBonus = 30

	partialTitleBonus   = 40
	partialLessonBonus  = 25
	partialContentBonus = 10

	pairTitleBonus   = 30
	pairLessonBonus  = 20
	pairContentBonus = 12

	primaryTitleWeight   = 8
	primaryLessonWeight  = 6
	primaryContentWeight = 3

	secondaryTitleWeight   = 4
	secondaryLessonWeight  = 3
	secondaryContentWeight = 1

	categoryFlatBonus    = 20
	subcategoryFlatBonus = 30

	// minPenalizedScore floors the both-hints-miss penalty so a topic with
	// overwhelming lexical overlap is demoted, not erased.
	minPenalizedScore = 5

	specificityPenalty   = 40
	organConflictPenalty = 30

	// coOccurrenceFraction is the share of an entity's defining terms that
	// must appear in a candidate to avoid the specificity penalty.
	coOccurrenceFraction = 0.6
)

// coOccurrenceGroups lists highly specific diagnoses and the terms expected
// to co-occur with them. A candidate matching the trigger query but missing
// most defining terms is penalized: generic lexical overlap must not
// outweigh domain specificity.
var coOccurrenceGroups = []struct {
	trigger  string
	defining []string
}{
	{"medullary thyroid carcinoma", []string{"medullary", "calcitonin", "amyloid", "parafollicular", "c-cell"}},
	{"papillary thyroid carcinoma", []string{"papillary", "psammoma", "nuclear grooves", "orphan annie"}},
	{"follicular adenoma", []string{"follicular", "capsule", "colloid"}},
	{"hashimoto", []string{"hashimoto", "lymphocytic", "hurthle"}},
	{"pheochromocytoma", []string{"chromaffin", "catecholamine", "zellballen"}},
	{"granulosa cell tumor", []string{"granulosa", "call-exner", "coffee bean"}},
	{"seminoma", []string{"seminoma", "germ cell", "fried egg"}},
}

// organConflicts pairs a query-side organ term with vocabulary from an
// unrelated organ system. A candidate carrying the conflicting vocabulary
// without the query's own organ term is penalized.
var organConflicts = []struct {
	queryTerm    string
	conflictTerm string
}{
	{"thyroid", "prostat"},
	{"thyroid", "endometri"},
	{"thyroid", "glomerul"},
	{"thyroid", "hepatocyte"},
	{"hepat", "glomerul"},
	{"renal", "bronchiol"},
	{"cardiac", "crypt abscess"},
	{"breast", "seminiferous"},
	{"prostat", "follicular"},
}

// termMatcher pairs a term with its word-boundary regex.
type termMatcher struct {
	term     string
	boundary *regexp.Regexp
}

func newTermMatcher(term string) termMatcher {
	return termMatcher{
		term:     term,
		boundary: regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`),
	}
}

// scorer scores topics against one extracted query. Matchers are compiled
// once per search and reused across every topic.
type scorer struct {
	query           query.DiagnosticQuery
	cleanedQuery    string
	categoryHint    string
	subcategoryHint string

	primary   []termMatcher
	secondary []termMatcher
	pairs     []termMatcher
}

func newScorer(q query.DiagnosticQuery, categoryHint, subcategoryHint string) *scorer {
	s := &scorer{
		query:           q,
		cleanedQuery:    query.Clean(q.RawText),
		categoryHint:    strings.ToLower(strings.TrimSpace(categoryHint)),
		subcategoryHint: strings.ToLower(strings.TrimSpace(subcategoryHint)),
	}
	for _, t := range q.PrimaryTerms {
		s.primary = append(s.primary, newTermMatcher(t))
	}
	for _, t := range q.SecondaryTerms {
		s.secondary = append(s.secondary, newTermMatcher(t))
	}
	// Adjacent word pairs from the raw query earn a medium bonus; they
	// catch partial phrase matches the whole-phrase matcher misses.
	words := query.Words(q.RawText)
	for i := 0; i+1 < len(words); i++ {
		s.pairs = append(s.pairs, newTermMatcher(words[i]+" "+words[i+1]))
	}
	return s
}

// score computes the relevance score of one topic. Always >= 0.
func (s *scorer) score(t shardstore.TopicRecord) int {
	title := strings.ToLower(t.Topic)
	lesson := strings.ToLower(t.Lesson)
	content := strings.ToLower(t.Content)

	score := 0

	// Phrase-match bonuses: each primary term earns its single best match,
	// exact before partial, title before lesson before content.
	for _, m := range s.primary {
		switch {
		case m.boundary.MatchString(title):
			score += exactTitleBonus
		case m.boundary.MatchString(lesson):
			score += exactLessonBonus
		case m.boundary.MatchString(content):
			score += exactContentBonus
		case strings.Contains(title, m.term):
			score += partialTitleBonus
		case strings.Contains(lesson, m.term):
			score += partialLessonBonus
		case strings.Contains(content, m.term):
			score += partialContentBonus
		}
	}

	for _, m := range s.pairs {
		switch {
		case m.boundary.MatchString(title):
			score += pairTitleBonus
		case m.boundary.MatchString(lesson):
			score += pairLessonBonus
		case m.boundary.MatchString(content):
			score += pairContentBonus
		}
	}

	// Term-frequency score: literal occurrence counts, weighted by term
	// class and field.
	for _, m := range s.primary {
		score += len(m.boundary.FindAllStringIndex(title, -1)) * primaryTitleWeight
		score += len(m.boundary.FindAllStringIndex(lesson, -1)) * primaryLessonWeight
		score += len(m.boundary.FindAllStringIndex(content, -1)) * primaryContentWeight
	}
	for _, m := range s.secondary {
		score += len(m.boundary.FindAllStringIndex(title, -1)) * secondaryTitleWeight
		score += len(m.boundary.FindAllStringIndex(lesson, -1)) * secondaryLessonWeight
		score += len(m.boundary.FindAllStringIndex(content, -1)) * secondaryContentWeight
	}

	full := title + " " + lesson + " " + content

	// Category/subcategory hints multiply the accumulated score; both hints
	// missing entirely is a strong sign the topic is from the wrong domain.
	catHit := s.categoryHint != "" && strings.Contains(full, s.categoryHint)
	subHit := s.subcategoryHint != "" && strings.Contains(full, s.subcategoryHint)
	if catHit {
		score = score*2 + categoryFlatBonus
	}
	if subHit {
		score = score*3 + subcategoryFlatBonus
	}
	if s.categoryHint != "" && s.subcategoryHint != "" && !catHit && !subHit && score > 0 {
		score /= 10
		if score < minPenalizedScore {
			score = minPenalizedScore
		}
	}

	score -= s.specificityPenalties(full)
	if score < 0 {
		score = 0
	}
	return score
}

// specificityPenalties sums the co-occurrence and organ-conflict penalties
// for one candidate.
func (s *scorer) specificityPenalties(candidate string) int {
	penalty := 0

	for _, group := range coOccurrenceGroups {
		if !strings.Contains(s.cleanedQuery, group.trigger) {
			continue
		}
		present := 0
		for _, term := range group.defining {
			if strings.Contains(candidate, term) {
				present++
			}
		}
		if float64(present) < coOccurrenceFraction*float64(len(group.defining)) {
			penalty += specificityPenalty
		}
	}

	for _, pair := range organConflicts {
		if !strings.Contains(s.cleanedQuery, pair.queryTerm) {
			continue
		}
		if strings.Contains(candidate, pair.conflictTerm) && !strings.Contains(candidate, pair.queryTerm) {
			penalty += organConflictPenalty
		}
	}

	return penalty
}
