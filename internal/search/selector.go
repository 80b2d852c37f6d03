package search

import "strings"

// Selector maps category/subcategory hints and query keywords to a short,
// ordered list of shard names. The cap on the returned list bounds the
// number of shard fetches per search; it is a cost control, not a
// correctness requirement.
type Selector struct {
	generalShard string
	maxShards    int
}

// NewSelector creates a selector that always appends generalShard and caps
// the list at maxShards entries.
func NewSelector(generalShard string, maxShards int) *Selector {
	if maxShards < 2 {
		maxShards = 2
	}
	return &Selector{generalShard: generalShard, maxShards: maxShards}
}

// shardKeywords maps lowercase keyword substrings to shard names. Scanned in
// order so earlier entries take precedence.
var shardKeywords = []struct {
	keyword string
	shards  []string
}{
	{"endocrine", []string{"endocrine-pathology"}},
	{"thyroid", []string{"endocrine-pathology"}},
	{"adrenal", []string{"endocrine-pathology"}},
	{"pituitary", []string{"endocrine-pathology"}},
	{"respiratory", []string{"respiratory-pathology"}},
	{"lung", []string{"respiratory-pathology"}},
	{"pulmonary", []string{"respiratory-pathology"}},
	{"cardiovascular", []string{"cardiovascular-pathology"}},
	{"cardiac", []string{"cardiovascular-pathology"}},
	{"heart", []string{"cardiovascular-pathology"}},
	{"vascular", []string{"cardiovascular-pathology"}},
	{"gastrointestinal", []string{"gi-pathology", "hepatobiliary-pathology"}},
	{"stomach", []string{"gi-pathology"}},
	{"colon", []string{"gi-pathology"}},
	{"intestin", []string{"gi-pathology"}},
	{"esophag", []string{"gi-pathology"}},
	{"hepatobiliary", []string{"hepatobiliary-pathology"}},
	{"liver", []string{"hepatobiliary-pathology"}},
	{"hepat", []string{"hepatobiliary-pathology"}},
	{"pancrea", []string{"gi-pathology", "endocrine-pathology"}},
	{"renal", []string{"renal-pathology"}},
	{"kidney", []string{"renal-pathology"}},
	{"urinary", []string{"renal-pathology"}},
	{"breast", []string{"breast-pathology"}},
	{"gynecologic", []string{"gyn-pathology"}},
	{"ovar", []string{"gyn-pathology"}},
	{"uter", []string{"gyn-pathology"}},
	{"cervi", []string{"gyn-pathology"}},
	{"prostate", []string{"male-genital-pathology"}},
	{"testi", []string{"male-genital-pathology"}},
	{"skin", []string{"dermatopathology"}},
	{"dermat", []string{"dermatopathology"}},
	{"bone", []string{"musculoskeletal-pathology"}},
	{"soft tissue", []string{"musculoskeletal-pathology"}},
	{"muscle", []string{"musculoskeletal-pathology"}},
	{"neuro", []string{"neuropathology"}},
	{"brain", []string{"neuropathology"}},
	{"nervous", []string{"neuropathology"}},
	{"hematologic", []string{"hematopathology"}},
	{"lymph", []string{"hematopathology"}},
	{"leukemia", []string{"hematopathology"}},
	{"marrow", []string{"hematopathology"}},
	{"infectious", []string{"infectious-pathology"}},
	{"inflammat", []string{"general-pathology"}},
	{"neoplas", []string{"general-pathology"}},
}

// Select returns the ordered shard list for the given hints and raw query.
// The subcategory hint is scanned first because it is the more specific
// signal; the category hint is consulted only when the subcategory yields
// nothing. Query keywords fill remaining slots and the general shard is
// always appended last.
func (s *Selector) Select(categoryHint, subcategoryHint, rawQuery string) []string {
	var shards []string
	seen := make(map[string]bool)

	appendMatches := func(text string) {
		if text == "" {
			return
		}
		lower := strings.ToLower(text)
		for _, entry := range shardKeywords {
			if !strings.Contains(lower, entry.keyword) {
				continue
			}
			for _, shard := range entry.shards {
				if !seen[shard] {
					seen[shard] = true
					shards = append(shards, shard)
				}
			}
		}
	}

	appendMatches(subcategoryHint)
	if len(shards) == 0 {
		appendMatches(categoryHint)
	}
	appendMatches(rawQuery)

	if !seen[s.generalShard] {
		shards = append(shards, s.generalShard)
	}

	// Keep the general fallback even when the cap truncates the tail.
	if len(shards) > s.maxShards {
		shards = shards[:s.maxShards]
		if shards[len(shards)-1] != s.generalShard && !contains(shards, s.generalShard) {
			shards[len(shards)-1] = s.generalShard
		}
	}
	return shards
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
