// Package query turns free-text diagnostic queries into structured search
// terms.
//
// Extraction is pure and deterministic: no I/O, no randomness. The same raw
// text always yields the same DiagnosticQuery, which keeps search results
// cacheable by normalized query text.
package query

import (
	"regexp"
	"strings"
)

// DiagnosticQuery is the structured form of a free-text query.
type DiagnosticQuery struct {
	// PrimaryTerms holds the whole cleaned phrase plus key sub-phrases:
	// mined medical phrases, stopword-free n-grams, and sub-phrases naming
	// specific pathological entities. Never empty when the raw text has at
	// least five characters.
	PrimaryTerms []string

	// SecondaryTerms holds the remaining sub-phrases and individually
	// significant words.
	SecondaryTerms []string

	// OrganSystem is the inferred organ/domain category, or "" when no
	// keyword matches.
	OrganSystem string

	// RawText is the original input.
	RawText string
}

var (
	// asidePattern strips parenthetical and bracketed asides.
	asidePattern = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)

	// punctPattern strips punctuation that is not a phrase separator.
	punctPattern = regexp.MustCompile(`[^a-z0-9,;/\s-]`)

	whitespacePattern = regexp.MustCompile(`\s+`)

	// adjNounPattern mines adjective+noun medical phrases whose noun carries
	// a pathological suffix ("follicular adenoma", "chronic thyroiditis").
	adjNounPattern = regexp.MustCompile(`\b[a-z-]{3,} [a-z-]{2,}(?:oma|itis|osis|pathy|emia|plasia|trophy)s?\b`)

	// suffixWordPattern mines single words with a pathological suffix.
	suffixWordPattern = regexp.MustCompile(`\b[a-z-]{2,}(?:oma|itis|osis|pathy|emia|plasia|trophy)s?\b`)

	// separatorPattern splits cleaned text into candidate sub-phrases.
	separatorPattern = regexp.MustCompile(`,|;|/| and | or | with | versus | vs `)
)

// entitySuffixes marks sub-phrases naming a specific pathological entity.
// A sub-phrase containing a word with one of these endings is promoted to a
// primary term.
var entitySuffixes = []string{
	"carcinoma", "sarcoma", "lymphoma", "leukemia", "melanoma", "blastoma",
	"adenoma", "papilloma", "fibroma", "lipoma", "myoma", "teratoma",
	"hamartoma", "granuloma", "mesothelioma", "cytoma", "carcinoid",
	"hyperplasia", "dysplasia", "metaplasia", "anaplasia",
}

// genericTerms are words too common in pathology queries to distinguish
// topics. They never become secondary terms on their own.
var genericTerms = map[string]bool{
	"diagnosis": true, "differential": true, "clinical": true, "tissue": true,
	"biopsy": true, "specimen": true, "lesion": true, "disease": true,
	"disorder": true, "syndrome": true, "finding": true, "findings": true,
	"history": true, "patient": true, "section": true, "slide": true,
	"stain": true, "staining": true, "microscopy": true, "histology": true,
	"pathology": true, "features": true, "changes": true, "normal": true,
}

// stopwords are skipped when enumerating n-gram candidate phrases.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "with": true,
	"by": true, "from": true, "as": true, "is": true, "are": true, "was": true,
	"this": true, "that": true, "versus": true, "vs": true,
}

// organKeywords maps query keywords to organ systems. Scanned in order;
// first match wins.
var organKeywords = []struct {
	keyword string
	system  string
}{
	{"thyroid", "endocrine"},
	{"parathyroid", "endocrine"},
	{"adrenal", "endocrine"},
	{"pituitary", "endocrine"},
	{"pancrea", "endocrine"},
	{"lung", "respiratory"},
	{"pulmonary", "respiratory"},
	{"bronch", "respiratory"},
	{"pleura", "respiratory"},
	{"heart", "cardiovascular"},
	{"cardiac", "cardiovascular"},
	{"myocard", "cardiovascular"},
	{"aort", "cardiovascular"},
	{"vascul", "cardiovascular"},
	{"liver", "hepatobiliary"},
	{"hepat", "hepatobiliary"},
	{"biliary", "hepatobiliary"},
	{"gallbladder", "hepatobiliary"},
	{"kidney", "renal"},
	{"renal", "renal"},
	{"glomerul", "renal"},
	{"bladder", "urinary"},
	{"urothel", "urinary"},
	{"stomach", "gastrointestinal"},
	{"gastric", "gastrointestinal"},
	{"colon", "gastrointestinal"},
	{"intestin", "gastrointestinal"},
	{"esophag", "gastrointestinal"},
	{"breast", "breast"},
	{"mammary", "breast"},
	{"prostate", "male genital"},
	{"testi", "male genital"},
	{"ovar", "female genital"},
	{"uter", "female genital"},
	{"cervix", "female genital"},
	{"cervical", "female genital"},
	{"endometri", "female genital"},
	{"skin", "dermatologic"},
	{"cutaneous", "dermatologic"},
	{"epiderm", "dermatologic"},
	{"bone", "musculoskeletal"},
	{"muscle", "musculoskeletal"},
	{"joint", "musculoskeletal"},
	{"brain", "nervous"},
	{"neural", "nervous"},
	{"neuro", "nervous"},
	{"lymph", "hematologic"},
	{"marrow", "hematologic"},
	{"spleen", "hematologic"},
	{"blood", "hematologic"},
}

// Extract converts raw free text into a DiagnosticQuery.
func Extract(rawText string) DiagnosticQuery {
	q := DiagnosticQuery{RawText: rawText}

	cleaned := Clean(rawText)
	if cleaned == "" {
		// Cleaning can erase the whole query ("[slide 12]" is all aside).
		// Retry keeping aside content, then fall back to the raw text, so
		// every non-blank query yields terms.
		cleaned = cleanKeepingAsides(rawText)
	}
	if cleaned == "" {
		cleaned = collapse(strings.ToLower(rawText))
	}
	if cleaned == "" {
		return q
	}

	primary := newTermSet()
	secondary := newTermSet()

	// The whole cleaned phrase anchors the search when long enough to be
	// meaningful.
	if len(cleaned) >= 5 {
		primary.add(cleaned)
	}

	// Mine medical phrases: adjective+noun combinations first so the longer
	// phrase wins dedup, then bare suffix words.
	for _, m := range adjNounPattern.FindAllString(cleaned, -1) {
		if first, _, ok := strings.Cut(m, " "); ok && stopwords[first] {
			continue
		}
		primary.add(m)
	}
	for _, m := range suffixWordPattern.FindAllString(cleaned, -1) {
		primary.add(m)
	}

	// Stopword-free n-grams are candidate phrases too.
	words := Words(rawText)
	for _, gram := range ngrams(words) {
		primary.add(gram)
	}

	// Separator-delimited sub-phrases: specific pathological entities are
	// primary, the rest secondary.
	for _, sub := range splitSubPhrases(cleaned) {
		if sub == cleaned {
			continue
		}
		if isPathologicalEntity(sub) {
			primary.add(sub)
		} else if len(sub) >= 4 {
			secondary.add(sub)
		}
	}

	// Individually significant words.
	for _, word := range words {
		if len(word) >= 4 && !genericTerms[word] && !stopwords[word] && !primary.has(word) {
			secondary.add(word)
		}
	}

	// Guarantee a primary term for any non-trivial query even when cleaning
	// shortened it below the whole-phrase cutoff.
	if primary.empty() && len(rawText) >= 5 {
		primary.add(cleaned)
	}

	q.PrimaryTerms = primary.slice()
	q.SecondaryTerms = secondary.slice()
	q.OrganSystem = organSystem(cleaned)
	return q
}

// Clean strips asides and punctuation, collapses whitespace, and lowercases.
// Phrase separators (",", ";", "/") survive cleaning so sub-phrase splitting
// still sees them.
func Clean(rawText string) string {
	s := strings.ToLower(rawText)
	s = asidePattern.ReplaceAllString(s, " ")
	s = punctPattern.ReplaceAllString(s, " ")
	return collapse(s)
}

// cleanKeepingAsides cleans without the aside stripping, for queries that are
// nothing but aside ("[slide 12]").
func cleanKeepingAsides(rawText string) string {
	s := strings.ToLower(rawText)
	s = punctPattern.ReplaceAllString(s, " ")
	return collapse(s)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

var separatorCharPattern = regexp.MustCompile(`[,;/]`)

// Words tokenizes cleaned text into bare words, with separator characters
// removed.
func Words(rawText string) []string {
	s := separatorCharPattern.ReplaceAllString(Clean(rawText), " ")
	return strings.Fields(s)
}

// splitSubPhrases splits cleaned text on phrase separators.
func splitSubPhrases(cleaned string) []string {
	parts := separatorPattern.Split(cleaned, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ngrams enumerates 2-4 word stopword-free n-grams of at least 6 characters.
func ngrams(words []string) []string {
	var grams []string
	for n := 2; n <= 4; n++ {
		for i := 0; i+n <= len(words); i++ {
			window := words[i : i+n]
			ok := true
			for _, w := range window {
				if stopwords[w] {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			gram := strings.Join(window, " ")
			if len(gram) >= 6 {
				grams = append(grams, gram)
			}
		}
	}
	return grams
}

// isPathologicalEntity reports whether a sub-phrase names a specific
// pathological entity by suffix.
func isPathologicalEntity(sub string) bool {
	for _, word := range strings.Fields(sub) {
		word = strings.TrimSuffix(word, "s")
		for _, suffix := range entitySuffixes {
			if strings.HasSuffix(word, suffix) {
				return true
			}
		}
	}
	return false
}

// organSystem returns the first organ-system keyword match, or "".
func organSystem(cleaned string) string {
	for _, entry := range organKeywords {
		if strings.Contains(cleaned, entry.keyword) {
			return entry.system
		}
	}
	return ""
}

// termSet deduplicates terms while preserving insertion order.
type termSet struct {
	seen  map[string]bool
	terms []string
}

func newTermSet() *termSet {
	return &termSet{seen: make(map[string]bool)}
}

func (s *termSet) add(term string) {
	if term == "" || s.seen[term] {
		return
	}
	s.seen[term] = true
	s.terms = append(s.terms, term)
}

func (s *termSet) has(term string) bool { return s.seen[term] }

func (s *termSet) empty() bool { return len(s.terms) == 0 }

func (s *termSet) slice() []string { return s.terms }
