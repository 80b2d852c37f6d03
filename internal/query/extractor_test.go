package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractWholePhraseIsPrimary(t *testing.T) {
	q := Extract("Medullary Thyroid Carcinoma")
	require.NotEmpty(t, q.PrimaryTerms)
	assert.Equal(t, "medullary thyroid carcinoma", q.PrimaryTerms[0])
	assert.Equal(t, "endocrine", q.OrganSystem)
}

func TestExtractPrimaryNonEmptyForRealQueries(t *testing.T) {
	// Property: any meaningful query of length >= 5 yields primary terms.
	queries := []string{
		"acute appendicitis",
		"follicular adenoma of the thyroid",
		"lung, squamous cell carcinoma",
		"glomerulonephritis (membranous)",
		"Barrett esophagus with dysplasia",
		"chronic hepatitis",
		"psoriasis",
		// Degenerate inputs where cleaning erases everything: the raw text
		// still anchors a primary term.
		"[slide 12]",
		"(frozen section)",
		"!!! ???",
		"((((((",
	}
	for _, raw := range queries {
		q := Extract(raw)
		assert.NotEmpty(t, q.PrimaryTerms, "query %q", raw)
	}
}

func TestExtractAsideOnlyQuery(t *testing.T) {
	// When the whole query is a bracketed aside, the aside content is kept
	// rather than stripped to nothing.
	q := Extract("[slide 12]")
	require.NotEmpty(t, q.PrimaryTerms)
	assert.Equal(t, "slide 12", q.PrimaryTerms[0])
}

func TestExtractStripsAsidesAndPunctuation(t *testing.T) {
	q := Extract("Papillary thyroid carcinoma (classic variant) [slide 12]!")
	assert.Equal(t, "papillary thyroid carcinoma", q.PrimaryTerms[0])
	for _, term := range q.PrimaryTerms {
		assert.NotContains(t, term, "slide")
		assert.NotContains(t, term, "variant")
	}
}

func TestExtractMinesMedicalPhrases(t *testing.T) {
	q := Extract("biopsy showing follicular adenoma with colloid")
	assert.Contains(t, q.PrimaryTerms, "follicular adenoma")
}

func TestExtractSuffixWords(t *testing.T) {
	q := Extract("findings consistent with thyroiditis")
	assert.Contains(t, q.PrimaryTerms, "thyroiditis")
}

func TestExtractSubPhrasePromotion(t *testing.T) {
	// Entity-naming sub-phrases become primary, the rest secondary.
	q := Extract("chronic inflammation, invasive ductal carcinoma")
	assert.Contains(t, q.PrimaryTerms, "invasive ductal carcinoma")
	assert.Contains(t, q.SecondaryTerms, "chronic inflammation")
}

func TestExtractSecondaryWords(t *testing.T) {
	q := Extract("granulomatous inflammation of the lung")
	assert.Contains(t, q.SecondaryTerms, "granulomatous")
	// Generic terms never become secondary terms on their own.
	q = Extract("tissue diagnosis of clinical specimen")
	assert.NotContains(t, q.SecondaryTerms, "tissue")
	assert.NotContains(t, q.SecondaryTerms, "diagnosis")
	assert.NotContains(t, q.SecondaryTerms, "clinical")
	assert.NotContains(t, q.SecondaryTerms, "specimen")
}

func TestExtractOrganSystemFirstMatchWins(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"medullary thyroid carcinoma", "endocrine"},
		{"lung abscess", "respiratory"},
		{"hepatocellular carcinoma", "hepatobiliary"},
		{"renal cell carcinoma", "renal"},
		{"invasive ductal carcinoma of the breast", "breast"},
		{"unclassifiable lesion", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.raw).OrganSystem)
		})
	}
}

func TestExtractDeduplicates(t *testing.T) {
	q := Extract("carcinoma carcinoma carcinoma")
	counts := map[string]int{}
	for _, term := range q.PrimaryTerms {
		counts[term]++
	}
	for term, n := range counts {
		assert.Equal(t, 1, n, "term %q duplicated", term)
	}
}

func TestExtractDeterministic(t *testing.T) {
	a := Extract("medullary thyroid carcinoma with amyloid stroma")
	b := Extract("medullary thyroid carcinoma with amyloid stroma")
	assert.Equal(t, a, b)
}

func TestExtractShortAndEmptyInput(t *testing.T) {
	q := Extract("")
	assert.Empty(t, q.PrimaryTerms)

	q = Extract("rbc")
	// Below the whole-phrase cutoff and no mined phrases: nothing primary.
	assert.Empty(t, q.PrimaryTerms)
}

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Hello   World  ", "hello world"},
		{"a (b) c", "a c"},
		{"x [y] z", "x z"},
		{"alpha, beta; gamma", "alpha, beta; gamma"},
		{"What?!", "what"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clean(tt.in))
	}
}
