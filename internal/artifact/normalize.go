package artifact

import (
	"encoding/json"
	"strings"
)

// Option is one answer option of a generated question.
type Option struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation,omitempty"`
	OrderIndex  int    `json:"orderIndex"`
}

// Question is the validated artifact. Immutable once returned: the pipeline
// hands out a fresh copy per invocation.
type Question struct {
	ID          string   `json:"id,omitempty"`
	Stem        string   `json:"stem"`
	Options     []Option `json:"options"`
	Explanation string   `json:"explanation,omitempty"`
	Topic       string   `json:"topic,omitempty"`
}

// rawQuestion accepts every field-name variant the backends emit. The
// synonym sets are collapsed once, here at the input boundary, with a fixed
// precedence; nothing downstream ever consults the variants.
type rawQuestion struct {
	// Stem precedence: question > stem > prompt.
	QuestionField string `json:"question"`
	StemField     string `json:"stem"`
	PromptField   string `json:"prompt"`

	// Options precedence: options > answerOptions > choices.
	Options       []rawOption `json:"options"`
	AnswerOptions []rawOption `json:"answerOptions"`
	Choices       []rawOption `json:"choices"`

	Explanation string `json:"explanation"`
	Topic       string `json:"topic"`
}

type rawOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`

	// IsCorrect precedence: isCorrect > is_correct > correct.
	IsCorrect  *bool `json:"isCorrect"`
	IsCorrect2 *bool `json:"is_correct"`
	Correct    *bool `json:"correct"`

	Explanation string `json:"explanation"`
	Rationale   string `json:"rationale"`

	OrderIndex *int `json:"orderIndex"`
}

// optionLetters supplies default sequential option IDs.
const optionLetters = "ABCDEFGHIJ"

// Parse extracts, repairs, normalizes, and validates one artifact from
// backend text. Extraction candidates are tried in order until one yields a
// valid question, so a stray brace group in surrounding prose cannot mask
// the real object. The returned question has no ID; the pipeline assigns
// one, which keeps Parse idempotent over its own re-serialized output.
func Parse(text string) (*Question, error) {
	candidates := jsonCandidates(text)
	if len(candidates) == 0 {
		return nil, &ParseError{Reason: "no JSON object found in output"}
	}

	var lastErr error
	for _, candidate := range candidates {
		cleaned := cleanup(candidate)

		var raw rawQuestion
		if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
			repaired := repair(cleaned)
			if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
				lastErr = &ParseError{Reason: "malformed JSON after repair: " + err.Error()}
				continue
			}
		}

		q := normalize(raw)
		if err := Validate(q); err != nil {
			lastErr = err
			continue
		}
		return q, nil
	}
	return nil, lastErr
}

// normalize collapses the accepted synonyms into the canonical Question.
func normalize(raw rawQuestion) *Question {
	q := &Question{
		Stem:        firstNonEmpty(raw.QuestionField, raw.StemField, raw.PromptField),
		Explanation: raw.Explanation,
		Topic:       raw.Topic,
	}

	rawOpts := raw.Options
	if len(rawOpts) == 0 {
		rawOpts = raw.AnswerOptions
	}
	if len(rawOpts) == 0 {
		rawOpts = raw.Choices
	}

	q.Options = make([]Option, 0, len(rawOpts))
	for i, ro := range rawOpts {
		opt := Option{
			ID:          strings.TrimSpace(ro.ID),
			Text:        strings.TrimSpace(ro.Text),
			IsCorrect:   firstBool(ro.IsCorrect, ro.IsCorrect2, ro.Correct),
			Explanation: firstNonEmpty(ro.Explanation, ro.Rationale),
			OrderIndex:  i,
		}
		if opt.ID == "" && i < len(optionLetters) {
			opt.ID = string(optionLetters[i])
		}
		if ro.OrderIndex != nil {
			opt.OrderIndex = *ro.OrderIndex
		}
		q.Options = append(q.Options, opt)
	}
	return q
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstBool(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}
