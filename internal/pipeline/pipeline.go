// Package pipeline wires term extraction, shard selection, relevance search,
// generation, and validation into the two public operations of quizd.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quizd/internal/artifact"
	"github.com/fyrsmithlabs/quizd/internal/llm"
	"github.com/fyrsmithlabs/quizd/internal/search"
	"github.com/fyrsmithlabs/quizd/internal/shardstore"
)

// ErrNoSuitableContent is returned by Generate when the search found no
// match of sufficient quality to ground a question on.
var ErrNoSuitableContent = errors.New("no suitable content found for query")

// maxContextChars truncates retrieved content before prompting so oversized
// topics do not blow the backend's context window.
const maxContextChars = 8000

// SearchRequest is the public search operation's input.
type SearchRequest struct {
	QueryText       string `json:"queryText"`
	CategoryHint    string `json:"categoryHint,omitempty"`
	SubcategoryHint string `json:"subcategoryHint,omitempty"`
}

// SearchMetadata describes how a search was carried out.
type SearchMetadata struct {
	ShardsSearched []string `json:"shardsSearched"`
	TimingMs       int64    `json:"timingMs"`
	CacheHit       bool     `json:"cacheHit"`
}

// SearchResponse is the public search operation's output.
type SearchResponse struct {
	Success      bool                `json:"success"`
	Match        *search.ScoredMatch `json:"match,omitempty"`
	Quality      search.Quality      `json:"quality"`
	ShouldReject bool                `json:"shouldReject"`
	Metadata     SearchMetadata      `json:"metadata"`
}

// GenerateRequest is the public generate operation's input. Either QueryText
// (a context record is searched for and a prompt built from it) or RawPrompt
// must be set; RawPrompt wins when both are.
type GenerateRequest struct {
	QueryText       string `json:"queryText,omitempty"`
	CategoryHint    string `json:"categoryHint,omitempty"`
	SubcategoryHint string `json:"subcategoryHint,omitempty"`
	RawPrompt       string `json:"rawPrompt,omitempty"`

	// StartModelIndex resumes a fallback chain a previous invocation could
	// not finish inside its budget.
	StartModelIndex int `json:"startModelIndex,omitempty"`
}

// GenerateMetadata describes a successful generation.
type GenerateMetadata struct {
	ModelUsed  string    `json:"modelUsed"`
	Attempts   int       `json:"attempts"`
	TimingMs   int64     `json:"timingMs"`
	TokenUsage llm.Usage `json:"tokenUsage"`
}

// GenerateResponse is the public generate operation's output. On success
// Artifact and Metadata are set; otherwise NextModelIndex (when the chain is
// resumable), AttemptedModels, and ErrorClass describe the failure.
type GenerateResponse struct {
	Success         bool               `json:"success"`
	Artifact        *artifact.Question `json:"artifact,omitempty"`
	Metadata        *GenerateMetadata  `json:"metadata,omitempty"`
	NextModelIndex  *int               `json:"nextModelIndex,omitempty"`
	AttemptedModels []string           `json:"attemptedModels,omitempty"`
	ErrorClass      string             `json:"errorClass,omitempty"`
}

// Pipeline is the entry point wiring all components together.
type Pipeline struct {
	engine *search.Engine
	store  *shardstore.Store
	orch   *llm.Orchestrator
	params llm.CallParams
	logger *zap.Logger
}

// New creates a pipeline.
func New(engine *search.Engine, store *shardstore.Store, orch *llm.Orchestrator, params llm.CallParams, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		engine: engine,
		store:  store,
		orch:   orch,
		params: params,
		logger: logger.Named("pipeline"),
	}
}

// Search runs the retrieval operation.
func (p *Pipeline) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.QueryText) == "" {
		return nil, fmt.Errorf("queryText is required")
	}

	start := time.Now()
	result, err := p.engine.Search(ctx, search.Request{
		QueryText:       req.QueryText,
		CategoryHint:    req.CategoryHint,
		SubcategoryHint: req.SubcategoryHint,
	})
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Success:      true,
		Match:        result.Match,
		Quality:      result.Quality,
		ShouldReject: result.ShouldReject,
		Metadata: SearchMetadata{
			ShardsSearched: result.ShardsSearched,
			TimingMs:       time.Since(start).Milliseconds(),
			CacheHit:       result.CacheHit,
		},
	}, nil
}

// Generate runs the generation operation: prompt construction, the fallback
// chain, parsing and validation, and option de-biasing.
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	start := time.Now()

	prompt := req.RawPrompt
	topic := ""
	if prompt == "" {
		if strings.TrimSpace(req.QueryText) == "" {
			return nil, fmt.Errorf("queryText or rawPrompt is required")
		}
		searchResp, err := p.Search(ctx, SearchRequest{
			QueryText:       req.QueryText,
			CategoryHint:    req.CategoryHint,
			SubcategoryHint: req.SubcategoryHint,
		})
		if err != nil {
			return nil, err
		}
		if searchResp.ShouldReject || searchResp.Match == nil {
			return nil, fmt.Errorf("%w: quality %s", ErrNoSuitableContent, searchResp.Quality)
		}
		prompt = buildPrompt(searchResp.Match.Record)
		topic = searchResp.Match.Record.Topic
	}

	// The accept callback parses inside the chain so a backend emitting
	// garbage is abandoned like any other terminal backend failure.
	var parsed *artifact.Question
	accept := func(result *llm.GenerateResult) error {
		q, err := artifact.Parse(result.Text)
		if err != nil {
			return err
		}
		parsed = q
		return nil
	}

	outcome, err := p.orch.Run(ctx, prompt, p.params, req.StartModelIndex, accept)
	if err != nil {
		var exhausted *llm.ChainExhaustedError
		if errors.As(err, &exhausted) {
			p.logger.Error("generation chain exhausted",
				zap.Strings("attempted", outcome.Attempted),
				zap.Int("attempts", len(outcome.Trail)))
			return &GenerateResponse{
				Success:         false,
				AttemptedModels: outcome.Attempted,
				ErrorClass:      string(llm.KindExhausted),
			}, nil
		}
		return nil, err
	}

	if outcome.Resumable {
		next := outcome.NextIndex
		p.logger.Warn("generation suspended at budget boundary",
			zap.Int("next_model_index", next))
		return &GenerateResponse{
			Success:         false,
			NextModelIndex:  &next,
			AttemptedModels: outcome.Attempted,
			ErrorClass:      "budget_expired",
		}, nil
	}

	parsed.ID = uuid.NewString()
	if parsed.Topic == "" {
		parsed.Topic = topic
	}
	artifact.Shuffle(parsed, nil)

	return &GenerateResponse{
		Success:  true,
		Artifact: parsed,
		Metadata: &GenerateMetadata{
			ModelUsed:  outcome.BackendID,
			Attempts:   len(outcome.Trail),
			TimingMs:   time.Since(start).Milliseconds(),
			TokenUsage: outcome.Result.Usage,
		},
	}, nil
}

// InvalidateCaches drops the shard cache and the result cache together, so
// rankings never outlive the content they were computed from.
func (p *Pipeline) InvalidateCaches() {
	p.store.InvalidateAll()
	p.engine.InvalidateResults()
}

// buildPrompt renders the generation prompt for one retrieved topic record.
func buildPrompt(record shardstore.TopicRecord) string {
	content := record.Content
	if len(content) > maxContextChars {
		// Back up to a rune boundary so the cut never splits a multibyte
		// character.
		cut := maxContextChars
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}

	var b strings.Builder
	b.WriteString("You are writing a board-style pathology multiple-choice question.\n\n")
	fmt.Fprintf(&b, "Topic: %s\nLesson: %s\nSubject: %s\n\nReference material:\n%s\n\n", record.Topic, record.Lesson, record.Subject, content)
	b.WriteString("Write one question grounded strictly in the reference material. ")
	b.WriteString("Respond with a single JSON object and nothing else, in this shape:\n")
	b.WriteString(`{"question": "...", "options": [{"id": "A", "text": "...", "isCorrect": true, "explanation": "..."}], "explanation": "..."}`)
	b.WriteString("\nProvide exactly five options with exactly one correct answer.")
	return b.String()
}
