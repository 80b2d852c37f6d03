package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quizd/internal/config"
	"github.com/fyrsmithlabs/quizd/internal/llm"
	"github.com/fyrsmithlabs/quizd/internal/search"
	"github.com/fyrsmithlabs/quizd/internal/shardstore"
)

const endocrineShardJSON = `{
	"category": "Pathology",
	"subject": {
		"name": "Endocrine Pathology",
		"lessons": {
			"Thyroid Neoplasms": {
				"topics": {
					"Medullary Thyroid Carcinoma": {
						"content": "Medullary thyroid carcinoma is a neuroendocrine tumor of parafollicular C cells. Tumor cells secrete calcitonin, and the stroma contains calcitonin-derived amyloid."
					}
				}
			}
		}
	}
}`

const generatedQuestionJSON = `{
	"question": "Which stromal finding is classic for medullary thyroid carcinoma?",
	"options": [
		{"id": "A", "text": "Amyloid stroma", "isCorrect": true, "explanation": "Calcitonin-derived amyloid."},
		{"id": "B", "text": "Psammoma bodies", "isCorrect": false},
		{"id": "C", "text": "Orphan Annie nuclei", "isCorrect": false},
		{"id": "D", "text": "Capsular invasion", "isCorrect": false},
		{"id": "E", "text": "Colloid follicles", "isCorrect": false}
	],
	"explanation": "Medullary carcinoma arises from parafollicular C cells."
}`

// memSource serves shard documents from memory and counts fetches.
type memSource struct {
	docs    map[string]string
	fetches int
}

func (m *memSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.fetches++
	doc, ok := m.docs[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(doc), nil
}

// scriptedBackend replays responses and records received prompts.
type scriptedBackend struct {
	id      string
	text    string
	err     error
	prompts []string
}

func (b *scriptedBackend) ID() string { return b.id }
func (b *scriptedBackend) Tier() int  { return 0 }

func (b *scriptedBackend) Generate(ctx context.Context, prompt string, _ llm.CallParams) (*llm.GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.prompts = append(b.prompts, prompt)
	if b.err != nil {
		return nil, b.err
	}
	return &llm.GenerateResult{Text: b.text, Usage: llm.Usage{TotalTokens: 42}}, nil
}

func newTestPipeline(t *testing.T, src shardstore.Source, modelsCfg config.ModelsConfig, backends ...llm.Backend) *Pipeline {
	t.Helper()
	store := shardstore.NewStore(src, time.Hour, zap.NewNop())
	engine := search.NewEngine(store, search.NewSelector("general-pathology", 4), config.SearchConfig{
		ResultCacheTTL: time.Hour,
		MaxShards:      4,
		GeneralShard:   "general-pathology",
		Thresholds:     config.QualityThresholds{Poor: 30, Acceptable: 80, Good: 160, EarlyExit: 200},
	}, zap.NewNop())
	orch := llm.NewOrchestrator(backends, modelsCfg, zap.NewNop())
	return New(engine, store, orch, llm.CallParams{Temperature: 0.7, MaxTokens: 2048}, zap.NewNop())
}

func fastModelsConfig() config.ModelsConfig {
	return config.ModelsConfig{
		CallTimeout:       time.Second,
		PipelineBudget:    time.Minute,
		MaxRetries:        2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2,
		BackoffCap:        4 * time.Millisecond,
	}
}

func endocrineSource() *memSource {
	return &memSource{docs: map[string]string{"endocrine-pathology": endocrineShardJSON}}
}

func TestPipelineSearch(t *testing.T) {
	p := newTestPipeline(t, endocrineSource(), fastModelsConfig())

	resp, err := p.Search(context.Background(), SearchRequest{
		QueryText:       "medullary thyroid carcinoma",
		SubcategoryHint: "endocrine",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Match)
	assert.Equal(t, "Medullary Thyroid Carcinoma", resp.Match.Record.Topic)
	assert.False(t, resp.ShouldReject)
	assert.Contains(t, resp.Metadata.ShardsSearched, "endocrine-pathology")
}

func TestPipelineSearchRequiresQuery(t *testing.T) {
	p := newTestPipeline(t, endocrineSource(), fastModelsConfig())

	_, err := p.Search(context.Background(), SearchRequest{QueryText: "   "})
	assert.Error(t, err)
}

func TestGenerateFromQuery(t *testing.T) {
	backend := &scriptedBackend{id: "primary", text: generatedQuestionJSON}
	p := newTestPipeline(t, endocrineSource(), fastModelsConfig(), backend)

	resp, err := p.Generate(context.Background(), GenerateRequest{
		QueryText:       "medullary thyroid carcinoma",
		SubcategoryHint: "endocrine",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Artifact)
	assert.NotEmpty(t, resp.Artifact.ID)
	assert.Equal(t, "Medullary Thyroid Carcinoma", resp.Artifact.Topic)
	require.Len(t, resp.Artifact.Options, 5)

	correct := 0
	for i, opt := range resp.Artifact.Options {
		assert.Equal(t, i, opt.OrderIndex)
		if opt.IsCorrect {
			correct++
			assert.Equal(t, "Amyloid stroma", opt.Text)
		}
	}
	assert.Equal(t, 1, correct)

	require.NotNil(t, resp.Metadata)
	assert.Equal(t, "primary", resp.Metadata.ModelUsed)
	assert.Equal(t, 42, resp.Metadata.TokenUsage.TotalTokens)

	// The prompt is grounded in the retrieved record.
	require.Len(t, backend.prompts, 1)
	assert.Contains(t, backend.prompts[0], "parafollicular C cells")
	assert.Contains(t, backend.prompts[0], "Medullary Thyroid Carcinoma")
}

func TestGenerateRejectsLowQualityMatch(t *testing.T) {
	src := &memSource{docs: map[string]string{
		"general-pathology": `{"category":"Pathology","subject":{"name":"General Pathology","lessons":{"L":{"topics":{"Acute Inflammation":{"content":"neutrophils and edema"}}}}}}`,
	}}
	backend := &scriptedBackend{id: "primary", text: generatedQuestionJSON}
	p := newTestPipeline(t, src, fastModelsConfig(), backend)

	_, err := p.Generate(context.Background(), GenerateRequest{QueryText: "zzzz qqqq"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSuitableContent)
	assert.Empty(t, backend.prompts, "no backend call without grounding content")
}

func TestGenerateRawPromptSkipsSearch(t *testing.T) {
	src := &memSource{docs: map[string]string{}}
	backend := &scriptedBackend{id: "primary", text: generatedQuestionJSON}
	p := newTestPipeline(t, src, fastModelsConfig(), backend)

	resp, err := p.Generate(context.Background(), GenerateRequest{RawPrompt: "write a question about amyloid"})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 0, src.fetches, "a raw prompt must not trigger retrieval")
	require.Len(t, backend.prompts, 1)
	assert.Equal(t, "write a question about amyloid", backend.prompts[0])
	// No retrieved record means no topic to attach.
	assert.Empty(t, resp.Artifact.Topic)
}

func TestGenerateRequiresQueryOrPrompt(t *testing.T) {
	p := newTestPipeline(t, endocrineSource(), fastModelsConfig())
	_, err := p.Generate(context.Background(), GenerateRequest{})
	assert.Error(t, err)
}

func TestGenerateChainExhausted(t *testing.T) {
	a := &scriptedBackend{id: "a", err: errors.New("invalid api key")}
	b := &scriptedBackend{id: "b", err: errors.New("model not found")}
	p := newTestPipeline(t, endocrineSource(), fastModelsConfig(), a, b)

	resp, err := p.Generate(context.Background(), GenerateRequest{RawPrompt: "prompt"})
	require.NoError(t, err, "exhaustion is reported in the response, not as a transport error")

	assert.False(t, resp.Success)
	assert.Equal(t, "exhausted", resp.ErrorClass)
	assert.Equal(t, []string{"a", "b"}, resp.AttemptedModels)
	assert.Nil(t, resp.Artifact)
}

func TestGenerateBudgetExpiredIsResumable(t *testing.T) {
	backend := &scriptedBackend{id: "primary", text: generatedQuestionJSON}
	cfg := fastModelsConfig()
	cfg.PipelineBudget = -time.Second
	p := newTestPipeline(t, endocrineSource(), cfg, backend)

	resp, err := p.Generate(context.Background(), GenerateRequest{RawPrompt: "prompt"})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, "budget_expired", resp.ErrorClass)
	require.NotNil(t, resp.NextModelIndex)
	assert.Equal(t, 0, *resp.NextModelIndex)
	assert.Empty(t, backend.prompts)
}

func TestGenerateParseFailureAdvancesChain(t *testing.T) {
	a := &scriptedBackend{id: "a", text: "I cannot answer that."}
	b := &scriptedBackend{id: "b", text: generatedQuestionJSON}
	p := newTestPipeline(t, endocrineSource(), fastModelsConfig(), a, b)

	resp, err := p.Generate(context.Background(), GenerateRequest{RawPrompt: "prompt"})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "b", resp.Metadata.ModelUsed)
	assert.Equal(t, 2, resp.Metadata.Attempts)
}

func TestBuildPromptTruncatesOnRuneBoundary(t *testing.T) {
	// A multibyte character straddling the truncation point must be dropped
	// whole, never split into invalid UTF-8.
	record := shardstore.TopicRecord{
		Topic:   "Microscopy",
		Lesson:  "L",
		Subject: "S",
		Content: strings.Repeat("a", maxContextChars-1) + "µµµ",
	}
	prompt := buildPrompt(record)

	assert.True(t, utf8.ValidString(prompt))
	assert.NotContains(t, prompt, "µ")
}

func TestBuildPromptKeepsShortContentIntact(t *testing.T) {
	record := shardstore.TopicRecord{Topic: "T", Lesson: "L", Subject: "S", Content: "granulomas of 2 µm"}
	prompt := buildPrompt(record)
	assert.Contains(t, prompt, "granulomas of 2 µm")
}

func TestInvalidateCaches(t *testing.T) {
	src := endocrineSource()
	p := newTestPipeline(t, src, fastModelsConfig())
	req := SearchRequest{QueryText: "medullary thyroid carcinoma", SubcategoryHint: "endocrine"}

	_, err := p.Search(context.Background(), req)
	require.NoError(t, err)
	fetched := src.fetches

	// Cached: no new fetches.
	_, err = p.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, fetched, src.fetches)

	p.InvalidateCaches()
	resp, err := p.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Metadata.CacheHit)
	assert.Greater(t, src.fetches, fetched)
}
