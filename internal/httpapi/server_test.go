package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quizd/internal/config"
	"github.com/fyrsmithlabs/quizd/internal/llm"
	"github.com/fyrsmithlabs/quizd/internal/pipeline"
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
		{"id": "A", "text": "Amyloid stroma", "isCorrect": true},
		{"id": "B", "text": "Psammoma bodies", "isCorrect": false},
		{"id": "C", "text": "Orphan Annie nuclei", "isCorrect": false},
		{"id": "D", "text": "Capsular invasion", "isCorrect": false},
		{"id": "E", "text": "Colloid follicles", "isCorrect": false}
	]
}`

type staticSource struct {
	docs map[string]string
}

func (s *staticSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, ok := s.docs[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(doc), nil
}

type staticBackend struct {
	id   string
	text string
}

func (b *staticBackend) ID() string { return b.id }
func (b *staticBackend) Tier() int  { return 0 }

func (b *staticBackend) Generate(ctx context.Context, _ string, _ llm.CallParams) (*llm.GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.GenerateResult{Text: b.text}, nil
}

func newTestServer(t *testing.T) (*Server, *Metrics) {
	t.Helper()

	src := &staticSource{docs: map[string]string{"endocrine-pathology": endocrineShardJSON}}
	store := shardstore.NewStore(src, time.Hour, zap.NewNop())
	engine := search.NewEngine(store, search.NewSelector("general-pathology", 4), config.SearchConfig{
		ResultCacheTTL: time.Hour,
		MaxShards:      4,
		GeneralShard:   "general-pathology",
		Thresholds:     config.QualityThresholds{Poor: 30, Acceptable: 80, Good: 160, EarlyExit: 200},
	}, zap.NewNop())

	orch := llm.NewOrchestrator([]llm.Backend{&staticBackend{id: "primary", text: generatedQuestionJSON}}, config.ModelsConfig{
		CallTimeout:       time.Second,
		PipelineBudget:    time.Minute,
		MaxRetries:        2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2,
		BackoffCap:        4 * time.Millisecond,
	}, zap.NewNop())

	p := pipeline.New(engine, store, orch, llm.CallParams{Temperature: 0.7, MaxTokens: 2048}, zap.NewNop())

	metrics := NewMetricsWith(prometheus.NewRegistry())
	srv, err := NewServer(p, metrics, zap.NewNop(), config.ServerConfig{
		Host:           "localhost",
		Port:           0,
		RequestTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	return srv, metrics
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestSearchEndpoint(t *testing.T) {
	srv, metrics := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/search",
		`{"queryText": "medullary thyroid carcinoma", "subcategoryHint": "endocrine"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp pipeline.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Match)
	assert.Equal(t, "Medullary Thyroid Carcinoma", resp.Match.Record.Topic)
	assert.Equal(t, search.QualityExcellent, resp.Quality)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.searchTotal.WithLabelValues("excellent")))
}

func TestSearchEndpointBadBody(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/search", `{"queryText":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEndpointMissingQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/search", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGenerateEndpoint(t *testing.T) {
	srv, metrics := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/generate",
		`{"queryText": "medullary thyroid carcinoma", "subcategoryHint": "endocrine"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp pipeline.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Artifact)
	assert.NotEmpty(t, resp.Artifact.ID)
	assert.Len(t, resp.Artifact.Options, 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.generateTotal.WithLabelValues("success")))
}

func TestGenerateEndpointRejectsWeakGrounding(t *testing.T) {
	srv, metrics := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/generate", `{"queryText": "zzzz qqqq"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.generateTotal.WithLabelValues("rejected")))
}

func TestInvalidateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/shards/invalidate", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestMetricsRecorded(t *testing.T) {
	srv, metrics := newTestServer(t)
	doJSON(t, srv, http.MethodGet, "/health", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(http.MethodGet, "/health", "200")))
}
