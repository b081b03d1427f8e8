package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replyClient streams a fixed reply split into chunks and records requests.
type replyClient struct {
	mu       sync.Mutex
	chunks   []string
	err      error
	requests []provider.Request
}

func (c *replyClient) Family() provider.Family { return provider.FamilyOpenAI }
func (c *replyClient) Model() string           { return "reply" }

func (c *replyClient) Stream(_ context.Context, req provider.Request) iter.Seq2[provider.Chunk, error] {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return func(yield func(provider.Chunk, error) bool) {
		for _, s := range c.chunks {
			if !yield(provider.Chunk{Text: s}, nil) {
				return
			}
		}
		if c.err != nil {
			yield(provider.Chunk{}, c.err)
		}
	}
}

type fixedModels struct {
	client provider.Client
	err    error
	asked  []string
}

func (m *fixedModels) Resolve(id string) (provider.Client, error) {
	m.asked = append(m.asked, id)
	return m.client, m.err
}

const goodFile = `{"summary":"Quarterly revenue grew.","keyPoints":["revenue up 12%"],"topics":["finance"],"insights":["growth is organic"],"questions":["Which region led?"],"sentiment":"positive","confidence":0.82}`

const goodInsights = `{"title":"Pricing review","overview":"Prices lag peers.","keyFindings":[{"finding":"Discounts are deep","importance":"high","category":"pricing"}],"recommendations":["Trim discounts"],"trends":["Churn is flat"],"nextSteps":["Pilot new tiers"],"confidence":0.7}`

func newAnalyzer(t *testing.T, client provider.Client) (*Analyzer, *fixedModels) {
	t.Helper()
	models := &fixedModels{client: client}
	a, err := New(models, "gpt-4o-mini", WithMaxTokens(512))
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return a, models
}

func TestAnalyzeFile(t *testing.T) {
	client := &replyClient{chunks: []string{"```json\n", goodFile[:40], goodFile[40:], "\n```"}}
	a, models := newAnalyzer(t, client)

	got, err := a.AnalyzeFile(context.Background(), "alice", FileInput{FileName: "q3.pdf", FileContent: "Revenue grew 12%."})
	require.NoError(t, err)

	assert.Equal(t, "Quarterly revenue grew.", got.Summary)
	assert.Equal(t, []string{"revenue up 12%"}, got.KeyPoints)
	assert.Equal(t, "positive", got.Sentiment)
	assert.InDelta(t, 0.82, got.Confidence, 1e-9)
	assert.Equal(t, "q3.pdf", got.FileName)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, 2026, got.AnalyzedAt.Year())

	assert.Equal(t, []string{"gpt-4o-mini"}, models.asked)
	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
	assert.Equal(t, 512, req.MaxTokens)
	assert.Empty(t, req.Tools)
	assert.Contains(t, req.System, `"sentiment"`)
	assert.Contains(t, req.Messages[0].Content, `"q3.pdf"`)
}

func TestAnalyzeFileRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"no object", "I cannot analyze this file."},
		{"bad enum", `{"summary":"s","keyPoints":[],"topics":[],"insights":[],"questions":[],"sentiment":"ecstatic","confidence":0.5}`},
		{"confidence out of range", `{"summary":"s","keyPoints":[],"topics":[],"insights":[],"questions":[],"sentiment":"neutral","confidence":7}`},
		{"missing field", `{"summary":"s"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newAnalyzer(t, &replyClient{chunks: []string{tt.reply}})
			_, err := a.AnalyzeFile(context.Background(), "alice", FileInput{FileName: "a.txt", FileContent: "x"})
			assert.ErrorIs(t, err, domain.ErrMalformedOutput)
		})
	}
}

func TestAnalyzeFileRequiresNameAndContent(t *testing.T) {
	client := &replyClient{chunks: []string{goodFile}}
	a, _ := newAnalyzer(t, client)

	_, err := a.AnalyzeFile(context.Background(), "alice", FileInput{FileName: "a.txt"})
	assert.True(t, domain.IsValidationError(err))
	assert.Empty(t, client.requests)
}

func TestAnalyzeFilePassesThroughFailures(t *testing.T) {
	cfgErr := &domain.ConfigError{Op: "openai", Err: domain.ErrMissingCredential}
	a, err := New(&fixedModels{err: cfgErr}, "gpt-4o")
	require.NoError(t, err)
	_, err = a.AnalyzeFile(context.Background(), "alice", FileInput{FileName: "a", FileContent: "b"})
	assert.True(t, domain.IsConfigError(err))

	transport := &domain.TransportError{Op: "openai stream", Err: errors.New("reset")}
	a, _ = newAnalyzer(t, &replyClient{chunks: []string{`{"summ`}, err: transport})
	_, err = a.AnalyzeFile(context.Background(), "alice", FileInput{FileName: "a", FileContent: "b"})
	var te *domain.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestGenerateInsights(t *testing.T) {
	client := &replyClient{chunks: []string{"Here is the report: ", goodInsights}}
	a, _ := newAnalyzer(t, client)

	in := InsightsInput{
		Topic:        "pricing",
		Context:      "Q3 review",
		FileAnalyses: []json.RawMessage{json.RawMessage(goodFile)},
	}
	got, err := a.GenerateInsights(context.Background(), "alice", in)
	require.NoError(t, err)

	assert.Equal(t, "Pricing review", got.Title)
	require.Len(t, got.KeyFindings, 1)
	assert.Equal(t, "high", got.KeyFindings[0].Importance)
	assert.Equal(t, InsightSources{Topic: "pricing", Context: "Q3 review", FileCount: 1}, got.Sources)
	assert.Equal(t, "alice", got.UserID)

	req := client.requests[0]
	assert.InDelta(t, 0.4, req.Temperature, 1e-9)
	assert.Contains(t, req.Messages[0].Content, "Topic: pricing")
	assert.Contains(t, req.Messages[0].Content, "Quarterly revenue grew.")
}

func TestGenerateInsightsRequiresTopic(t *testing.T) {
	a, _ := newAnalyzer(t, &replyClient{chunks: []string{goodInsights}})
	_, err := a.GenerateInsights(context.Background(), "alice", InsightsInput{Context: "c"})
	assert.True(t, domain.IsValidationError(err))
}
