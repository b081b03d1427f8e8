// Package analysis produces schema-checked structured reports from a model:
// single-document analyses and cross-source insight reports.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/provider"
	"github.com/xeipuuv/gojsonschema"
)

const (
	fileTemperature     = 0.3
	insightsTemperature = 0.4

	fileSystemPrompt = "You are an expert document analyzer. Analyze the provided document content and extract meaningful insights, summaries, and key information. Be thorough and accurate in your analysis."

	insightsSystemPrompt = "You are an expert business analyst and insights generator. Create comprehensive, actionable insights based on the provided information. Focus on practical recommendations and clear next steps."
)

// Models resolves a model id to a streaming client.
type Models interface {
	Resolve(modelID string) (provider.Client, error)
}

// FileInput is a document to analyze.
type FileInput struct {
	FileName    string
	FileContent string
}

// FileAnalysis is the structured analysis of one document.
type FileAnalysis struct {
	Summary    string    `json:"summary"`
	KeyPoints  []string  `json:"keyPoints"`
	Topics     []string  `json:"topics"`
	Insights   []string  `json:"insights"`
	Questions  []string  `json:"questions"`
	Sentiment  string    `json:"sentiment"`
	Confidence float64   `json:"confidence"`
	FileName   string    `json:"fileName"`
	AnalyzedAt time.Time `json:"analyzedAt"`
	UserID     string    `json:"userId"`
}

// InsightsInput is the material an insight report is built from.
type InsightsInput struct {
	Topic        string
	Context      string
	FileAnalyses []json.RawMessage
}

// Finding is one ranked observation in an insight report.
type Finding struct {
	Finding    string `json:"finding"`
	Importance string `json:"importance"`
	Category   string `json:"category"`
}

// InsightSources records what a report was generated from.
type InsightSources struct {
	Topic     string `json:"topic"`
	Context   string `json:"context"`
	FileCount int    `json:"fileCount"`
}

// InsightReport is a structured synthesis across a topic, context and prior analyses.
type InsightReport struct {
	Title           string         `json:"title"`
	Overview        string         `json:"overview"`
	KeyFindings     []Finding      `json:"keyFindings"`
	Recommendations []string       `json:"recommendations"`
	Trends          []string       `json:"trends"`
	NextSteps       []string       `json:"nextSteps"`
	Confidence      float64        `json:"confidence"`
	GeneratedAt     time.Time      `json:"generatedAt"`
	UserID          string         `json:"userId"`
	Sources         InsightSources `json:"sources"`
}

// Analyzer asks one configured model for structured output and checks it against a JSON schema.
type Analyzer struct {
	models         Models
	modelID        string
	maxTokens      int
	logger         *slog.Logger
	fileSchema     *gojsonschema.Schema
	insightsSchema *gojsonschema.Schema
	now            func() time.Time
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithMaxTokens caps each model call.
func WithMaxTokens(n int) Option {
	return func(a *Analyzer) { a.maxTokens = n }
}

// New compiles the report schemas and binds the analyzer to modelID.
func New(models Models, modelID string, opts ...Option) (*Analyzer, error) {
	fileSchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(fileAnalysisSchema))
	if err != nil {
		return nil, fmt.Errorf("compile file analysis schema: %w", err)
	}
	insightsSchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(insightReportSchema))
	if err != nil {
		return nil, fmt.Errorf("compile insight report schema: %w", err)
	}

	a := &Analyzer{
		models:         models,
		modelID:        modelID,
		logger:         slog.Default(),
		fileSchema:     fileSchema,
		insightsSchema: insightsSchema,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AnalyzeFile summarizes one document for userID.
func (a *Analyzer) AnalyzeFile(ctx context.Context, userID string, in FileInput) (*FileAnalysis, error) {
	if strings.TrimSpace(in.FileName) == "" || strings.TrimSpace(in.FileContent) == "" {
		return nil, &domain.ValidationError{Reason: "file name and content are required"}
	}

	prompt := fmt.Sprintf("Please analyze this document titled %q:\n\n%s", in.FileName, in.FileContent)
	var out FileAnalysis
	if err := a.generate(ctx, fileSystemPrompt, prompt, fileTemperature, fileAnalysisSchema, a.fileSchema, &out); err != nil {
		return nil, err
	}

	out.FileName = in.FileName
	out.AnalyzedAt = a.now().UTC()
	out.UserID = userID
	return &out, nil
}

// GenerateInsights builds an insight report for userID.
func (a *Analyzer) GenerateInsights(ctx context.Context, userID string, in InsightsInput) (*InsightReport, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return nil, &domain.ValidationError{Field: "topic", Reason: "is required"}
	}

	parts := []string{"Topic: " + in.Topic}
	if in.Context != "" {
		parts = append(parts, "Context: "+in.Context)
	}
	if len(in.FileAnalyses) > 0 {
		encoded, err := json.Marshal(in.FileAnalyses)
		if err != nil {
			return nil, &domain.ValidationError{Field: "fileAnalyses", Reason: err.Error()}
		}
		parts = append(parts, "File analyses: "+string(encoded))
	}
	prompt := "Generate comprehensive insights based on this information:\n\n" + strings.Join(parts, "\n\n")

	var out InsightReport
	if err := a.generate(ctx, insightsSystemPrompt, prompt, insightsTemperature, insightReportSchema, a.insightsSchema, &out); err != nil {
		return nil, err
	}

	out.GeneratedAt = a.now().UTC()
	out.UserID = userID
	out.Sources = InsightSources{Topic: in.Topic, Context: in.Context, FileCount: len(in.FileAnalyses)}
	return &out, nil
}

// generate runs one tool-free model call and decodes its JSON answer into out.
func (a *Analyzer) generate(ctx context.Context, system, prompt string, temperature float64, schemaText string, schema *gojsonschema.Schema, out any) error {
	client, err := a.models.Resolve(a.modelID)
	if err != nil {
		return err
	}

	req := provider.Request{
		System:      system + "\n\nRespond with a single JSON object and nothing else. It must satisfy this JSON Schema:\n" + schemaText,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Temperature: temperature,
		MaxTokens:   a.maxTokens,
	}

	var text strings.Builder
	for chunk, err := range client.Stream(ctx, req) {
		if err != nil {
			return err
		}
		text.WriteString(chunk.Text)
	}

	raw, ok := extractObject(text.String())
	if !ok {
		a.logger.Warn("Model returned no JSON object", "model", client.Model(), "bytes", text.Len())
		return fmt.Errorf("%w: no JSON object in response", domain.ErrMalformedOutput)
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		a.logger.Warn("Model output failed schema", "model", client.Model(), "errors", msgs)
		return fmt.Errorf("%w: %s", domain.ErrMalformedOutput, strings.Join(msgs, "; "))
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	return nil
}

// extractObject returns the outermost JSON object in s, tolerating code fences and surrounding prose.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
