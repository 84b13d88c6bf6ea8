package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/marlow/finreporter/internal/config"
	"github.com/marlow/finreporter/internal/domain"
	"github.com/marlow/finreporter/internal/logger"
	"github.com/marlow/finreporter/internal/repository"
)

// ErrTickerNotFound is returned when no financial data exists for a ticker.
var ErrTickerNotFound = errors.New("financial data not found")

const rateLimitMessage = "Out of requests for the day. Please try again tomorrow."

// defaultTickers are served when no company or ticker filter is applied.
var defaultTickers = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA", "NVDA", "JPM", "V", "WMT"}

// MarketService serves company financials from the Alpha Vantage API with a
// persistent 24h response cache. With no API key it serves a fixed offline
// dataset instead so the endpoints keep working in development.
type MarketService struct {
	client *resty.Client
	cache  *repository.MarketCacheRepository
	logger *logger.Logger
	apiKey string
	ttl    time.Duration
}

// NewMarketService creates the service. cache may be nil, in which case
// every request goes upstream.
func NewMarketService(cfg *config.MarketConfig, cache *repository.MarketCacheRepository, log *logger.Logger) *MarketService {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(10 * time.Second)

	if cfg.APIKey == "" {
		log.Warn("No market data API key configured, serving offline dataset")
	}

	return &MarketService{
		client: client,
		cache:  cache,
		logger: log,
		apiKey: cfg.APIKey,
		ttl:    cfg.CacheTTL,
	}
}

func (s *MarketService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// List returns financial data filtered by company name substring or exact
// ticker. With neither filter it covers the default ticker set. A single
// rate-limited upstream response short-circuits the whole listing.
func (s *MarketService) List(ctx context.Context, company, ticker string) ([]*domain.CompanyFinancials, error) {
	if s.apiKey == "" {
		return filterOffline(company, ticker), nil
	}

	if ticker != "" {
		data, err := s.fetchTicker(ctx, strings.ToUpper(ticker))
		if err != nil {
			return nil, err
		}
		if data == nil {
			return []*domain.CompanyFinancials{}, nil
		}
		return []*domain.CompanyFinancials{data}, nil
	}

	results := make([]*domain.CompanyFinancials, 0, len(defaultTickers))
	for _, t := range defaultTickers {
		data, err := s.fetchTicker(ctx, t)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		if data.RateLimited() {
			return []*domain.CompanyFinancials{data}, nil
		}
		if company == "" || strings.Contains(strings.ToLower(data.Company), strings.ToLower(company)) {
			results = append(results, data)
		}
	}
	return results, nil
}

// GetByID returns financial data for one ticker, ErrTickerNotFound when the
// upstream has nothing for it.
func (s *MarketService) GetByID(ctx context.Context, id string) (*domain.CompanyFinancials, error) {
	id = strings.ToUpper(id)

	if s.apiKey == "" {
		for _, c := range offlineFinancials() {
			if c.ID == id {
				return c, nil
			}
		}
		return nil, ErrTickerNotFound
	}

	data, err := s.fetchTicker(ctx, id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrTickerNotFound
	}
	return data, nil
}

func filterOffline(company, ticker string) []*domain.CompanyFinancials {
	all := offlineFinancials()
	if ticker != "" {
		ticker = strings.ToUpper(ticker)
		for _, c := range all {
			if c.Ticker == ticker {
				return []*domain.CompanyFinancials{c}
			}
		}
		return []*domain.CompanyFinancials{}
	}
	if company != "" {
		needle := strings.ToLower(company)
		results := []*domain.CompanyFinancials{}
		for _, c := range all {
			if strings.Contains(strings.ToLower(c.Company), needle) {
				results = append(results, c)
			}
		}
		return results
	}
	return all
}

// fetchTicker combines the company overview and income statement into the
// formatted payload. nil means the upstream had no usable data.
func (s *MarketService) fetchTicker(ctx context.Context, ticker string) (*domain.CompanyFinancials, error) {
	overview, err := s.fetch(ctx, "OVERVIEW", ticker)
	if err != nil {
		return nil, err
	}
	if overview != nil && overview.rateLimited {
		return rateLimitedResult(ticker), nil
	}

	income, err := s.fetch(ctx, "INCOME_STATEMENT", ticker)
	if err != nil {
		return nil, err
	}
	if income != nil && income.rateLimited {
		return rateLimitedResult(ticker), nil
	}

	if overview == nil || income == nil {
		return nil, nil
	}
	return formatFinancials(ticker, overview.data, income.data), nil
}

func rateLimitedResult(ticker string) *domain.CompanyFinancials {
	return &domain.CompanyFinancials{
		ID:      ticker,
		Company: fmt.Sprintf("%s (Rate Limited)", ticker),
		Ticker:  ticker,
		Period:  "N/A",
		Error:   "rate_limit_exceeded",
		Message: rateLimitMessage,
	}
}

type upstreamResponse struct {
	data        map[string]interface{}
	rateLimited bool
}

// fetch performs one Alpha Vantage call through the cache. nil with no
// error means the upstream returned an error payload or empty data.
func (s *MarketService) fetch(ctx context.Context, function, ticker string) (*upstreamResponse, error) {
	log := s.log(ctx).WithFields(logger.Fields{logger.FieldTicker: ticker, "function": function})

	cacheKey := fmt.Sprintf("%s_%s", strings.ToLower(function), ticker)
	if s.cache != nil {
		if payload, ok, err := s.cache.Get(ctx, cacheKey); err != nil {
			log.WithError(err).Warn("Market cache read failed")
		} else if ok {
			log.Debug("Serving market data from cache")
			return decodeUpstream([]byte(payload)), nil
		}
	}

	log.Info("Fetching market data from upstream")
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": function,
			"symbol":   ticker,
			"apikey":   s.apiKey,
		}).
		Get("/query")
	if err != nil {
		return nil, fmt.Errorf("market data request failed: %w", err)
	}

	body := resp.Body()
	if isRateLimited(body) {
		log.Warn("Market data API rate limit reached")
		return &upstreamResponse{rateLimited: true}, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("market data request failed with status %d", resp.StatusCode())
	}

	parsed := decodeUpstream(body)
	if parsed == nil {
		log.Warn("Market data upstream returned error or empty payload")
		return nil, nil
	}
	if function == "INCOME_STATEMENT" {
		if _, ok := parsed.data["annualReports"]; !ok {
			log.Warn("Income statement payload missing annual reports")
			return nil, nil
		}
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, cacheKey, string(body), s.ttl); err != nil {
			log.WithError(err).Warn("Market cache write failed")
		}
	}
	return parsed, nil
}

func isRateLimited(body []byte) bool {
	text := string(body)
	return strings.Contains(text, "Note") && strings.Contains(text, "API call frequency")
}

func decodeUpstream(body []byte) *upstreamResponse {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	if _, ok := data["Error Message"]; ok {
		return nil
	}
	return &upstreamResponse{data: data}
}

// formatFinancials shapes raw overview and income statement payloads into
// the served structure. Revenue and market cap are reported in billions.
func formatFinancials(ticker string, overview, income map[string]interface{}) *domain.CompanyFinancials {
	reports, _ := income["annualReports"].([]interface{})

	var latest, previous map[string]interface{}
	if len(reports) > 0 {
		latest, _ = reports[0].(map[string]interface{})
	}
	if len(reports) > 1 {
		previous, _ = reports[1].(map[string]interface{})
	}

	revenue := upstreamFloat(latest, "totalRevenue") / 1e9
	prevRevenue := upstreamFloat(previous, "totalRevenue") / 1e9
	var revenueGrowth float64
	if prevRevenue != 0 {
		revenueGrowth = (revenue - prevRevenue) / prevRevenue * 100
	}

	result := &domain.CompanyFinancials{
		ID:     upstreamString(overview, "Symbol", ticker),
		Ticker: ticker,
		Period: upstreamString(latest, "fiscalDateEnding", "Unknown"),
		Metrics: &domain.FinancialMetrics{
			Revenue:       round2(revenue),
			RevenueGrowth: round2(revenueGrowth),
			EPS:           round2(upstreamFloat(overview, "EPS")),
			EPSGrowth:     upstreamFloat(overview, "EPSGrowth"),
			GrossMargin:   round2(upstreamFloat(overview, "GrossProfitMargin") * 100),
			PERatio:       upstreamFloat(overview, "PERatio"),
			DividendYield: round2(upstreamFloat(overview, "DividendYield") * 100),
			MarketCap:     upstreamFloat(overview, "MarketCapitalization") / 1e9,
		},
	}
	result.Company = upstreamString(overview, "Name", fmt.Sprintf("Unknown (%s)", ticker))
	return result
}

// upstreamFloat tolerates the API's habit of returning numbers as strings.
func upstreamFloat(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func upstreamString(m map[string]interface{}, key, fallback string) string {
	if m == nil {
		return fallback
	}
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
