package domain

import "time"

// MarketCacheEntry is one cached upstream market-data response, keyed by
// "{function}_{ticker}". Entries are served until ExpiresAt.
type MarketCacheEntry struct {
	Key       string    `gorm:"type:text;primaryKey" json:"key"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for MarketCacheEntry.
func (MarketCacheEntry) TableName() string {
	return "market_cache"
}

// CompanyFinancials is the formatted market-data payload served by the API.
// Error/Message are set instead of Metrics when the upstream rate limit hit.
type CompanyFinancials struct {
	ID      string            `json:"id"`
	Company string            `json:"company"`
	Ticker  string            `json:"ticker"`
	Period  string            `json:"period"`
	Metrics *FinancialMetrics `json:"metrics,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
}

// FinancialMetrics holds headline figures; revenue and market cap in billions.
type FinancialMetrics struct {
	Revenue       float64 `json:"revenue"`
	RevenueGrowth float64 `json:"revenue_growth"`
	EPS           float64 `json:"eps"`
	EPSGrowth     float64 `json:"eps_growth"`
	GrossMargin   float64 `json:"gross_margin"`
	PERatio       float64 `json:"pe_ratio"`
	DividendYield float64 `json:"dividend_yield"`
	MarketCap     float64 `json:"market_cap"`
}

// RateLimited reports whether this payload represents an upstream rate limit.
func (c *CompanyFinancials) RateLimited() bool {
	return c.Error == "rate_limit_exceeded"
}

// ForecastPoint is one period in a revenue series.
type ForecastPoint struct {
	Period  string  `json:"period"`
	Revenue float64 `json:"revenue"`
}

// Forecast is a naive revenue projection: linear growth-rate extrapolation
// with bounded jitter, not a statistical model.
type Forecast struct {
	Ticker      string          `json:"ticker"`
	Company     string          `json:"company"`
	GeneratedAt time.Time       `json:"generated_at"`
	GrowthRate  float64         `json:"growth_rate"`
	Historical  []ForecastPoint `json:"historical"`
	Projected   []ForecastPoint `json:"projected"`
}
