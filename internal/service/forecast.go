package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/marlow/finreporter/internal/domain"
)

const (
	forecastHistoryYears   = 4
	forecastProjectedYears = 3
	forecastJitter         = 0.05

	// MaxForecastQuarters caps the quarterly projection horizon.
	MaxForecastQuarters = 12
)

// ForecastService produces naive revenue projections from the market-data
// financials: the latest reported revenue walked backwards and forwards at
// the observed growth rate, with small bounded jitter so the series does
// not look synthetic. This is a demo aid, not a statistical model.
type ForecastService struct {
	market *MarketService
}

// NewForecastService creates the service over the market-data source.
func NewForecastService(market *MarketService) *ForecastService {
	return &ForecastService{market: market}
}

// Forecast builds a projection for the ticker. quarters > 0 switches the
// projection from the default three fiscal years to that many quarterly
// periods. ErrTickerNotFound when the market source has no data for it.
func (s *ForecastService) Forecast(ctx context.Context, ticker string, quarters int) (*domain.Forecast, error) {
	ticker = strings.ToUpper(ticker)

	financials, err := s.market.GetByID(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if financials.RateLimited() || financials.Metrics == nil {
		return nil, ErrTickerNotFound
	}

	growth := financials.Metrics.RevenueGrowth / 100
	base := financials.Metrics.Revenue
	now := time.Now()
	rng := rand.New(rand.NewSource(now.UnixNano()))

	// Walk back from the latest figure so history ends at the reported value.
	historical := make([]domain.ForecastPoint, forecastHistoryYears)
	revenue := base
	for i := forecastHistoryYears - 1; i >= 0; i-- {
		historical[i] = domain.ForecastPoint{
			Period:  fmt.Sprintf("FY%d", now.Year()-(forecastHistoryYears-1-i)),
			Revenue: round2(revenue),
		}
		if growth > -1 {
			revenue = revenue / (1 + growth) * jitter(rng)
		}
	}

	var projected []domain.ForecastPoint
	if quarters > 0 {
		projected = s.projectQuarterly(rng, now, base, growth, quarters)
	} else {
		projected = make([]domain.ForecastPoint, forecastProjectedYears)
		revenue = base
		for i := 0; i < forecastProjectedYears; i++ {
			revenue = revenue * (1 + growth) * jitter(rng)
			projected[i] = domain.ForecastPoint{
				Period:  fmt.Sprintf("FY%d", now.Year()+1+i),
				Revenue: round2(revenue),
			}
		}
	}

	return &domain.Forecast{
		Ticker:      ticker,
		Company:     financials.Company,
		GeneratedAt: now.UTC(),
		GrowthRate:  financials.Metrics.RevenueGrowth,
		Historical:  historical,
		Projected:   projected,
	}, nil
}

// projectQuarterly walks the annualized run-rate forward one quarter at a
// time, compounding the annual growth rate at its quarterly equivalent.
func (s *ForecastService) projectQuarterly(rng *rand.Rand, now time.Time, base, growth float64, quarters int) []domain.ForecastPoint {
	if quarters > MaxForecastQuarters {
		quarters = MaxForecastQuarters
	}
	quarterlyGrowth := 0.0
	if growth > -1 {
		quarterlyGrowth = math.Pow(1+growth, 0.25) - 1
	}

	year := now.Year()
	quarter := (int(now.Month())-1)/3 + 1

	projected := make([]domain.ForecastPoint, quarters)
	revenue := base
	for i := 0; i < quarters; i++ {
		quarter++
		if quarter > 4 {
			quarter = 1
			year++
		}
		revenue = revenue * (1 + quarterlyGrowth) * jitter(rng)
		projected[i] = domain.ForecastPoint{
			Period:  fmt.Sprintf("FY%d Q%d", year, quarter),
			Revenue: round2(revenue),
		}
	}
	return projected
}

// jitter returns a factor in [1-forecastJitter, 1+forecastJitter].
func jitter(rng *rand.Rand) float64 {
	return 1 + (rng.Float64()*2-1)*forecastJitter
}
