package service

import "github.com/marlow/finreporter/internal/domain"

// offlineFinancials is the dataset served when no market data API key is
// configured. Figures are a static snapshot; fresh values require the
// upstream API.
func offlineFinancials() []*domain.CompanyFinancials {
	return []*domain.CompanyFinancials{
		{
			ID: "AAPL", Company: "Apple Inc.", Ticker: "AAPL", Period: "Q3 2023",
			Metrics: &domain.FinancialMetrics{
				Revenue: 81.8, RevenueGrowth: 3.1, EPS: 1.26, EPSGrowth: 0.0,
				GrossMargin: 44.5, PERatio: 28.5, DividendYield: 0.5, MarketCap: 2800.0,
			},
		},
		{
			ID: "MSFT", Company: "Microsoft Corporation", Ticker: "MSFT", Period: "Q4 2023",
			Metrics: &domain.FinancialMetrics{
				Revenue: 56.2, RevenueGrowth: 7.0, EPS: 2.69, EPSGrowth: 0.0,
				GrossMargin: 70.1, PERatio: 32.1, DividendYield: 0.8, MarketCap: 2500.0,
			},
		},
		{
			ID: "GOOGL", Company: "Alphabet Inc.", Ticker: "GOOGL", Period: "Q4 2023",
			Metrics: &domain.FinancialMetrics{
				Revenue: 74.6, RevenueGrowth: 14.2, EPS: 1.44, EPSGrowth: 0.0,
				GrossMargin: 56.2, PERatio: 25.8, DividendYield: 0.0, MarketCap: 1800.0,
			},
		},
		{
			ID: "META", Company: "Meta Platforms Inc.", Ticker: "META", Period: "Q4 2023",
			Metrics: &domain.FinancialMetrics{
				Revenue: 40.1, RevenueGrowth: 22.2, EPS: 4.39, EPSGrowth: 0.0,
				GrossMargin: 80.5, PERatio: 30.2, DividendYield: 0.0, MarketCap: 1200.0,
			},
		},
		{
			ID: "NVDA", Company: "NVIDIA Corporation", Ticker: "NVDA", Period: "Q1 2024",
			Metrics: &domain.FinancialMetrics{
				Revenue: 24.9, RevenueGrowth: 125.8, EPS: 5.16, EPSGrowth: 0.0,
				GrossMargin: 72.3, PERatio: 75.4, DividendYield: 0.1, MarketCap: 2200.0,
			},
		},
		{
			ID: "JPM", Company: "JPMorgan Chase & Co.", Ticker: "JPM", Period: "Q4 2023",
			Metrics: &domain.FinancialMetrics{
				Revenue: 38.6, RevenueGrowth: 22.9, EPS: 3.97, EPSGrowth: 0.0,
				GrossMargin: 0.0, PERatio: 12.1, DividendYield: 2.4, MarketCap: 550.0,
			},
		},
	}
}
