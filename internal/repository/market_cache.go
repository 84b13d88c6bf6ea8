package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marlow/finreporter/internal/domain"
)

// MarketCacheRepository persists upstream market-data responses so the
// rate-limited provider is hit at most once per key per TTL window.
type MarketCacheRepository struct {
	db *gorm.DB
}

// NewMarketCacheRepository creates a new market cache repository.
func NewMarketCacheRepository(db *gorm.DB) *MarketCacheRepository {
	return &MarketCacheRepository{db: db}
}

// Get returns the cached payload for key, or false when absent or expired.
func (r *MarketCacheRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry domain.MarketCacheEntry
	err := r.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if time.Now().After(entry.ExpiresAt) {
		return "", false, nil
	}
	return entry.Payload, true, nil
}

// Put stores or refreshes the payload for key with the given TTL.
func (r *MarketCacheRepository) Put(ctx context.Context, key, payload string, ttl time.Duration) error {
	entry := domain.MarketCacheEntry{
		Key:       key,
		Payload:   payload,
		ExpiresAt: time.Now().Add(ttl),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&entry).Error
}

// PurgeExpired removes entries whose TTL has lapsed.
func (r *MarketCacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&domain.MarketCacheEntry{})
	return res.RowsAffected, res.Error
}
