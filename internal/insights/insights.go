// Package insights derives per-account spending summaries and per-merchant
// aggregates from the transaction store.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/freq"
)

// Messages returned when a dimension has no clear favorite.
const (
	msgAllMerchantsOnce = "All merchants are used once"
	msgAllChannelsOnce  = "All channels are used once"
	msgAllLocationsOnce = "All locations are used once"
)

// cacheTTL bounds staleness for cached insight responses; the worker also
// invalidates on intake.
const cacheTTL = 5 * time.Minute

// Service computes spending insights and merchant summaries. The grouping
// and summing run inside the storage engine so large accounts never get
// materialized in memory.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates an insights service. cache may be nil to disable
// response caching.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// SpendingInsights returns the behavioral summary for one account. An
// unknown account yields empty/null fields, never an error.
func (s *Service) SpendingInsights(ctx context.Context, accountID string) (*domain.SpendingInsights, error) {
	if cached := s.fromCache(ctx, domain.CacheKeyInsights+accountID); cached != nil {
		return cached, nil
	}

	buckets, err := s.repo.SpendingByType(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate spending by type: %w", err)
	}

	result := &domain.SpendingInsights{
		AccountID:      accountID,
		SpendingByType: buckets,
	}
	if result.SpendingByType == nil {
		result.SpendingByType = []domain.SpendingBucket{}
	}

	dims := []struct {
		field   domain.GroupField
		message string
		target  **domain.MostUsed
	}{
		{domain.GroupByMerchant, msgAllMerchantsOnce, &result.MostUsedMerchant},
		{domain.GroupByChannel, msgAllChannelsOnce, &result.MostUsedChannel},
		{domain.GroupByLocation, msgAllLocationsOnce, &result.MostUsedLocation},
	}
	for _, dim := range dims {
		counts, err := s.repo.GroupCounts(ctx, accountID, dim.field)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s usage: %w", dim.field, err)
		}
		*dim.target = mostUsed(counts, dim.message)
	}

	s.toCache(ctx, domain.CacheKeyInsights+accountID, result)
	return result, nil
}

// mostUsed picks the dimension value with the highest occurrence count.
// When every value occurs exactly once there is no favorite and an
// explanatory message is returned instead; with no transactions at all the
// field is absent (nil).
func mostUsed(counts []domain.FieldCount, allOnceMessage string) *domain.MostUsed {
	if len(counts) == 0 {
		return nil
	}

	byValue := make(map[string]int64, len(counts))
	for _, c := range counts {
		byValue[c.Value] = c.Count
	}
	if freq.AllSingletons(byValue) {
		return &domain.MostUsed{Message: allOnceMessage}
	}

	top := freq.Rank(byValue)[0]
	return &domain.MostUsed{Value: top.Key, Count: top.N}
}

// MerchantSummary aggregates all transactions for one merchant. An unknown
// merchant yields a null total and zero count.
func (s *Service) MerchantSummary(ctx context.Context, merchantID string) (*domain.MerchantSummary, error) {
	total, count, err := s.repo.MerchantTotals(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate merchant totals: %w", err)
	}

	summary := &domain.MerchantSummary{
		MerchantID:        merchantID,
		TotalTransactions: count,
	}
	if count > 0 {
		summary.TotalAmount = &total
	}
	return summary, nil
}

func (s *Service) fromCache(ctx context.Context, key string) *domain.SpendingInsights {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil || data == nil {
		return nil
	}
	var insights domain.SpendingInsights
	if err := json.Unmarshal(data, &insights); err != nil {
		return nil
	}
	return &insights
}

func (s *Service) toCache(ctx context.Context, key string, insights *domain.SpendingInsights) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(insights)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, cacheTTL); err != nil {
		slog.Debug("failed to cache insights", "key", key, "error", err)
	}
}
