// Package velocity provides the high-frequency account scan.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	// DefaultPeriodDays is the scan window when the caller does not supply
	// one. The upstream data set is historical, so the default is wide.
	DefaultPeriodDays = 1000

	// frequencyThreshold is the inclusive-exclude boundary: an account with
	// exactly this many windowed transactions is not flagged.
	frequencyThreshold = 10
)

// Service scans for accounts with unusually high transaction frequency
// within a trailing time window.
type Service struct {
	repo domain.Repository
	now  func() time.Time
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// HighFrequencyAccounts returns every account whose transaction count within
// the trailing window strictly exceeds the threshold, ordered by count
// descending. Accounts at or below the threshold are absent entirely.
func (s *Service) HighFrequencyAccounts(ctx context.Context, periodDays int) (*domain.HighFrequencyReport, error) {
	if periodDays <= 0 {
		periodDays = DefaultPeriodDays
	}

	since := s.now().UTC().Add(-time.Duration(periodDays) * 24 * time.Hour)

	activity, err := s.repo.ActiveAccountsSince(ctx, since, frequencyThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to scan account activity: %w", err)
	}
	if activity == nil {
		activity = []domain.AccountActivity{}
	}

	return &domain.HighFrequencyReport{
		PeriodDays:            periodDays,
		HighFrequencyAccounts: activity,
	}, nil
}
