// Package rules provides the fraud detection rules: three builtin anomaly
// detectors plus a CEL-based engine for operator-defined flag rules.
package rules

import (
	"context"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/freq"
	"github.com/opensource-finance/kestrel/internal/stats"
)

// Thresholds for the builtin rules.
const (
	// deviationFactor flags amounts above mean + 2 standard deviations.
	deviationFactor = 2.0

	// maxSafeLoginAttempts is the inclusive safe threshold; only strictly
	// more attempts are flagged.
	maxSafeLoginAttempts = 3

	// topLocations is how many frequent locations count as "usual".
	topLocations = 3

	// minFrequentLocationCount keeps singleton locations out of the
	// frequent set.
	minFrequentLocationCount = 2
)

// Detector flags suspicious transactions within one account's transaction
// set. It is stateless: every call is a pure function of its input.
type Detector struct {
	engine *Engine
}

// NewDetector creates a detector. engine may be nil, in which case only the
// builtin rules run.
func NewDetector(engine *Engine) *Detector {
	return &Detector{engine: engine}
}

// Suspicious returns the set union of transactions matching any fraud rule,
// deduplicated by transaction ID. Input order (chronological from the
// repository read) is preserved; no error paths exist for thin data — rules
// that lack sufficient data simply contribute nothing.
func (d *Detector) Suspicious(ctx context.Context, txs []*domain.Transaction) []*domain.Transaction {
	if len(txs) == 0 {
		return nil
	}

	flagged := make(map[string]struct{})
	d.highDeviation(txs, flagged)
	d.unusualLocation(txs, flagged)
	d.excessiveLogins(txs, flagged)

	if d.engine != nil {
		d.engine.Flag(ctx, txs, flagged)
	}

	var suspicious []*domain.Transaction
	for _, tx := range txs {
		if _, ok := flagged[tx.ID]; ok {
			suspicious = append(suspicious, tx)
		}
	}
	return suspicious
}

// highDeviation flags transactions whose amount strictly exceeds the
// account mean plus two sample standard deviations. With fewer than 2
// transactions the statistic is undefined and the rule is silent.
func (d *Detector) highDeviation(txs []*domain.Transaction, flagged map[string]struct{}) {
	amounts := make([]float64, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.Amount.InexactFloat64()
	}

	stdDev, err := stats.SampleStdDev(amounts)
	if err != nil {
		return
	}
	mean, err := stats.Mean(amounts)
	if err != nil {
		return
	}

	threshold := mean + deviationFactor*stdDev
	for i, tx := range txs {
		if amounts[i] > threshold {
			flagged[tx.ID] = struct{}{}
		}
	}
}

// unusualLocation flags transactions outside the account's top 3 locations.
// Only locations seen at least twice qualify as frequent; when every
// location is a singleton there is no usual location yet and nothing is
// flagged.
func (d *Detector) unusualLocation(txs []*domain.Transaction, flagged map[string]struct{}) {
	counts := freq.CountBy(txs, func(tx *domain.Transaction) string { return tx.Location })
	if freq.AllSingletons(counts) {
		return
	}

	top := freq.TopN(freq.Rank(counts), topLocations, minFrequentLocationCount)
	usual := make(map[string]struct{}, len(top))
	for _, loc := range top {
		usual[loc] = struct{}{}
	}

	for _, tx := range txs {
		if _, ok := usual[tx.Location]; !ok {
			flagged[tx.ID] = struct{}{}
		}
	}
}

// excessiveLogins flags transactions with strictly more than 3 login
// attempts. Works on any account size, including a single transaction.
func (d *Detector) excessiveLogins(txs []*domain.Transaction, flagged map[string]struct{}) {
	for _, tx := range txs {
		if tx.LoginAttempts > maxSafeLoginAttempts {
			flagged[tx.ID] = struct{}{}
		}
	}
}
