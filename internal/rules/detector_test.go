package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func tx(id, amount, location string, loginAttempts int) *domain.Transaction {
	return &domain.Transaction{
		ID:            id,
		AccountID:     "AC00128",
		MerchantID:    "M015",
		DeviceID:      "D000051",
		Amount:        decimal.RequireFromString(amount),
		Type:          domain.TypeCredit,
		Channel:       domain.ChannelATM,
		Location:      location,
		LoginAttempts: loginAttempts,
		Timestamp:     time.Now().UTC(),
	}
}

func ids(txs []*domain.Transaction) map[string]bool {
	set := make(map[string]bool, len(txs))
	for _, t := range txs {
		set[t.ID] = true
	}
	return set
}

func TestSuspiciousEmptyAndSingle(t *testing.T) {
	d := NewDetector(nil)
	ctx := context.Background()

	t.Run("NoTransactions", func(t *testing.T) {
		if got := d.Suspicious(ctx, nil); len(got) != 0 {
			t.Errorf("expected empty result, got %d", len(got))
		}
	})

	t.Run("SingleTransactionSafeLogins", func(t *testing.T) {
		// One transaction: deviation and location rules have no data.
		got := d.Suspicious(ctx, []*domain.Transaction{tx("TX000001", "99999.99", "Mars", 3)})
		if len(got) != 0 {
			t.Errorf("expected nothing flagged for a single safe transaction, got %d", len(got))
		}
	})

	t.Run("SingleTransactionExcessiveLogins", func(t *testing.T) {
		got := d.Suspicious(ctx, []*domain.Transaction{tx("TX000001", "10.00", "New York", 10)})
		if len(got) != 1 || got[0].ID != "TX000001" {
			t.Errorf("expected the single transaction flagged for logins, got %v", got)
		}
	})
}

func TestHighDeviationRule(t *testing.T) {
	d := NewDetector(nil)

	amounts := []string{"100.5", "150.54", "30.50", "145.50", "250.67", "50000.50"}
	var txs []*domain.Transaction
	for i, a := range amounts {
		txs = append(txs, tx(fmt.Sprintf("TX%06d", i+1), a, "New York", 1))
	}

	got := d.Suspicious(context.Background(), txs)
	flagged := ids(got)

	if !flagged["TX000006"] {
		t.Error("expected the 50000.50 outlier to be flagged")
	}
	if len(got) != 1 {
		t.Errorf("expected only the outlier flagged, got %v", flagged)
	}
}

func TestUnusualLocationRule(t *testing.T) {
	d := NewDetector(nil)
	ctx := context.Background()

	t.Run("SingletonOutsideFrequent", func(t *testing.T) {
		// 4 transactions in New York, 1 in Tokyo. Same amounts so the
		// deviation rule stays quiet.
		txs := []*domain.Transaction{
			tx("TX000001", "100.00", "New York", 1),
			tx("TX000002", "100.00", "New York", 1),
			tx("TX000003", "100.00", "New York", 1),
			tx("TX000004", "100.00", "New York", 1),
			tx("TX000005", "100.00", "Tokyo", 1),
		}

		got := d.Suspicious(ctx, txs)
		flagged := ids(got)
		if !flagged["TX000005"] {
			t.Error("expected the Tokyo transaction to be flagged")
		}
		if len(got) != 1 {
			t.Errorf("expected only Tokyo flagged, got %v", flagged)
		}
	})

	t.Run("AllLocationsUsedOnce", func(t *testing.T) {
		// Every location a singleton: no usual location exists yet.
		txs := []*domain.Transaction{
			tx("TX000001", "100.00", "New York", 1),
			tx("TX000002", "100.00", "Tokyo", 1),
			tx("TX000003", "100.00", "London", 1),
			tx("TX000004", "100.00", "Paris", 1),
			tx("TX000005", "100.00", "Berlin", 1),
		}

		if got := d.Suspicious(ctx, txs); len(got) != 0 {
			t.Errorf("expected nothing flagged when all locations are singletons, got %v", ids(got))
		}
	})

	t.Run("FrequentLocationsAreSafe", func(t *testing.T) {
		txs := []*domain.Transaction{
			tx("TX000001", "100.00", "New York", 1),
			tx("TX000002", "100.00", "New York", 1),
			tx("TX000003", "100.00", "Tokyo", 1),
			tx("TX000004", "100.00", "Tokyo", 1),
			tx("TX000005", "100.00", "London", 1),
		}

		got := d.Suspicious(ctx, txs)
		flagged := ids(got)
		// New York and Tokyo are frequent; London is a singleton outside
		// the frequent set.
		if !flagged["TX000005"] || len(got) != 1 {
			t.Errorf("expected only the London transaction flagged, got %v", flagged)
		}
	})
}

func TestExcessiveLoginsRule(t *testing.T) {
	d := NewDetector(nil)
	ctx := context.Background()

	cases := []struct {
		attempts int
		flagged  bool
	}{
		{attempts: 3, flagged: false},
		{attempts: 4, flagged: true},
		{attempts: 10, flagged: true},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("Attempts%d", tc.attempts), func(t *testing.T) {
			txs := []*domain.Transaction{
				tx("TX000001", "100.00", "New York", 1),
				tx("TX000002", "100.00", "New York", tc.attempts),
			}
			got := d.Suspicious(ctx, txs)
			if ids(got)["TX000002"] != tc.flagged {
				t.Errorf("attempts=%d: expected flagged=%v, got %v", tc.attempts, tc.flagged, ids(got))
			}
		})
	}
}

func TestSuspiciousUnionDeduplicates(t *testing.T) {
	d := NewDetector(nil)

	// The last transaction has excessive logins and an unusual location;
	// it must appear exactly once in the union.
	txs := []*domain.Transaction{
		tx("TX000001", "100.00", "New York", 1),
		tx("TX000002", "100.00", "New York", 1),
		tx("TX000003", "100.00", "New York", 1),
		tx("TX000004", "100.00", "New York", 1),
		tx("TX000005", "90000.00", "Tokyo", 10),
	}

	got := d.Suspicious(context.Background(), txs)
	if len(got) != 1 || got[0].ID != "TX000005" {
		t.Errorf("expected exactly one flagged transaction, got %v", ids(got))
	}
}

func TestSuspiciousPreservesChronologicalOrder(t *testing.T) {
	d := NewDetector(nil)

	txs := []*domain.Transaction{
		tx("TX000001", "100.00", "New York", 10),
		tx("TX000002", "100.00", "New York", 1),
		tx("TX000003", "100.00", "New York", 10),
		tx("TX000004", "100.00", "New York", 5),
	}

	got := d.Suspicious(context.Background(), txs)
	if len(got) != 3 {
		t.Fatalf("expected 3 flagged, got %d", len(got))
	}
	want := []string{"TX000001", "TX000003", "TX000004"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestSuspiciousWithCustomRules(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRule(&domain.RuleConfig{
		ID:         "branch-channel",
		Name:       "Branch Channel",
		Expression: `channel == "Branch"`,
		Enabled:    true,
	}); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	d := NewDetector(engine)

	branchTx := tx("TX000002", "100.00", "New York", 1)
	branchTx.Channel = domain.ChannelBranch
	txs := []*domain.Transaction{
		tx("TX000001", "100.00", "New York", 1),
		branchTx,
	}

	got := d.Suspicious(context.Background(), txs)
	if len(got) != 1 || got[0].ID != "TX000002" {
		t.Errorf("expected the branch transaction flagged by the custom rule, got %v", ids(got))
	}
}
