package rules

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func engineTx(id string, amount string) *domain.Transaction {
	return &domain.Transaction{
		ID:            id,
		AccountID:     "AC00128",
		MerchantID:    "M015",
		DeviceID:      "D000051",
		Amount:        decimal.RequireFromString(amount),
		Type:          domain.TypeDebit,
		Channel:       domain.ChannelOnline,
		Location:      "New York",
		LoginAttempts: 1,
		Duration:      120,
		CustomerAge:   30,
		IPAddress:     "192.168.1.1",
		Timestamp:     time.Now().UTC(),
	}
}

func TestEngineLoadAndFlag(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	if err := engine.LoadRule(&domain.RuleConfig{
		ID:         "high-amount",
		Name:       "High Amount",
		Expression: "amount > 10000.0",
		Enabled:    true,
	}); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Fatalf("expected 1 rule, got %d", engine.RulesCount())
	}

	flagged := make(map[string]struct{})
	engine.Flag(context.Background(), []*domain.Transaction{
		engineTx("TX000001", "500.00"),
		engineTx("TX000002", "20000.00"),
	}, flagged)

	if _, ok := flagged["TX000002"]; !ok {
		t.Error("expected TX000002 flagged")
	}
	if _, ok := flagged["TX000001"]; ok {
		t.Error("did not expect TX000001 flagged")
	}
}

func TestValidateRuleLeavesEngineUntouched(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	cfg := &domain.RuleConfig{
		ID:         "dormant",
		Name:       "Dormant",
		Expression: "amount > 0.0",
		Enabled:    false,
	}
	if err := engine.ValidateRule(cfg); err != nil {
		t.Fatalf("expected valid expression, got %v", err)
	}

	if engine.RulesCount() != 0 {
		t.Fatalf("validation loaded a rule: %d rules", engine.RulesCount())
	}

	// A validated-but-never-reloaded rule must not flag anything.
	flagged := make(map[string]struct{})
	engine.Flag(context.Background(), []*domain.Transaction{
		engineTx("TX000001", "500.00"),
	}, flagged)

	if len(flagged) != 0 {
		t.Errorf("expected no flags, got %d", len(flagged))
	}
}

func TestEngineInvalidExpression(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	err = engine.LoadRule(&domain.RuleConfig{
		ID:         "broken",
		Name:       "Broken",
		Expression: "amount >>> nonsense",
		Enabled:    true,
	})
	if err == nil {
		t.Error("expected compile error for invalid expression")
	}

	if err := engine.ValidateRule(&domain.RuleConfig{
		ID:         "unknown-var",
		Expression: "no_such_variable == 1",
	}); err == nil {
		t.Error("expected validation error for unknown variable")
	}
}

func TestEngineNonBooleanExpressionIsIgnored(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	if err := engine.LoadRule(&domain.RuleConfig{
		ID:         "numeric",
		Name:       "Numeric",
		Expression: "amount * 2.0",
		Enabled:    true,
	}); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	flagged := make(map[string]struct{})
	engine.Flag(context.Background(), []*domain.Transaction{engineTx("TX000001", "100.00")}, flagged)
	if len(flagged) != 0 {
		t.Errorf("non-boolean results must not flag, got %v", flagged)
	}
}

func TestEngineReloadRules(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	if err := engine.LoadRules([]*domain.RuleConfig{
		{ID: "a", Name: "A", Expression: "amount > 1.0", Enabled: true},
		{ID: "b", Name: "B", Expression: "amount > 2.0", Enabled: true},
		{ID: "c", Name: "C", Expression: "amount > 3.0", Enabled: false},
	}); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	if engine.RulesCount() != 2 {
		t.Fatalf("expected 2 enabled rules, got %d", engine.RulesCount())
	}

	if err := engine.ReloadRules([]*domain.RuleConfig{
		{ID: "d", Name: "D", Expression: `channel == "ATM"`, Enabled: true},
	}); err != nil {
		t.Fatalf("failed to reload rules: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Fatalf("expected 1 rule after reload, got %d", engine.RulesCount())
	}
	if engine.GetLoadedRules()[0].ID != "d" {
		t.Errorf("expected only rule d loaded, got %+v", engine.GetLoadedRules())
	}
}
