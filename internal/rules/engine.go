package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine is the CEL-based evaluation engine for operator-defined flag
// rules. Each rule is a boolean predicate over one transaction; matching
// transactions join the suspicious set alongside the builtin detectors.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine() (*Engine, error) {
	// CEL environment with per-transaction variables
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("balance", cel.DoubleType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("account_id", cel.StringType),
		cel.Variable("merchant_id", cel.StringType),
		cel.Variable("device_id", cel.StringType),
		cel.Variable("ip_address", cel.StringType),
		cel.Variable("login_attempts", cel.IntType),
		cel.Variable("duration", cel.IntType),
		cel.Variable("customer_age", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.Expression == "" {
		return nil, fmt.Errorf("rule %s: expression is required", cfg.ID)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %s: compile failed: %w", cfg.ID, issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rule %s: program creation failed: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}

// Flag evaluates all loaded rules against each transaction and records
// matches in flagged. Evaluation errors disable the offending rule for the
// batch rather than failing the whole detection pass.
func (e *Engine) Flag(ctx context.Context, txs []*domain.Transaction, flagged map[string]struct{}) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return
	}

	broken := make(map[string]struct{})
	for _, tx := range txs {
		activation := activationFor(tx)
		for _, rule := range rules {
			if _, bad := broken[rule.Config.ID]; bad {
				continue
			}
			out, _, err := rule.Program.Eval(activation)
			if err != nil {
				slog.Error("rule evaluation failed",
					"rule_id", rule.Config.ID,
					"transaction_id", tx.ID,
					"error", err,
				)
				broken[rule.Config.ID] = struct{}{}
				continue
			}
			if matched, ok := out.(types.Bool); ok && bool(matched) {
				flagged[tx.ID] = struct{}{}
			}
		}
	}
}

// activationFor builds the CEL variable bindings for one transaction.
func activationFor(tx *domain.Transaction) map[string]any {
	return map[string]any{
		"amount":         tx.Amount.InexactFloat64(),
		"balance":        tx.AccountBalance.InexactFloat64(),
		"tx_type":        string(tx.Type),
		"channel":        string(tx.Channel),
		"location":       tx.Location,
		"account_id":     tx.AccountID,
		"merchant_id":    tx.MerchantID,
		"device_id":      tx.DeviceID,
		"ip_address":     tx.IPAddress,
		"login_attempts": tx.LoginAttempts,
		"duration":       tx.Duration,
		"customer_age":   tx.CustomerAge,
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}
