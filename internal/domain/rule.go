package domain

import "time"

// RuleConfig is an operator-defined flag rule. The expression is a CEL
// predicate over a single transaction; when it evaluates to true the
// transaction joins the suspicious set alongside the builtin detectors.
type RuleConfig struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Expression  string    `json:"expression"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}
