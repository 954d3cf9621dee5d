// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository defines the storage primitives the analytics core depends on:
// filter-by-account, group-by-field with count, sum-by-field and windowed
// group-counts. Implementations must never mutate stored transactions.
type Repository interface {
	// Entity operations (accounts, merchants and devices are identifier-only).
	EnsureAccount(ctx context.Context, accountID string) error
	EnsureMerchant(ctx context.Context, merchantID string) error
	EnsureDevice(ctx context.Context, deviceID string) error
	AccountExists(ctx context.Context, accountID string) (bool, error)
	MerchantExists(ctx context.Context, merchantID string) (bool, error)
	DeviceExists(ctx context.Context, deviceID string) (bool, error)

	// Transaction intake.
	NextTransactionID(ctx context.Context) (string, error)
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// Read primitives for analytics. TransactionsByAccount returns the
	// account's transactions in chronological order; an unknown account
	// yields an empty slice, never an error.
	TransactionsByAccount(ctx context.Context, accountID string) ([]*Transaction, error)

	// GroupCounts returns occurrence counts for one categorical field within
	// an account's transactions, ordered by count descending.
	GroupCounts(ctx context.Context, accountID string, field GroupField) ([]FieldCount, error)

	// SpendingByType returns exact per-type amount totals and counts for an
	// account. Types with no transactions are absent.
	SpendingByType(ctx context.Context, accountID string) ([]SpendingBucket, error)

	// MerchantTotals returns the exact amount sum and transaction count for
	// a merchant. An unknown merchant yields a zero sum and zero count.
	MerchantTotals(ctx context.Context, merchantID string) (decimal.Decimal, int64, error)

	// ActiveAccountsSince returns per-account transaction counts for
	// transactions at or after since, keeping only accounts whose count is
	// strictly greater than threshold, ordered by count descending.
	ActiveAccountsSince(ctx context.Context, since time.Time, threshold int64) ([]AccountActivity, error)

	// Rule configuration operations.
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
