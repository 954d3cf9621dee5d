// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// toCents converts a decimal amount to integer minor units for storage.
func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// fromCents converts stored minor units back to a decimal amount.
func fromCents(n int64) decimal.Decimal {
	return decimal.New(n, -2)
}

// EnsureAccount inserts the account if it does not exist yet.
func (r *SQLRepository) EnsureAccount(ctx context.Context, accountID string) error {
	return r.ensureEntity(ctx, "accounts", accountID)
}

// EnsureMerchant inserts the merchant if it does not exist yet.
func (r *SQLRepository) EnsureMerchant(ctx context.Context, merchantID string) error {
	return r.ensureEntity(ctx, "merchants", merchantID)
}

// EnsureDevice inserts the device if it does not exist yet.
func (r *SQLRepository) EnsureDevice(ctx context.Context, deviceID string) error {
	return r.ensureEntity(ctx, "devices", deviceID)
}

func (r *SQLRepository) ensureEntity(ctx context.Context, table, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	query := fmt.Sprintf("INSERT INTO %s (id) VALUES (?) ON CONFLICT (id) DO NOTHING", table)
	_, err := r.db.ExecContext(ctx, r.rebind(query), id)
	return err
}

// AccountExists reports whether the account is known.
func (r *SQLRepository) AccountExists(ctx context.Context, accountID string) (bool, error) {
	return r.entityExists(ctx, "accounts", accountID)
}

// MerchantExists reports whether the merchant is known.
func (r *SQLRepository) MerchantExists(ctx context.Context, merchantID string) (bool, error) {
	return r.entityExists(ctx, "merchants", merchantID)
}

// DeviceExists reports whether the device is known.
func (r *SQLRepository) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	return r.entityExists(ctx, "devices", deviceID)
}

func (r *SQLRepository) entityExists(ctx context.Context, table, id string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table)
	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NextTransactionID returns the next identifier in the TX%06d sequence,
// continuing from the highest stored ID. Fixed-width IDs sort lexically,
// so MAX(id) is the latest.
func (r *SQLRepository) NextTransactionID(ctx context.Context) (string, error) {
	var last sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT MAX(id) FROM transactions").Scan(&last)
	if err != nil {
		return "", fmt.Errorf("failed to read transaction sequence: %w", err)
	}
	if !last.Valid || !strings.HasPrefix(last.String, "TX") {
		return "TX000001", nil
	}
	n, err := strconv.Atoi(last.String[2:])
	if err != nil {
		return "", fmt.Errorf("malformed transaction id %q: %w", last.String, err)
	}
	return fmt.Sprintf("TX%06d", n+1), nil
}

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, account_id, merchant_id, device_id, amount, type, channel,
			location, login_attempts, duration, customer_age,
			customer_occupation, account_balance, ip_address,
			timestamp, previous_timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.AccountID, tx.MerchantID, tx.DeviceID,
		toCents(tx.Amount), string(tx.Type), string(tx.Channel),
		tx.Location, tx.LoginAttempts, tx.Duration, tx.CustomerAge,
		tx.CustomerOccupation, toCents(tx.AccountBalance), tx.IPAddress,
		tx.Timestamp, tx.PreviousTimestamp, tx.CreatedAt,
	)
	return err
}

const transactionColumns = `
	id, account_id, merchant_id, device_id, amount, type, channel,
	location, login_attempts, duration, customer_age,
	customer_occupation, account_balance, ip_address,
	timestamp, previous_timestamp, created_at
`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amount, balance int64
	var txType, channel string

	err := row.Scan(
		&tx.ID, &tx.AccountID, &tx.MerchantID, &tx.DeviceID,
		&amount, &txType, &channel,
		&tx.Location, &tx.LoginAttempts, &tx.Duration, &tx.CustomerAge,
		&tx.CustomerOccupation, &balance, &tx.IPAddress,
		&tx.Timestamp, &tx.PreviousTimestamp, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Amount = fromCents(amount)
	tx.AccountBalance = fromCents(balance)
	tx.Type = domain.TransactionType(txType)
	tx.Channel = domain.Channel(channel)
	return &tx, nil
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE id = ?"

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// TransactionsByAccount retrieves an account's transactions in chronological
// order. An unknown account yields an empty slice.
func (r *SQLRepository) TransactionsByAccount(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE account_id = ? ORDER BY timestamp ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// GroupCounts returns occurrence counts for one categorical field within an
// account's transactions, ordered by count descending then value ascending.
func (r *SQLRepository) GroupCounts(ctx context.Context, accountID string, field domain.GroupField) ([]domain.FieldCount, error) {
	var column string
	switch field {
	case domain.GroupByMerchant:
		column = "merchant_id"
	case domain.GroupByChannel:
		column = "channel"
	case domain.GroupByLocation:
		column = "location"
	default:
		return nil, fmt.Errorf("%w: unsupported group field %q", ErrInvalidInput, field)
	}

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) AS n
		FROM transactions
		WHERE account_id = ?
		GROUP BY %s
		ORDER BY n DESC, %s ASC
	`, column, column, column)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.FieldCount
	for rows.Next() {
		var fc domain.FieldCount
		if err := rows.Scan(&fc.Value, &fc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, fc)
	}

	return counts, rows.Err()
}

// SpendingByType returns exact per-type amount totals and counts for an
// account. Types with no transactions are absent, never zero-filled.
func (r *SQLRepository) SpendingByType(ctx context.Context, accountID string) ([]domain.SpendingBucket, error) {
	query := `
		SELECT type, CAST(SUM(amount) AS BIGINT), COUNT(*)
		FROM transactions
		WHERE account_id = ?
		GROUP BY type
		ORDER BY type ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []domain.SpendingBucket
	for rows.Next() {
		var txType string
		var total, count int64
		if err := rows.Scan(&txType, &total, &count); err != nil {
			return nil, err
		}
		buckets = append(buckets, domain.SpendingBucket{
			Type:             domain.TransactionType(txType),
			TotalAmount:      fromCents(total),
			TransactionCount: count,
		})
	}

	return buckets, rows.Err()
}

// MerchantTotals returns the exact amount sum and transaction count for a
// merchant. An unknown merchant yields zero values, not an error.
func (r *SQLRepository) MerchantTotals(ctx context.Context, merchantID string) (decimal.Decimal, int64, error) {
	query := `
		SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT), COUNT(*)
		FROM transactions
		WHERE merchant_id = ?
	`

	var total, count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), merchantID).Scan(&total, &count)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return fromCents(total), count, nil
}

// ActiveAccountsSince returns per-account transaction counts within the
// window, keeping only accounts strictly above threshold, ordered by count
// descending. The aggregation runs in the database to bound memory.
func (r *SQLRepository) ActiveAccountsSince(ctx context.Context, since time.Time, threshold int64) ([]domain.AccountActivity, error) {
	query := `
		SELECT account_id, COUNT(*) AS n
		FROM transactions
		WHERE timestamp >= ?
		GROUP BY account_id
		HAVING COUNT(*) > ?
		ORDER BY n DESC, account_id ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activity []domain.AccountActivity
	for rows.Next() {
		var a domain.AccountActivity
		if err := rows.Scan(&a.AccountID, &a.TransactionCount); err != nil {
			return nil, err
		}
		activity = append(activity, a)
	}

	return activity, rows.Err()
}

// SaveRuleConfig stores or updates a rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, enabled,
		now, now,
	)
	return err
}

// ListRuleConfigs retrieves all enabled rule configurations.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, expression, enabled, created_at, updated_at
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &description, &cfg.Expression, &enabled,
			&cfg.CreatedAt, &cfg.UpdatedAt,
		); err != nil {
			return nil, err
		}

		cfg.Description = description.String
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $N for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
