package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

// Monetary columns store minor units (cents) as integers so SQL SUM stays
// exact under both drivers; the domain layer exposes decimals.

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY
);
`

const schemaMerchants = `
CREATE TABLE IF NOT EXISTS merchants (
    id TEXT PRIMARY KEY
);
`

const schemaDevices = `
CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY
);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(id),
    merchant_id TEXT NOT NULL REFERENCES merchants(id),
    device_id TEXT NOT NULL REFERENCES devices(id),
    amount BIGINT NOT NULL,
    type TEXT NOT NULL,
    channel TEXT NOT NULL,
    location TEXT NOT NULL,
    login_attempts INTEGER NOT NULL,
    duration INTEGER NOT NULL,
    customer_age INTEGER NOT NULL,
    customer_occupation TEXT NOT NULL,
    account_balance BIGINT NOT NULL,
    ip_address TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    previous_timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions(merchant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAccounts,
		schemaMerchants,
		schemaDevices,
		schemaTransactions,
		schemaRuleConfigs,
	}
}
