package domain

import (
	"github.com/shopspring/decimal"
)

// FieldCount is an occurrence count for one value of a categorical field
// (merchant, channel, location) within an account's transaction set.
type FieldCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// GroupField names a categorical transaction column the repository can
// group-count on. Closed set so callers never hand raw column names to SQL.
type GroupField string

const (
	GroupByMerchant GroupField = "merchant_id"
	GroupByChannel  GroupField = "channel"
	GroupByLocation GroupField = "location"
)

// SpendingBucket is the per-type spending total for one account.
type SpendingBucket struct {
	Type             TransactionType `json:"type"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	TransactionCount int64           `json:"transactionCount"`
}

// MostUsed is the single most frequent value of a dimension, or an
// explanatory message when every value occurs exactly once and "most used"
// carries no signal.
type MostUsed struct {
	Value   string `json:"value,omitempty"`
	Count   int64  `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}

// SpendingInsights is the behavioral summary for one account.
// All fields degrade to empty/null for an unknown account.
type SpendingInsights struct {
	AccountID        string           `json:"accountId"`
	SpendingByType   []SpendingBucket `json:"spendingByType"`
	MostUsedMerchant *MostUsed        `json:"mostUsedMerchant"`
	MostUsedChannel  *MostUsed        `json:"mostUsedChannel"`
	MostUsedLocation *MostUsed        `json:"mostUsedLocation"`
}

// MerchantSummary aggregates all transactions seen at one merchant.
// TotalAmount is null when the merchant has no transactions.
type MerchantSummary struct {
	MerchantID        string           `json:"merchantId"`
	TotalAmount       *decimal.Decimal `json:"totalAmount"`
	TotalTransactions int64            `json:"totalTransactions"`
}

// AccountActivity is a per-account transaction count within a time window.
type AccountActivity struct {
	AccountID        string `json:"accountId"`
	TransactionCount int64  `json:"transactionCount"`
}

// HighFrequencyReport lists accounts whose windowed transaction count
// exceeded the high-frequency threshold, ordered by count descending.
type HighFrequencyReport struct {
	PeriodDays            int               `json:"periodDays"`
	HighFrequencyAccounts []AccountActivity `json:"highFrequencyAccounts"`
}
