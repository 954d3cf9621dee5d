package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the closed set of transaction types.
type TransactionType string

const (
	TypeCredit TransactionType = "Credit"
	TypeDebit  TransactionType = "Debit"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TypeCredit || t == TypeDebit
}

// Channel is the closed set of transaction channels.
type Channel string

const (
	ChannelATM    Channel = "ATM"
	ChannelOnline Channel = "Online"
	ChannelBranch Channel = "Branch"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelATM || c == ChannelOnline || c == ChannelBranch
}

// Transaction is a stored banking transaction. Records are written once at
// intake and only ever read by the analytics components.
type Transaction struct {
	ID         string `json:"transactionId"`
	AccountID  string `json:"accountId"`
	MerchantID string `json:"merchantId"`
	DeviceID   string `json:"deviceId"`

	Amount  decimal.Decimal `json:"amount"`
	Type    TransactionType `json:"type"`
	Channel Channel         `json:"channel"`

	Location      string `json:"location"`
	LoginAttempts int    `json:"loginAttempts"`
	Duration      int    `json:"duration"` // seconds

	CustomerAge        int             `json:"customerAge"`
	CustomerOccupation string          `json:"customerOccupation"`
	AccountBalance     decimal.Decimal `json:"accountBalance"`
	IPAddress          string          `json:"ipAddress"`

	Timestamp         time.Time `json:"timestamp"`
	PreviousTimestamp time.Time `json:"previousTimestamp"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Identifier formats carried over from the upstream data set.
var (
	accountIDPattern  = regexp.MustCompile(`^AC\d{5}$`)
	merchantIDPattern = regexp.MustCompile(`^M\d{3}$`)
	deviceIDPattern   = regexp.MustCompile(`^D\d{6}$`)
)

// ValidAccountID reports whether id matches the ACXXXXX format.
func ValidAccountID(id string) bool { return accountIDPattern.MatchString(id) }

// ValidMerchantID reports whether id matches the MXXX format.
func ValidMerchantID(id string) bool { return merchantIDPattern.MatchString(id) }

// ValidDeviceID reports whether id matches the DXXXXXX format.
func ValidDeviceID(id string) bool { return deviceIDPattern.MatchString(id) }

// TransactionRequest is the API intake payload for a new transaction.
type TransactionRequest struct {
	AccountID  string `json:"accountId"`
	MerchantID string `json:"merchantId"`
	DeviceID   string `json:"deviceId"`

	Amount  decimal.Decimal `json:"amount"`
	Type    TransactionType `json:"type"`
	Channel Channel         `json:"channel"`

	Location      string `json:"location"`
	LoginAttempts int    `json:"loginAttempts"`
	Duration      int    `json:"duration"`

	CustomerAge        int             `json:"customerAge"`
	CustomerOccupation string          `json:"customerOccupation"`
	AccountBalance     decimal.Decimal `json:"accountBalance"`
	IPAddress          string          `json:"ipAddress"`

	Timestamp         *time.Time `json:"timestamp,omitempty"`
	PreviousTimestamp *time.Time `json:"previousTimestamp,omitempty"`
}

// Validate checks field formats, closed enumerations and value bounds.
// Referential checks (account/merchant/device existence) belong to the caller.
func (r *TransactionRequest) Validate(now time.Time) error {
	if !ValidAccountID(r.AccountID) {
		return fmt.Errorf("accountId must be in the format ACXXXXX (e.g. AC00128)")
	}
	if !ValidMerchantID(r.MerchantID) {
		return fmt.Errorf("merchantId must be in the format MXXX (e.g. M001)")
	}
	if !ValidDeviceID(r.DeviceID) {
		return fmt.Errorf("deviceId must be in the format DXXXXXX (e.g. D000128)")
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("amount must not be negative")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("type must be one of: Credit, Debit")
	}
	if !r.Channel.Valid() {
		return fmt.Errorf("channel must be one of: ATM, Online, Branch")
	}
	if r.Location == "" {
		return fmt.Errorf("location must not be empty")
	}
	if r.LoginAttempts < 0 {
		return fmt.Errorf("loginAttempts must not be negative")
	}
	if r.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	if r.CustomerAge < 0 {
		return fmt.Errorf("customerAge must not be negative")
	}
	if r.AccountBalance.IsNegative() {
		return fmt.Errorf("accountBalance must not be negative")
	}
	if r.Timestamp != nil && r.Timestamp.After(now) {
		return fmt.Errorf("timestamp must not be in the future")
	}
	if r.PreviousTimestamp != nil && r.PreviousTimestamp.After(now) {
		return fmt.Errorf("previousTimestamp must not be in the future")
	}
	return nil
}

// ToTransaction converts an intake request to a Transaction. The transaction
// ID is assigned by the repository sequence, not here.
func (r *TransactionRequest) ToTransaction(now time.Time) *Transaction {
	ts := now
	if r.Timestamp != nil {
		ts = r.Timestamp.UTC()
	}
	prev := now
	if r.PreviousTimestamp != nil {
		prev = r.PreviousTimestamp.UTC()
	}
	occupation := r.CustomerOccupation
	if occupation == "" {
		occupation = "Other"
	}
	return &Transaction{
		AccountID:          r.AccountID,
		MerchantID:         r.MerchantID,
		DeviceID:           r.DeviceID,
		Amount:             r.Amount,
		Type:               r.Type,
		Channel:            r.Channel,
		Location:           r.Location,
		LoginAttempts:      r.LoginAttempts,
		Duration:           r.Duration,
		CustomerAge:        r.CustomerAge,
		CustomerOccupation: occupation,
		AccountBalance:     r.AccountBalance,
		IPAddress:          r.IPAddress,
		Timestamp:          ts,
		PreviousTimestamp:  prev,
		CreatedAt:          now,
	}
}
