// Kestrel - Transaction analytics with fraud signals built in.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command seed loads a bank transactions CSV into the Kestrel database.
// The expected layout matches the upstream bank_transactions_data.csv data
// set: one row per transaction with account, merchant and device columns.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// csvTimeLayout is the timestamp format used by the data set.
const csvTimeLayout = "2006-01-02 15:04:05"

func main() {
	csvPath := flag.String("csv", "data_set/bank_transactions_data.csv", "path to the transactions CSV file")
	dbPath := flag.String("db", "./kestrel.db", "path to the sqlite database")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*csvPath, *dbPath); err != nil {
		slog.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

func run(csvPath, dbPath string) error {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: dbPath,
	})
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer repo.Close()

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{
		"TransactionID", "AccountID", "MerchantID", "DeviceID",
		"TransactionAmount", "TransactionDate", "TransactionType",
		"TransactionDuration", "LoginAttempts", "Channel", "Location",
		"IPAddress", "CustomerAge", "CustomerOccupation", "AccountBalance",
		"PreviousTransactionDate",
	} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("CSV is missing required column %q", required)
		}
	}

	ctx := context.Background()
	start := time.Now()
	var loaded, skipped int

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV row: %w", err)
		}

		tx, err := rowToTransaction(row, col)
		if err != nil {
			slog.Warn("skipping malformed row", "error", err)
			skipped++
			continue
		}

		// Entities first so the transaction's references resolve.
		if err := repo.EnsureAccount(ctx, tx.AccountID); err != nil {
			return fmt.Errorf("failed to ensure account %s: %w", tx.AccountID, err)
		}
		if err := repo.EnsureMerchant(ctx, tx.MerchantID); err != nil {
			return fmt.Errorf("failed to ensure merchant %s: %w", tx.MerchantID, err)
		}
		if err := repo.EnsureDevice(ctx, tx.DeviceID); err != nil {
			return fmt.Errorf("failed to ensure device %s: %w", tx.DeviceID, err)
		}

		if err := repo.SaveTransaction(ctx, tx); err != nil {
			slog.Warn("skipping transaction", "transaction_id", tx.ID, "error", err)
			skipped++
			continue
		}
		loaded++
	}

	slog.Info("seeding complete",
		"loaded", loaded,
		"skipped", skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func rowToTransaction(row []string, col map[string]int) (*domain.Transaction, error) {
	get := func(name string) string { return row[col[name]] }

	amount, err := decimal.NewFromString(get("TransactionAmount"))
	if err != nil {
		return nil, fmt.Errorf("bad TransactionAmount %q: %w", get("TransactionAmount"), err)
	}
	balance, err := decimal.NewFromString(get("AccountBalance"))
	if err != nil {
		return nil, fmt.Errorf("bad AccountBalance %q: %w", get("AccountBalance"), err)
	}

	ts, err := time.Parse(csvTimeLayout, get("TransactionDate"))
	if err != nil {
		return nil, fmt.Errorf("bad TransactionDate %q: %w", get("TransactionDate"), err)
	}
	prev, err := time.Parse(csvTimeLayout, get("PreviousTransactionDate"))
	if err != nil {
		return nil, fmt.Errorf("bad PreviousTransactionDate %q: %w", get("PreviousTransactionDate"), err)
	}

	duration, err := atoiField("TransactionDuration", get("TransactionDuration"))
	if err != nil {
		return nil, err
	}
	loginAttempts, err := atoiField("LoginAttempts", get("LoginAttempts"))
	if err != nil {
		return nil, err
	}
	age, err := atoiField("CustomerAge", get("CustomerAge"))
	if err != nil {
		return nil, err
	}

	txType := domain.TransactionType(get("TransactionType"))
	if !txType.Valid() {
		return nil, fmt.Errorf("bad TransactionType %q", get("TransactionType"))
	}
	channel := domain.Channel(get("Channel"))
	if !channel.Valid() {
		return nil, fmt.Errorf("bad Channel %q", get("Channel"))
	}

	return &domain.Transaction{
		ID:                 get("TransactionID"),
		AccountID:          get("AccountID"),
		MerchantID:         get("MerchantID"),
		DeviceID:           get("DeviceID"),
		Amount:             amount,
		Type:               txType,
		Channel:            channel,
		Location:           get("Location"),
		LoginAttempts:      loginAttempts,
		Duration:           duration,
		CustomerAge:        age,
		CustomerOccupation: get("CustomerOccupation"),
		AccountBalance:     balance,
		IPAddress:          get("IPAddress"),
		Timestamp:          ts.UTC(),
		PreviousTimestamp:  prev.UTC(),
		CreatedAt:          time.Now().UTC(),
	}, nil
}

func atoiField(name, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", name, v, err)
	}
	return n, nil
}
