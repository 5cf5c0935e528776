package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrInsufficientBalance is returned when a debit would drive a
// balance negative
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrInvalidAmount is returned for non-positive ledger amounts
var ErrInvalidAmount = errors.New("amount must be positive")

// GetBalance returns the current balance for a user. An unknown user
// has balance zero.
func (db *DB) GetBalance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := db.Pool.QueryRow(ctx,
		`SELECT balance FROM account_balances WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance for %s: %w", userID, err)
	}
	return balance, nil
}

// Credit adds funds to a user balance, creating the row if needed
func (db *DB) Credit(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %f", amount)
	}
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO account_balances (user_id, balance, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET
			balance = account_balances.balance + EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`,
		userID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", userID, err)
	}
	return nil
}

// Debit removes funds from a user balance as a single conditional
// update. The WHERE clause makes the compare and the decrement one
// atomic statement, so concurrent debits can never drive the balance
// negative. Zero rows affected means insufficient funds.
func (db *DB) Debit(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %f", amount)
	}
	tag, err := db.Pool.Exec(ctx,
		`UPDATE account_balances
		 SET balance = balance - $2, updated_at = $3
		 WHERE user_id = $1 AND balance >= $2`,
		userID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}
