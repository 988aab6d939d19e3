package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"topup-api/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Both statements run server-side as a single atomic operation, so
// concurrent callers on the same account never lose an update.
const (
	creditSQL = `
		INSERT INTO wallets (account_id, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id)
		DO UPDATE SET
			balance    = wallets.balance + excluded.balance,
			updated_at = excluded.updated_at
		RETURNING balance`

	debitSQL = `
		UPDATE wallets
		SET balance = balance - ?, updated_at = ?
		WHERE account_id = ? AND balance >= ?
		RETURNING balance`
)

// WalletLedger owns per-account balances
type WalletLedger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewWalletLedger creates a ledger over db
func NewWalletLedger(db *gorm.DB) *WalletLedger {
	return &WalletLedger{db: db, now: time.Now}
}

// WithTx returns a ledger bound to an open database transaction
func (l *WalletLedger) WithTx(tx *gorm.DB) *WalletLedger {
	return &WalletLedger{db: tx, now: l.now}
}

// Credit adds amount to the account's balance, creating the wallet if needed,
// and returns the new balance.
func (l *WalletLedger) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return decimal.Zero, fmt.Errorf("%w: account id is required", ErrLedger)
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: credit amount must be positive, got %s", ErrLedger, amount)
	}

	now := l.now()
	var balance decimal.Decimal
	row := l.db.WithContext(ctx).Raw(creditSQL, accountID, amount, now, now).Row()
	if err := row.Scan(&balance); err != nil {
		return decimal.Zero, fmt.Errorf("%w: credit %s to %s: %v", ErrLedger, amount, accountID, err)
	}
	return balance.Round(2), nil
}

// Debit subtracts amount only if the balance covers it
func (l *WalletLedger) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: debit amount must be positive, got %s", ErrLedger, amount)
	}

	var balance decimal.Decimal
	row := l.db.WithContext(ctx).Raw(debitSQL, amount, l.now(), accountID, amount).Row()
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrInsufficientBalance
		}
		return decimal.Zero, fmt.Errorf("%w: debit %s from %s: %v", ErrLedger, amount, accountID, err)
	}
	return balance.Round(2), nil
}

// GetBalance reads the wallet, creating a zero-balance row on first access
func (l *WalletLedger) GetBalance(ctx context.Context, accountID string) (*models.Wallet, error) {
	var w models.Wallet
	err := l.db.WithContext(ctx).
		Where(models.Wallet{AccountID: accountID}).
		Attrs(models.Wallet{Balance: decimal.Zero}).
		FirstOrCreate(&w).Error
	if err != nil {
		// a concurrent first access may have created it
		if again := l.db.WithContext(ctx).Where("account_id = ?", accountID).First(&w).Error; again != nil {
			return nil, fmt.Errorf("failed to load wallet: %w", err)
		}
	}
	w.Balance = w.Balance.Round(2)
	return &w, nil
}
