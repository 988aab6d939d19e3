package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"topup-api/internal/models"

	"gorm.io/gorm"
)

// settleableStatuses are the states a transaction may be settled from
var settleableStatuses = []string{models.StatusPending, models.StatusConfirmed}

// TransactionStore persists transactions and their lifecycle
type TransactionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTransactionStore creates a store over db
func NewTransactionStore(db *gorm.DB) *TransactionStore {
	return &TransactionStore{db: db, now: time.Now}
}

// WithTx returns a store bound to an open database transaction
func (s *TransactionStore) WithTx(tx *gorm.DB) *TransactionStore {
	return &TransactionStore{db: tx, now: s.now}
}

// Create inserts tx and fails with ErrPersistence unless the row comes back
func (s *TransactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.Status == "" {
		tx.Status = models.StatusPending
	}

	result := s.db.WithContext(ctx).Create(tx)
	if result.Error != nil {
		return fmt.Errorf("%w: insert transaction %s: %v", ErrPersistence, tx.TxID, result.Error)
	}
	if result.RowsAffected != 1 || tx.ID == 0 {
		return fmt.Errorf("%w: insert transaction %s returned no row", ErrPersistence, tx.TxID)
	}
	return nil
}

// GetByTxID loads a transaction by its public id
func (s *TransactionStore) GetByTxID(ctx context.Context, txID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.WithContext(ctx).Where("tx_id = ?", txID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, txID)
		}
		return nil, fmt.Errorf("failed to load transaction %s: %w", txID, err)
	}
	return &tx, nil
}

// AttachMessage records where the operator notification was posted
func (s *TransactionStore) AttachMessage(ctx context.Context, txID, chatID string, messageID int64) error {
	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("tx_id = ?", txID).
		Updates(map[string]interface{}{
			"operator_chat_id":    chatID,
			"operator_message_id": messageID,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to attach message to %s: %w", txID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: transaction %s", ErrNotFound, txID)
	}
	return nil
}

// Settle moves the transaction to done, but only from pending or confirmed.
// apply runs inside the same database transaction after the status claim;
// if it fails the claim is rolled back, so a credit and the status change
// either both happen or neither does.
func (s *TransactionStore) Settle(ctx context.Context, txID string, apply func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		result := tx.Model(&models.Transaction{}).
			Where("tx_id = ? AND status IN ?", txID, settleableStatuses).
			Updates(map[string]interface{}{
				"status":     models.StatusDone,
				"settled_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update transaction %s: %w", txID, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStatusConflict
		}

		if apply != nil {
			return apply(tx)
		}
		return nil
	})
}

// InvoiceText returns the stored plain-text invoice
func (s *TransactionStore) InvoiceText(ctx context.Context, txID string) (string, error) {
	tx, err := s.GetByTxID(ctx, txID)
	if err != nil {
		return "", err
	}
	if tx.InvoiceText == "" {
		return "", fmt.Errorf("%w: invoice for %s", ErrNotFound, txID)
	}
	return tx.InvoiceText, nil
}

// FindAccount loads an account by its stable id
func (s *TransactionStore) FindAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var acc models.Account
	err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
		}
		return nil, err
	}
	return &acc, nil
}
