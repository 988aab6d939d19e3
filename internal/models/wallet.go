package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the spendable balance of one account, in the base currency
type Wallet struct {
	ID        uint            `json:"-" gorm:"primaryKey"`
	AccountID string          `json:"account_id" gorm:"not null;size:64;uniqueIndex"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:numeric(14,2);not null;default:0"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
