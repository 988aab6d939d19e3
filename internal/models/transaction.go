package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction lifecycle states
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusDone      = "done"
	StatusError     = "error"
)

// Transaction is one payment attempt, from submission to settlement
type Transaction struct {
	BaseModel

	// Identity
	TxID      string  `json:"transaction_id" gorm:"column:tx_id;not null;size:40;uniqueIndex"`
	AccountID *string `json:"account_id,omitempty" gorm:"size:64;index"`

	// What was bought
	Game        string          `json:"game" gorm:"not null;size:100;index"`
	PackageName string          `json:"package_name" gorm:"size:150"`
	PlayerID    string          `json:"player_id" gorm:"size:100"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	Currency    string          `json:"currency" gorm:"not null;size:8"`

	// How it was paid
	PaymentMethod string `json:"payment_method" gorm:"not null;size:50"`
	Reference     string `json:"reference,omitempty" gorm:"size:100"`

	// Customer contact
	Email string `json:"email,omitempty" gorm:"size:255"`
	Name  string `json:"name,omitempty" gorm:"size:255"`
	Phone string `json:"phone,omitempty" gorm:"size:32"`

	// Artifacts
	ReceiptURL  *string `json:"receipt_url,omitempty" gorm:"type:text"`
	InvoiceURL  *string `json:"invoice_url,omitempty" gorm:"type:text"`
	InvoiceText string  `json:"-" gorm:"type:text"`

	// Operator channel message, set after the notification is posted
	OperatorChatID    string `json:"-" gorm:"size:64"`
	OperatorMessageID *int64 `json:"-"`

	Status    string     `json:"status" gorm:"not null;size:20;index;default:'pending'"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// TableName pins the table name regardless of naming strategy
func (Transaction) TableName() string {
	return "transactions"
}
