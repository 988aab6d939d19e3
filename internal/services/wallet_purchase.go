package services

import (
	"context"
	"fmt"
	"strings"
	"topup-api/internal/config"
	"topup-api/internal/metrics"
	"topup-api/internal/models"
	"topup-api/pkg/logging"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentMethodWallet marks purchases paid from the wallet balance
const PaymentMethodWallet = "saldo"

// PurchaseRequest is a product bought with wallet balance
type PurchaseRequest struct {
	Game     string `json:"game" validate:"required,max=100"`
	Package  string `json:"package" validate:"required,max=150"`
	PlayerID string `json:"playerId" validate:"max=100"`
	Price    string `json:"price" validate:"required"`
}

// PurchaseResult is the created transaction and the balance left
type PurchaseResult struct {
	Transaction *models.Transaction
	Balance     decimal.Decimal
	Outcomes    Outcomes
}

// WalletPurchase pays for products out of the wallet balance
type WalletPurchase struct {
	cfg       *config.Config
	db        *gorm.DB
	store     *TransactionStore
	ledger    *WalletLedger
	events    EventPublisher
	ids       *IDGenerator
	announcer *announcer
	validate  *validator.Validate
}

func NewWalletPurchase(
	cfg *config.Config,
	db *gorm.DB,
	store *TransactionStore,
	ledger *WalletLedger,
	notifier Notifier,
	events EventPublisher,
	ids *IDGenerator,
) *WalletPurchase {
	if events == nil {
		events = NoopPublisher{}
	}
	return &WalletPurchase{
		cfg:    cfg,
		db:     db,
		store:  store,
		ledger: ledger,
		events: events,
		ids:    ids,
		announcer: &announcer{
			notifier:        notifier,
			store:           store,
			chatID:          cfg.TelegramChatID,
			fulfillmentGame: cfg.FulfillmentGame,
			operatorNumber:  cfg.OperatorContactNumber,
		},
		validate: validator.New(),
	}
}

// Purchase debits the wallet and records a confirmed transaction in one
// database transaction, then tells the operator to deliver the product.
func (w *WalletPurchase) Purchase(ctx context.Context, account *models.Account, req PurchaseRequest) (*PurchaseResult, error) {
	req.Game = strings.TrimSpace(req.Game)
	req.Package = strings.TrimSpace(req.Package)
	req.PlayerID = strings.TrimSpace(req.PlayerID)

	if err := w.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be a positive number", ErrMalformedRequest)
	}
	price = price.Round(2)

	if strings.EqualFold(req.Game, w.cfg.RechargeGame) {
		return nil, fmt.Errorf("%w: balance cannot be bought with balance", ErrMalformedRequest)
	}

	accountID := account.ID
	tx := &models.Transaction{
		TxID:          w.ids.Next(),
		AccountID:     &accountID,
		Game:          req.Game,
		PackageName:   req.Package,
		PlayerID:      req.PlayerID,
		Amount:        price,
		Currency:      BaseCurrency,
		PaymentMethod: PaymentMethodWallet,
		Email:         account.Email,
		Name:          account.FullName,
		Phone:         account.Phone,
		Status:        models.StatusConfirmed,
	}
	log := logging.WithTx(tx.TxID)

	var balance decimal.Decimal
	err = w.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var err error
		balance, err = w.ledger.WithTx(dbtx).Debit(ctx, accountID, price)
		if err != nil {
			return err
		}
		return w.store.WithTx(dbtx).Create(ctx, tx)
	})
	if err != nil {
		metrics.RecordWalletPurchase("failed")
		log.Warnf("Wallet purchase rejected: %v", err)
		return nil, err
	}
	metrics.RecordWalletPurchase("ok")
	log.Infof("Wallet purchase - account: %s, amount: %s, balance left: %s", accountID, price.StringFixed(2), balance.StringFixed(2))

	result := &PurchaseResult{Transaction: tx, Balance: balance}
	w.announcer.announce(ctx, tx, &result.Outcomes)

	if err := w.events.Publish(ctx, NewTransactionEvent(EventWalletDebited, tx)); err != nil {
		log.Warnf("Failed to publish event: %v", err)
		result.Outcomes.Add(failed("event", err))
	}
	return result, nil
}
