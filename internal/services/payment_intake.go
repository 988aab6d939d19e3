package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"topup-api/internal/config"
	"topup-api/internal/metrics"
	"topup-api/internal/models"
	"topup-api/pkg/logging"

	"github.com/jaevor/go-nanoid"
)

// IntakeResult is returned once the transaction has been persisted
type IntakeResult struct {
	TxID     string
	Outcomes Outcomes
}

// PaymentIntake turns a submission into a pending transaction and an
// operator notification.
type PaymentIntake struct {
	cfg       *config.Config
	store     *TransactionStore
	storage   ObjectStorage
	renderer  InvoiceRenderer
	events    EventPublisher
	ids       *IDGenerator
	announcer *announcer
	objectKey func() string
}

// NewPaymentIntake wires the pipeline
func NewPaymentIntake(
	cfg *config.Config,
	store *TransactionStore,
	storage ObjectStorage,
	renderer InvoiceRenderer,
	notifier Notifier,
	events EventPublisher,
	ids *IDGenerator,
) (*PaymentIntake, error) {
	objectKey, err := nanoid.Standard(12)
	if err != nil {
		return nil, fmt.Errorf("failed to create object key generator: %w", err)
	}
	if events == nil {
		events = NoopPublisher{}
	}

	return &PaymentIntake{
		cfg:      cfg,
		store:    store,
		storage:  storage,
		renderer: renderer,
		events:   events,
		ids:      ids,
		announcer: &announcer{
			notifier:        notifier,
			store:           store,
			chatID:          cfg.TelegramChatID,
			fulfillmentGame: cfg.FulfillmentGame,
			operatorNumber:  cfg.OperatorContactNumber,
		},
		objectKey: objectKey,
	}, nil
}

// Submit runs the intake pipeline. Errors are returned only for the steps
// that must stop the request: bad input, missing configuration and a failed
// insert. Everything after the insert is best-effort.
func (p *PaymentIntake) Submit(ctx context.Context, sub *Submission) (*IntakeResult, error) {
	var outcomes Outcomes

	// the local receipt copy is removed whatever happens below
	defer func() {
		if err := sub.Receipt.Remove(); err != nil {
			logging.Warnf("Failed to remove temp receipt %s: %v", sub.Receipt.Path, err)
		}
	}()

	sub.Normalize()
	amount, err := sub.Validate()
	if err != nil {
		logging.Warnf("Rejected %s submission: %v", sub.Encoding, err)
		metrics.RecordSubmission("rejected", sub.PaymentMethod)
		return nil, err
	}

	if missing := p.cfg.MissingForIntake(); len(missing) > 0 {
		logging.Errorf("Payment intake misconfigured, missing: %s", strings.Join(missing, ", "))
		metrics.RecordSubmission("misconfigured", sub.PaymentMethod)
		return nil, fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	txID := p.ids.Next()
	tx := sub.toTransaction(txID, amount)
	log := logging.WithTx(txID)
	logging.Debugf("Submission %s decoded from %s body, receipt attached: %t", txID, sub.Encoding, sub.Receipt != nil)

	outcomes.Add(p.uploadReceipt(ctx, tx, sub.Receipt))
	outcomes.Add(p.renderInvoice(ctx, tx))

	if err := p.store.Create(ctx, tx); err != nil {
		log.Errorf("Failed to persist transaction: %v", err)
		metrics.RecordSubmission("failed", sub.PaymentMethod)
		return nil, err
	}
	log.Infof("Transaction created - game: %s, amount: %s %s, method: %s",
		tx.Game, tx.Amount.StringFixed(2), tx.Currency, tx.PaymentMethod)

	p.announcer.announce(ctx, tx, &outcomes)

	if err := p.events.Publish(ctx, NewTransactionEvent(EventTransactionCreated, tx)); err != nil {
		log.Warnf("Failed to publish event: %v", err)
		outcomes.Add(failed("event", err))
	}

	if bad := outcomes.Failed(); len(bad) > 0 {
		log.Warnf("Intake finished with failed steps: %s", bad.Summary())
	}
	metrics.RecordSubmission("accepted", sub.PaymentMethod)

	return &IntakeResult{TxID: txID, Outcomes: outcomes}, nil
}

func (p *PaymentIntake) uploadReceipt(ctx context.Context, tx *models.Transaction, receipt *ReceiptFile) StepOutcome {
	const step = "receipt_upload"

	if receipt == nil {
		return skipped(step, "sin comprobante")
	}
	if p.cfg.IsNoReceiptGame(tx.Game) {
		return skipped(step, "juego sin comprobante")
	}

	body, err := os.ReadFile(receipt.Path)
	if err != nil {
		logging.WithTx(tx.TxID).Warnf("Failed to read receipt: %v", err)
		return failed(step, err)
	}

	contentType := receipt.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	path := fmt.Sprintf("receipts/%s-%s.%s", tx.TxID, p.objectKey(), receipt.Extension())

	url, err := p.storage.Upload(ctx, path, contentType, body)
	if err != nil {
		logging.WithTx(tx.TxID).Warnf("Receipt upload failed: %v", err)
		return failed(step, err)
	}
	tx.ReceiptURL = &url
	return succeeded(step, path)
}

func (p *PaymentIntake) renderInvoice(ctx context.Context, tx *models.Transaction) StepOutcome {
	const step = "invoice"

	inv, err := p.renderer.Render(ctx, tx)
	if err != nil {
		logging.WithTx(tx.TxID).Warnf("Invoice render failed: %v", err)
		return failed(step, err)
	}
	tx.InvoiceText = inv.Text

	path := fmt.Sprintf("invoices/%s.png", tx.TxID)
	url, err := p.storage.Upload(ctx, path, "image/png", inv.PNG)
	if err != nil {
		logging.WithTx(tx.TxID).Warnf("Invoice upload failed: %v", err)
		return failed(step, err)
	}
	tx.InvoiceURL = &url
	return succeeded(step, path)
}
