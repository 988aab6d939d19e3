package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"topup-api/internal/config"
	"topup-api/internal/metrics"
	"topup-api/internal/models"
	"topup-api/pkg/logging"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BaseCurrency is the currency wallet balances are held in
const BaseCurrency = "USD"

// AlreadyDoneNote is appended when a settled transaction is actioned again
const AlreadyDoneNote = "ya estaba realizado; el saldo no fue inyectado de nuevo"

// OperatorAction is a press of the "mark done" button
type OperatorAction struct {
	ActionID     string
	ChatID       string
	MessageID    int64
	OriginalText string
	// CallbackID is set when the action came as a raw callback_query
	CallbackID string
}

// Result of one reconciliation, mostly for logs and tests
const (
	ReconcileDone      = "done"
	ReconcileSkipped   = "skipped"
	ReconcileDuplicate = "duplicate"
	ReconcileFailed    = "failed"
)

// ReconcileReport summarizes what the handler did
type ReconcileReport struct {
	TxID     string
	Result   string
	Credited *decimal.Decimal
	Outcomes Outcomes
	Err      error
}

// RateSource provides the local-per-base exchange rate
type RateSource interface {
	ExchangeRate(ctx context.Context) (decimal.Decimal, error)
}

// Reconciler settles transactions on operator confirmation
type Reconciler struct {
	cfg      *config.Config
	store    *TransactionStore
	ledger   *WalletLedger
	rates    RateSource
	mailer   Mailer
	notifier Notifier
	replay   *ReplayProtection
	events   EventPublisher
	now      func() time.Time
}

// NewReconciler wires the handler; replay and events may be nil
func NewReconciler(
	cfg *config.Config,
	store *TransactionStore,
	ledger *WalletLedger,
	rates RateSource,
	mailer Mailer,
	notifier Notifier,
	replay *ReplayProtection,
	events EventPublisher,
) *Reconciler {
	if replay == nil {
		replay = NewReplayProtection(nil, 0)
	}
	if events == nil {
		events = NoopPublisher{}
	}
	return &Reconciler{
		cfg:      cfg,
		store:    store,
		ledger:   ledger,
		rates:    rates,
		mailer:   mailer,
		notifier: notifier,
		replay:   replay,
		events:   events,
		now:      time.Now,
	}
}

// ConvertToBase converts a local-currency amount with rate local units per
// base unit, rounded to cents. Other currencies pass through unchanged.
func ConvertToBase(amount decimal.Decimal, currency, localCurrency string, rate decimal.Decimal) (decimal.Decimal, error) {
	if !strings.EqualFold(currency, localCurrency) {
		return amount.Round(2), nil
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidRate, rate.String())
	}
	return amount.Div(rate).Round(2), nil
}

// Handle processes an operator action. It never returns an error: every
// outcome, including a panic, ends up in the edited operator message.
func (r *Reconciler) Handle(ctx context.Context, action OperatorAction) (report *ReconcileReport) {
	report = &ReconcileReport{}
	var tx *models.Transaction

	defer func() {
		if rec := recover(); rec != nil {
			logging.Errorf("Reconciliation panic for %s: %v", action.ActionID, rec)
			report.Result = ReconcileFailed
			report.Err = fmt.Errorf("panic: %v", rec)
			r.editMessage(ctx, action, tx, criticalBlock(r.now(), report.Err), true)
		}
		metrics.RecordReconciliation(report.Result)
	}()

	r.answer(ctx, action)

	txID, ok := ParseDoneAction(action.ActionID)
	if !ok {
		report.Result = ReconcileFailed
		report.Err = fmt.Errorf("%w: unknown action %q", ErrMalformedRequest, action.ActionID)
		logging.Warnf("Ignoring operator action: %v", report.Err)
		return report
	}
	report.TxID = txID
	log := logging.WithTx(txID)

	if missing := r.cfg.MissingForReconciliation(); len(missing) > 0 {
		report.Result = ReconcileFailed
		report.Err = fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
		log.Errorf("Reconciliation misconfigured: %v", report.Err)
		if r.cfg.TelegramBotToken != "" {
			// read-only lookup so the retry button can be rebuilt
			if found, err := r.store.GetByTxID(ctx, txID); err == nil {
				tx = found
			}
			r.editMessage(ctx, action, tx, errorBlock(r.now(), "Configuración incompleta: falta "+strings.Join(missing, ", "), report.Outcomes), true)
		}
		return report
	}

	replay, err := r.replay.IsReplay(ctx, action.ActionID, action.MessageID)
	if err != nil {
		log.Warnf("Replay guard unavailable, relying on status claim: %v", err)
	}
	if replay {
		report.Result = ReconcileDuplicate
		return report
	}
	defer r.replay.Release(context.WithoutCancel(ctx), action.ActionID, action.MessageID)

	rate, err := r.rates.ExchangeRate(ctx)
	if err != nil {
		log.Warnf("Exchange rate unavailable, defaulting to 1: %v", err)
		rate = decimal.NewFromInt(1)
		report.Outcomes.Add(skipped("rate", "tasa no disponible, se usó 1.00"))
	}

	tx, err = r.store.GetByTxID(ctx, txID)
	if err != nil {
		report.Result = ReconcileFailed
		report.Err = err
		log.Errorf("Reconciliation aborted: %v", err)
		msg := "Error al cargar la transacción"
		if errors.Is(err, ErrNotFound) {
			msg = "Transacción " + txID + " no encontrada"
		}
		r.editMessage(ctx, action, nil, errorBlock(r.now(), msg, report.Outcomes), false)
		return report
	}

	email := r.resolveEmail(ctx, tx)

	if tx.Status == models.StatusDone {
		log.Infof("Transaction already done, skipping")
		report.Result = ReconcileSkipped
		report.Outcomes.Add(skipped("settle", AlreadyDoneNote))
		r.editMessage(ctx, action, tx, skipBlock(r.now(), report.Outcomes), false)
		return report
	}

	credited, err := r.settle(ctx, tx, rate)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			// lost the race against another delivery or an out-of-band update
			current, loadErr := r.store.GetByTxID(ctx, txID)
			if loadErr == nil && current.Status == models.StatusDone {
				report.Result = ReconcileSkipped
				report.Outcomes.Add(skipped("settle", AlreadyDoneNote))
				r.editMessage(ctx, action, current, skipBlock(r.now(), report.Outcomes), false)
				return report
			}
			status := tx.Status
			if loadErr == nil {
				status = current.Status
			}
			err = fmt.Errorf("%w: estado actual %q", ErrStatusConflict, status)
		}
		report.Result = ReconcileFailed
		report.Err = err
		report.Outcomes.Add(failed("settle", err))
		log.Errorf("Reconciliation aborted: %v", err)
		r.editMessage(ctx, action, tx, errorBlock(r.now(), "No se aplicó ningún cambio", report.Outcomes), true)
		return report
	}

	tx.Status = models.StatusDone
	report.Result = ReconcileDone
	report.Credited = credited
	if credited != nil {
		report.Outcomes.Add(succeeded("credit", fmt.Sprintf("Saldo acreditado: %s %s", credited.StringFixed(2), BaseCurrency)))
		metrics.RecordWalletCredit(credited.InexactFloat64())
		log.Infof("Wallet credited with %s %s", credited.StringFixed(2), BaseCurrency)
	} else {
		report.Outcomes.Add(succeeded("fulfillment", "Producto marcado como entregado"))
	}

	report.Outcomes.Add(r.sendEmail(ctx, tx, email, credited))

	event := NewTransactionEvent(EventTransactionSettled, tx)
	if credited != nil {
		event.Credited = credited.StringFixed(2)
	}
	if err := r.events.Publish(ctx, event); err != nil {
		log.Warnf("Failed to publish event: %v", err)
	}

	r.editMessage(ctx, action, tx, successBlock(r.now(), report.Outcomes), false)
	return report
}

// settle claims the transaction and, for recharges, credits the wallet in
// the same database transaction.
func (r *Reconciler) settle(ctx context.Context, tx *models.Transaction, rate decimal.Decimal) (*decimal.Decimal, error) {
	if !r.isRecharge(tx) {
		return nil, r.store.Settle(ctx, tx.TxID, nil)
	}

	if tx.AccountID == nil || *tx.AccountID == "" {
		return nil, fmt.Errorf("%w: recarga sin cuenta asociada", ErrLedger)
	}

	amount, err := ConvertToBase(tx.Amount, tx.Currency, r.cfg.LocalCurrency, rate)
	if err != nil {
		return nil, err
	}

	err = r.store.Settle(ctx, tx.TxID, func(dbtx *gorm.DB) error {
		_, err := r.ledger.WithTx(dbtx).Credit(ctx, *tx.AccountID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

func (r *Reconciler) isRecharge(tx *models.Transaction) bool {
	return strings.EqualFold(strings.TrimSpace(tx.Game), strings.TrimSpace(r.cfg.RechargeGame))
}

// resolveEmail prefers the transaction email, then the account profile
func (r *Reconciler) resolveEmail(ctx context.Context, tx *models.Transaction) string {
	if tx.Email != "" {
		return tx.Email
	}
	if tx.AccountID != nil && *tx.AccountID != "" {
		acc, err := r.store.FindAccount(ctx, *tx.AccountID)
		if err == nil && acc.Email != "" {
			return acc.Email
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			logging.WithTx(tx.TxID).Warnf("Account lookup failed: %v", err)
		}
	}
	return ""
}

func (r *Reconciler) sendEmail(ctx context.Context, tx *models.Transaction, email string, credited *decimal.Decimal) StepOutcome {
	const step = "email"

	if email == "" {
		metrics.RecordEmail("skipped")
		return skipped(step, "⚠️ Correo no enviado: el cliente no tiene correo registrado")
	}
	if err := r.mailer.SendPaymentConfirmation(ctx, email, tx.Name, tx, credited); err != nil {
		logging.WithTx(tx.TxID).Warnf("Confirmation email failed: %v", err)
		metrics.RecordEmail("failed")
		return StepOutcome{Step: step, Err: err, Detail: "Correo no enviado: " + err.Error()}
	}
	metrics.RecordEmail("sent")
	return succeeded(step, "Correo enviado a "+maskEmail(email))
}

func (r *Reconciler) answer(ctx context.Context, action OperatorAction) {
	if action.CallbackID == "" {
		return
	}
	err := r.notifier.AnswerCallback(ctx, action.CallbackID, "Procesando…")
	metrics.RecordNotification("answer", err)
	if err != nil {
		logging.Warnf("Failed to answer callback %s: %v", action.CallbackID, err)
	}
}

// editMessage appends block to the original operator message. The "mark
// done" button stays when retry is set so the operator can try again.
func (r *Reconciler) editMessage(ctx context.Context, action OperatorAction, tx *models.Transaction, block string, retry bool) {
	chatID, messageID := action.ChatID, action.MessageID
	if tx != nil {
		if chatID == "" {
			chatID = tx.OperatorChatID
		}
		if messageID == 0 && tx.OperatorMessageID != nil {
			messageID = *tx.OperatorMessageID
		}
	}
	if chatID == "" || messageID == 0 {
		logging.Warnf("No operator message to edit for %s", action.ActionID)
		return
	}

	original := strings.TrimSpace(action.OriginalText)
	if original == "" && tx != nil {
		original = fmt.Sprintf("Orden %s\n%s - %s\n%s %s", tx.TxID, tx.Game, tx.PackageName, tx.Amount.StringFixed(2), tx.Currency)
	}
	text := fitMessage(original, block)

	var keyboard InlineKeyboard
	if tx != nil {
		keyboard = operatorKeyboard(buildContactLinks(tx, r.cfg.FulfillmentGame, r.cfg.OperatorContactNumber), tx.TxID, retry)
	}

	err := r.notifier.Edit(ctx, chatID, messageID, text, keyboard)
	metrics.RecordNotification("edit", err)
	if err != nil {
		logging.Errorf("Failed to edit operator message %d: %v", messageID, err)
	}
}

// fitMessage joins the original text and the status block, shortening the
// original so the block is never cut off.
func fitMessage(original, block string) string {
	const limit = 4096
	budget := limit - len([]rune(block)) - 2
	runes := []rune(original)
	if budget < 0 {
		budget = 0
	}
	if len(runes) > budget {
		if budget > 0 {
			original = string(runes[:budget-1]) + "…"
		} else {
			original = ""
		}
	}
	if original == "" {
		return block
	}
	return original + "\n\n" + block
}

const statusRule = "━━━━━━━━━━━━━━"

func statusBlock(marker string, at time.Time, lines []string) string {
	var b strings.Builder
	b.WriteString(statusRule + "\n")
	b.WriteString(marker + " · " + at.Format("02/01/2006 15:04:05"))
	for _, l := range lines {
		b.WriteString("\n• " + l)
	}
	return b.String()
}

func outcomeLines(outcomes Outcomes) []string {
	lines := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		switch {
		case o.Step == "settle" && o.Skipped:
			lines = append(lines, "Pedido "+o.Detail)
		case o.Detail == "":
			continue
		case !o.OK && !o.Skipped:
			lines = append(lines, "⚠️ "+o.Detail)
		default:
			lines = append(lines, o.Detail)
		}
	}
	return lines
}

func successBlock(at time.Time, outcomes Outcomes) string {
	return statusBlock("✅ REALIZADO", at, outcomeLines(outcomes))
}

func skipBlock(at time.Time, outcomes Outcomes) string {
	return statusBlock("ℹ️ SIN CAMBIOS", at, outcomeLines(outcomes))
}

func errorBlock(at time.Time, summary string, outcomes Outcomes) string {
	return statusBlock("❌ ERROR", at, append([]string{summary}, outcomeLines(outcomes)...))
}

func criticalBlock(at time.Time, err error) string {
	return statusBlock("🚨 ERROR CRÍTICO", at, []string{
		"La conciliación se interrumpió: " + err.Error(),
		"Revisar manualmente antes de reintentar",
	})
}
