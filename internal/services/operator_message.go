package services

import (
	"context"
	"fmt"
	"strings"
	"topup-api/internal/metrics"
	"topup-api/internal/models"
	"topup-api/pkg/logging"
)

const (
	// DoneActionPrefix prefixes the callback data of the "mark done" button
	DoneActionPrefix = "done_"
	doneButtonLabel  = "✅ Marcar como realizado"
)

// ParseDoneAction extracts the transaction id from callback data
func ParseDoneAction(actionID string) (string, bool) {
	actionID = strings.TrimSpace(actionID)
	if !strings.HasPrefix(actionID, DoneActionPrefix) {
		return "", false
	}
	txID := strings.TrimPrefix(actionID, DoneActionPrefix)
	if txID == "" {
		return "", false
	}
	return txID, true
}

// operatorKeyboard lays out contact links on the first row and, when
// withDone is set, the "mark done" action on the second.
func operatorKeyboard(links []ContactLink, txID string, withDone bool) InlineKeyboard {
	var kb InlineKeyboard
	if len(links) > 0 {
		row := make([]InlineButton, 0, len(links))
		for _, l := range links {
			row = append(row, InlineButton{Text: l.Label, URL: l.URL})
		}
		kb = append(kb, row)
	}
	if withDone {
		kb = append(kb, []InlineButton{{Text: doneButtonLabel, CallbackData: DoneActionPrefix + txID}})
	}
	return kb
}

// composeOperatorText renders the MarkdownV2 summary of a new transaction
func composeOperatorText(tx *models.Transaction) string {
	var b strings.Builder
	esc := EscapeMarkdownV2

	title := "🛒 *Nueva orden*"
	if tx.PaymentMethod == PaymentMethodWallet {
		title = "👛 *Compra con saldo*"
	}
	fmt.Fprintf(&b, "%s %s\n\n", title, esc(tx.TxID))

	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "*%s:* %s\n", label, esc(value))
	}

	field("Juego", tx.Game)
	field("Paquete", tx.PackageName)
	field("ID jugador", tx.PlayerID)
	field("Monto", tx.Amount.StringFixed(2)+" "+tx.Currency)
	field("Método", tx.PaymentMethod)
	field("Referencia", tx.Reference)
	field("Cliente", tx.Name)
	if tx.Email != "" {
		field("Correo", maskEmail(tx.Email))
	}
	if tx.Phone != "" {
		field("Teléfono", maskPhone(tx.Phone))
	}
	if tx.AccountID != nil {
		field("Cuenta", *tx.AccountID)
	}

	receipt := "no adjunto"
	if tx.ReceiptURL != nil {
		receipt = "adjunto"
	}
	field("Comprobante", receipt)
	field("Estado", tx.Status)

	return strings.TrimRight(b.String(), "\n")
}

// announcer posts a persisted transaction to the operator channel
type announcer struct {
	notifier        Notifier
	store           *TransactionStore
	chatID          string
	fulfillmentGame string
	operatorNumber  string
}

// announce runs the notification steps; every failure is recorded in
// outcomes and never returned.
func (a *announcer) announce(ctx context.Context, tx *models.Transaction, outcomes *Outcomes) {
	links := buildContactLinks(tx, a.fulfillmentGame, a.operatorNumber)
	if len(links) == 0 {
		outcomes.Add(skipped("contact_links", "sin teléfono ni juego de despacho"))
	} else {
		outcomes.Add(succeeded("contact_links", fmt.Sprintf("%d enlaces", len(links))))
	}

	msg := OperatorMessage{
		ChatID:   a.chatID,
		Text:     composeOperatorText(tx),
		Keyboard: operatorKeyboard(links, tx.TxID, true),
	}

	messageID, err := a.notifier.Post(ctx, msg)
	metrics.RecordNotification("post", err)
	if err != nil {
		logging.WithTx(tx.TxID).Errorf("Operator notification failed: %v", err)
		outcomes.Add(failed("notify", err))
		return
	}
	outcomes.Add(succeeded("notify", fmt.Sprintf("message %d", messageID)))

	if tx.ReceiptURL != nil {
		err := a.notifier.SendPhoto(ctx, a.chatID, *tx.ReceiptURL, "Comprobante "+tx.TxID, messageID)
		metrics.RecordNotification("photo", err)
		if err != nil {
			logging.WithTx(tx.TxID).Warnf("Receipt photo failed: %v", err)
			outcomes.Add(failed("receipt_photo", err))
		} else {
			outcomes.Add(succeeded("receipt_photo", ""))
		}
	}
	if tx.InvoiceURL != nil {
		err := a.notifier.SendPhoto(ctx, a.chatID, *tx.InvoiceURL, "Factura "+tx.TxID, messageID)
		metrics.RecordNotification("photo", err)
		if err != nil {
			logging.WithTx(tx.TxID).Warnf("Invoice photo failed: %v", err)
			outcomes.Add(failed("invoice_photo", err))
		} else {
			outcomes.Add(succeeded("invoice_photo", ""))
		}
	}

	if err := a.store.AttachMessage(ctx, tx.TxID, a.chatID, messageID); err != nil {
		logging.WithTx(tx.TxID).Errorf("Failed to attach message reference: %v", err)
		outcomes.Add(failed("attach_message", err))
		return
	}
	tx.OperatorChatID = a.chatID
	tx.OperatorMessageID = &messageID
	outcomes.Add(succeeded("attach_message", ""))
}
