package services

import (
	"context"
	"fmt"
	"html"
	"topup-api/internal/models"

	brevo "github.com/getbrevo/brevo-go/lib"
	"github.com/shopspring/decimal"
)

// Mailer sends customer-facing email
type Mailer interface {
	SendPaymentConfirmation(ctx context.Context, to, name string, tx *models.Transaction, credited *decimal.Decimal) error
}

// BrevoService provides Brevo email service
type BrevoService struct {
	client    *brevo.APIClient
	FromEmail string
	FromName  string
	StoreName string
}

// NewBrevoService creates a new Brevo service instance. baseURL overrides
// the API endpoint and is empty in production.
func NewBrevoService(apiKey, fromEmail, fromName, storeName, baseURL string) *BrevoService {
	cfg := brevo.NewConfiguration()
	cfg.AddDefaultHeader("api-key", apiKey)
	if baseURL != "" {
		cfg.BasePath = baseURL
	}

	return &BrevoService{
		client:    brevo.NewAPIClient(cfg),
		FromEmail: fromEmail,
		FromName:  fromName,
		StoreName: storeName,
	}
}

// SendPaymentConfirmation tells the customer their payment was verified
func (s *BrevoService) SendPaymentConfirmation(ctx context.Context, to, name string, tx *models.Transaction, credited *decimal.Decimal) error {
	if name == "" {
		name = "cliente"
	}

	subject := fmt.Sprintf("Pago confirmado - %s", tx.TxID)

	detail := fmt.Sprintf("Tu pedido de <b>%s</b> (%s) fue procesado con éxito.",
		html.EscapeString(tx.PackageName), html.EscapeString(tx.Game))
	textDetail := fmt.Sprintf("Tu pedido de %s (%s) fue procesado con éxito.", tx.PackageName, tx.Game)
	if credited != nil {
		detail = fmt.Sprintf("Se acreditaron <b>%s USD</b> a tu saldo.", credited.StringFixed(2))
		textDetail = fmt.Sprintf("Se acreditaron %s USD a tu saldo.", credited.StringFixed(2))
	}

	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="UTF-8">
			<title>Pago confirmado</title>
		</head>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px; text-align: center;">
				<h1 style="color: #333; margin-bottom: 20px;">¡Hola %s!</h1>
				<p style="color: #666; font-size: 16px; margin-bottom: 20px;">%s</p>
				<div style="background-color: #0f172a; color: white; padding: 16px; border-radius: 10px; font-size: 18px; margin: 20px 0;">
					%s %s &middot; %s
				</div>
				<p style="color: #999; font-size: 12px; margin-top: 30px;">Referencia: %s</p>
				<p style="color: #999; font-size: 12px;">Gracias por comprar en %s.</p>
			</div>
		</body>
		</html>
	`, html.EscapeString(name), detail, tx.Amount.StringFixed(2), html.EscapeString(tx.Currency),
		html.EscapeString(tx.PaymentMethod), tx.TxID, html.EscapeString(s.StoreName))

	textContent := fmt.Sprintf(`
		¡Hola %s!

		%s

		Monto: %s %s (%s)
		Referencia: %s

		Gracias por comprar en %s.
	`, name, textDetail, tx.Amount.StringFixed(2), tx.Currency, tx.PaymentMethod, tx.TxID, s.StoreName)

	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  s.FromName,
			Email: s.FromEmail,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: to, Name: name},
		},
		Subject:     subject,
		HtmlContent: htmlContent,
		TextContent: textContent,
	}

	_, resp, err := s.client.TransactionalEmailsApi.SendTransacEmail(ctx, email)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return fmt.Errorf("%w: brevo send to %s (status %d): %v", ErrExternalService, to, status, err)
	}
	return nil
}
