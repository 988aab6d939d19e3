package services

import (
	"fmt"
	"net/url"
	"strings"

	"topup-api/internal/models"
)

// ContactLink is an inline URL button in the operator notification
type ContactLink struct {
	Label string
	URL   string
}

// whatsAppLink builds a wa.me link with a pre-filled message
func whatsAppLink(phone, text string) string {
	digits := onlyDigits(phone)
	if digits == "" {
		return ""
	}
	return "https://wa.me/" + digits + "?text=" + url.QueryEscape(text)
}

// buildContactLinks returns the customer link (when a phone is known) and,
// for the fulfillment game only, a link to the fulfillment operator.
func buildContactLinks(tx *models.Transaction, fulfillmentGame, operatorNumber string) []ContactLink {
	var links []ContactLink

	if tx.Phone != "" {
		name := tx.Name
		if name == "" {
			name = "cliente"
		}
		msg := fmt.Sprintf("Hola %s, te escribimos por tu pedido %s (%s - %s).",
			name, tx.TxID, tx.Game, tx.PackageName)
		if link := whatsAppLink(tx.Phone, msg); link != "" {
			links = append(links, ContactLink{Label: "💬 Cliente", URL: link})
		}
	}

	if fulfillmentGame != "" && strings.EqualFold(tx.Game, fulfillmentGame) {
		msg := fmt.Sprintf("Pedido %s\nJuego: %s\nPaquete: %s\nID jugador: %s",
			tx.TxID, tx.Game, tx.PackageName, tx.PlayerID)
		if link := whatsAppLink(operatorNumber, msg); link != "" {
			links = append(links, ContactLink{Label: "🎮 Despachar", URL: link})
		}
	}

	return links
}
