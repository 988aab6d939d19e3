package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"topup-api/internal/services"
	"topup-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// actionPayload accepts both the flat action body and a raw Telegram
// update carrying a callback_query
type actionPayload struct {
	ActionID     string              `json:"action_id"`
	ChatID       services.FlexString `json:"chat_id"`
	MessageID    services.FlexString `json:"message_id"`
	OriginalText string              `json:"original_text"`

	CallbackQuery *callbackQuery `json:"callback_query"`
}

type callbackQuery struct {
	ID      string `json:"id"`
	Data    string `json:"data"`
	Message *struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

func (p *actionPayload) toAction() services.OperatorAction {
	if cq := p.CallbackQuery; cq != nil {
		action := services.OperatorAction{
			ActionID:   cq.Data,
			CallbackID: cq.ID,
		}
		if cq.Message != nil {
			action.ChatID = strconv.FormatInt(cq.Message.Chat.ID, 10)
			action.MessageID = cq.Message.MessageID
			action.OriginalText = cq.Message.Text
		}
		return action
	}

	messageID, _ := strconv.ParseInt(p.MessageID.String(), 10, 64)
	return services.OperatorAction{
		ActionID:     p.ActionID,
		ChatID:       p.ChatID.String(),
		MessageID:    messageID,
		OriginalText: p.OriginalText,
	}
}

// TelegramAction handles a press of the operator "mark done" button.
// Telegram retries anything but a 200, so every outcome is acknowledged.
func (h *Handler) TelegramAction(c *gin.Context) {
	if secret := h.Config.TelegramSecretToken; secret != "" {
		got := c.GetHeader(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			logging.Warnf("Dropping operator action with bad secret token from %s", c.ClientIP())
			c.String(http.StatusOK, "OK")
			return
		}
	}

	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		logging.Errorf("Failed to read operator action body: %v", err)
		c.String(http.StatusOK, "OK")
		return
	}

	var payload actionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logging.Errorf("Failed to parse operator action: %v", err)
		c.String(http.StatusOK, "OK")
		return
	}

	action := payload.toAction()
	if action.ActionID == "" {
		logging.Infof("Operator update without action, ignoring")
		c.String(http.StatusOK, "OK")
		return
	}

	report := h.Reconciler.Handle(c.Request.Context(), action)
	logging.WithFields(map[string]interface{}{
		"tx_id":  report.TxID,
		"result": report.Result,
	}).Infof("Operator action handled: %s", report.Outcomes.Summary())

	c.String(http.StatusOK, "OK")
}
