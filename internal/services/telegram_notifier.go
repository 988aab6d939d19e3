package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"topup-api/pkg/logging"

	"github.com/go-resty/resty/v2"
)

// InlineButton is one Telegram inline keyboard button
type InlineButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// InlineKeyboard is a list of button rows
type InlineKeyboard [][]InlineButton

// OperatorMessage is a new operator channel post
type OperatorMessage struct {
	ChatID   string
	Text     string // MarkdownV2
	Keyboard InlineKeyboard
}

// Notifier is the operator channel
type Notifier interface {
	Post(ctx context.Context, msg OperatorMessage) (int64, error)
	SendPhoto(ctx context.Context, chatID, photoURL, caption string, replyTo int64) error
	Edit(ctx context.Context, chatID string, messageID int64, text string, keyboard InlineKeyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// TelegramNotifier implements Notifier over the Telegram Bot API
type TelegramNotifier struct {
	client *resty.Client
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// NewTelegramNotifier creates a notifier; apiURL is normally https://api.telegram.org
func NewTelegramNotifier(apiURL, botToken string) *TelegramNotifier {
	client := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")+"/bot"+botToken).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		// a 429 means Telegram did not accept the call, so any method may retry
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() == http.StatusTooManyRequests
		})

	return &TelegramNotifier{client: client}
}

// idempotentMethods may also retry after a 5xx or transport error. A
// repeated sendMessage or sendPhoto would post twice.
var idempotentMethods = map[string]bool{
	"editMessageText":     true,
	"answerCallbackQuery": true,
}

func retryOnServerError(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return r.StatusCode() >= 500
}

// Post sends a MarkdownV2 message and returns its message id
func (n *TelegramNotifier) Post(ctx context.Context, msg OperatorMessage) (int64, error) {
	payload := map[string]interface{}{
		"chat_id":                  msg.ChatID,
		"text":                     msg.Text,
		"parse_mode":               "MarkdownV2",
		"disable_web_page_preview": true,
	}
	if len(msg.Keyboard) > 0 {
		payload["reply_markup"] = map[string]interface{}{"inline_keyboard": msg.Keyboard}
	}

	result, err := n.call(ctx, "sendMessage", payload)
	if err != nil {
		return 0, err
	}
	return result.Result.MessageID, nil
}

// SendPhoto posts an image by URL, threaded under replyTo when non-zero
func (n *TelegramNotifier) SendPhoto(ctx context.Context, chatID, photoURL, caption string, replyTo int64) error {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"photo":   photoURL,
		"caption": caption,
	}
	if replyTo != 0 {
		payload["reply_to_message_id"] = replyTo
	}
	_, err := n.call(ctx, "sendPhoto", payload)
	return err
}

// Edit replaces the text of an existing message. Edits are sent as plain
// text because they embed the original message verbatim. A nil keyboard
// removes the buttons.
func (n *TelegramNotifier) Edit(ctx context.Context, chatID string, messageID int64, text string, keyboard InlineKeyboard) error {
	payload := map[string]interface{}{
		"chat_id":                  chatID,
		"message_id":               messageID,
		"text":                     truncateMessage(text),
		"disable_web_page_preview": true,
	}
	if len(keyboard) > 0 {
		payload["reply_markup"] = map[string]interface{}{"inline_keyboard": keyboard}
	}
	_, err := n.call(ctx, "editMessageText", payload)
	return err
}

// AnswerCallback stops the client-side spinner on the pressed button
func (n *TelegramNotifier) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	_, err := n.call(ctx, "answerCallbackQuery", map[string]interface{}{
		"callback_query_id": callbackID,
		"text":              text,
	})
	return err
}

func (n *TelegramNotifier) call(ctx context.Context, method string, payload map[string]interface{}) (*telegramResponse, error) {
	var result telegramResponse
	req := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		SetError(&result)
	if idempotentMethods[method] {
		req.AddRetryCondition(retryOnServerError)
	}
	resp, err := req.Post("/" + method)
	if err != nil {
		logging.Errorf("Telegram %s failed: %v", method, err)
		return nil, fmt.Errorf("%w: telegram %s: %v", ErrExternalService, method, err)
	}
	if resp.IsError() || !result.OK {
		logging.Errorf("Telegram %s rejected - status: %d, description: %s", method, resp.StatusCode(), result.Description)
		return nil, fmt.Errorf("%w: telegram %s: status %d: %s", ErrExternalService, method, resp.StatusCode(), result.Description)
	}
	return &result, nil
}

// Telegram rejects messages longer than 4096 characters
func truncateMessage(text string) string {
	const limit = 4096
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
