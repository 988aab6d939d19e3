package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"topup-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type intakeFixture struct {
	db       *gorm.DB
	storage  *MockStorage
	renderer *MockRenderer
	notifier *fakeNotifier
	intake   *PaymentIntake
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()
	db := newTestDB(t)
	f := &intakeFixture{
		db:       db,
		storage:  &MockStorage{},
		renderer: &MockRenderer{},
		notifier: &fakeNotifier{},
	}

	intake, err := NewPaymentIntake(newTestConfig(), NewTransactionStore(db), f.storage, f.renderer, f.notifier, nil, NewIDGenerator())
	require.NoError(t, err)
	f.intake = intake
	return f
}

func (f *intakeFixture) expectInvoice() {
	f.renderer.On("Render", mock.Anything, mock.Anything).
		Return(&Invoice{Text: "FACTURA", PNG: []byte{0x89, 'P', 'N', 'G'}}, nil)
	f.storage.On("Upload", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "invoices/")
	}), "image/png", mock.Anything).
		Return("https://storage.example.com/invoices/x.png", nil)
}

func freeFireSubmission() *Submission {
	return &Submission{
		Game:          "Free Fire",
		Package:       "100 Diamonds",
		FinalPrice:    "5.00",
		Currency:      "USD",
		PaymentMethod: "binance",
		Email:         "a@b.com",
	}
}

func writeReceipt(t *testing.T, name string) *ReceiptFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("receipt-bytes"), 0o600))
	return &ReceiptFile{Path: path, Filename: name, ContentType: "image/png"}
}

func TestSubmit_FreeFireScenario(t *testing.T) {
	f := newIntakeFixture(t)
	f.expectInvoice()

	result, err := f.intake.Submit(context.Background(), freeFireSubmission())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^TX-[0-9A-Z]+$`), result.TxID)

	var tx models.Transaction
	require.NoError(t, f.db.Where("tx_id = ?", result.TxID).First(&tx).Error)
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.Equal(t, "Free Fire", tx.Game)
	assert.Equal(t, "5.00", tx.Amount.StringFixed(2))
	assert.Equal(t, "binance", tx.PaymentMethod)
	assert.Nil(t, tx.ReceiptURL)
	require.NotNil(t, tx.InvoiceURL)
	assert.Equal(t, "FACTURA", tx.InvoiceText)
	require.NotNil(t, tx.OperatorMessageID)
	assert.Equal(t, int64(101), *tx.OperatorMessageID)
	assert.Equal(t, "-1001", tx.OperatorChatID)

	require.Len(t, f.notifier.posts, 1)
	post := f.notifier.posts[0]
	assert.Equal(t, "-1001", post.ChatID)
	assert.Contains(t, post.Text, `a\*\*\*@b\.com`)
	assert.Contains(t, post.Text, "*Juego:* Free Fire")
	assert.Contains(t, post.Text, `5\.00 USD`)

	require.Len(t, post.Keyboard, 2)
	assert.Equal(t, "🎮 Despachar", post.Keyboard[0][0].Text)
	assert.True(t, strings.HasPrefix(post.Keyboard[0][0].URL, "https://wa.me/584120000000?text="))
	assert.Equal(t, "done_"+result.TxID, post.Keyboard[1][0].CallbackData)

	assert.Equal(t, []string{"https://storage.example.com/invoices/x.png"}, f.notifier.photos)
	assert.Empty(t, result.Outcomes.Failed())
}

func TestSubmit_RowIsPendingBeforeNotification(t *testing.T) {
	f := newIntakeFixture(t)
	f.expectInvoice()

	var statusAtPost string
	f.notifier.onPost = func(msg OperatorMessage) {
		done := msg.Keyboard[len(msg.Keyboard)-1][0].CallbackData
		txID, ok := ParseDoneAction(done)
		require.True(t, ok)
		var tx models.Transaction
		require.NoError(t, f.db.Where("tx_id = ?", txID).First(&tx).Error)
		statusAtPost = tx.Status
	}

	_, err := f.intake.Submit(context.Background(), freeFireSubmission())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, statusAtPost)
}

func TestSubmit_PersistenceFailureSendsNoNotification(t *testing.T) {
	f := newIntakeFixture(t)
	f.expectInvoice()
	require.NoError(t, f.db.Migrator().DropTable(&models.Transaction{}))

	result, err := f.intake.Submit(context.Background(), freeFireSubmission())

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Empty(t, f.notifier.posts)
	assert.Empty(t, f.notifier.photos)
}

func TestSubmit_MissingConfigurationPersistsNothing(t *testing.T) {
	f := newIntakeFixture(t)
	f.intake.cfg.TelegramBotToken = ""
	f.intake.cfg.LogoURL = ""
	receipt := writeReceipt(t, "pago.png")
	sub := freeFireSubmission()
	sub.Receipt = receipt

	_, err := f.intake.Submit(context.Background(), sub)

	require.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "LOGO_URL")
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")

	var count int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, f.notifier.posts)
	f.storage.AssertNumberOfCalls(t, "Upload", 0)

	_, statErr := os.Stat(receipt.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSubmit_RejectsMalformedSubmissions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Submission)
	}{
		{name: "missing game", mutate: func(s *Submission) { s.Game = "  " }},
		{name: "missing package", mutate: func(s *Submission) { s.Package = "" }},
		{name: "missing payment method", mutate: func(s *Submission) { s.PaymentMethod = "" }},
		{name: "price not a number", mutate: func(s *Submission) { s.FinalPrice = "cinco" }},
		{name: "zero price", mutate: func(s *Submission) { s.FinalPrice = "0" }},
		{name: "bad email", mutate: func(s *Submission) { s.Email = "not-an-email" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIntakeFixture(t)
			sub := freeFireSubmission()
			tt.mutate(sub)

			_, err := f.intake.Submit(context.Background(), sub)

			assert.True(t, errors.Is(err, ErrMalformedRequest))
			assert.Empty(t, f.notifier.posts)
		})
	}
}

func TestSubmit_UploadsReceiptAndRemovesTempFile(t *testing.T) {
	f := newIntakeFixture(t)
	f.expectInvoice()
	f.storage.On("Upload", mock.Anything, mock.MatchedBy(func(p string) bool {
		return regexp.MustCompile(`^receipts/TX-[0-9A-Z]+-[A-Za-z0-9_-]{12}\.png$`).MatchString(p)
	}), "image/png", []byte("receipt-bytes")).
		Return("https://storage.example.com/receipts/r.png", nil).Once()

	receipt := writeReceipt(t, "Pago.PNG")
	sub := freeFireSubmission()
	sub.Receipt = receipt

	result, err := f.intake.Submit(context.Background(), sub)
	require.NoError(t, err)

	var tx models.Transaction
	require.NoError(t, f.db.Where("tx_id = ?", result.TxID).First(&tx).Error)
	require.NotNil(t, tx.ReceiptURL)
	assert.Equal(t, "https://storage.example.com/receipts/r.png", *tx.ReceiptURL)
	assert.Contains(t, f.notifier.photos, "https://storage.example.com/receipts/r.png")
	assert.Contains(t, f.notifier.posts[0].Text, "*Comprobante:* adjunto")

	_, statErr := os.Stat(receipt.Path)
	assert.True(t, os.IsNotExist(statErr))
	f.storage.AssertExpectations(t)
}

func TestSubmit_NoReceiptGameSkipsUpload(t *testing.T) {
	f := newIntakeFixture(t)
	f.expectInvoice()

	receipt := writeReceipt(t, "pago.jpg")
	sub := freeFireSubmission()
	sub.Game = "Tarjeta de Regalo"
	sub.Receipt = receipt

	result, err := f.intake.Submit(context.Background(), sub)
	require.NoError(t, err)

	out, ok := result.Outcomes.Get("receipt_upload")
	require.True(t, ok)
	assert.True(t, out.Skipped)
	f.storage.AssertNumberOfCalls(t, "Upload", 1) // invoice only

	_, statErr := os.Stat(receipt.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSubmit_BestEffortStepsDoNotFailTheRequest(t *testing.T) {
	f := newIntakeFixture(t)
	f.renderer.On("Render", mock.Anything, mock.Anything).Return(nil, ErrExternalService)
	f.storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", ErrExternalService)
	f.notifier.postErr = ErrExternalService

	sub := freeFireSubmission()
	sub.Receipt = writeReceipt(t, "pago.png")

	result, err := f.intake.Submit(context.Background(), sub)
	require.NoError(t, err)

	var tx models.Transaction
	require.NoError(t, f.db.Where("tx_id = ?", result.TxID).First(&tx).Error)
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.Nil(t, tx.ReceiptURL)
	assert.Nil(t, tx.InvoiceURL)
	assert.Nil(t, tx.OperatorMessageID)

	failedSteps := map[string]bool{}
	for _, out := range result.Outcomes.Failed() {
		failedSteps[out.Step] = true
	}
	assert.True(t, failedSteps["receipt_upload"])
	assert.True(t, failedSteps["invoice"])
	assert.True(t, failedSteps["notify"])
}

func TestSubmit_CustomerPhoneAddsContactLink(t *testing.T) {
	f := newIntakeFixture(t)
	f.expectInvoice()

	sub := freeFireSubmission()
	sub.Game = "Genshin Impact"
	sub.Phone = "+58 (414) 123-4567"
	sub.Name = "Luis"

	_, err := f.intake.Submit(context.Background(), sub)
	require.NoError(t, err)

	kb := f.notifier.posts[0].Keyboard
	require.Len(t, kb, 2)
	require.Len(t, kb[0], 1)
	assert.Equal(t, "💬 Cliente", kb[0][0].Text)
	assert.True(t, strings.HasPrefix(kb[0][0].URL, "https://wa.me/584141234567?text="))
	assert.Contains(t, f.notifier.posts[0].Text, `\*\*\*\*\*\*\*\*4567`)
}

func TestSubmit_IDsAreUniqueAndIncreasing(t *testing.T) {
	f := newIntakeFixture(t)
	f.expectInvoice()

	var ids []string
	for i := 0; i < 5; i++ {
		result, err := f.intake.Submit(context.Background(), freeFireSubmission())
		require.NoError(t, err)
		ids = append(ids, result.TxID)
	}

	for i := 1; i < len(ids); i++ {
		prev, _ := ParseTxIDTime(ids[i-1])
		cur, _ := ParseTxIDTime(ids[i])
		assert.True(t, cur.After(prev), "%s should sort after %s", ids[i], ids[i-1])
	}
}
