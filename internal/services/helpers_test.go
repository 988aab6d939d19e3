package services

import (
	"context"
	"sync"
	"testing"
	"time"
	"topup-api/internal/config"
	"topup-api/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every statement must see the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.Transaction{},
		&models.Wallet{},
		&models.SiteConfig{},
	))
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		TelegramBotToken:      "123:abc",
		TelegramChatID:        "-1001",
		StorageURL:            "https://storage.example.com",
		StorageServiceKey:     "service-key",
		StorageBucket:         "comprobantes",
		BrevoAPIKey:           "brevo-key",
		BrevoFromEmail:        "ventas@example.com",
		BrevoFromName:         "Tienda",
		LogoURL:               "https://cdn.example.com/logo.png",
		StoreName:             "Tienda de Recargas",
		OperatorContactNumber: "+58 412 000 0000",
		LocalCurrency:         "VES",
		RechargeGame:          "Recarga de Saldo",
		FulfillmentGame:       "Free Fire",
		NoReceiptGames:        []string{"Tarjeta de Regalo"},
	}
}

func seedRate(t *testing.T, db *gorm.DB, rate string) {
	t.Helper()
	require.NoError(t, db.Create(&models.SiteConfig{
		PrimaryColor: "#000000",
		TasaDolar:    decimal.RequireFromString(rate),
	}).Error)
}

func seedTransaction(t *testing.T, db *gorm.DB, tx *models.Transaction) *models.Transaction {
	t.Helper()
	if tx.Status == "" {
		tx.Status = models.StatusPending
	}
	if tx.PaymentMethod == "" {
		tx.PaymentMethod = "pago movil"
	}
	require.NoError(t, db.Create(tx).Error)
	return tx
}

func walletBalance(t *testing.T, db *gorm.DB, accountID string) decimal.Decimal {
	t.Helper()
	var w models.Wallet
	err := db.Where("account_id = ?", accountID).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		return decimal.Zero
	}
	require.NoError(t, err)
	return w.Balance.Round(2)
}

func strPtr(s string) *string { return &s }

func fixedTime() time.Time {
	return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
}

// fakeNotifier records every call to the operator channel
type fakeNotifier struct {
	mu        sync.Mutex
	posts     []OperatorMessage
	photos    []string
	edits     []fakeEdit
	answers   []string
	postErr   error
	photoErr  error
	editErr   error
	nextMsgID int64
	onPost    func(OperatorMessage)
}

type fakeEdit struct {
	ChatID    string
	MessageID int64
	Text      string
	Keyboard  InlineKeyboard
}

func (f *fakeNotifier) Post(_ context.Context, msg OperatorMessage) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onPost != nil {
		f.onPost(msg)
	}
	if f.postErr != nil {
		return 0, f.postErr
	}
	f.posts = append(f.posts, msg)
	f.nextMsgID++
	return 100 + f.nextMsgID, nil
}

func (f *fakeNotifier) SendPhoto(_ context.Context, _, photoURL, _ string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.photoErr != nil {
		return f.photoErr
	}
	f.photos = append(f.photos, photoURL)
	return nil
}

func (f *fakeNotifier) Edit(_ context.Context, chatID string, messageID int64, text string, kb InlineKeyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, fakeEdit{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb})
	return f.editErr
}

func (f *fakeNotifier) AnswerCallback(_ context.Context, callbackID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, callbackID)
	return nil
}

func (f *fakeNotifier) lastEdit() fakeEdit {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return fakeEdit{}
	}
	return f.edits[len(f.edits)-1]
}

type MockMailer struct{ mock.Mock }

func (m *MockMailer) SendPaymentConfirmation(ctx context.Context, to, name string, tx *models.Transaction, credited *decimal.Decimal) error {
	return m.Called(ctx, to, name, tx, credited).Error(0)
}

type MockStorage struct{ mock.Mock }

func (m *MockStorage) Upload(ctx context.Context, objectPath, contentType string, body []byte) (string, error) {
	args := m.Called(ctx, objectPath, contentType, body)
	return args.String(0), args.Error(1)
}

type MockRenderer struct{ mock.Mock }

func (m *MockRenderer) Render(ctx context.Context, tx *models.Transaction) (*Invoice, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Invoice), args.Error(1)
}

// fixedRate is a RateSource for tests
type fixedRate struct {
	rate decimal.Decimal
	err  error
}

func (f fixedRate) ExchangeRate(context.Context) (decimal.Decimal, error) {
	return f.rate, f.err
}

// panicRate blows up inside the reconciliation
type panicRate struct{}

func (panicRate) ExchangeRate(context.Context) (decimal.Decimal, error) {
	panic("rate source exploded")
}
