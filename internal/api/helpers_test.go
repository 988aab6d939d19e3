package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"topup-api/internal/config"
	"topup-api/internal/middleware"
	"topup-api/internal/models"
	"topup-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testJWTSecret = "test-secret"

type fakeStorage struct {
	mu    sync.Mutex
	paths []string
}

func (s *fakeStorage) Upload(_ context.Context, objectPath, _ string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, objectPath)
	return "https://storage.test/" + objectPath, nil
}

func (s *fakeStorage) uploaded(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.paths {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

type fakeRenderer struct{}

func (fakeRenderer) Render(_ context.Context, tx *models.Transaction) (*services.Invoice, error) {
	return &services.Invoice{Text: "FACTURA " + tx.TxID, PNG: []byte{0x89, 'P', 'N', 'G'}}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	posts []services.OperatorMessage
	edits []string
}

func (n *fakeNotifier) Post(_ context.Context, msg services.OperatorMessage) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.posts = append(n.posts, msg)
	return int64(len(n.posts)), nil
}

func (n *fakeNotifier) SendPhoto(context.Context, string, string, string, int64) error { return nil }

func (n *fakeNotifier) Edit(_ context.Context, _ string, _ int64, text string, _ services.InlineKeyboard) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edits = append(n.edits, text)
	return nil
}

func (n *fakeNotifier) AnswerCallback(context.Context, string, string) error { return nil }

type fakeMailer struct{}

func (fakeMailer) SendPaymentConfirmation(context.Context, string, string, *models.Transaction, *decimal.Decimal) error {
	return nil
}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	cfg      *config.Config
	storage  *fakeStorage
	notifier *fakeNotifier
	ledger   *services.WalletLedger
}

func testConfig() *config.Config {
	return &config.Config{
		TelegramBotToken:      "123:abc",
		TelegramChatID:        "-1001",
		StorageURL:            "https://storage.test",
		StorageServiceKey:     "service-key",
		StorageBucket:         "comprobantes",
		BrevoAPIKey:           "brevo-key",
		BrevoFromEmail:        "ventas@example.com",
		LogoURL:               "https://cdn.example.com/logo.png",
		StoreName:             "Tienda",
		OperatorContactNumber: "+58 412 000 0000",
		LocalCurrency:         "VES",
		RechargeGame:          "Recarga de Saldo",
		FulfillmentGame:       "Free Fire",
		JWTSecret:             testJWTSecret,
		SubmitRatePerSecond:   100,
		SubmitRateBurst:       100,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.Transaction{}, &models.Wallet{}, &models.SiteConfig{}))

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	env := &testEnv{db: db, cfg: cfg, storage: &fakeStorage{}, notifier: &fakeNotifier{}}

	store := services.NewTransactionStore(db)
	env.ledger = services.NewWalletLedger(db)
	siteConfig := services.NewSiteConfigService(db, nil)
	ids := services.NewIDGenerator()

	intake, err := services.NewPaymentIntake(cfg, store, env.storage, fakeRenderer{}, env.notifier, nil, ids)
	require.NoError(t, err)

	h := &Handler{
		Config:     cfg,
		Intake:     intake,
		Reconciler: services.NewReconciler(cfg, store, env.ledger, siteConfig, fakeMailer{}, env.notifier, nil, nil),
		SiteConfig: siteConfig,
		Store:      store,
		Ledger:     env.ledger,
		Purchase:   services.NewWalletPurchase(cfg, db, store, env.ledger, env.notifier, nil, ids),
	}

	env.router = gin.New()
	SetupRoutes(env.router, h)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func accountToken(t *testing.T, accountID, email string) string {
	t.Helper()
	claims := middleware.AccountClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}
