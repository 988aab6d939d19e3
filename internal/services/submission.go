package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"topup-api/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Encoding is the body format a submission arrived in
type Encoding string

const (
	EncodingMultipart  Encoding = "multipart"
	EncodingJSON       Encoding = "json"
	EncodingURLEncoded Encoding = "urlencoded"
)

// ReceiptFile is an uploaded receipt spooled to a local temp file
type ReceiptFile struct {
	Path        string
	Filename    string
	ContentType string
}

// Extension returns the lowercase file extension without the dot
func (r *ReceiptFile) Extension() string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(r.Filename)), ".")
	if ext == "" {
		return "bin"
	}
	return ext
}

// Remove deletes the temp file; safe to call on nil
func (r *ReceiptFile) Remove() error {
	if r == nil || r.Path == "" {
		return nil
	}
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// FlexString accepts a JSON string or number, so clients may send
// "finalPrice": 5 as well as "finalPrice": "5.00".
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// Submission is the canonical payment submission, whatever the encoding
type Submission struct {
	Encoding Encoding `json:"-" form:"-"`

	Game          string     `json:"game" form:"game" validate:"required,max=100"`
	PlayerID      string     `json:"playerId" form:"playerId" validate:"max=100"`
	Package       string     `json:"package" form:"package" validate:"required,max=150"`
	FinalPrice    FlexString `json:"finalPrice" form:"finalPrice" validate:"required"`
	Currency      string     `json:"currency" form:"currency" validate:"required,max=8"`
	PaymentMethod string     `json:"paymentMethod" form:"paymentMethod" validate:"required,max=50"`
	Reference     string     `json:"reference" form:"reference" validate:"max=100"`
	Email         string     `json:"email" form:"email" validate:"omitempty,email"`
	Name          string     `json:"name" form:"name" validate:"max=255"`
	Phone         string     `json:"phone" form:"phone" validate:"max=32"`
	AccountID     string     `json:"accountId" form:"accountId" validate:"max=64"`

	Receipt *ReceiptFile `json:"-" form:"-"`
}

var submissionValidator = validator.New()

// Normalize trims every field and upper-cases the currency
func (s *Submission) Normalize() {
	for _, f := range []*string{
		&s.Game, &s.PlayerID, &s.Package, &s.Currency,
		&s.PaymentMethod, &s.Reference, &s.Email, &s.Name, &s.Phone, &s.AccountID,
	} {
		*f = strings.TrimSpace(*f)
	}
	s.FinalPrice = FlexString(strings.TrimSpace(s.FinalPrice.String()))
	s.Currency = strings.ToUpper(s.Currency)
	s.Email = strings.ToLower(s.Email)
}

// Validate checks required fields and returns the parsed price
func (s *Submission) Validate() (decimal.Decimal, error) {
	if err := submissionValidator.Struct(s); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return decimal.Zero, fmt.Errorf("%w: invalid fields: %s", ErrMalformedRequest, strings.Join(fields, ", "))
		}
		return decimal.Zero, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(s.FinalPrice.String(), ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: finalPrice %q is not a number", ErrMalformedRequest, s.FinalPrice)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: finalPrice must be positive", ErrMalformedRequest)
	}
	return amount.Round(2), nil
}

// toTransaction builds the pending record for txID
func (s *Submission) toTransaction(txID string, amount decimal.Decimal) *models.Transaction {
	tx := &models.Transaction{
		TxID:          txID,
		Game:          s.Game,
		PackageName:   s.Package,
		PlayerID:      s.PlayerID,
		Amount:        amount,
		Currency:      s.Currency,
		PaymentMethod: s.PaymentMethod,
		Reference:     s.Reference,
		Email:         s.Email,
		Name:          s.Name,
		Phone:         s.Phone,
		Status:        models.StatusPending,
	}
	if s.AccountID != "" {
		id := s.AccountID
		tx.AccountID = &id
	}
	return tx
}
