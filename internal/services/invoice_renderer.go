package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"text/template"
	"time"
	"topup-api/internal/models"

	"github.com/fogleman/gg"
	"github.com/go-resty/resty/v2"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"
)

// Invoice is a rendered invoice in both shareable forms
type Invoice struct {
	Text string
	PNG  []byte
}

// InvoiceRenderer turns a transaction into an invoice artifact
type InvoiceRenderer interface {
	Render(ctx context.Context, tx *models.Transaction) (*Invoice, error)
}

const invoiceLayout = `{{.Store}}
FACTURA {{.TxID}}
Fecha: {{.Date}}
----------------------------------------
Juego:       {{.Game}}
Paquete:     {{.Package}}
{{- if .PlayerID}}
ID jugador:  {{.PlayerID}}
{{- end}}
Metodo:      {{.Method}}
{{- if .Reference}}
Referencia:  {{.Reference}}
{{- end}}
{{- if .Name}}
Cliente:     {{.Name}}
{{- end}}
{{- if .Email}}
Correo:      {{.Email}}
{{- end}}
----------------------------------------
TOTAL:       {{.Amount}} {{.Currency}}
Estado:      Pendiente de verificacion
`

type invoiceView struct {
	Store     string
	TxID      string
	Date      string
	Game      string
	Package   string
	PlayerID  string
	Method    string
	Reference string
	Name      string
	Email     string
	Amount    string
	Currency  string
}

const (
	invoiceWidth      = 420
	invoiceMargin     = 24
	invoiceLineHeight = 18
	invoiceLogoHeight = 64
)

// ImageInvoiceRenderer fills the invoice layout and rasterizes it to PNG
type ImageInvoiceRenderer struct {
	storeName string
	logoURL   string
	http      *resty.Client
	tmpl      *template.Template
	now       func() time.Time
}

// NewImageInvoiceRenderer creates a renderer with the store branding
func NewImageInvoiceRenderer(storeName, logoURL string) *ImageInvoiceRenderer {
	return &ImageInvoiceRenderer{
		storeName: storeName,
		logoURL:   logoURL,
		http:      resty.New().SetTimeout(10 * time.Second),
		tmpl:      template.Must(template.New("invoice").Parse(invoiceLayout)),
		now:       time.Now,
	}
}

// Render builds the invoice text and image
func (r *ImageInvoiceRenderer) Render(ctx context.Context, tx *models.Transaction) (*Invoice, error) {
	text, err := r.renderText(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: invoice template: %v", ErrExternalService, err)
	}

	logo := r.fetchLogo(ctx)
	png, err := rasterize(text, logo)
	if err != nil {
		return nil, fmt.Errorf("%w: invoice raster: %v", ErrExternalService, err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("%w: invoice raster produced an empty buffer", ErrExternalService)
	}

	return &Invoice{Text: text, PNG: png}, nil
}

func (r *ImageInvoiceRenderer) renderText(tx *models.Transaction) (string, error) {
	issued := r.now()
	if t, ok := ParseTxIDTime(tx.TxID); ok {
		issued = t
	}

	view := invoiceView{
		Store:     strings.ToUpper(r.storeName),
		TxID:      tx.TxID,
		Date:      issued.Format("02/01/2006 15:04"),
		Game:      tx.Game,
		Package:   tx.PackageName,
		PlayerID:  tx.PlayerID,
		Method:    tx.PaymentMethod,
		Reference: tx.Reference,
		Name:      tx.Name,
		Email:     tx.Email,
		Amount:    tx.Amount.StringFixed(2),
		Currency:  tx.Currency,
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fetchLogo downloads the branding image; a failure only drops the logo
func (r *ImageInvoiceRenderer) fetchLogo(ctx context.Context) image.Image {
	if r.logoURL == "" {
		return nil
	}
	resp, err := r.http.R().SetContext(ctx).Get(r.logoURL)
	if err != nil || resp.IsError() {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil
	}
	return img
}

func rasterize(text string, logo image.Image) ([]byte, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")

	top := invoiceMargin
	if logo != nil {
		top += invoiceLogoHeight + invoiceMargin/2
	}
	height := top + len(lines)*invoiceLineHeight + invoiceMargin

	dc := gg.NewContext(invoiceWidth, height)
	dc.SetHexColor("#ffffff")
	dc.Clear()

	dc.SetHexColor("#0f172a")
	dc.DrawRectangle(0, 0, invoiceWidth, 6)
	dc.Fill()

	if logo != nil {
		scaled := scaleToHeight(logo, invoiceLogoHeight)
		dc.DrawImage(scaled, invoiceMargin, invoiceMargin)
	}

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetHexColor("#111827")
	for i, line := range lines {
		y := float64(top + (i+1)*invoiceLineHeight)
		dc.DrawString(line, invoiceMargin, y)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scaleToHeight(src image.Image, height int) image.Image {
	b := src.Bounds()
	if b.Dy() == 0 {
		return src
	}
	width := b.Dx() * height / b.Dy()
	if width <= 0 {
		width = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
