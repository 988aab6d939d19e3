package models

import "github.com/shopspring/decimal"

// SiteConfig is the single storefront settings row
type SiteConfig struct {
	ID             uint            `gorm:"primaryKey"`
	PrimaryColor   string          `gorm:"size:20"`
	SecondaryColor string          `gorm:"size:20"`
	AccentColor    string          `gorm:"size:20"`
	LogoURL        string          `gorm:"type:text"`
	BannerURL      string          `gorm:"type:text"`
	BackgroundURL  string          `gorm:"type:text"`
	TasaDolar      decimal.Decimal `gorm:"column:tasa_dolar;type:numeric(14,4)"`
	AdminNotes     string          `gorm:"type:text"`
}

func (SiteConfig) TableName() string {
	return "site_config"
}
