package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"topup-api/internal/models"
	"topup-api/pkg/logging"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	siteConfigCacheKey   = "site_config:public"
	exchangeRateCacheKey = "site_config:exchange_rate"
)

// publicSiteFields maps recognized source columns to response keys.
// Anything else in the row is dropped.
var publicSiteFields = map[string]string{
	"primary_color":   "primaryColor",
	"secondary_color": "secondaryColor",
	"accent_color":    "accentColor",
	"logo_url":        "logoUrl",
	"banner_url":      "bannerUrl",
	"background_url":  "backgroundUrl",
	"tasa_dolar":      "exchangeRate",
}

// SiteConfigService reads the storefront settings row
type SiteConfigService struct {
	db    *gorm.DB
	cache *redis.Client
	ttl   time.Duration
}

// NewSiteConfigService creates the service; cache may be nil
func NewSiteConfigService(db *gorm.DB, cache *redis.Client) *SiteConfigService {
	return &SiteConfigService{db: db, cache: cache, ttl: time.Minute}
}

// Public returns the projected settings; a missing row yields an empty map
func (s *SiteConfigService) Public(ctx context.Context) (map[string]interface{}, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, siteConfigCacheKey).Result(); err == nil {
			var cached map[string]interface{}
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			logging.Warnf("Site config cache read failed: %v", err)
		}
	}

	row := map[string]interface{}{}
	err := s.db.WithContext(ctx).Table(models.SiteConfig{}.TableName()).Order("id").Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("failed to load site config: %w", err)
	}

	out := projectSiteConfig(row)

	if s.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, siteConfigCacheKey, data, s.ttl).Err(); err != nil {
				logging.Warnf("Site config cache write failed: %v", err)
			}
		}
	}
	return out, nil
}

func projectSiteConfig(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(publicSiteFields))
	for column, key := range publicSiteFields {
		value := unwrapCell(row[column])
		if value == nil {
			continue
		}
		if b, isBytes := value.([]byte); isBytes {
			value = string(b)
		}
		if column == "tasa_dolar" {
			if rate, err := toDecimal(value); err == nil {
				value = rate.InexactFloat64()
			}
		}
		out[key] = value
	}
	return out
}

// unwrapCell dereferences the *interface{} cells gorm leaves in map scans
func unwrapCell(v interface{}) interface{} {
	for {
		ptr, ok := v.(*interface{})
		if !ok {
			return v
		}
		if ptr == nil {
			return nil
		}
		v = *ptr
	}
}

// ExchangeRate returns local currency units per base currency unit
func (s *SiteConfigService) ExchangeRate(ctx context.Context) (decimal.Decimal, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, exchangeRateCacheKey).Result(); err == nil {
			if rate, err := decimal.NewFromString(raw); err == nil {
				return rate, nil
			}
		}
	}

	var cfg models.SiteConfig
	if err := s.db.WithContext(ctx).Order("id").Take(&cfg).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to load exchange rate: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, exchangeRateCacheKey, cfg.TasaDolar.String(), s.ttl).Err(); err != nil {
			logging.Warnf("Exchange rate cache write failed: %v", err)
		}
	}
	return cfg.TasaDolar, nil
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case string:
		return decimal.NewFromString(n)
	case []byte:
		return decimal.NewFromString(string(n))
	}
	return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
}
