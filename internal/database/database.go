package database

import (
	"context"
	"fmt"
	"time"
	"topup-api/internal/config"
	"topup-api/internal/models"
	"topup-api/pkg/logging"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// Database bundles the SQL and Redis handles shared by every request
type Database struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// Open connects to the SQL database and Redis and prepares the schema
func Open(cfg *config.Config) (*Database, error) {
	db, err := openSQL(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rdb, err := openRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	d := &Database{DB: db, Redis: rdb}

	if cfg.DatabaseURL != "" {
		if err := RunMigrations(db); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	} else if cfg.MigrationsAuto {
		if err := AutoMigrate(db); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		if err := insertDefaultData(db); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to insert default data: %w", err)
		}
	}

	return d, nil
}

// openSQL opens PostgreSQL, or SQLite for development
func openSQL(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	if dsn := cfg.DatabaseURL; dsn == "" {
		logging.Infof("Database URL not set, using SQLite for development")
		db, err = gorm.Open(sqlite.Open("topup-api.db"), gormCfg)
	} else {
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logging.Infof("Database connected successfully")
	return db, nil
}

// openRedis connects using a redis:// URL
func openRedis(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is not set")
	}

	logging.Infof("Connecting to Redis: %s", maskRedisURL(redisURL))

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Infof("Redis connected successfully")
	return client, nil
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if len(url) > 20 {
		return url[:10] + "***" + url[len(url)-10:]
	}
	return "***"
}

// AutoMigrate creates the schema from the models (SQLite and tests)
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Transaction{},
		&models.Wallet{},
		&models.SiteConfig{},
	)
}

// insertDefaultData seeds the development site configuration row
func insertDefaultData(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.SiteConfig{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	row := models.SiteConfig{
		PrimaryColor:   "#0f172a",
		SecondaryColor: "#1e293b",
		AccentColor:    "#f59e0b",
		TasaDolar:      decimal.NewFromInt(1),
	}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create default site config: %w", err)
	}

	logging.Infof("Default data inserted successfully")
	return nil
}

// Close closes database connections
func (d *Database) Close() error {
	if d.DB != nil {
		if sqlDB, err := d.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logging.Errorf("Failed to close database: %v", err)
			}
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logging.Errorf("Failed to close Redis: %v", err)
		}
	}

	return nil
}
