package database

import (
	"errors"
	"fmt"

	"callcast/config"
	"callcast/internal/domain"
	"callcast/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Setting{},
		&models.Location{},
		&models.CastClass{},
		&models.GuestLevel{},
		&models.Choice{},
		&models.CostPlan{},
		&models.Gift{},
		&models.Banner{},
		&models.ReceiptSetting{},
		&models.SystemSetting{},
		&models.Member{},
		&models.Media{},
		&models.Friendship{},
		&models.Review{},
		&models.Room{},
		&models.Order{},
		&models.Join{},
		&models.Invoice{},
		&models.Message{},
		&models.Notice{},
		&models.Tweet{},
		&models.FavoriteTweet{},
		&models.TransferInfo{},
		&models.TransferApplication{},
	)
}

// SeedSystemMembers creates the superusers that own system and admin rooms.
func SeedSystemMembers(db *gorm.DB) error {
	for _, name := range []string{domain.SuperSystem, domain.SuperAdmin} {
		var m models.Member
		err := db.Where("username = ?", name).First(&m).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("seed %s: %w", name, err)
		}
		nick := name
		m = models.Member{
			Username:     name,
			Nickname:     &nick,
			Role:         domain.RoleAdmin,
			IsSuperuser:  true,
			IsActive:     true,
			IsRegistered: true,
			IsVerified:   true,
		}
		if err := db.Create(&m).Error; err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return nil
}
