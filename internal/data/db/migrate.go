package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
