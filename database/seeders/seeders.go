package seeders

import (
	"log"

	"schoolcore/models"
	"schoolcore/utils"

	"gorm.io/gorm"
)

// SeedAdmin creates the first admin account when no user exists yet.
func SeedAdmin(db *gorm.DB, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("Users already seeded, skipping...")
		return nil
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	admin := models.User{
		Username: username,
		Password: hash,
		Role:     models.RoleAdmin,
		Status:   "active",
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Printf("Seeded admin user %s", username)
	return nil
}
