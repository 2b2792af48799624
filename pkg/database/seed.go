package database

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// EnsureSeed creates the three fixed roles and the initial admin account
// if they do not exist yet. Safe to run on every startup.
func EnsureSeed(db *gorm.DB) error {
	for _, name := range []string{RoleAdmin, RoleVentas, RoleOperaciones} {
		var role Role
		err := db.Where("name = ?", name).First(&role).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&Role{Name: name}).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", name, err)
			}
		} else if err != nil {
			return err
		}
	}

	var admin User
	err := db.Where("username = ?", "admin").First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		password := os.Getenv("ADMIN_PASSWORD")
		if password == "" {
			password = "Admin123$"
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		admin = User{
			Username:     "admin",
			Email:        "admin@pedidos360.local",
			FullName:     "Administrador",
			PasswordHash: string(hash),
		}
		if err := db.Create(&admin).Error; err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	} else if err != nil {
		return err
	}

	var adminRole Role
	if err := db.Where("name = ?", RoleAdmin).First(&adminRole).Error; err != nil {
		return err
	}
	var n int64
	db.Model(&UserRole{}).Where("user_id = ?", admin.ID).Count(&n)
	if n == 0 {
		if err := db.Create(&UserRole{UserID: admin.ID, RoleID: adminRole.ID}).Error; err != nil {
			return fmt.Errorf("assign admin role: %w", err)
		}
	}
	return nil
}
