package database

import (
	"github.com/google/uuid"
	"github.com/pedidos360/backend/pkg/apperrors"
	"gorm.io/gorm"
)

// UpdateWithVersion applies updates to the row identified by id only if it
// still carries the version the caller read. A stale version yields
// ErrConcurrencyConflict; a row that no longer exists yields ErrNotFound.
func UpdateWithVersion(db *gorm.DB, model interface{}, id uuid.UUID, version int, updates map[string]interface{}) error {
	updates["version"] = version + 1

	res := db.Model(model).Where("id = ? AND version = ?", id, version).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrConcurrencyConflict
	}
	return nil
}
