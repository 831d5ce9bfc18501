package postgres

import (
	"context"

	"gorm.io/gorm"
)

// Transaction runs fn inside a transaction on the current connection. The
// transaction commits when fn returns nil and rolls back otherwise.
//
//	err := pg.Transaction(ctx, func(tx *gorm.DB) error {
//		if err := tx.Create(&result).Error; err != nil {
//			return err
//		}
//		return tx.Create(&links).Error
//	})
func (p *Postgres) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return p.DB().WithContext(ctx).Transaction(fn)
}
