package console

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// FindCompanyByCode returns nil when no company carries the code.
func FindCompanyByCode(ctx context.Context, db *gorm.DB, code string) (*Company, error) {
	var company Company
	err := db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func ListActiveCompanies(ctx context.Context, db *gorm.DB) ([]Company, error) {
	var companies []Company
	err := db.WithContext(ctx).Where("active = ?", true).Order("code").Find(&companies).Error
	return companies, err
}
