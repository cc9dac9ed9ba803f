package core

import (
	"context"

	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/utils"
	"gorm.io/gorm"
)

// Identity is a resolved employee of a company.
type Identity struct {
	CompanyCode string
	EmployeeNo  string
	UserID      uint
}

// AssignmentOracle answers whether an employee may clock at a site/project on a date.
type AssignmentOracle interface {
	IsAssigned(ctx context.Context, identity Identity, site, project *string, date string) (bool, error)
}

// PoolProvider hands out the database of a company.
type PoolProvider interface {
	CompanyPool(ctx context.Context, code string) (*gorm.DB, error)
}

// TenantAssignments reads employee_assignments from the company database.
type TenantAssignments struct {
	pools PoolProvider
}

func NewTenantAssignments(pools PoolProvider) *TenantAssignments {
	return &TenantAssignments{pools: pools}
}

func (a *TenantAssignments) IsAssigned(ctx context.Context, identity Identity, site, project *string, date string) (bool, error) {
	db, err := a.pools.CompanyPool(ctx, identity.CompanyCode)
	if err != nil {
		return false, err
	}
	return hasAssignment(db.WithContext(ctx), identity.UserID, utils.Deref(site), utils.Deref(project), date)
}

// hasAssignment matches null site/project as empty and treats null dates as open.
func hasAssignment(db *gorm.DB, userID uint, site, project, date string) (bool, error) {
	var n int64
	err := db.Model(&model.EmployeeAssignment{}).
		Where("user_id = ?", userID).
		Where("COALESCE(site_name, '') = ? AND COALESCE(project_name, '') = ?", site, project).
		Where("(start_date IS NULL OR start_date <= ?) AND (end_date IS NULL OR end_date >= ?)", date, date).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
