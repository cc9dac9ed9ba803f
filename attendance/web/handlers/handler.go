package handlers

import (
	"context"
	"net/http"

	"axiapac.com/workforce/attendance/audit"
	attendance "axiapac.com/workforce/attendance/core"
	"axiapac.com/workforce/console"
	"axiapac.com/workforce/security"
	web "axiapac.com/workforce/web/common"
	"axiapac.com/workforce/web/middlewares"
	"github.com/gin-gonic/gin"
)

type Clocker interface {
	ClockIn(ctx context.Context, req attendance.ClockRequest) (*attendance.ClockResult, error)
	ClockOut(ctx context.Context, req attendance.ClockRequest) (*attendance.ClockResult, error)
	Today(ctx context.Context, companyCode, employeeNo string) (*attendance.DayView, error)
	History(ctx context.Context, companyCode, employeeNo, from, to string) ([]attendance.DayView, error)
}

type Auditor interface {
	AuditCompany(ctx context.Context, code string, fix bool) audit.CompanyAudit
}

type Companies interface {
	RefreshCompany(ctx context.Context, code string) (*console.Company, error)
}

type Endpoint struct {
	clock     Clocker
	audits    Auditor
	companies Companies
}

// Register mounts the attendance, audit and company routes. The group must
// already run the Authentication middleware.
func Register(r *gin.RouterGroup, clock Clocker, audits Auditor, companies Companies) {
	ep := &Endpoint{clock: clock, audits: audits, companies: companies}

	r.POST("/attendance/clock-in", ep.ClockIn)
	r.POST("/attendance/clock-out", ep.ClockOut)
	r.GET("/attendance/today", ep.Today)
	r.GET("/attendance/history", ep.History)

	admin := r.Group("/audit", middlewares.RequireRole(security.RoleAdmin))
	admin.GET("/:companyCode", ep.Audit)
	admin.POST("/:companyCode/fix", ep.Fix)

	r.POST("/companies/:companyCode/refresh", middlewares.RequireRole(security.RoleAdmin), ep.Refresh)
}

// authorize aborts unless the caller may act for the employee of the company.
func authorize(c *gin.Context, companyCode, employeeNo string) bool {
	identity, ok := middlewares.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, web.NewErrorResponse("missing identity"))
		return false
	}
	if !identity.CanAccess(console.NormalizeCode(companyCode), employeeNo) {
		c.AbortWithStatusJSON(http.StatusForbidden, web.NewReasonErrorResponse("forbidden", "You may not act for this employee"))
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	cerr := attendance.AsClockError(err)
	c.JSON(cerr.Status, web.NewReasonErrorResponse(string(cerr.Reason), cerr.Message))
}
