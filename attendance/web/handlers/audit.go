package handlers

import (
	"errors"
	"net/http"

	"axiapac.com/workforce/attendance/audit"
	attendance "axiapac.com/workforce/attendance/core"
	tenancy "axiapac.com/workforce/core"
	web "axiapac.com/workforce/web/common"
	"github.com/gin-gonic/gin"
)

func (ep *Endpoint) Audit(c *gin.Context) {
	ep.auditHandler(c, false)
}

func (ep *Endpoint) Fix(c *gin.Context) {
	ep.auditHandler(c, true)
}

func (ep *Endpoint) auditHandler(c *gin.Context, fix bool) {
	code := c.Param("companyCode")
	if !authorize(c, code, "") {
		return
	}

	result := ep.audits.AuditCompany(c.Request.Context(), code, fix)
	if result.Error != "" {
		if errors.Is(result.Err, tenancy.ErrCompanyNotFoundOrInactive) {
			writeError(c, attendance.TenantError(result.Err))
			return
		}
		c.JSON(http.StatusInternalServerError, web.NewErrorResponse("audit failed: "+result.Error))
		return
	}

	c.JSON(http.StatusOK, web.NewSuccessResponse(auditResponse{
		CompanyAudit: result,
		ErrorCount:   result.Errors(),
	}))
}

type auditResponse struct {
	audit.CompanyAudit
	ErrorCount int64 `json:"errorCount"`
}
