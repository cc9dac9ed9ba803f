package handlers

import (
	"net/http"

	attendance "axiapac.com/workforce/attendance/core"
	web "axiapac.com/workforce/web/common"
	"github.com/gin-gonic/gin"
)

type companyResponse struct {
	Code                  string  `json:"companyCode"`
	DisplayName           string  `json:"displayName"`
	Timezone              string  `json:"timezone"`
	WorkStart             string  `json:"workStart"`
	WorkEnd               string  `json:"workEnd"`
	StandardWorkHours     float64 `json:"standardWorkHours"`
	GraceMinutes          int     `json:"graceMinutes"`
	SkipAssignmentCheck   bool    `json:"skipAssignmentCheck"`
	ForceFaceVerification bool    `json:"forceFaceVerification"`
}

// Refresh reloads a company from the master database, e.g. after onboarding
// or a credential change. Credentials are never returned.
func (ep *Endpoint) Refresh(c *gin.Context) {
	code := c.Param("companyCode")
	if !authorize(c, code, "") {
		return
	}

	company, err := ep.companies.RefreshCompany(c.Request.Context(), code)
	if err != nil {
		writeError(c, attendance.TenantError(err))
		return
	}

	c.JSON(http.StatusOK, web.NewSuccessResponse(companyResponse{
		Code:                  company.Code,
		DisplayName:           company.DisplayName,
		Timezone:              company.Timezone,
		WorkStart:             company.WorkStart,
		WorkEnd:               company.WorkEnd,
		StandardWorkHours:     company.StandardWorkHours,
		GraceMinutes:          company.GraceMinutes,
		SkipAssignmentCheck:   company.SkipAssignmentCheck,
		ForceFaceVerification: company.ForceFaceVerification,
	}))
}
