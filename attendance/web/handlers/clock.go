package handlers

import (
	"context"
	"net/http"
	"strings"

	attendance "axiapac.com/workforce/attendance/core"
	web "axiapac.com/workforce/web/common"
	"github.com/gin-gonic/gin"
)

func (ep *Endpoint) ClockIn(c *gin.Context) {
	ep.clockHandler(c, ep.clock.ClockIn)
}

func (ep *Endpoint) ClockOut(c *gin.Context) {
	ep.clockHandler(c, ep.clock.ClockOut)
}

func (ep *Endpoint) clockHandler(c *gin.Context, clock func(context.Context, attendance.ClockRequest) (*attendance.ClockResult, error)) {
	var req attendance.ClockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, web.NewBindingErrorResponse(string(attendance.ReasonInvalidRequest), err))
		return
	}
	if !authorize(c, req.CompanyCode, strings.TrimSpace(req.EmployeeNo)) {
		return
	}

	result, err := clock(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, web.NewSuccessResponse(result))
}

type employeeQuery struct {
	CompanyCode string `form:"companyCode" binding:"required"`
	EmployeeNo  string `form:"employeeNo" binding:"required"`
}

func (ep *Endpoint) Today(c *gin.Context) {
	var q employeeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, web.NewBindingErrorResponse(string(attendance.ReasonInvalidRequest), err))
		return
	}
	if !authorize(c, q.CompanyCode, q.EmployeeNo) {
		return
	}

	day, err := ep.clock.Today(c.Request.Context(), q.CompanyCode, q.EmployeeNo)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, web.NewSuccessResponse(day))
}

type historyQuery struct {
	employeeQuery
	StartDate string `form:"startDate" binding:"required,datetime=2006-01-02"`
	EndDate   string `form:"endDate" binding:"required,datetime=2006-01-02"`
}

func (ep *Endpoint) History(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, web.NewBindingErrorResponse(string(attendance.ReasonInvalidRequest), err))
		return
	}
	if !authorize(c, q.CompanyCode, q.EmployeeNo) {
		return
	}

	days, err := ep.clock.History(c.Request.Context(), q.CompanyCode, q.EmployeeNo, q.StartDate, q.EndDate)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, web.NewSearchResponse(days, int64(len(days))))
}
