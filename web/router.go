package web

import (
	"net/http"

	"axiapac.com/workforce/attendance/web/handlers"
	"axiapac.com/workforce/web/middlewares"
	"github.com/gin-gonic/gin"
)

const APIPrefix = "/api/attendance/v1.0"

// NewRouter mounts the public health check and the authenticated attendance API.
func NewRouter(jwtSecret []byte, clock handlers.Clocker, audits handlers.Auditor, companies handlers.Companies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestLogger())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	protected := r.Group(APIPrefix)
	protected.Use(middlewares.Authentication(jwtSecret))
	handlers.Register(protected, clock, audits, companies)

	return r
}
