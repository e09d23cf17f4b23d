package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/sleepbot/internal/auth"
)

// NewRouter builds the gin engine. metricsHandler may be nil.
func NewRouter(app App, webhookSecret string, metricsHandler http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), RequestLogger(app.Logger()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	protected := r.Group("/", auth.WebhookMiddleware(webhookSecret))
	protected.POST("/updates", PostUpdate(app))

	users := protected.Group("/users/:id")
	users.POST("/register", PostRegister(app))
	users.POST("/sleep", PostSleep(app))
	users.POST("/wake", PostWake(app))
	users.POST("/rating", PostRating(app))
	users.POST("/notes", PostNote(app))
	users.POST("/notes/skip", PostSkipNote(app))
	users.GET("/session", GetSession(app))
	users.GET("/stats", GetSleepStats(app))

	return r
}
