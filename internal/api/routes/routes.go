package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vtutor/internal/api/handlers"
	"github.com/yoockh/vtutor/internal/api/middleware"
)

func Register(r *gin.Engine, log *logrus.Logger, sh *handlers.SessionHandler, wh *handlers.WSHandler) {
	r.Use(middleware.RequestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth())
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", sh.Start)
			sessions.GET("/:id", sh.Get)
			sessions.GET("/:id/status", sh.Status)
			sessions.GET("/:id/items", sh.Items)
			sessions.GET("/:id/transcript", sh.Transcript)
			sessions.POST("/:id/pause", sh.Pause)
			sessions.POST("/:id/resume", sh.Resume)
			sessions.POST("/:id/end", sh.End)
			sessions.POST("/:id/mute", sh.Mute)
			sessions.GET("/:id/live", wh.Live)
		}
	}
}
