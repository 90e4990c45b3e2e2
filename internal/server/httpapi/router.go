package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the middleware chain and the /api/auth route group.
func NewRouter(h *Handler, corsAllowOrigin string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), CORS(corsAllowOrigin))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, messageResponse{Message: "Cooklio API Server"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/verify", h.VerifyCode)
		authGroup.POST("/forgot-password", h.ForgotPassword)
		authGroup.POST("/reset-password", h.ResetPassword)
		authGroup.POST("/refresh-token", h.RefreshToken)
		authGroup.POST("/logout", h.Logout)
	}

	return router
}
