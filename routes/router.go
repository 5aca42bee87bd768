package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quillworks/quill/config"
	"github.com/quillworks/quill/controllers"
	"github.com/quillworks/quill/middleware"
	"github.com/quillworks/quill/storage"
	"github.com/quillworks/quill/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, mailer utils.Mailer, images storage.ImageStorage) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/api/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(db, mailer)
	postController := controllers.NewPostController(db, images)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/request-password-reset", authController.RequestPasswordReset)
	authGroup.POST("/reset-password", authController.ResetPassword)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	postsGroup := api.Group("/posts")
	postsGroup.GET("", middleware.AuthOptional(), postController.ListPosts)
	postsGroup.GET("/search_top", middleware.AuthOptional(), postController.SearchTop)
	postsGroup.GET("/:id", middleware.AuthOptional(), postController.GetPost)
	postsGroup.GET("/:id/comments", middleware.AuthOptional(), postController.ListComments)

	protected := api.Group("/posts")
	protected.Use(middleware.AuthRequired())
	protected.POST("", postController.CreatePost)
	protected.PUT("/:id", postController.UpdatePost)
	protected.DELETE("/:id", postController.DeletePost)
	protected.POST("/:id/like", postController.ToggleLike)
	protected.POST("/:id/comments", postController.CreateComment)
	protected.DELETE("/:id/comments/:commentId", postController.DeleteComment)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		ctx.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})

	return r
}
