package app

import (
	"coursemart_backend/docs"
	"coursemart_backend/internal/config"
	"coursemart_backend/internal/middleware"
	"coursemart_backend/internal/model"
	"coursemart_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(&cfg.JWT))
	{
		a.registerStudentRoutes(authGroup, c)
	}

	// 3. 管理员路由
	adminGroup := router.Group("/api/admin")
	adminGroup.Use(middleware.AuthMiddleware(&cfg.JWT), middleware.RoleMiddleware(model.RoleAdmin))
	{
		adminGroup.POST("/payments/reconcile", c.payment.Reconcile)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)

		// 网关回调由签名认证
		public.POST("/payments/webhook", c.payment.Webhook)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	owner := middleware.OwnerOrAdmin("studentId")

	// 支付与报名
	rg.POST("/payments/orders", c.payment.CreateOrder)
	rg.POST("/payments/verify", c.payment.Verify)
	rg.GET("/enrollments/:courseId/:studentId", owner, c.enrollment.Get)
	rg.PUT("/enrollments/:courseId/:studentId/progress", owner, c.enrollment.SaveProgress)

	// 测验
	rg.POST("/quizzes/:quizId/attempts", c.quiz.SubmitAttempt)

	// 证书
	rg.POST("/certificates/issue/:courseId/:studentId", owner, c.certificate.Issue)
	rg.GET("/certificates/eligibility/:courseId/:studentId", owner, c.certificate.Eligibility)
	rg.GET("/certificates/:courseId/:studentId", owner, c.certificate.Get)
	rg.GET("/students/:studentId/certificates", owner, c.certificate.ListByStudent)
}
