package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"coursemart_backend/internal/config"
	"coursemart_backend/internal/controller"
	"coursemart_backend/internal/repository"
	"coursemart_backend/internal/service"
	"coursemart_backend/internal/util"
	"coursemart_backend/pkg/configwatcher"
	"coursemart_backend/pkg/database"
	"coursemart_backend/pkg/logger"
	"coursemart_backend/pkg/monitoring"
	"coursemart_backend/pkg/security"
	"coursemart_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigFile      string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	student      *repository.StudentRepository
	course       *repository.CourseRepository
	enrollment   *repository.EnrollmentRepository
	quiz         *repository.QuizRepository
	certificate  *repository.CertificateRepository
	paymentEvent *repository.PaymentEventRepository
}

type services struct {
	storage      *service.StorageService
	enrollment   *service.EnrollmentService
	eligibility  *service.EligibilityService
	certificate  *service.CertificateService
	quiz         *service.QuizService
	paymentEvent *service.PaymentEventService
	reconcile    *service.ReconcileService
}

type controllers struct {
	payment     *controller.PaymentController
	certificate *controller.CertificateController
	enrollment  *controller.EnrollmentController
	quiz        *controller.QuizController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		student:      repository.NewStudentRepository(db),
		course:       repository.NewCourseRepository(db),
		enrollment:   repository.NewEnrollmentRepository(db),
		quiz:         repository.NewQuizRepository(db),
		certificate:  repository.NewCertificateRepository(db),
		paymentEvent: repository.NewPaymentEventRepository(db),
	}
}

// initServices gateway 为 nil 时按配置创建 HTTP 客户端
func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client, gateway service.PaymentGateway) *services {
	s := &services{}

	var cache service.ProcessedCache = service.NewNoopProcessedCache()
	if rdb != nil {
		cache = service.NewRedisProcessedCache(rdb, cfg.Redis.ProcessedTTL)
	}
	if gateway == nil {
		gateway = service.NewRestPaymentGateway(&cfg.Payment)
	}

	s.storage = service.NewStorageService(cfg)
	s.enrollment = service.NewEnrollmentService(
		cfg,
		repos.student,
		repos.course,
		repos.enrollment,
		service.NewIdempotencyGuard(repos.enrollment, cache),
		service.NewSignatureVerifier(cfg.Payment.WebhookSecret),
		gateway,
	)
	s.eligibility = service.NewEligibilityService(repos.quiz, cfg.Certificate.PassThreshold)
	s.certificate = service.NewCertificateService(
		cfg,
		repos.student,
		repos.course,
		repos.enrollment,
		repos.certificate,
		s.eligibility,
		s.storage,
		service.NewPNGCertificateRenderer(),
		service.NewCertificateNotifier(&cfg.Notification),
	)
	s.quiz = service.NewQuizService(repos.quiz, repos.enrollment)
	s.paymentEvent = service.NewPaymentEventService(repos.paymentEvent, s.enrollment, cfg.Payment.Provider, &cfg.Reconcile)
	s.reconcile = service.NewReconcileService(s.paymentEvent, &cfg.Reconcile)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		payment:     controller.NewPaymentController(s.enrollment, s.paymentEvent),
		certificate: controller.NewCertificateController(s.certificate),
		enrollment:  controller.NewEnrollmentController(s.enrollment),
		quiz:        controller.NewQuizController(s.quiz),
		health:      controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(
		cfg.RateLimit.MaxRequests,
		time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute,
		"/api/payments/webhook", "/api/health", "/metrics",
	))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks() {
	if err := a.services.reconcile.Start(); err != nil {
		logger.Log.Error("Failed to start payment reconciliation", zap.Error(err))
	}
}

// newApp 用已经建立好的基础设施组装路由与服务
func newApp(cfg *config.Config, db *gorm.DB, rdb *redis.Client, gateway service.PaymentGateway) *App {
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg, rdb, gateway)
	controllers := app.initControllers(app.services, db, rdb)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.SetMode(newCfg.Server.Mode)
		logger.Log.Info("Log level updated", zap.String("level", logger.Level().String()))
	})

	return app
}

func NewApp(cfg *config.Config, configFile string) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	// release 模式下默认不自动迁移，需要 -migrate 显式开启
	migrate := cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
	}

	// 监控初始化
	monitoring.Init()

	app := newApp(cfg, db, rdb, nil)
	app.ConfigFile = configFile

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("coursemart-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a.startBackgroundTasks()

	if a.ConfigFile != "" {
		go func() {
			err := configwatcher.WatchConfig(ctx, a.ConfigFile, func(cfg *config.Config) {
				for _, cb := range a.configCallbacks {
					cb(cfg)
				}
			})
			if err != nil {
				logger.Log.Warn("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	// 等待正在执行的补偿任务
	a.services.reconcile.Stop(shutdownCtx)

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}

// DefaultConfigFile 配置目录下的配置文件路径
func DefaultConfigFile(dir string) string {
	return filepath.Join(dir, "config.yaml")
}
