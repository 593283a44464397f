package router

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-market-api/config"
	"github.com/sahilchouksey/course-market-api/database"
	"github.com/sahilchouksey/course-market-api/handlers"
	auth_handlers "github.com/sahilchouksey/course-market-api/handlers/auth"
	course_handlers "github.com/sahilchouksey/course-market-api/handlers/course"
	enrollment_handlers "github.com/sahilchouksey/course-market-api/handlers/enrollment"
	payment_handlers "github.com/sahilchouksey/course-market-api/handlers/payment"
	"github.com/sahilchouksey/course-market-api/model"
	"github.com/sahilchouksey/course-market-api/services"
	"github.com/sahilchouksey/course-market-api/services/gateway"
	"github.com/sahilchouksey/course-market-api/utils/auth"
	"github.com/sahilchouksey/course-market-api/utils/cache"
	"github.com/sahilchouksey/course-market-api/utils/middleware"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, store database.Storage, env *config.EnvironmentVariable) {
	if env.JWT_SECRET == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := env.JWT_ISSUER
	if jwtIssuer == "" {
		jwtIssuer = "course-market-api"
	}

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret:        env.JWT_SECRET,
		Expiry:        24 * time.Hour,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        jwtIssuer,
	})

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Redis cache backs brute force protection on login
	redisURL := env.REDIS_URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection will be disabled.", err)
	}

	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
	}

	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	// Gateway adapters
	vnpay := gateway.NewVNPay(gateway.VNPayConfig{
		TmnCode:    env.VNPAY_TMN_CODE,
		HashSecret: env.VNPAY_HASH_SECRET,
		PaymentURL: env.VNPAY_PAYMENT_URL,
		ReturnURL:  env.VNPAY_RETURN_URL,
	})
	momo := gateway.NewMomo(gateway.MomoConfig{
		PartnerCode: env.MOMO_PARTNER_CODE,
		AccessKey:   env.MOMO_ACCESS_KEY,
		SecretKey:   env.MOMO_SECRET_KEY,
		Endpoint:    env.MOMO_ENDPOINT,
		RedirectURL: env.MOMO_REDIRECT_URL,
		IpnURL:      env.MOMO_IPN_URL,
	})

	// Services
	enrollmentService := services.NewEnrollmentService(db)
	emailService := services.NewEmailService()
	paymentService := services.NewPaymentService(db, enrollmentService, emailService)
	invoiceService := services.NewInvoiceService()

	// Handlers
	healthHandler := handlers.NewHealthHandler(store)
	authHandler := auth_handlers.NewAuthHandler(db, jwtManager)
	courseHandler := course_handlers.NewCourseHandler(db)
	enrollmentHandler := enrollment_handlers.NewEnrollmentHandler(enrollmentService)
	paymentHandler := payment_handlers.NewPaymentHandler(db, paymentService, invoiceService)
	vnpayHandler := payment_handlers.NewVNPayHandler(paymentService, vnpay, env.APP_URL)
	momoHandler := payment_handlers.NewMomoHandler(paymentService, momo, env.APP_URL)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoint (public)
	app.Get("/ping", healthHandler.Health)

	// API v1 group
	api := app.Group("/api/v1")
	api.Get("/health", healthHandler.Health)

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)

	// Login with brute force protection
	if bruteForceProtection != nil {
		authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Post("/logout-all", authMiddleware.Required(), authHandler.LogoutAll)
	authGroup.Get("/profile", authMiddleware.Required(), authHandler.Profile)

	// Catalog routes (public)
	courses := api.Group("/courses")
	courses.Get("/", courseHandler.ListCourses)
	courses.Get("/categories", courseHandler.ListCategories)
	courses.Get("/:id", courseHandler.GetCourse)

	// Enrollment routes (protected)
	enrollments := api.Group("/enrollments", authMiddleware.Required())
	enrollments.Post("/", authMiddleware.RequireRole(model.RoleStudent), enrollmentHandler.Enroll) // Free courses only
	enrollments.Get("/my-enrollments", enrollmentHandler.MyEnrollments)
	enrollments.Get("/:id", enrollmentHandler.GetEnrollment)

	// Payment routes
	payments := api.Group("/payments")

	// Gateway callbacks are unauthenticated: the gateway is not a logged-in
	// user, the signature is the credential.
	payments.Get("/vnpay/return", vnpayHandler.Return)
	payments.Get("/vnpay/ipn", vnpayHandler.IPN)
	payments.Get("/vnpay/banks", vnpayHandler.Banks)
	payments.Post("/momo/ipn", momoHandler.IPN)
	payments.Get("/momo/return", momoHandler.Return)

	// Purchase flows (student only; admins reconcile, they don't buy)
	studentOnly := authMiddleware.RequireRole(model.RoleStudent)
	payments.Post("/", authMiddleware.Required(), studentOnly, paymentHandler.CreatePayment)
	payments.Post("/vnpay/create", authMiddleware.Required(), studentOnly, vnpayHandler.CreatePayment)
	payments.Post("/momo/create", authMiddleware.Required(), studentOnly, momoHandler.CreatePayment)
	payments.Get("/my-payments", authMiddleware.Required(), paymentHandler.MyPayments)
	payments.Get("/transaction/:transactionId", authMiddleware.Required(), paymentHandler.GetByTransactionID)

	// Admin reconciliation and reporting
	payments.Get("/admin/all", authMiddleware.RequireAdmin(), paymentHandler.ListPayments)
	payments.Get("/admin/stats", authMiddleware.RequireAdmin(), paymentHandler.PaymentStats)
	payments.Post("/admin/export", authMiddleware.RequireAdmin(), paymentHandler.ExportPayments)
	payments.Patch("/:id/process", authMiddleware.RequireAdmin(), paymentHandler.ProcessPayment)

	payments.Get("/:id/invoice", authMiddleware.Required(), paymentHandler.Invoice)
	payments.Get("/:id", authMiddleware.Required(), paymentHandler.GetPayment)
}
