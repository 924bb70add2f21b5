package routes

import (
	"net/http"
	"time"

	"gigchat/handlers"
	"gigchat/middleware"
	"gigchat/models"
	"gigchat/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterUserRoutes registers user endpoints.
func RegisterUserRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/users")
	{
		api.POST("/register", hb.User.RegisterUserHandler)

		// Protected routes (Require Authentication)
		api.Use(middleware.JWTAuthMiddleware(hb.UserRepo, hb.AuthCache))
		api.GET("/me", hb.User.GetMeHandler)
		api.POST("/me/token", hb.User.RefreshTokenHandler)
		api.PUT("/me/device", hb.User.UpdateDeviceHandler)
	}
}

// RegisterCategoryRoutes registers the read-only catalog endpoints.
func RegisterCategoryRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/categories")
	{
		api.Use(middleware.JWTAuthMiddleware(hb.UserRepo, hb.AuthCache))
		api.GET("/:id", hb.Admin.GetCategoryHandler)
		api.GET("/:id/subcategories", hb.Admin.ListSubcategoriesHandler)
	}
}

// RegisterChatRoutes registers the conversation endpoints and event stream.
func RegisterChatRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/chats")
	{
		api.Use(middleware.JWTAuthMiddleware(hb.UserRepo, hb.AuthCache))
		api.POST("", middleware.RequireRole(models.RoleCustomer), hb.Chat.OpenServiceChatHandler)
		api.POST("/:chatID/init", hb.Chat.InitializeChatHandler)
		api.GET("/:chatID/messages", hb.Chat.GetMessagesHandler)
		api.POST("/:chatID/messages", hb.Chat.SendMessageHandler)
		api.POST("/:chatID/messages/:correlationID/retry", hb.Chat.RetryMessageHandler)
		api.DELETE("/:chatID/messages/:correlationID", hb.Chat.DiscardMessageHandler)
		api.POST("/:chatID/quick-replies", hb.Chat.QuickReplyHandler)
		api.POST("/:chatID/read", hb.Chat.MarkReadHandler)
		api.GET("/:chatID/events", hb.Chat.EventsHandler)
		api.POST("/:chatID/uploads", hb.Chat.UploadURLHandler)

		customer := api.Group("")
		customer.Use(middleware.RequireRole(models.RoleCustomer))
		customer.POST("/:chatID/date", hb.Chat.SelectDateHandler)
		customer.POST("/:chatID/photos", hb.Chat.SelectPhotosHandler)
		customer.POST("/:chatID/job", hb.Chat.CreateJobHandler)
	}
}

// RegisterJobRoutes registers the bidding, award, completion and cancellation endpoints.
func RegisterJobRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	auth := middleware.JWTAuthMiddleware(hb.UserRepo, hb.AuthCache)
	worker := middleware.RequireRole(models.RoleWorker)
	customer := middleware.RequireRole(models.RoleCustomer)

	jobs := r.Group("/api/jobs")
	{
		jobs.Use(auth)
		jobs.GET("/:jobID", hb.Job.GetJobHandler)
		jobs.GET("/:jobID/onboarding", hb.Job.OnboardingStatusHandler)
		jobs.POST("/:jobID/ratings", hb.Job.SubmitRatingHandler)

		jobs.POST("/:jobID/categorize", worker, hb.Job.CategorizeHandler)
		jobs.POST("/:jobID/views", worker, hb.Job.RecordViewHandler)
		jobs.POST("/:jobID/bids", worker, hb.Job.SubmitBidHandler)
		jobs.POST("/:jobID/completion-code", worker, hb.Job.GenerateCompletionCodeHandler)
		jobs.POST("/:jobID/completion-code/validate", worker, hb.Job.ValidateCompletionCodeHandler)
		jobs.POST("/:jobID/onboarding/validate", worker, hb.Job.ValidateOnboardingCodeHandler)

		jobs.GET("/:jobID/bids", customer, hb.Job.ListBidsHandler)
		jobs.POST("/:jobID/cancel", customer, hb.Job.CancelJobHandler)
	}

	bids := r.Group("/api/bids")
	{
		bids.Use(auth)
		bids.POST("/validate", hb.Job.ValidateBidAmountHandler)
		bids.POST("/:bidID/accept", customer, hb.Job.AcceptBidHandler)
		bids.POST("/:bidID/reject", customer, hb.Job.RejectBidHandler)
	}
}

// RegisterAdminRoutes sets up endpoints for admin operations.
func RegisterAdminRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	adminGroup := r.Group("/api/admin")
	{
		adminGroup.Use(middleware.JWTAuthAdminMiddleware())
		adminGroup.POST("/categories", hb.Admin.CreateCategoryHandler)
		adminGroup.PUT("/users/:id/approval", hb.Admin.SetApprovalHandler)
		adminGroup.POST("/users/:id/balance", hb.Admin.TopUpBalanceHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": utils.GetHealthStatus()})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", middleware.DevUserHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterUserRoutes(r, hb)
	RegisterCategoryRoutes(r, hb)
	RegisterChatRoutes(r, hb)
	RegisterJobRoutes(r, hb)
	RegisterAdminRoutes(r, hb)
	RegisterHealthRoute(r)
}
