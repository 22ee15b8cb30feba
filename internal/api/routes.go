package api

import (
	"studyhub/internal/api/handlers"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes. Session middleware must already be
// installed on the router.
func SetupRoutes(router *gin.Engine, handler *handlers.Handler, frontendURL string) {
	// Apply CORS middleware
	router.Use(CORSMiddleware(frontendURL))

	router.GET("/health", handler.HandleHealth)

	// --- API Routes ---
	api := router.Group("/api")
	api.Use(LearnerSession())
	{
		api.GET("/learner", handler.HandleLearner)

		api.GET("/tests", handler.HandleListTests)
		api.POST("/tests", handler.HandleCreateTest)
		api.GET("/tests/:id", handler.HandleGetTest)

		api.POST("/tests/:id/submissions", handler.HandleSubmitAnswers)
		api.POST("/tests/:id/remediation", handler.HandleRemediation)
	}
}
