package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"example.com/comercialav/services/deliveries/api/handlers"
	"example.com/comercialav/services/deliveries/api/middleware"
	"example.com/comercialav/services/deliveries/internal/delivery"
	"example.com/comercialav/services/deliveries/internal/identity"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Deliveries *handlers.DeliveryHandler
	Photos     *handlers.PhotoHandler
	History    *handlers.HistoryHandler
	Metrics    *handlers.MetricsHandler
}

// SetupRoutes sets up all the routes for the server
func SetupRoutes(r *gin.Engine, provider identity.Provider, h Handlers) {
	registerValidators()

	// Operational endpoints stay outside the identity requirement
	r.GET("/health", h.Metrics.HandleGetHealthCheck)
	r.GET("/metrics", h.Metrics.HandleGetMetrics)

	api := r.Group("/api/v1")
	api.Use(middleware.Identity(provider))

	api.GET("/sync", h.Deliveries.HandleSyncStatus)

	deliveries := api.Group("/deliveries")
	deliveries.GET("", h.Deliveries.HandleListActive)
	deliveries.GET("/archived", h.Deliveries.HandleListArchived)
	deliveries.POST("", h.Deliveries.HandleCreateForecast)
	deliveries.POST("/archive", h.Deliveries.HandleArchiveRegistered)
	deliveries.GET("/history/search", h.History.HandleSearchHistory)
	deliveries.GET("/:id", h.Deliveries.HandleGetDelivery)
	deliveries.PATCH("/:id/forecast", h.Deliveries.HandleEditForecast)
	deliveries.POST("/:id/arrival", h.Deliveries.HandleRecordArrival)
	deliveries.POST("/:id/registration", h.Deliveries.HandleConfirmRegistration)
	deliveries.PATCH("/:id/observations", h.Deliveries.HandleEditObservations)
	deliveries.DELETE("/:id", h.Deliveries.HandleDeleteForecast)
	deliveries.POST("/:id/photos", h.Photos.HandleAttachPhoto)
	deliveries.DELETE("/:id/photos/:photoId", h.Photos.HandleDetachPhoto)
}

// registerValidators adds the custom binding validators
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("island", func(fl validator.FieldLevel) bool {
			return delivery.ValidIsland(delivery.IslandCode(fl.Field().String()))
		})
	}
}
