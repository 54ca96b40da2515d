package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/transitline/ticketing-core/internal/command"
	"github.com/transitline/ticketing-core/internal/query"
	"github.com/transitline/ticketing-core/pkg/config"
	"github.com/transitline/ticketing-core/pkg/telemetry"
)

// NewRouter assembles the gin engine: recovery, optional tracing,
// correlation id, health probes, and the authenticated ticket routes under
// /api, adapted from the reference booking-service main's router setup.
func NewRouter(cfg *config.Config, commands *command.Service, queries *query.Service, health *HealthHandlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.OTel.Enabled {
		router.Use(telemetry.TracingMiddleware(cfg.App.Name))
	}
	router.Use(CorrelationID())

	health.Register(router)

	api := router.Group("/api")
	api.Use(Auth(cfg.JWT.Secret, cfg.JWT.Issuer))

	handlers := NewHandlers(commands, queries)
	handlers.Register(api)

	return router
}
