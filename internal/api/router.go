package api

import (
	"go-sales-insights/internal/api/handler"
	"go-sales-insights/pkg/router"

	_ "go-sales-insights/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

// RegisterRoutes wires every endpoint. More specific session routes are
// registered before the generic ones.
func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.GET("/api/v1/health", h.Health)

	r.POST("/api/v1/auth/register", h.Register)
	r.POST("/api/v1/auth/login", h.Login)

	r.GET("/api/v1/uploads", h.RequireAuth(h.ListUploads))

	r.POST("/api/v1/sessions", h.RequireAuth(h.CreateSession))
	r.GET("/api/v1/sessions", h.RequireAuth(h.ListSessions))
	r.POST("/api/v1/sessions/*/upload", h.RequireAuth(h.Upload))
	r.POST("/api/v1/sessions/*/prepare", h.RequireAuth(h.Prepare))
	r.POST("/api/v1/sessions/*/filter", h.RequireAuth(h.Filter))
	r.GET("/api/v1/sessions/*/summary", h.RequireAuth(h.Summary))
	r.GET("/api/v1/sessions/*/counts", h.RequireAuth(h.Counts))
	r.PUT("/api/v1/sessions/*/charts/*", h.RequireAuth(h.PutChart))
	r.GET("/api/v1/sessions/*/export/*", h.RequireAuth(h.Export))
	r.GET("/api/v1/sessions/*", h.RequireAuth(h.GetSession))
	r.DELETE("/api/v1/sessions/*", h.RequireAuth(h.DeleteSession))

	r.Mount("/swagger/", httpSwagger.WrapHandler)
}
