package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/scriptoria/scriptoria-api/internal/config"
	"github.com/scriptoria/scriptoria-api/internal/handler"
	"github.com/scriptoria/scriptoria-api/internal/middleware"
	"github.com/scriptoria/scriptoria-api/internal/models"
	"github.com/scriptoria/scriptoria-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	TemplateHandler      *handler.TemplateHandler
	AssignmentHandler    *handler.AssignmentHandler
	PaperHandler         *handler.PaperHandler
	FinalDocumentHandler *handler.FinalDocumentHandler
	IntegrityHandler     *handler.IntegrityHandler
	GradingHandler       *handler.GradingHandler
	ViolationHandler     *handler.ViolationHandler
	ActivityHandler      *handler.ActivityHandler
	JWTMiddleware        fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.TemplateHandler != nil {
		templates := api.Group("/templates", jwtMiddleware, middleware.RequireRole(models.RoleAdmin))
		deps.TemplateHandler.Register(templates)
	}

	if deps.AssignmentHandler != nil {
		assignments := api.Group("/assignments", jwtMiddleware, middleware.RequireRole(models.RoleAdmin, models.RoleAdvisor))
		deps.AssignmentHandler.Register(assignments)
	}

	// Chapter drafting, final documents, integrity review and grading all
	// key off the paper identifier. Ownership and per-action role checks
	// beyond the group guard live in the services.
	if deps.PaperHandler != nil {
		papers := api.Group("/papers", jwtMiddleware, middleware.RateLimit("papers", 60, time.Minute))
		deps.PaperHandler.Register(papers)
		if deps.FinalDocumentHandler != nil {
			deps.FinalDocumentHandler.Register(papers)
		}
	}
	if deps.IntegrityHandler != nil {
		integrity := api.Group("/papers", jwtMiddleware, middleware.RequireRole(models.RoleVerifier, models.RoleAdmin))
		deps.IntegrityHandler.Register(integrity)
	}
	if deps.GradingHandler != nil {
		grading := api.Group("/papers", jwtMiddleware, middleware.RequireRole(models.RoleExaminer, models.RoleAdmin))
		deps.GradingHandler.Register(grading)
	}

	// The violation group is mixed-role: the detection client records from
	// the student's own session. Per-route scoping lives in the handler.
	if deps.ViolationHandler != nil {
		violations := api.Group("/violations", jwtMiddleware, middleware.RateLimit("violations", 30, time.Minute))
		deps.ViolationHandler.Register(violations)
	}

	if deps.ActivityHandler != nil {
		activity := api.Group("/activity", jwtMiddleware, middleware.RequireRole(models.RoleAdmin))
		deps.ActivityHandler.Register(activity)
	}
}
