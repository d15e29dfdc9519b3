package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tillpoint/tillpoint/internal/auth"
	"github.com/tillpoint/tillpoint/internal/inventory"
	"github.com/tillpoint/tillpoint/internal/masterdata/customers"
	"github.com/tillpoint/tillpoint/internal/masterdata/suppliers"
	"github.com/tillpoint/tillpoint/internal/observability"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/procurement"
	"github.com/tillpoint/tillpoint/internal/rbac"
	"github.com/tillpoint/tillpoint/internal/sales"
	"github.com/tillpoint/tillpoint/internal/settings"
	"github.com/tillpoint/tillpoint/internal/transfer"
	"github.com/tillpoint/tillpoint/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Manager *db.Manager
	Metrics *observability.Metrics

	AuthService        *auth.Service
	AuthHandler        *auth.Handler
	InventoryHandler   *inventory.Handler
	SalesHandler       *sales.Handler
	ProcurementHandler *procurement.Handler
	SupplierHandler    *suppliers.Handler
	CustomerHandler    *customers.Handler
	SettingsHandler    *settings.Handler
	TransferHandler    *transfer.Handler
	PermissionsHandler *rbac.PermissionsHandler
	// JobHandler is nil when no Redis is configured.
	JobHandler     *jobs.Handler
	RBACMiddleware rbac.Middleware
}

// NewRouter constructs the chi.Router with tillpoint defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Manager: params.Manager,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", healthz(params.Manager))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.AuthService.BasicAuth("tillpoint"))

		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
		r.Route("/sales", params.SalesHandler.MountRoutes)
		r.Route("/held", params.SalesHandler.MountHeldRoutes)
		r.Route("/purchase-orders", params.ProcurementHandler.MountRoutes)
		r.Route("/suppliers", params.SupplierHandler.MountRoutes)
		r.Route("/customers", params.CustomerHandler.MountRoutes)
		r.Route("/settings", params.SettingsHandler.MountRoutes)
		r.Route("/data", params.TransferHandler.MountRoutes)
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAll(rbac.PermSettingsManage))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}

func healthz(manager *db.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		if manager != nil {
			status["backend"] = manager.Backend().String()
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := manager.Ping(ctx); err != nil {
				status["status"] = "degraded"
				httpx.JSON(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		httpx.JSON(w, http.StatusOK, status)
	}
}

// NewHandler builds every HTTP handler from svc and returns the router.
// jobHandler may be nil.
func NewHandler(svc *Services, jobHandler *jobs.Handler) http.Handler {
	logger := svc.Logger
	rbacMiddleware := rbac.Middleware{Logger: logger}
	return NewRouter(RouterParams{
		Logger:  logger,
		Config:  svc.Config,
		Manager: svc.Manager,
		Metrics: svc.Metrics,

		AuthService:        svc.Auth,
		AuthHandler:        auth.NewHandler(logger, svc.Auth, rbacMiddleware),
		InventoryHandler:   inventory.NewHandler(logger, svc.Inventory, rbacMiddleware),
		SalesHandler:       sales.NewHandler(logger, svc.Sales, rbacMiddleware),
		ProcurementHandler: procurement.NewHandler(logger, svc.Procurement, rbacMiddleware),
		SupplierHandler:    suppliers.NewHandler(logger, svc.Suppliers, rbacMiddleware),
		CustomerHandler:    customers.NewHandler(logger, svc.Customers, rbacMiddleware),
		SettingsHandler:    settings.NewHandler(svc.Settings, rbacMiddleware),
		TransferHandler:    transfer.NewHandler(logger, svc.Transfer, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacMiddleware),
		JobHandler:         jobHandler,
		RBACMiddleware:     rbacMiddleware,
	})
}
