package transfer

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/rbac"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// maxImportBytes bounds an uploaded snapshot.
const maxImportBytes = 256 << 20

// Handler exposes export and import over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs a transfer handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermTransferManage))
		r.Get("/export", h.export)
		r.Post("/import", h.importSnapshot)
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Export(r.Context())
	if err != nil {
		h.logger.Error("export failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "tillpoint-"+snap.ExportedAt[:10]+".json"))
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) importSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := ReadJSON(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	counts, err := h.service.Import(r.Context(), snap)
	if err != nil {
		h.logger.Error("import failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	h.logger.Info("snapshot imported", slog.String("user", actor.Username))
	httpx.JSON(w, http.StatusOK, counts)
}
