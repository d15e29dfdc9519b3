package settings

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/rbac"
)

// Handler serves the settings endpoints.
type Handler struct {
	store *Store
	rbac  rbac.Middleware
}

// NewHandler constructs a settings handler.
func NewHandler(store *Store, rbac rbac.Middleware) *Handler {
	return &Handler{store: store, rbac: rbac}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermInventoryView)).Get("/", h.list)
	r.With(h.rbac.RequireAll(rbac.PermSettingsManage)).Put("/", h.update)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	values, err := h.store.All(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, values)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := httpx.DecodeJSON(r, &values); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.store.SetMany(r.Context(), values); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.list(w, r)
}
