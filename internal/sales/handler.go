package sales

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/rbac"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// Handler manages sales endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermSalesCreate))
		r.Get("/", h.listSales)
		r.Post("/", h.createSale)
		r.Get("/{receipt}", h.showSale)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermSalesVoid))
		r.Post("/{receipt}/void", h.voidSale)
	})
}

// MountHeldRoutes registers held cart routes.
func (h *Handler) MountHeldRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermSalesCreate))
		r.Get("/", h.listHeld)
		r.Post("/", h.hold)
		r.Post("/{id}/recall", h.recallHeld)
		r.Delete("/{id}", h.discardHeld)
	})
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	sales, err := h.service.ListSales(r.Context(), ListSalesRequest{
		From:          q.Get("from"),
		To:            q.Get("to"),
		Status:        q.Get("status"),
		CustomerPhone: q.Get("phone"),
		Limit:         limit,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sales)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	sale, err := h.service.CreateSale(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) showSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.GetSale(r.Context(), chi.URLParam(r, "receipt"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) voidSale(w http.ResponseWriter, r *http.Request) {
	var req VoidSaleRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	actor, _ := shared.ActorFromContext(r.Context())
	sale, err := h.service.VoidSale(r.Context(), actor, chi.URLParam(r, "receipt"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listHeld(w http.ResponseWriter, r *http.Request) {
	held, err := h.service.ListHeld(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, held)
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	var data json.RawMessage
	if err := httpx.DecodeJSON(r, &data); err != nil {
		httpx.RespondError(w, err)
		return
	}
	held, err := h.service.Hold(r.Context(), data)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, held)
}

func (h *Handler) recallHeld(w http.ResponseWriter, r *http.Request) {
	held, err := h.service.RecallHeld(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, held)
}

func (h *Handler) discardHeld(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DiscardHeld(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
