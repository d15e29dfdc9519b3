package auth

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/rbac"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// Handler exposes account endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// BasicAuth authenticates every request with HTTP basic credentials and
// stores the resulting actor in the request context.
func (s *Service) BasicAuth(realm string) func(http.Handler) http.Handler {
	challenge := `Basic realm="` + realm + `", charset="UTF-8"`
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", challenge)
				httpx.RespondError(w, shared.ErrInvalidCredentials)
				return
			}
			user, err := s.Authenticate(r.Context(), username, password)
			if err != nil {
				var lockout *LockoutError
				if errors.As(err, &lockout) {
					w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(lockout.Wait.Seconds())))))
				}
				if errors.Is(err, shared.ErrInvalidCredentials) {
					w.Header().Set("WWW-Authenticate", challenge)
				}
				httpx.RespondError(w, err)
				return
			}
			ctx := shared.ContextWithActor(r.Context(), user.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermUsersManage))
		r.Get("/users", h.listUsers)
		r.Post("/users", h.createUser)
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrInvalidCredentials)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"id":       actor.ID,
		"name":     actor.Name,
		"username": actor.Username,
		"role":     actor.Role,
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var input CreateUserInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("account created via api", slog.String("user", user.Username))
	httpx.JSON(w, http.StatusCreated, user)
}
