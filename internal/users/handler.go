package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/havenlist/havenlist/internal/platform/httpx"
	"github.com/havenlist/havenlist/internal/rbac"
	"github.com/havenlist/havenlist/internal/shared"
)

// Handler exposes admin user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *rbac.Guard
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers user management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePermission(shared.ModuleUserManagement, shared.ActionView)).Get("/", h.listUsers)
	r.With(h.guard.RequirePermission(shared.ModuleUserManagement, shared.ActionView)).Get("/{id}", h.getUser)
	r.With(h.guard.RequirePermission(shared.ModuleUserManagement, shared.ActionActivate)).Patch("/{id}/status", h.updateStatus)
	r.With(h.guard.RequireAdmin()).Patch("/{id}/type", h.updateUserType)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.respondError(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive suspended"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.UpdateStatus(r.Context(), id, rbac.UserStatus(req.Status))
	if err != nil {
		h.respondError(w, "update user status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type userTypeRequest struct {
	UserType string `json:"userType" validate:"required,oneof=user property_owner admin super_admin"`
}

func (h *Handler) updateUserType(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req userTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.UpdateUserType(r.Context(), id, rbac.UserType(req.UserType))
	if err != nil {
		h.respondError(w, "update user type", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
