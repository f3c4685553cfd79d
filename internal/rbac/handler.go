package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/havenlist/havenlist/internal/platform/httpx"
	"github.com/havenlist/havenlist/internal/shared"
)

// SweepEnqueuer submits a permission cache sweep to the background queue.
type SweepEnqueuer func(ctx context.Context, reason string) error

// Handler exposes role and permission management endpoints. Every mutation
// routed here triggers the service's cache invalidation, so collaborators
// never observe permissions resolved against stale assignment data for
// longer than the documented eventual-consistency window.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *Guard
	sweep     SweepEnqueuer
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. sweep may be nil; the flush
// endpoint then clears the cache synchronously.
func NewHandler(logger *slog.Logger, service *Service, guard *Guard, sweep SweepEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		sweep:     sweep,
		validator: validator.New(),
	}
}

// MountRoutes registers management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionView)).Get("/", h.listRoles)
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionCreate)).Post("/", h.createRole)
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionView)).Get("/{id}", h.getRole)
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionUpdate)).Put("/{id}", h.updateRole)
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionDelete)).Delete("/{id}", h.deleteRole)
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionUpdate)).Put("/{id}/permissions", h.setRolePermissions)
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionAssign)).Post("/{id}/users", h.assignRole)
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionAssign)).Delete("/{id}/users/{userID}", h.removeRole)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionView)).Get("/", h.listPermissions)
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionCreate)).Post("/", h.createPermission)
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionUpdate)).Patch("/{id}/status", h.updatePermissionStatus)
		r.With(h.guard.RequirePermission(shared.ModuleRolePermission, shared.ActionDelete)).Delete("/{id}", h.deletePermission)
		r.With(h.guard.RequireAdmin()).Post("/cache/flush", h.flushCache)
	})
}

// flushCache is the operator escape hatch after out-of-band data fixes.
func (h *Handler) flushCache(w http.ResponseWriter, r *http.Request) {
	if h.sweep != nil {
		if err := h.sweep(r.Context(), "manual"); err != nil {
			h.respondError(w, "enqueue cache sweep", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "sweep enqueued"})
		return
	}
	if err := h.service.FlushCache(r.Context()); err != nil {
		h.respondError(w, "flush cache", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "cache flushed"})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
	Status      string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	status := Status(req.Status)
	if status == "" {
		status = StatusActive
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description, status)
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rolePermissionsRequest struct {
	PermissionIDs []uuid.UUID `json:"permissionIds" validate:"required"`
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req rolePermissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), id, req.PermissionIDs); err != nil {
		h.respondError(w, "set role permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	UserID uuid.UUID `json:"userId" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AssignRole(r.Context(), req.UserID, roleID); err != nil {
		h.respondError(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID); err != nil {
		h.respondError(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

type permissionRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Module      string `json:"module" validate:"required,min=2,max=50"`
	Action      string `json:"action" validate:"required,min=2,max=50"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Name, req.Module, req.Action, req.Description)
	if err != nil {
		h.respondError(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

type permissionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

func (h *Handler) updatePermissionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req permissionStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.UpdatePermissionStatus(r.Context(), id, Status(req.Status))
	if err != nil {
		h.respondError(w, "update permission status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.respondError(w, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "record not found")
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "a record with that name already exists")
	case errors.Is(err, ErrSystemRecord):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "system records cannot be modified")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
