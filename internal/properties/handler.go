package properties

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
	"github.com/havenlist/havenlist/internal/token"
)

// Handler mounts the guarded property-listing routes. It is a thin
// pass-through to the Catalog collaborator; the interesting part is the
// permission gating.
type Handler struct {
	logger    *slog.Logger
	catalog   Catalog
	guard     *rbac.Guard
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, catalog Catalog, guard *rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, catalog: catalog, guard: guard, validator: validator.New()}
}

// MountRoutes registers property routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePermission(shared.ModulePropertyManagement, shared.ActionView)).Get("/", h.list)
	r.With(h.guard.RequirePermission(shared.ModulePropertyManagement, shared.ActionView)).Get("/{id}", h.get)
	r.With(h.guard.RequirePermission(shared.ModulePropertyManagement, shared.ActionCreate)).Post("/", h.create)
	r.With(h.guard.RequirePermission(shared.ModulePropertyManagement, shared.ActionUpdate)).Put("/{id}", h.update)
	r.With(h.guard.RequirePermission(shared.ModulePropertyManagement, shared.ActionDelete)).Delete("/{id}", h.delete)
	r.With(h.guard.RequirePermission(shared.ModulePropertyManagement, shared.ActionApprove)).Patch("/{id}/approval", h.approve)
	r.With(h.guard.RequireAdmin()).Get("/admin/all", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	listings, err := h.catalog.List(r.Context())
	if err != nil {
		h.respondError(w, "list properties", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"properties": listings})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	listing, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get property", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listing)
}

type listingRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=5000"`
	City        string `json:"city" validate:"required,min=2,max=100"`
	Price       int64  `json:"price" validate:"gte=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims := token.ClaimsFromContext(r.Context())
	listing, err := h.catalog.Create(r.Context(), Listing{
		OwnerID:     claims.UserID,
		Title:       req.Title,
		Description: req.Description,
		City:        req.City,
		Price:       req.Price,
	})
	if err != nil {
		h.respondError(w, "create property", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, listing)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req listingRequest
	if !h.decode(w, r, &req) {
		return
	}
	listing, err := h.catalog.Update(r.Context(), Listing{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		City:        req.City,
		Price:       req.Price,
	})
	if err != nil {
		h.respondError(w, "update property", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listing)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete property", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type approvalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req approvalRequest
	if !h.decode(w, r, &req) {
		return
	}
	listing, err := h.catalog.Approve(r.Context(), id, *req.Approved)
	if err != nil {
		h.respondError(w, "approve property", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listing)
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
		httpx.Problem(w, http.StatusNotFound, "Not Found", "property not found")
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
