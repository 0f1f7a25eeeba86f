package user

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/redmonkez12/todo-api/internal/apperror"
	"github.com/redmonkez12/todo-api/internal/httputil"
	"github.com/redmonkez12/todo-api/internal/logging"
	"github.com/redmonkez12/todo-api/internal/validate"
)

// IDParam is the route parameter holding a user id.
const IDParam = "userId"

// Handler contains HTTP handlers for user endpoints
type Handler struct {
	service   *Service
	validator *validate.Validator
}

func NewHandler(service *Service, validator *validate.Validator) *Handler {
	return &Handler{service: service, validator: validator}
}

// ListQuery holds the query parameters accepted by List.
type ListQuery struct {
	Skip  int     `query:"skip" validate:"min=0"`
	Limit int     `query:"limit" validate:"min=0,max=100"`
	Name  *string `query:"name" validate:"omitnil,max=128"`
	Email *string `query:"email" validate:"omitnil,email"`
	Role  *string `query:"role" validate:"omitnil,oneof=user admin"`
}

// List returns users
// @Summary      List users
// @Description  List users, newest first. Admin only.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        skip  query int    false "Number of users to skip"
// @Param        limit query int    false "Page size (max 100)"
// @Param        name  query string false "Exact name"
// @Param        email query string false "Exact email"
// @Param        role  query string false "Role" Enums(user, admin)
// @Success      200 {array}  View
// @Failure      400 {object} httputil.ErrorResponse "Invalid query"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Router       /users [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		httputil.RespondError(w, err)
		return
	}
	if err := h.validator.Query(q); err != nil {
		httputil.RespondError(w, err)
		return
	}

	filter := Filter{Name: q.Name, Email: q.Email}
	if q.Role != nil {
		role := Role(*q.Role)
		filter.Role = &role
	}

	users, err := h.service.List(r.Context(), filter, Page{Skip: q.Skip, Limit: q.Limit})
	if err != nil {
		h.fail(w, r, "list users failed", err)
		return
	}

	views := make([]View, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	httputil.RespondJSON(w, views, http.StatusOK)
}

func parseListQuery(r *http.Request) (ListQuery, error) {
	values := r.URL.Query()
	var q ListQuery
	var fields []apperror.FieldError

	for _, p := range []struct {
		name string
		dst  *int
	}{{"skip", &q.Skip}, {"limit", &q.Limit}} {
		name, dst := p.name, p.dst
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields = append(fields, apperror.FieldError{
				Field:    name,
				Location: validate.LocationQuery,
				Messages: []string{strconv.Quote(name) + " must be a number"},
			})
			continue
		}
		*dst = n
	}
	if len(fields) > 0 {
		return q, apperror.Validation(fields...)
	}

	optional := func(name string) *string {
		if !values.Has(name) {
			return nil
		}
		v := values.Get(name)
		return &v
	}
	q.Name = optional("name")
	q.Email = optional("email")
	q.Role = optional("role")

	return q, nil
}

// Create creates a user
// @Summary      Create user
// @Description  Create a user with any role. Admin only.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CreateInput true "User"
// @Success      201 {object} View
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Router       /users [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.RespondError(w, err)
		return
	}

	u, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create user failed", err)
		return
	}

	logging.FromContext(r.Context()).Info("user created", "user_id", u.ID)
	httputil.RespondJSON(w, u.View(), http.StatusCreated)
}

// Profile returns the authenticated user
// @Summary      Current user
// @Description  Get the profile of the authenticated user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} View
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /users/profile [get]
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	caller, ok := FromContext(r.Context())
	if !ok {
		httputil.RespondError(w, apperror.New(apperror.KindUnauthorized, httputil.CodeMissingAuth, "Unauthorized"))
		return
	}
	httputil.RespondJSON(w, caller.View(), http.StatusOK)
}

// Get returns a user
// @Summary      Get user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        userId path string true "User ID"
// @Success      200 {object} View
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Failure      404 {object} httputil.ErrorResponse "User does not exist"
// @Router       /users/{userId} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get user failed", err)
		return
	}
	httputil.RespondJSON(w, u.View(), http.StatusOK)
}

// Replace replaces a user
// @Summary      Replace user
// @Description  Replace every writable field. The role is ignored unless the caller is an admin.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path string      true "User ID"
// @Param        request body ReplaceInput true "User"
// @Success      200 {object} View
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Failure      404 {object} httputil.ErrorResponse "User does not exist"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Router       /users/{userId} [put]
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	var in ReplaceInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.RespondError(w, err)
		return
	}

	caller, _ := FromContext(r.Context())
	u, err := h.service.Replace(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, "replace user failed", err)
		return
	}
	httputil.RespondJSON(w, u.View(), http.StatusOK)
}

// Update patches a user
// @Summary      Update user
// @Description  Update some fields. The role is ignored unless the caller is an admin.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path string true "User ID"
// @Param        request body Patch  true "Fields to change"
// @Success      200 {object} View
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Failure      404 {object} httputil.ErrorResponse "User does not exist"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Router       /users/{userId} [patch]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	var patch Patch
	if err := httputil.DecodeJSON(w, r, &patch); err != nil {
		httputil.RespondError(w, err)
		return
	}

	caller, _ := FromContext(r.Context())
	u, err := h.service.Update(r.Context(), caller, id, patch)
	if err != nil {
		h.fail(w, r, "update user failed", err)
		return
	}
	httputil.RespondJSON(w, u.View(), http.StatusOK)
}

// Delete removes a user
// @Summary      Delete user
// @Tags         users
// @Security     BearerAuth
// @Param        userId path string true "User ID"
// @Success      204
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Failure      404 {object} httputil.ErrorResponse "User does not exist"
// @Router       /users/{userId} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete user failed", err)
		return
	}

	logging.FromContext(r.Context()).Info("user deleted", "user_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// userID parses the id route parameter. Ids that cannot exist are reported
// as a missing user.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, IDParam))
	if err != nil {
		httputil.RespondError(w, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger := logging.FromContext(r.Context())

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		logger.Warn(msg, "error", err.Error())
	} else {
		logger.Error(msg, "error", err.Error())
	}
	httputil.RespondError(w, err)
}
