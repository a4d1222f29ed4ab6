package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/reviewdb/apiserver/internal/authz"
	"github.com/reviewdb/apiserver/internal/services"
	"github.com/reviewdb/apiserver/types"
)

// UserHandler provides profile and administrative user-management
// endpoints.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user routes on the given router. The caller is
// expected to have installed the Authenticate middleware already.
func UserRouter(r chi.Router, handler *UserHandler) {
	r.With(RequireUser).Get("/me", handler.Me)
	r.With(RequireUser).Patch("/me", handler.UpdateMe)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser, requireUserManager)
		r.Get("/", handler.ListUsers)
		r.Post("/", handler.CreateUser)
		r.Route("/{username}", func(r chi.Router) {
			r.Get("/", handler.GetUser)
			r.Patch("/", handler.UpdateUser)
			r.Delete("/", handler.DeleteUser)
		})
	})
}

// requireUserManager gates the administrative user endpoints. Moderators
// are not user managers.
func requireUserManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authz.CanManageUsers(userFromContext(r.Context())) {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserResponse is the public representation of an account.
type UserResponse struct {
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Bio       string     `json:"bio"`
	Role      types.Role `json:"role"`
}

func toUserResponse(user types.User) UserResponse {
	return UserResponse{
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Bio:       user.Bio,
		Role:      user.Role,
	}
}

// Me returns the caller's own profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

type userPatchRequest struct {
	Username  *string     `json:"username"`
	Email     *string     `json:"email"`
	FirstName *string     `json:"first_name"`
	LastName  *string     `json:"last_name"`
	Bio       *string     `json:"bio"`
	Role      *types.Role `json:"role"`
}

func (p userPatchRequest) toPatch() services.UserPatch {
	return services.UserPatch{
		Username:  p.Username,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Bio:       p.Bio,
		Role:      p.Role,
	}
}

// UpdateMe applies a partial update to the caller's own profile. The role
// field is immutable through this route, whatever the caller's privilege.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req userPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.userService.Update(r.Context(), user.Username, req.toPatch(), false)
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	users, total, err := h.userService.List(r.Context(), search, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	items := make([]UserResponse, 0, len(users))
	for _, user := range users {
		items = append(items, toUserResponse(user))
	}

	writeJSON(w, http.StatusOK, ListResponse[UserResponse]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

type createUserRequest struct {
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Bio       string     `json:"bio"`
	Role      types.Role `json:"role"`
}

// CreateUser adds an account with an administrator-chosen role.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.userService.Create(r.Context(), types.User{
		Username:  strings.TrimSpace(req.Username),
		Email:     strings.TrimSpace(req.Email),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
		Role:      req.Role,
	})
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(created))
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if authz.IsSelfProfile(username) {
		h.Me(w, r)
		return
	}

	user, err := h.userService.GetByUsername(r.Context(), username)
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if authz.IsSelfProfile(username) {
		h.UpdateMe(w, r)
		return
	}

	var req userPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.userService.Update(r.Context(), username, req.toPatch(), true)
	if err != nil {
		writeServiceError(w, err, "user not found", "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.userService.Delete(r.Context(), username); err != nil {
		writeServiceError(w, err, "user not found", "failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
