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

// CatalogHandler provides HTTP handlers for categories, genres, and
// titles. Reads are open; writes require catalog privilege.
type CatalogHandler struct {
	catalogService *services.CatalogService
}

func NewCatalogHandler(catalogService *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// CategoryRouter registers category routes on the given router.
func (h *CatalogHandler) CategoryRouter(r chi.Router) {
	r.Get("/", h.ListCategories)
	r.With(requireCatalogWriter).Post("/", h.CreateCategory)
	r.With(requireCatalogWriter).Delete("/{slug}", h.DeleteCategory)
}

// GenreRouter registers genre routes on the given router.
func (h *CatalogHandler) GenreRouter(r chi.Router) {
	r.Get("/", h.ListGenres)
	r.With(requireCatalogWriter).Post("/", h.CreateGenre)
	r.With(requireCatalogWriter).Delete("/{slug}", h.DeleteGenre)
}

// TitleRouter registers title routes on the given router.
func (h *CatalogHandler) TitleRouter(r chi.Router) {
	r.Get("/", h.ListTitles)
	r.With(requireCatalogWriter).Post("/", h.CreateTitle)
	r.Route("/{titleID}", func(r chi.Router) {
		r.Get("/", h.GetTitle)
		r.With(requireCatalogWriter).Patch("/", h.UpdateTitle)
		r.With(requireCatalogWriter).Delete("/", h.DeleteTitle)
	})
}

// requireCatalogWriter gates catalog mutations.
func requireCatalogWriter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !authz.CanWriteCatalog(user) {
			writeError(w, http.StatusForbidden, "catalog write access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type sluggedRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	items, total, err := h.catalogService.ListCategories(r.Context(), search, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[types.Category]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req sluggedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.catalogService.CreateCategory(r.Context(), types.Category{
		Name: strings.TrimSpace(req.Name),
		Slug: strings.TrimSpace(req.Slug),
	})
	if err != nil {
		writeServiceError(w, err, "category not found", "failed to create category")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalogService.DeleteCategory(r.Context(), chi.URLParam(r, "slug")); err != nil {
		writeServiceError(w, err, "category not found", "failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) ListGenres(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	items, total, err := h.catalogService.ListGenres(r.Context(), search, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list genres")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[types.Genre]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *CatalogHandler) CreateGenre(w http.ResponseWriter, r *http.Request) {
	var req sluggedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.catalogService.CreateGenre(r.Context(), types.Genre{
		Name: strings.TrimSpace(req.Name),
		Slug: strings.TrimSpace(req.Slug),
	})
	if err != nil {
		writeServiceError(w, err, "genre not found", "failed to create genre")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) DeleteGenre(w http.ResponseWriter, r *http.Request) {
	if err := h.catalogService.DeleteGenre(r.Context(), chi.URLParam(r, "slug")); err != nil {
		writeServiceError(w, err, "genre not found", "failed to delete genre")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type titleRequest struct {
	Name        string   `json:"name"`
	Year        int      `json:"year"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Genre       []string `json:"genre"`
}

func (t titleRequest) toInput() services.TitleInput {
	return services.TitleInput{
		Name:        strings.TrimSpace(t.Name),
		Year:        t.Year,
		Description: t.Description,
		Category:    strings.TrimSpace(t.Category),
		Genres:      t.Genre,
	}
}

func (h *CatalogHandler) ListTitles(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	items, total, err := h.catalogService.ListTitles(r.Context(), search, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list titles")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[types.Title]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *CatalogHandler) GetTitle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "titleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	title, err := h.catalogService.GetTitle(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "title not found", "failed to fetch title")
		return
	}

	writeJSON(w, http.StatusOK, title)
}

func (h *CatalogHandler) CreateTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.catalogService.CreateTitle(r.Context(), req.toInput())
	if err != nil {
		writeServiceError(w, err, "title not found", "failed to create title")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "titleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.catalogService.UpdateTitle(r.Context(), id, req.toInput())
	if err != nil {
		writeServiceError(w, err, "title not found", "failed to update title")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *CatalogHandler) DeleteTitle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "titleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	if err := h.catalogService.DeleteTitle(r.Context(), id); err != nil {
		writeServiceError(w, err, "title not found", "failed to delete title")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
