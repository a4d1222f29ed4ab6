package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reviewdb/apiserver/internal/authz"
	"github.com/reviewdb/apiserver/internal/services"
	"github.com/reviewdb/apiserver/types"
)

// ReviewHandler provides HTTP handlers for reviews and their comments,
// nested under titles.
type ReviewHandler struct {
	reviewService *services.ReviewService
}

func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// ReviewRouter registers review and comment routes on a router mounted
// at /titles/{titleID}/reviews.
func (h *ReviewHandler) ReviewRouter(r chi.Router) {
	r.Get("/", h.ListReviews)
	r.With(RequireUser).Post("/", h.CreateReview)
	r.Route("/{reviewID}", func(r chi.Router) {
		r.Get("/", h.GetReview)
		r.With(RequireUser).Patch("/", h.UpdateReview)
		r.With(RequireUser).Delete("/", h.DeleteReview)
		r.Route("/comments", func(r chi.Router) {
			r.Get("/", h.ListComments)
			r.With(RequireUser).Post("/", h.CreateComment)
			r.Route("/{commentID}", func(r chi.Router) {
				r.Get("/", h.GetComment)
				r.With(RequireUser).Patch("/", h.UpdateComment)
				r.With(RequireUser).Delete("/", h.DeleteComment)
			})
		})
	})
}

type reviewRequest struct {
	Text  string `json:"text"`
	Score int    `json:"score"`
}

type commentRequest struct {
	Text string `json:"text"`
}

func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	titleID, err := parseIDParam(chi.URLParam(r, "titleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.reviewService.ListReviews(r.Context(), titleID, offset, limit)
	if err != nil {
		writeServiceError(w, err, "title not found", "failed to list reviews")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[types.Review]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, err := reviewPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, err := h.reviewService.GetReview(r.Context(), titleID, reviewID)
	if err != nil {
		writeServiceError(w, err, "review not found", "failed to fetch review")
		return
	}

	writeJSON(w, http.StatusOK, review)
}

func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	titleID, err := parseIDParam(chi.URLParam(r, "titleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user := userFromContext(r.Context())
	created, err := h.reviewService.CreateReview(r.Context(), *user, titleID, req.Text, req.Score)
	if err != nil {
		writeServiceError(w, err, "title not found", "failed to create review")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, err := reviewPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, err := h.reviewService.GetReview(r.Context(), titleID, reviewID)
	if err != nil {
		writeServiceError(w, err, "review not found", "failed to fetch review")
		return
	}
	if !authz.CanModifyContent(userFromContext(r.Context()), review.AuthorID) {
		writeError(w, http.StatusForbidden, "cannot modify another user's review")
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.reviewService.UpdateReview(r.Context(), titleID, reviewID, req.Text, req.Score)
	if err != nil {
		writeServiceError(w, err, "review not found", "failed to update review")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, err := reviewPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, err := h.reviewService.GetReview(r.Context(), titleID, reviewID)
	if err != nil {
		writeServiceError(w, err, "review not found", "failed to fetch review")
		return
	}
	if !authz.CanModifyContent(userFromContext(r.Context()), review.AuthorID) {
		writeError(w, http.StatusForbidden, "cannot delete another user's review")
		return
	}

	if err := h.reviewService.DeleteReview(r.Context(), titleID, reviewID); err != nil {
		writeServiceError(w, err, "review not found", "failed to delete review")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, err := reviewPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.reviewService.ListComments(r.Context(), titleID, reviewID, offset, limit)
	if err != nil {
		writeServiceError(w, err, "review not found", "failed to list comments")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[types.Comment]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *ReviewHandler) GetComment(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, commentID, err := commentPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	comment, err := h.reviewService.GetComment(r.Context(), titleID, reviewID, commentID)
	if err != nil {
		writeServiceError(w, err, "comment not found", "failed to fetch comment")
		return
	}

	writeJSON(w, http.StatusOK, comment)
}

func (h *ReviewHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, err := reviewPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user := userFromContext(r.Context())
	created, err := h.reviewService.CreateComment(r.Context(), *user, titleID, reviewID, req.Text)
	if err != nil {
		writeServiceError(w, err, "review not found", "failed to create comment")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ReviewHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, commentID, err := commentPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	comment, err := h.reviewService.GetComment(r.Context(), titleID, reviewID, commentID)
	if err != nil {
		writeServiceError(w, err, "comment not found", "failed to fetch comment")
		return
	}
	if !authz.CanModifyContent(userFromContext(r.Context()), comment.AuthorID) {
		writeError(w, http.StatusForbidden, "cannot modify another user's comment")
		return
	}

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.reviewService.UpdateComment(r.Context(), titleID, reviewID, commentID, req.Text)
	if err != nil {
		writeServiceError(w, err, "comment not found", "failed to update comment")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ReviewHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	titleID, reviewID, commentID, err := commentPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	comment, err := h.reviewService.GetComment(r.Context(), titleID, reviewID, commentID)
	if err != nil {
		writeServiceError(w, err, "comment not found", "failed to fetch comment")
		return
	}
	if !authz.CanModifyContent(userFromContext(r.Context()), comment.AuthorID) {
		writeError(w, http.StatusForbidden, "cannot delete another user's comment")
		return
	}

	if err := h.reviewService.DeleteComment(r.Context(), titleID, reviewID, commentID); err != nil {
		writeServiceError(w, err, "comment not found", "failed to delete comment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func reviewPath(r *http.Request) (titleID, reviewID int, err error) {
	titleID, err = parseIDParam(chi.URLParam(r, "titleID"))
	if err != nil {
		return 0, 0, errors.New("invalid title id")
	}
	reviewID, err = parseIDParam(chi.URLParam(r, "reviewID"))
	if err != nil {
		return 0, 0, errors.New("invalid review id")
	}
	return titleID, reviewID, nil
}

func commentPath(r *http.Request) (titleID, reviewID, commentID int, err error) {
	titleID, reviewID, err = reviewPath(r)
	if err != nil {
		return 0, 0, 0, err
	}
	commentID, err = parseIDParam(chi.URLParam(r, "commentID"))
	if err != nil {
		return 0, 0, 0, errors.New("invalid comment id")
	}
	return titleID, reviewID, commentID, nil
}
