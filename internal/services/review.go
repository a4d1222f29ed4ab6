package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/reviewdb/apiserver/internal/store"
	"github.com/reviewdb/apiserver/types"
)

// ReviewRepository defines persistence operations for reviews.
type ReviewRepository interface {
	ListByTitle(ctx context.Context, titleID, offset, limit int) ([]types.Review, int, error)
	Get(ctx context.Context, titleID, reviewID int) (types.Review, error)
	Create(ctx context.Context, review types.Review) (types.Review, error)
	Update(ctx context.Context, review types.Review) (types.Review, error)
	Delete(ctx context.Context, id int) error
}

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	ListByReview(ctx context.Context, reviewID, offset, limit int) ([]types.Comment, int, error)
	Get(ctx context.Context, reviewID, commentID int) (types.Comment, error)
	Create(ctx context.Context, comment types.Comment) (types.Comment, error)
	Update(ctx context.Context, comment types.Comment) (types.Comment, error)
	Delete(ctx context.Context, id int) error
}

// ReviewService encapsulates review and comment use-cases.
type ReviewService struct {
	titles   TitleRepository
	reviews  ReviewRepository
	comments CommentRepository
}

func NewReviewService(titles TitleRepository, reviews ReviewRepository, comments CommentRepository) *ReviewService {
	return &ReviewService{
		titles:   titles,
		reviews:  reviews,
		comments: comments,
	}
}

func (s *ReviewService) ListReviews(ctx context.Context, titleID, offset, limit int) ([]types.Review, int, error) {
	if _, err := s.titles.Get(ctx, titleID); err != nil {
		return nil, 0, err
	}
	return s.reviews.ListByTitle(ctx, titleID, offset, limit)
}

func (s *ReviewService) GetReview(ctx context.Context, titleID, reviewID int) (types.Review, error) {
	return s.reviews.Get(ctx, titleID, reviewID)
}

// CreateReview adds the author's review of a title. Each author may
// review a title once; the database constraint is the authority under
// concurrent submissions.
func (s *ReviewService) CreateReview(ctx context.Context, author types.User, titleID int, text string, score int) (types.Review, error) {
	if err := validateReview(text, score); err != nil {
		return types.Review{}, err
	}
	if _, err := s.titles.Get(ctx, titleID); err != nil {
		return types.Review{}, err
	}

	review := types.Review{
		TitleID:  titleID,
		AuthorID: author.ID,
		Author:   author.Username,
		Text:     text,
		Score:    score,
	}
	created, err := s.reviews.Create(ctx, review)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateReview) {
			return types.Review{}, FieldErrors{{Field: "title", Message: "you have already reviewed this title"}}
		}
		return types.Review{}, err
	}
	return created, nil
}

func (s *ReviewService) UpdateReview(ctx context.Context, titleID, reviewID int, text string, score int) (types.Review, error) {
	if err := validateReview(text, score); err != nil {
		return types.Review{}, err
	}
	review, err := s.reviews.Get(ctx, titleID, reviewID)
	if err != nil {
		return types.Review{}, err
	}
	review.Text = text
	review.Score = score
	return s.reviews.Update(ctx, review)
}

func (s *ReviewService) DeleteReview(ctx context.Context, titleID, reviewID int) error {
	if _, err := s.reviews.Get(ctx, titleID, reviewID); err != nil {
		return err
	}
	return s.reviews.Delete(ctx, reviewID)
}

func (s *ReviewService) ListComments(ctx context.Context, titleID, reviewID, offset, limit int) ([]types.Comment, int, error) {
	if _, err := s.reviews.Get(ctx, titleID, reviewID); err != nil {
		return nil, 0, err
	}
	return s.comments.ListByReview(ctx, reviewID, offset, limit)
}

func (s *ReviewService) GetComment(ctx context.Context, titleID, reviewID, commentID int) (types.Comment, error) {
	if _, err := s.reviews.Get(ctx, titleID, reviewID); err != nil {
		return types.Comment{}, err
	}
	return s.comments.Get(ctx, reviewID, commentID)
}

func (s *ReviewService) CreateComment(ctx context.Context, author types.User, titleID, reviewID int, text string) (types.Comment, error) {
	if text == "" {
		return types.Comment{}, FieldErrors{{Field: "text", Message: "text is required"}}
	}
	if _, err := s.reviews.Get(ctx, titleID, reviewID); err != nil {
		return types.Comment{}, err
	}

	comment := types.Comment{
		ReviewID: reviewID,
		AuthorID: author.ID,
		Author:   author.Username,
		Text:     text,
	}
	return s.comments.Create(ctx, comment)
}

func (s *ReviewService) UpdateComment(ctx context.Context, titleID, reviewID, commentID int, text string) (types.Comment, error) {
	if text == "" {
		return types.Comment{}, FieldErrors{{Field: "text", Message: "text is required"}}
	}
	comment, err := s.GetComment(ctx, titleID, reviewID, commentID)
	if err != nil {
		return types.Comment{}, err
	}
	comment.Text = text
	return s.comments.Update(ctx, comment)
}

func (s *ReviewService) DeleteComment(ctx context.Context, titleID, reviewID, commentID int) error {
	if _, err := s.GetComment(ctx, titleID, reviewID, commentID); err != nil {
		return err
	}
	return s.comments.Delete(ctx, commentID)
}

func validateReview(text string, score int) error {
	var errs FieldErrors
	if text == "" {
		errs.add("text", "text is required")
	}
	if score < types.ScoreMin || score > types.ScoreMax {
		errs.add("score", fmt.Sprintf("score must be between %d and %d", types.ScoreMin, types.ScoreMax))
	}
	return errs.orNil()
}
