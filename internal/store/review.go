package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/reviewdb/apiserver/types"
)

// ReviewRepository handles persistence for reviews.
type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewSelect = `
	SELECT r.id, r.title_id, r.author_id, u.username, r.text, r.score, r.pub_date
	FROM reviews r
	JOIN users u ON u.id = r.author_id`

func scanReview(row interface{ Scan(...any) error }) (types.Review, error) {
	var review types.Review
	err := row.Scan(
		&review.ID,
		&review.TitleID,
		&review.AuthorID,
		&review.Author,
		&review.Text,
		&review.Score,
		&review.PubDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Review{}, ErrNotFound
		}
		return types.Review{}, err
	}
	return review, nil
}

func (r *ReviewRepository) ListByTitle(ctx context.Context, titleID, offset, limit int) ([]types.Review, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM reviews WHERE title_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, titleID).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := reviewSelect + `
	WHERE r.title_id = $1
	ORDER BY r.pub_date
	OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, listQuery, titleID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reviews := make([]types.Review, 0, limit)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return reviews, total, nil
}

func (r *ReviewRepository) Get(ctx context.Context, titleID, reviewID int) (types.Review, error) {
	query := reviewSelect + ` WHERE r.id = $1 AND r.title_id = $2`
	return scanReview(r.db.QueryRowContext(ctx, query, reviewID, titleID))
}

func (r *ReviewRepository) Create(ctx context.Context, review types.Review) (types.Review, error) {
	review.PubDate = time.Now()

	const query = `
		INSERT INTO reviews (title_id, author_id, text, score, pub_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		review.TitleID,
		review.AuthorID,
		review.Text,
		review.Score,
		review.PubDate,
	).Scan(&review.ID); err != nil {
		return types.Review{}, mapUniqueViolation(err)
	}
	return review, nil
}

func (r *ReviewRepository) Update(ctx context.Context, review types.Review) (types.Review, error) {
	const query = `
		UPDATE reviews
		SET text = $1, score = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, review.Text, review.Score, review.ID)
	if err != nil {
		return types.Review{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Review{}, err
	}
	if affected == 0 {
		return types.Review{}, ErrNotFound
	}
	return review, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM reviews WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CommentRepository handles persistence for review comments.
type CommentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentSelect = `
	SELECT c.id, c.review_id, c.author_id, u.username, c.text, c.pub_date
	FROM comments c
	JOIN users u ON u.id = c.author_id`

func scanComment(row interface{ Scan(...any) error }) (types.Comment, error) {
	var comment types.Comment
	err := row.Scan(
		&comment.ID,
		&comment.ReviewID,
		&comment.AuthorID,
		&comment.Author,
		&comment.Text,
		&comment.PubDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Comment{}, ErrNotFound
		}
		return types.Comment{}, err
	}
	return comment, nil
}

func (r *CommentRepository) ListByReview(ctx context.Context, reviewID, offset, limit int) ([]types.Comment, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM comments WHERE review_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, reviewID).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := commentSelect + `
	WHERE c.review_id = $1
	ORDER BY c.pub_date
	OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, listQuery, reviewID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	comments := make([]types.Comment, 0, limit)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, 0, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return comments, total, nil
}

func (r *CommentRepository) Get(ctx context.Context, reviewID, commentID int) (types.Comment, error) {
	query := commentSelect + ` WHERE c.id = $1 AND c.review_id = $2`
	return scanComment(r.db.QueryRowContext(ctx, query, commentID, reviewID))
}

func (r *CommentRepository) Create(ctx context.Context, comment types.Comment) (types.Comment, error) {
	comment.PubDate = time.Now()

	const query = `
		INSERT INTO comments (review_id, author_id, text, pub_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		comment.ReviewID,
		comment.AuthorID,
		comment.Text,
		comment.PubDate,
	).Scan(&comment.ID); err != nil {
		return types.Comment{}, err
	}
	return comment, nil
}

func (r *CommentRepository) Update(ctx context.Context, comment types.Comment) (types.Comment, error) {
	const query = `
		UPDATE comments
		SET text = $1
		WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, comment.Text, comment.ID)
	if err != nil {
		return types.Comment{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Comment{}, err
	}
	if affected == 0 {
		return types.Comment{}, ErrNotFound
	}
	return comment, nil
}

func (r *CommentRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM comments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
