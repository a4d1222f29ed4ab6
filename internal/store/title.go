package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/reviewdb/apiserver/types"
)

// TitleRepository handles persistence for titles.
type TitleRepository struct {
	db *sql.DB
}

func NewTitleRepository(db *sql.DB) *TitleRepository {
	return &TitleRepository{db: db}
}

// titleSelect joins the category and the rounded average review score.
const titleSelect = `
	SELECT t.id, t.name, t.year, t.description, t.created_at, t.updated_at,
		c.id, c.name, c.slug,
		ROUND(AVG(r.score))::int AS rating
	FROM titles t
	LEFT JOIN categories c ON c.id = t.category_id
	LEFT JOIN reviews r ON r.title_id = t.id`

const titleGroup = ` GROUP BY t.id, c.id`

func scanTitle(rows interface{ Scan(...any) error }) (types.Title, error) {
	var (
		title        types.Title
		categoryID   sql.NullInt64
		categoryName sql.NullString
		categorySlug sql.NullString
		rating       sql.NullInt64
	)
	err := rows.Scan(
		&title.ID,
		&title.Name,
		&title.Year,
		&title.Description,
		&title.CreatedAt,
		&title.UpdatedAt,
		&categoryID,
		&categoryName,
		&categorySlug,
		&rating,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Title{}, ErrNotFound
		}
		return types.Title{}, err
	}
	if categoryID.Valid {
		title.Category = &types.Category{
			ID:   int(categoryID.Int64),
			Name: categoryName.String,
			Slug: categorySlug.String,
		}
	}
	if rating.Valid {
		value := int(rating.Int64)
		title.Rating = &value
	}
	return title, nil
}

func (r *TitleRepository) List(ctx context.Context, search string, offset, limit int) ([]types.Title, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	pattern := "%" + search + "%"

	const countQuery = `SELECT COUNT(1) FROM titles WHERE name ILIKE $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := titleSelect + `
	WHERE t.name ILIKE $1` + titleGroup + `
	ORDER BY t.year DESC, t.name
	OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, listQuery, pattern, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	titles := make([]types.Title, 0, limit)
	for rows.Next() {
		title, err := scanTitle(rows)
		if err != nil {
			return nil, 0, err
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range titles {
		genres, err := r.genresFor(ctx, titles[i].ID)
		if err != nil {
			return nil, 0, err
		}
		titles[i].Genres = genres
	}

	return titles, total, nil
}

func (r *TitleRepository) Get(ctx context.Context, id int) (types.Title, error) {
	query := titleSelect + ` WHERE t.id = $1` + titleGroup
	title, err := scanTitle(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.Title{}, err
	}
	title.Genres, err = r.genresFor(ctx, title.ID)
	if err != nil {
		return types.Title{}, err
	}
	return title, nil
}

func (r *TitleRepository) Create(ctx context.Context, title types.Title) (types.Title, error) {
	now := time.Now()
	title.CreatedAt = now
	title.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Title{}, err
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO titles (name, year, description, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		query,
		title.Name,
		title.Year,
		title.Description,
		categoryID(title.Category),
		title.CreatedAt,
		title.UpdatedAt,
	).Scan(&title.ID); err != nil {
		return types.Title{}, err
	}

	if err := replaceGenres(ctx, tx, title.ID, title.Genres); err != nil {
		return types.Title{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.Title{}, err
	}
	return title, nil
}

func (r *TitleRepository) Update(ctx context.Context, title types.Title) (types.Title, error) {
	title.UpdatedAt = time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Title{}, err
	}
	defer tx.Rollback()

	const query = `
		UPDATE titles
		SET name = $1,
			year = $2,
			description = $3,
			category_id = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := tx.ExecContext(
		ctx,
		query,
		title.Name,
		title.Year,
		title.Description,
		categoryID(title.Category),
		title.UpdatedAt,
		title.ID,
	)
	if err != nil {
		return types.Title{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Title{}, err
	}
	if affected == 0 {
		return types.Title{}, ErrNotFound
	}

	if err := replaceGenres(ctx, tx, title.ID, title.Genres); err != nil {
		return types.Title{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.Title{}, err
	}
	return title, nil
}

func (r *TitleRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM titles WHERE id = $1`
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

func (r *TitleRepository) genresFor(ctx context.Context, titleID int) ([]types.Genre, error) {
	const query = `
		SELECT g.id, g.name, g.slug
		FROM genres g
		JOIN title_genres tg ON tg.genre_id = g.id
		WHERE tg.title_id = $1
		ORDER BY g.name`
	rows, err := r.db.QueryContext(ctx, query, titleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var genres []types.Genre
	for rows.Next() {
		var g types.Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.Slug); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

func replaceGenres(ctx context.Context, tx *sql.Tx, titleID int, genres []types.Genre) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM title_genres WHERE title_id = $1`, titleID); err != nil {
		return err
	}
	for _, g := range genres {
		const query = `INSERT INTO title_genres (title_id, genre_id) VALUES ($1, $2)`
		if _, err := tx.ExecContext(ctx, query, titleID, g.ID); err != nil {
			return err
		}
	}
	return nil
}

func categoryID(c *types.Category) sql.NullInt64 {
	if c == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(c.ID), Valid: true}
}
