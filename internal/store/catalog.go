package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/reviewdb/apiserver/types"
)

// CategoryRepository handles persistence for categories.
type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) List(ctx context.Context, search string, offset, limit int) ([]types.Category, int, error) {
	return listSlugged[types.Category](ctx, r.db, "categories", search, offset, limit, func(rows *sql.Rows) (types.Category, error) {
		var c types.Category
		err := rows.Scan(&c.ID, &c.Name, &c.Slug)
		return c, err
	})
}

func (r *CategoryRepository) GetBySlug(ctx context.Context, slug string) (types.Category, error) {
	const query = `SELECT id, name, slug FROM categories WHERE slug = $1`
	var c types.Category
	err := r.db.QueryRowContext(ctx, query, slug).Scan(&c.ID, &c.Name, &c.Slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Category{}, ErrNotFound
		}
		return types.Category{}, err
	}
	return c, nil
}

func (r *CategoryRepository) Create(ctx context.Context, c types.Category) (types.Category, error) {
	const query = `INSERT INTO categories (name, slug) VALUES ($1, $2) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, c.Name, c.Slug).Scan(&c.ID); err != nil {
		return types.Category{}, mapUniqueViolation(err)
	}
	return c, nil
}

func (r *CategoryRepository) Delete(ctx context.Context, slug string) error {
	return deleteBySlug(ctx, r.db, `DELETE FROM categories WHERE slug = $1`, slug)
}

// GenreRepository handles persistence for genres.
type GenreRepository struct {
	db *sql.DB
}

func NewGenreRepository(db *sql.DB) *GenreRepository {
	return &GenreRepository{db: db}
}

func (r *GenreRepository) List(ctx context.Context, search string, offset, limit int) ([]types.Genre, int, error) {
	return listSlugged[types.Genre](ctx, r.db, "genres", search, offset, limit, func(rows *sql.Rows) (types.Genre, error) {
		var g types.Genre
		err := rows.Scan(&g.ID, &g.Name, &g.Slug)
		return g, err
	})
}

func (r *GenreRepository) GetBySlugs(ctx context.Context, slugs []string) ([]types.Genre, error) {
	genres := make([]types.Genre, 0, len(slugs))
	for _, slug := range slugs {
		const query = `SELECT id, name, slug FROM genres WHERE slug = $1`
		var g types.Genre
		err := r.db.QueryRowContext(ctx, query, slug).Scan(&g.ID, &g.Name, &g.Slug)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, nil
}

func (r *GenreRepository) Create(ctx context.Context, g types.Genre) (types.Genre, error) {
	const query = `INSERT INTO genres (name, slug) VALUES ($1, $2) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, g.Name, g.Slug).Scan(&g.ID); err != nil {
		return types.Genre{}, mapUniqueViolation(err)
	}
	return g, nil
}

func (r *GenreRepository) Delete(ctx context.Context, slug string) error {
	return deleteBySlug(ctx, r.db, `DELETE FROM genres WHERE slug = $1`, slug)
}

func listSlugged[T any](ctx context.Context, db *sql.DB, table, search string, offset, limit int, scan func(*sql.Rows) (T, error)) ([]T, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	pattern := "%" + search + "%"

	var total int
	countQuery := `SELECT COUNT(1) FROM ` + table + ` WHERE name ILIKE $1 OR slug ILIKE $1`
	if err := db.QueryRowContext(ctx, countQuery, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `
		SELECT id, name, slug FROM ` + table + `
		WHERE name ILIKE $1 OR slug ILIKE $1
		ORDER BY name
		OFFSET $2 LIMIT $3`
	rows, err := db.QueryContext(ctx, listQuery, pattern, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]T, 0, limit)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func deleteBySlug(ctx context.Context, db *sql.DB, query, slug string) error {
	result, err := db.ExecContext(ctx, query, slug)
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
