package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reviewdb/apiserver/internal/store"
	"github.com/reviewdb/apiserver/types"
)

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context, search string, offset, limit int) ([]types.Category, int, error)
	GetBySlug(ctx context.Context, slug string) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	Delete(ctx context.Context, slug string) error
}

// GenreRepository defines persistence operations for genres.
type GenreRepository interface {
	List(ctx context.Context, search string, offset, limit int) ([]types.Genre, int, error)
	GetBySlugs(ctx context.Context, slugs []string) ([]types.Genre, error)
	Create(ctx context.Context, genre types.Genre) (types.Genre, error)
	Delete(ctx context.Context, slug string) error
}

// TitleRepository defines persistence operations for titles.
type TitleRepository interface {
	List(ctx context.Context, search string, offset, limit int) ([]types.Title, int, error)
	Get(ctx context.Context, id int) (types.Title, error)
	Create(ctx context.Context, title types.Title) (types.Title, error)
	Update(ctx context.Context, title types.Title) (types.Title, error)
	Delete(ctx context.Context, id int) error
}

// CatalogService encapsulates category, genre, and title use-cases.
type CatalogService struct {
	categories CategoryRepository
	genres     GenreRepository
	titles     TitleRepository
}

func NewCatalogService(categories CategoryRepository, genres GenreRepository, titles TitleRepository) *CatalogService {
	return &CatalogService{
		categories: categories,
		genres:     genres,
		titles:     titles,
	}
}

func (s *CatalogService) ListCategories(ctx context.Context, search string, offset, limit int) ([]types.Category, int, error) {
	return s.categories.List(ctx, search, offset, limit)
}

func (s *CatalogService) CreateCategory(ctx context.Context, category types.Category) (types.Category, error) {
	if err := validateSlugged(category.Name, category.Slug); err != nil {
		return types.Category{}, err
	}
	created, err := s.categories.Create(ctx, category)
	if err != nil {
		if errors.Is(err, store.ErrSlugTaken) {
			return types.Category{}, FieldErrors{{Field: "slug", Message: "slug already exists"}}
		}
		return types.Category{}, err
	}
	return created, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, slug string) error {
	return s.categories.Delete(ctx, slug)
}

func (s *CatalogService) ListGenres(ctx context.Context, search string, offset, limit int) ([]types.Genre, int, error) {
	return s.genres.List(ctx, search, offset, limit)
}

func (s *CatalogService) CreateGenre(ctx context.Context, genre types.Genre) (types.Genre, error) {
	if err := validateSlugged(genre.Name, genre.Slug); err != nil {
		return types.Genre{}, err
	}
	created, err := s.genres.Create(ctx, genre)
	if err != nil {
		if errors.Is(err, store.ErrSlugTaken) {
			return types.Genre{}, FieldErrors{{Field: "slug", Message: "slug already exists"}}
		}
		return types.Genre{}, err
	}
	return created, nil
}

func (s *CatalogService) DeleteGenre(ctx context.Context, slug string) error {
	return s.genres.Delete(ctx, slug)
}

func (s *CatalogService) ListTitles(ctx context.Context, search string, offset, limit int) ([]types.Title, int, error) {
	return s.titles.List(ctx, search, offset, limit)
}

func (s *CatalogService) GetTitle(ctx context.Context, id int) (types.Title, error) {
	return s.titles.Get(ctx, id)
}

// TitleInput is the write payload for titles; category and genres are
// referenced by slug.
type TitleInput struct {
	Name        string
	Year        int
	Description string
	Category    string
	Genres      []string
}

func (s *CatalogService) CreateTitle(ctx context.Context, input TitleInput) (types.Title, error) {
	title, err := s.resolveTitle(ctx, input)
	if err != nil {
		return types.Title{}, err
	}
	created, err := s.titles.Create(ctx, title)
	if err != nil {
		return types.Title{}, err
	}
	return s.titles.Get(ctx, created.ID)
}

func (s *CatalogService) UpdateTitle(ctx context.Context, id int, input TitleInput) (types.Title, error) {
	title, err := s.resolveTitle(ctx, input)
	if err != nil {
		return types.Title{}, err
	}
	title.ID = id
	if _, err := s.titles.Update(ctx, title); err != nil {
		return types.Title{}, err
	}
	return s.titles.Get(ctx, id)
}

func (s *CatalogService) DeleteTitle(ctx context.Context, id int) error {
	return s.titles.Delete(ctx, id)
}

// resolveTitle validates the input and resolves slug references.
func (s *CatalogService) resolveTitle(ctx context.Context, input TitleInput) (types.Title, error) {
	var errs FieldErrors
	if input.Name == "" {
		errs.add("name", "name is required")
	} else if len(input.Name) > types.CatalogNameMaxLength {
		errs.add("name", fmt.Sprintf("name must be at most %d characters", types.CatalogNameMaxLength))
	}
	if input.Year > time.Now().Year() {
		errs.add("year", "year must not be in the future")
	}
	if err := errs.orNil(); err != nil {
		return types.Title{}, err
	}

	title := types.Title{
		Name:        input.Name,
		Year:        input.Year,
		Description: input.Description,
	}

	if input.Category != "" {
		category, err := s.categories.GetBySlug(ctx, input.Category)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return types.Title{}, FieldErrors{{Field: "category", Message: "unknown category"}}
			}
			return types.Title{}, err
		}
		title.Category = &category
	}

	if len(input.Genres) > 0 {
		genres, err := s.genres.GetBySlugs(ctx, input.Genres)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return types.Title{}, FieldErrors{{Field: "genre", Message: "unknown genre"}}
			}
			return types.Title{}, err
		}
		title.Genres = genres
	}

	return title, nil
}

func validateSlugged(name, slug string) error {
	var errs FieldErrors
	if name == "" {
		errs.add("name", "name is required")
	} else if len(name) > types.CatalogNameMaxLength {
		errs.add("name", fmt.Sprintf("name must be at most %d characters", types.CatalogNameMaxLength))
	}
	switch {
	case slug == "":
		errs.add("slug", "slug is required")
	case len(slug) > types.SlugMaxLength:
		errs.add("slug", fmt.Sprintf("slug must be at most %d characters", types.SlugMaxLength))
	case !types.SlugPattern.MatchString(slug):
		errs.add("slug", "slug may contain only letters, digits, hyphens, and underscores")
	}
	return errs.orNil()
}
