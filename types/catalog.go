package types

import (
	"regexp"
	"time"
)

const (
	// CatalogNameMaxLength bounds category, genre, and title names.
	CatalogNameMaxLength = 256

	// SlugMaxLength bounds category and genre slugs.
	SlugMaxLength = 50
)

// SlugPattern is the allowed slug alphabet.
var SlugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

// Category groups titles by kind (film, book, music, ...).
type Category struct {
	ID   int    `json:"-" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

// Genre tags titles by genre.
type Genre struct {
	ID   int    `json:"-" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

// Title is a reviewable work in the catalog.
type Title struct {
	ID          int    `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Year        int    `json:"year" db:"year"`
	Description string `json:"description" db:"description"`

	// Category and Genres are resolved from the stored slugs.
	Category *Category `json:"category"`
	Genres   []Genre   `json:"genre"`

	// Rating is the integer-rounded average review score,
	// nil while the title has no reviews.
	Rating *int `json:"rating"`

	CreatedAt time.Time `json:"-" db:"created_at"`
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}
