package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned when a username is already bound to
// another account.
var ErrUsernameTaken = errors.New("username taken")

// ErrEmailTaken is returned when an email is already bound to
// another account.
var ErrEmailTaken = errors.New("email taken")

// ErrSlugTaken is returned when a category or genre slug already exists.
var ErrSlugTaken = errors.New("slug taken")

// ErrDuplicateReview is returned when an author reviews the same
// title twice.
var ErrDuplicateReview = errors.New("duplicate review")

const uniqueViolation = "23505"

// mapUniqueViolation translates a postgres unique-constraint violation
// into the sentinel matching the violated constraint. Concurrent inserts
// race on the same uniqueness constraints the lookups check, so the
// database verdict is authoritative.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "users_username_key":
		return ErrUsernameTaken
	case "users_email_key":
		return ErrEmailTaken
	case "categories_slug_key", "genres_slug_key":
		return ErrSlugTaken
	case "reviews_author_title_key":
		return ErrDuplicateReview
	}
	return err
}
