package types

import "time"

const (
	// ScoreMin and ScoreMax bound review scores.
	ScoreMin = 1
	ScoreMax = 10
)

// Review is a scored write-up of a title. A user may review a title
// at most once.
type Review struct {
	ID      int    `json:"id" db:"id"`
	TitleID int    `json:"-" db:"title_id"`
	Author  string `json:"author" db:"author"`
	Text    string `json:"text" db:"text"`
	Score   int    `json:"score" db:"score"`

	AuthorID int       `json:"-" db:"author_id"`
	PubDate  time.Time `json:"pub_date" db:"pub_date"`
}

// Comment is a reply to a review.
type Comment struct {
	ID       int    `json:"id" db:"id"`
	ReviewID int    `json:"-" db:"review_id"`
	Author   string `json:"author" db:"author"`
	Text     string `json:"text" db:"text"`

	AuthorID int       `json:"-" db:"author_id"`
	PubDate  time.Time `json:"pub_date" db:"pub_date"`
}
